/*
DESCRIPTION
  cadence.go provides a Scheduler that decides when the next still is captured
  according to a cadence Policy.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cadence provides a capture Scheduler implementing the single,
// timelapse, keypress, forever, trigger, signal and immediate capture
// policies.
package cadence

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// Policy is a cadence policy deciding when the next capture is taken.
type Policy uint8

// Cadence policies.
const (
	Unset     Policy = iota
	Single           // One capture after the timeout.
	Timelapse        // Periodic captures with drift correction.
	Keypress         // One capture per line of input.
	Forever          // Captures with a short fixed pause, never ending.
	Trigger          // Capture initiated by an out of process trigger.
	Signal           // One capture per received notification.
	Immediate        // Back to back captures.
)

var policyNames = [...]string{
	Unset:     "unset",
	Single:    "single",
	Timelapse: "timelapse",
	Keypress:  "keypress",
	Forever:   "forever",
	Trigger:   "trigger",
	Signal:    "signal",
	Immediate: "immediate",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy returns the Policy named by s. Names are case insensitive.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(s)
	for p, n := range policyNames {
		if Policy(p) != Unset && n == s {
			return Policy(p), nil
		}
	}
	return Unset, fmt.Errorf("unknown cadence policy %q", s)
}

// Pacing constants.
const (
	foreverPause   = 10 * time.Millisecond
	settlePause    = 1000 * time.Millisecond // Lets exposure and gain converge.
	immediatePause = 30 * time.Millisecond
)

// ExitKey ends a keypress session when it starts a line of input.
const ExitKey = 'x'

// Clock provides the time source and sleeps used by a Scheduler.
type Clock interface {
	Now() time.Time

	// Sleep pauses for d, returning early with the context's error if ctx is
	// cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is a Clock backed by the monotonic system clock.
type SystemClock struct{}

// Now implements Clock.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.Sleep.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option is a functional option for a Scheduler.
type Option func(*Scheduler)

// WithClock sets the Clock used by the Scheduler.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithInput sets the source of lines for the Keypress policy.
func WithInput(r io.Reader) Option {
	return func(s *Scheduler) { s.in = bufio.NewReader(r) }
}

// WithPrompt sets where the Keypress policy prompts for input.
func WithPrompt(w io.Writer) Option {
	return func(s *Scheduler) { s.prompt = w }
}

// WithNotify sets the notification channel waited on by the Signal policy.
func WithNotify(c <-chan struct{}) Option {
	return func(s *Scheduler) { s.notify = c }
}

// Scheduler decides, per its Policy, whether and when the next frame is
// captured. A Scheduler is used from a single goroutine.
type Scheduler struct {
	policy   Policy
	timeout  time.Duration
	interval time.Duration
	log      logging.Logger

	clock  Clock
	in     *bufio.Reader
	prompt io.Writer
	notify <-chan struct{}

	started  bool      // Set on the first call to Next.
	deadline time.Time // End of run; unused when timeout is 0.
	nextDue  time.Time // Timelapse only; zero until the first frame.
}

// New returns a Scheduler for policy p. timeout is the overall run time (or
// the single capture delay) and interval is the timelapse period.
func New(p Policy, timeout, interval time.Duration, l logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		policy:   p,
		timeout:  timeout,
		interval: interval,
		log:      l,
		clock:    SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the Scheduler's policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// NextDue returns the time the next timelapse frame is due, and false if it
// has not been established.
func (s *Scheduler) NextDue() (time.Time, bool) {
	return s.nextDue, !s.nextDue.IsZero()
}

// Next blocks until the next frame is due, updating *frame to the identifier
// of that frame. The frame is captured unless ctx has been cancelled. Next
// returns false if no frame should follow it, because the policy is exhausted
// or the run time has elapsed.
func (s *Scheduler) Next(ctx context.Context, frame *int) bool {
	now := s.clock.Now()
	first := !s.started
	if first {
		s.started = true
		s.deadline = now.Add(s.timeout)
	}
	keepRunning := s.timeout == 0 || now.Before(s.deadline)

	switch s.policy {
	case Single, Unset:
		s.sleep(ctx, s.timeout)
		return false

	case Forever:
		*frame++
		return s.sleep(ctx, foreverPause)

	case Timelapse:
		return s.timelapse(ctx, frame) && keepRunning

	case Keypress:
		if s.prompt != nil {
			fmt.Fprintf(s.prompt, "Press Enter to capture, %c then Enter to exit\n", ExitKey)
		}
		if s.in == nil {
			s.log.Error("no input for keypress cadence")
			return false
		}
		line, err := s.in.ReadString('\n')
		*frame++
		if len(line) > 0 && line[0] == ExitKey {
			return false
		}
		if err != nil {
			if err != io.EOF {
				s.log.Error("could not read keypress input", "error", err.Error())
			}
			return false
		}
		return keepRunning && ctx.Err() == nil

	case Trigger:
		return false

	case Signal:
		s.log.Debug("waiting for notification to initiate capture")
		select {
		case <-s.notify:
			s.log.Debug("received capture notification")
		case <-ctx.Done():
			return false
		}
		*frame++
		return keepRunning

	case Immediate:
		d := immediatePause
		if first {
			d = settlePause
		}
		if !s.sleep(ctx, d) {
			return false
		}
		*frame++
		return keepRunning

	default:
		s.log.Error("unknown cadence policy", "policy", s.policy.String())
		return false
	}
}

// timelapse advances frame and sleeps until the next frame on the timelapse
// grid. Late frames are taken immediately if less than half an interval late,
// otherwise frames are skipped so that the grid is kept.
func (s *Scheduler) timelapse(ctx context.Context, frame *int) bool {
	if s.nextDue.IsZero() {
		*frame++
		if !s.sleep(ctx, s.interval) {
			return false
		}
		s.nextDue = s.clock.Now().Add(s.interval)
		return true
	}

	delay := s.nextDue.Sub(s.clock.Now())
	switch {
	case delay >= 0:
		*frame++
		s.nextDue = s.nextDue.Add(s.interval)
		return s.sleep(ctx, delay)

	case -delay < s.interval/2:
		*frame++
		s.nextDue = s.nextDue.Add(s.interval)
		s.log.Warning("frame is late", "frame", *frame, "late", -delay)
		return true

	default:
		skip := 1 + int(-delay/s.interval)
		s.log.Warning("skipping frames", "from", *frame+1, "to", *frame+skip)
		*frame += skip
		s.nextDue = s.nextDue.Add(time.Duration(skip+1) * s.interval)
		return s.sleep(ctx, time.Duration(skip)*s.interval+delay)
	}
}

// sleep sleeps for d, returning false if ctx was cancelled.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	err := s.clock.Sleep(ctx, d)
	if err != nil {
		s.log.Debug("cadence sleep interrupted", "error", err.Error())
		return false
	}
	return true
}
