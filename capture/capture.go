/*
DESCRIPTION
  capture.go provides Capturer, the control loop that takes a capture on each
  cadence tick, writing the encoded image to an output file.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package capture provides the capture control loop. Each iteration waits on
// a cadence scheduler, opens an output for the frame, arms and triggers a
// camera capture, waits for the camera's output callback to signal the image
// is complete and then finalises the output.
package capture

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ausocean/stillcam/cadence"
	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/stillcam/telemetry"
	"github.com/ausocean/utils/logging"
)

// defaultWaitTimeout bounds the wait for a capture to complete.
const defaultWaitTimeout = time.Minute

// Stats are counts of capture outcomes.
type Stats struct {
	Attempted int // Captures triggered.
	Completed int // Captures completed with a whole image.
	Failed    int // Captures that failed or timed out.
}

// Capturer runs the capture loop for a camera.
type Capturer struct {
	cfg   config.Config
	cam   device.Camera
	sched *cadence.Scheduler
	fixes *telemetry.Store
	log   logging.Logger

	stdout      io.Writer
	onCapture   func(Stats)
	now         func() time.Time
	minFree     uint64
	waitTimeout time.Duration

	frame   int
	bursted bool

	mu    sync.Mutex
	stats Stats
}

// Option is a functional option for a Capturer.
type Option func(*Capturer)

// WithStdout sets the writer used for the stdout output target.
func WithStdout(w io.Writer) Option {
	return func(c *Capturer) { c.stdout = w }
}

// WithOnCapture sets a function called after each capture attempt.
func WithOnCapture(fn func(Stats)) Option {
	return func(c *Capturer) { c.onCapture = fn }
}

// WithClock sets the time source used for naming and tagging.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// WithMinFree sets the disk space required to open a file output. Zero
// disables the check.
func WithMinFree(n uint64) Option {
	return func(c *Capturer) { c.minFree = n }
}

// WithWaitTimeout sets how long to wait for a capture to complete. Zero waits
// indefinitely.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Capturer) { c.waitTimeout = d }
}

// New returns a new Capturer taking captures from cam when sched allows.
// fixes may be nil if there is no telemetry.
func New(cfg config.Config, cam device.Camera, sched *cadence.Scheduler, fixes *telemetry.Store, opts ...Option) *Capturer {
	c := &Capturer{
		cfg:         cfg,
		cam:         cam,
		sched:       sched,
		fixes:       fixes,
		log:         cfg.Logger,
		stdout:      os.Stdout,
		now:         time.Now,
		minFree:     defaultMinFree,
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the capture counts so far.
func (c *Capturer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Frame returns the current frame counter.
func (c *Capturer) Frame() int { return c.frame }

// Run runs the capture loop until the cadence ends it or ctx is cancelled,
// in which case ctx's error is returned. A capture is taken on every
// scheduler tick, including the one that ends the loop.
func (c *Capturer) Run(ctx context.Context) error {
	for {
		more := c.sched.Next(ctx, &c.frame)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.capture(ctx)

		if c.onCapture != nil {
			c.onCapture(c.Stats())
		}
		if !more {
			c.log.Info("capture loop finished", "frame", c.frame)
			return nil
		}
	}
}

// capture takes a single capture for the current frame.
func (c *Capturer) capture(ctx context.Context) {
	now := c.now()
	id := FrameID(c.cfg.Naming, c.frame, now)
	out, err := c.open(id)
	if err != nil {
		c.log.Error("could not open output, discarding capture", "error", err.Error())
	}
	opened := err == nil

	c.arm(now)

	comp := newCompletion()
	s := &sink{}
	s.set(out)
	err = c.cam.EnableOutput(c.callback(comp, s))
	if err != nil {
		c.log.Error("could not enable camera output", "error", err.Error())
		s.set(nil)
		c.close(out, id, false)
		c.count(false)
		return
	}
	c.feed()

	c.log.Debug("starting capture", "frame", c.frame, "id", id)
	err = c.cam.Capture()
	if err != nil {
		c.log.Error("could not start capture", "error", err.Error())
		c.disable()
		s.set(nil)
		c.close(out, id, false)
		c.count(false)
		return
	}

	err = comp.wait(ctx, c.waitTimeout)
	s.set(nil)
	ok := err == nil && !comp.failed.Load()
	switch {
	case err != nil:
		c.log.Error("capture did not complete", "frame", c.frame, "error", err.Error())
	case !ok:
		c.log.Error("capture failed", "frame", c.frame)
	case !opened:
		ok = false
	default:
		c.log.Info("captured image", "frame", c.frame, "id", id)
	}
	c.close(out, id, ok)
	c.disable()
	c.count(ok)
}

// open opens the output for frame identifier id. The output is nil if none
// is configured or it could not be opened, in which case the capture still
// runs but its bytes are discarded.
func (c *Capturer) open(id int) (*output, error) {
	switch c.cfg.Output {
	case "":
		return nil, nil
	case config.Stdout:
		return openStdout(c.stdout), nil
	default:
		return openFile(Filename(c.cfg.Output, id), c.minFree)
	}
}

// close finalises out for frame identifier id if the capture succeeded, or
// discards it.
func (c *Capturer) close(out *output, id int, ok bool) {
	if out == nil {
		return
	}
	if !ok {
		err := out.discard()
		if err != nil {
			c.log.Warning("could not discard output", "error", err.Error())
		}
		return
	}
	var latest string
	if c.cfg.Latest != "" {
		latest = Filename(c.cfg.Latest, id)
	}
	err := out.finalize(latest, c.log)
	if err != nil {
		c.log.Error("could not finalise output", "error", err.Error())
	}
}

// arm sets the per capture parameters and metadata tags on the camera. Tags
// from the previous capture are cleared so a lost position fix is not carried
// over.
func (c *Capturer) arm(now time.Time) {
	c.setParam(device.ParamExifDisable, c.cfg.ExifDisabled)
	c.cam.ClearTags()
	if !c.cfg.ExifDisabled {
		var (
			fix telemetry.PositionFix
			ok  bool
		)
		if c.fixes != nil {
			fix, ok = c.fixes.Snapshot()
		}
		for _, tags := range [][]string{Tags(now, fix, ok), c.cfg.ExifTags} {
			for _, tag := range tags {
				err := c.cam.AddTag(tag)
				if err != nil {
					c.log.Warning("could not add tag", "tag", tag, "error", err.Error())
				}
			}
		}
	}

	c.setParam(device.ParamRaw, c.cfg.Raw)
	err := c.cam.SetParam(device.ParamShutter, uint32(c.cfg.ShutterSpeed))
	if err != nil {
		c.log.Warning("could not set shutter speed", "error", err.Error())
	}

	burst := c.cfg.Burst && !c.bursted
	c.setParam(device.ParamBurst, burst)
	if burst {
		c.log.Info("enabling burst mode", "frame", c.frame)
		c.bursted = true
	}
}

func (c *Capturer) setParam(p device.Param, on bool) {
	var v uint32
	if on {
		v = 1
	}
	err := c.cam.SetParam(p, v)
	if err != nil {
		c.log.Warning("could not set camera parameter", "param", p.String(), "error", err.Error())
	}
}

// feed dispatches every free pool buffer to the camera output stage.
func (c *Capturer) feed() {
	p := c.cam.Pool()
	for {
		b, ok := p.Acquire()
		if !ok {
			return
		}
		err := c.cam.SendBuffer(b)
		if err != nil {
			c.log.Error("could not send buffer to camera output", "error", err.Error())
			b.Release()
			return
		}
	}
}

func (c *Capturer) disable() {
	err := c.cam.DisableOutput()
	if err != nil {
		c.log.Warning("could not disable camera output", "error", err.Error())
	}
}

func (c *Capturer) count(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Attempted++
	if ok {
		c.stats.Completed++
	} else {
		c.stats.Failed++
	}
}

// callback returns the output callback for a capture writing to s and
// signalled by comp. It writes each buffer to s, releases it and keeps the
// camera fed. comp is posted once on the end of the image or the first
// failure; buffers delivered after that are released unwritten.
func (c *Capturer) callback(comp *completion, s *sink) device.Callback {
	return func(cam device.Camera, b *device.Buffer) {
		if comp.posted.Load() {
			c.log.Debug("dropping buffer delivered after capture ended")
			err := b.Release()
			if err != nil {
				c.log.Error("could not release buffer", "error", err.Error())
			}
			return
		}

		var failed bool
		p := b.Lock()
		n, err := s.Write(p)
		if err != nil || n != len(p) {
			c.log.Error("could not write capture", "written", n, "length", len(p), "error", err)
			failed = true
		}
		b.Unlock()

		end := b.Flags&device.FlagFrameEnd != 0
		if b.Flags&device.FlagTransmissionFailed != 0 {
			c.log.Error("camera could not transmit image")
			failed = true
		}

		err = b.Release()
		if err != nil {
			c.log.Error("could not release buffer", "error", err.Error())
		}

		if cam.OutputEnabled() {
			nb, ok := cam.Pool().Acquire()
			if !ok {
				c.log.Warning("no buffer available to send to camera output")
			} else {
				err = cam.SendBuffer(nb)
				if err != nil {
					c.log.Debug("could not resend buffer", "error", err.Error())
					nb.Release()
				}
			}
		}

		if end || failed {
			comp.post(failed)
		}
	}
}
