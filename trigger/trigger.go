/*
DESCRIPTION
  trigger.go provides notification sources used to trigger captures in signal
  cadence: the SIGUSR1 process signal and an optional GPIO pin edge.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package trigger provides sources of capture notifications. Each source
// delivers on a channel with room for one pending notification; further
// notifications arriving before it is taken are coalesced.
package trigger

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"

	"github.com/ausocean/utils/logging"
)

// Source is a source of capture notifications.
type Source interface {
	// C returns the channel notifications are delivered on.
	C() <-chan struct{}

	// Close stops notifications.
	Close() error
}

// notify makes a non-blocking send on c.
func notify(c chan struct{}) bool {
	select {
	case c <- struct{}{}:
		return true
	default:
		return false
	}
}

// Signal is a Source notified by a process signal.
type Signal struct {
	c    chan struct{}
	sig  chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup
	log  logging.Logger
}

// NewSignal returns a Signal source notified on each SIGUSR1. SIGUSR1 is
// handled, rather than terminating the process, until Close is called.
func NewSignal(l logging.Logger) *Signal {
	return newSignal(l, syscall.SIGUSR1)
}

func newSignal(l logging.Logger, sig os.Signal) *Signal {
	s := &Signal{
		c:    make(chan struct{}, 1),
		sig:  make(chan os.Signal, 1),
		done: make(chan struct{}),
		log:  l,
	}
	signal.Notify(s.sig, sig)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case v := <-s.sig:
				if !notify(s.c) {
					s.log.Debug("capture already pending, coalescing signal", "signal", v.String())
				}
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// C implements Source.
func (s *Signal) C() <-chan struct{} { return s.c }

// Close implements Source.
func (s *Signal) Close() error {
	signal.Stop(s.sig)
	close(s.done)
	s.wg.Wait()
	return nil
}

// GPIO is a Source notified on the falling edge of a GPIO input pin.
type GPIO struct {
	c   chan struct{}
	pin embd.DigitalPin
	log logging.Logger
}

// NewGPIO returns a GPIO source watching the pin with the given key, e.g.
// "GPIO_17" or "17".
func NewGPIO(key string, l logging.Logger) (*GPIO, error) {
	err := embd.InitGPIO()
	if err != nil {
		return nil, fmt.Errorf("could not init GPIO: %w", err)
	}
	pin, err := embd.NewDigitalPin(key)
	if err != nil {
		embd.CloseGPIO()
		return nil, fmt.Errorf("could not open GPIO pin %s: %w", key, err)
	}
	err = pin.SetDirection(embd.In)
	if err != nil {
		pin.Close()
		embd.CloseGPIO()
		return nil, fmt.Errorf("could not set GPIO pin %s as input: %w", key, err)
	}

	g := &GPIO{c: make(chan struct{}, 1), pin: pin, log: l}
	err = pin.Watch(embd.EdgeFalling, func(embd.DigitalPin) {
		if !notify(g.c) {
			g.log.Debug("capture already pending, coalescing edge", "pin", key)
		}
	})
	if err != nil {
		pin.Close()
		embd.CloseGPIO()
		return nil, fmt.Errorf("could not watch GPIO pin %s: %w", key, err)
	}
	l.Info("watching GPIO trigger pin", "pin", key)
	return g, nil
}

// C implements Source.
func (g *GPIO) C() <-chan struct{} { return g.c }

// Close implements Source.
func (g *GPIO) Close() error {
	err := g.pin.StopWatching()
	if err != nil {
		g.log.Warning("could not stop watching GPIO pin", "error", err.Error())
	}
	err = g.pin.Close()
	if err != nil {
		return fmt.Errorf("could not close GPIO pin: %w", err)
	}
	return embd.CloseGPIO()
}

// Merge returns a channel notified whenever any of srcs is notified, until
// ctx is done.
func Merge(ctx context.Context, srcs ...Source) <-chan struct{} {
	out := make(chan struct{}, 1)
	for _, s := range srcs {
		go func(c <-chan struct{}) {
			for {
				select {
				case <-c:
					notify(out)
				case <-ctx.Done():
					return
				}
			}
		}(s.C())
	}
	return out
}
