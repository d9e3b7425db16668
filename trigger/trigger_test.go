/*
DESCRIPTION
  trigger_test.go provides testing for the signal source and source merging.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package trigger

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

const waitTime = 5 * time.Second

// chanSource is a Source backed by a plain channel.
type chanSource chan struct{}

func (s chanSource) C() <-chan struct{} { return s }
func (s chanSource) Close() error       { return nil }

func TestSignal(t *testing.T) {
	s := newSignal((*logging.TestLogger)(t), syscall.SIGUSR2)
	defer s.Close()

	err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2)
	if err != nil {
		t.Fatalf("could not signal self: %v", err)
	}

	select {
	case <-s.C():
	case <-time.After(waitTime):
		t.Fatal("no notification after signal")
	}
}

func TestNotifyCoalesces(t *testing.T) {
	c := make(chan struct{}, 1)
	if !notify(c) {
		t.Error("first notification not delivered")
	}
	if notify(c) {
		t.Error("second notification not coalesced")
	}
	<-c
	if !notify(c) {
		t.Error("notification after receive not delivered")
	}
}

func TestMerge(t *testing.T) {
	a, b := make(chanSource), make(chanSource)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := Merge(ctx, a, b)

	for _, src := range []chanSource{a, b} {
		src <- struct{}{}
		select {
		case <-out:
		case <-time.After(waitTime):
			t.Fatal("no merged notification")
		}
	}
}
