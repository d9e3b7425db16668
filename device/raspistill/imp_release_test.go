//go:build !test
// +build !test

/*
DESCRIPTION
  imp_release_test.go provides testing for the release raspistill frame ring
  and capture parameters.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package raspistill

import (
	"bytes"
	"testing"
	"time"

	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
)

func TestRingDrain(t *testing.T) {
	rb := newRing((*logging.TestLogger)(t))
	for _, img := range [][]byte{{0xff, 0xd8, 0x01, 0xff, 0xd9}, {0xff, 0xd8, 0x02, 0xff, 0xd9}} {
		_, err := rb.Write(img)
		if err != nil {
			t.Fatalf("could not write image: %v", err)
		}
	}

	if n := rb.drain(); n != 2 {
		t.Errorf("unexpected number of images drained: %d", n)
	}
	_, err := rb.next(10 * time.Millisecond)
	if err == nil {
		t.Error("image left in ring after drain")
	}

	want := []byte{0xff, 0xd8, 0x03, 0xff, 0xd9}
	rb.Write(want)
	got, err := rb.next(time.Second)
	if err != nil {
		t.Fatalf("could not get image after drain: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected image after drain.\nGot: %x\nWant: %x", got, want)
	}
}

func TestParamsBurstFromConfig(t *testing.T) {
	r := New((*logging.TestLogger)(t))
	r.cfg.Burst = true

	// Burst is a process argument, so turning it off after the first capture
	// must not change the arguments and restart raspistill.
	for _, v := range []uint32{1, 0} {
		err := r.SetParam(device.ParamBurst, v)
		if err != nil {
			t.Fatalf("could not set burst: %v", err)
		}
		if !r.params().burst {
			t.Errorf("burst not taken from config with param %d", v)
		}
	}
}
