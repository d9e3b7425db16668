//go:build test
// +build test

/*
DESCRIPTION
  imp_testing_test.go tests capture through the encoder output stage using
  the test implementation of raspistill.

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
	"image/jpeg"
	"testing"
	"time"

	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
)

func TestCapture(t *testing.T) {
	r := New((*logging.TestLogger)(t))
	err := r.Set(config.Config{
		Width:       32,
		Height:      16,
		JPEGQuality: 80,
		BufferCount: 3,
		BufferSize:  256,
	})
	if err != nil {
		t.Fatalf("could not set: %v", err)
	}
	err = r.Start()
	if err != nil {
		t.Fatalf("could not start: %v", err)
	}
	defer r.Stop()

	done := make(chan []byte, 1)
	var img []byte
	err = r.EnableOutput(func(c device.Camera, b *device.Buffer) {
		img = append(img, b.Lock()...)
		b.Unlock()
		end := b.Flags&device.FlagFrameEnd != 0
		b.Release()
		if end {
			done <- img
			return
		}
		if nb, ok := c.Pool().Acquire(); ok {
			c.SendBuffer(nb)
		}
	})
	if err != nil {
		t.Fatalf("could not enable output: %v", err)
	}
	for {
		b, ok := r.Pool().Acquire()
		if !ok {
			break
		}
		err = r.SendBuffer(b)
		if err != nil {
			t.Fatalf("could not send buffer: %v", err)
		}
	}

	err = r.Capture()
	if err != nil {
		t.Fatalf("could not capture: %v", err)
	}

	select {
	case got := <-done:
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(got))
		if err != nil {
			t.Fatalf("could not decode captured image: %v", err)
		}
		if cfg.Width != 32 || cfg.Height != 16 {
			t.Errorf("unexpected image dimensions: %dx%d", cfg.Width, cfg.Height)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for image")
	}

	err = r.DisableOutput()
	if err != nil {
		t.Errorf("could not disable output: %v", err)
	}
}
