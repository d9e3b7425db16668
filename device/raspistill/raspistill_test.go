/*
DESCRIPTION
  raspistill_test.go provides testing for configuration of the Raspistill
  Camera.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package raspistill

import (
	"testing"

	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
)

func TestSet(t *testing.T) {
	tests := []struct {
		in      config.Config
		wantErr int // Number of errors expected.
	}{
		{
			in: config.Config{
				Width:       1280,
				Height:      720,
				JPEGQuality: 75,
				BufferCount: 4,
				BufferSize:  1024,
			},
		},
		{
			in:      config.Config{Rotation: 400},
			wantErr: 6,
		},
		{
			in: config.Config{
				Width:       1280,
				Height:      720,
				JPEGQuality: 101,
				BufferCount: 2,
				BufferSize:  1024,
			},
			wantErr: 2,
		},
	}

	for i, test := range tests {
		r := New((*logging.TestLogger)(t))
		err := r.Set(test.in)
		if test.wantErr == 0 {
			if err != nil {
				t.Errorf("unexpected error for test %d: %v", i, err)
			}
			continue
		}
		me, ok := err.(device.MultiError)
		if !ok {
			t.Errorf("did not get MultiError for test %d: %v", i, err)
			continue
		}
		if len(me) != test.wantErr {
			t.Errorf("unexpected number of errors for test %d.\nGot: %v\nWant: %d", i, me, test.wantErr)
		}
	}
}

func TestSetConfiguresPool(t *testing.T) {
	r := New((*logging.TestLogger)(t))
	err := r.Set(config.Config{
		Width:       640,
		Height:      480,
		JPEGQuality: 90,
		BufferCount: 5,
		BufferSize:  4096,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := r.Pool()
	if p.Size() != 5 || p.BufferSize() != 4096 {
		t.Errorf("pool not configured: size %d, buffer size %d", p.Size(), p.BufferSize())
	}
	if q := r.enc.Param(device.ParamQuality); q != 90 {
		t.Errorf("quality param not set: %d", q)
	}
}

func TestCaptureNotStarted(t *testing.T) {
	r := New((*logging.TestLogger)(t))
	err := r.Capture()
	if err != errNotStarted {
		t.Errorf("did not get expected error.\nGot: %v\nWant: %v", err, errNotStarted)
	}
}
