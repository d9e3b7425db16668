//go:build test
// +build test

/*
DESCRIPTION
  imp_testing.go provides test implementations of the raspistill methods when
  the "test" build tag is specified. In this mode, raspistill simply encodes a
  generated test JPEG image for each capture.

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
	"image"
	"image/color"
	"image/jpeg"
	"sync"

	"github.com/ausocean/utils/logging"
)

// Test images are generated no larger than this in either dimension.
const maxTestDimension = 64

type raspistill struct {
	imgCnt    int // Number of images that have been captured thus far.
	isRunning bool
	mu        sync.Mutex
}

func new(l logging.Logger) raspistill {
	l.Debug("creating new test raspistill input")
	return raspistill{}
}

// stop sets isRunning flag to false, indicating no further captures. Future
// calls to Raspistill.Capture will return an error.
func (r *Raspistill) stop() error {
	r.log.Debug("stopping test raspistill")
	r.mu.Lock()
	r.isRunning = false
	r.mu.Unlock()
	return nil
}

// start sets isRunning flag to true indicating that raspistill is capturing.
func (r *Raspistill) start() error {
	r.log.Debug("starting test implementation raspistill", "width", r.cfg.Width, "height", r.cfg.Height)
	r.mu.Lock()
	r.isRunning = true
	r.mu.Unlock()
	return nil
}

func (r *Raspistill) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning
}

// capture generates the next test image and encodes it on a new goroutine.
func (r *Raspistill) capture() error {
	r.mu.Lock()
	n := r.imgCnt
	r.imgCnt++
	r.mu.Unlock()

	img, err := r.testImage(n)
	if err != nil {
		return err
	}
	r.log.Debug("captured test image", "nImg", n, "size", len(img))
	go r.enc.Encode(img)
	return nil
}

// testImage returns a JPEG of a flat grey level that changes with n.
func (r *Raspistill) testImage(n int) ([]byte, error) {
	w, h := int(r.cfg.Width), int(r.cfg.Height)
	if w > maxTestDimension {
		w = maxTestDimension
	}
	if h > maxTestDimension {
		h = maxTestDimension
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	c := color.Gray{Y: uint8(n * 40)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.JPEGQuality})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
