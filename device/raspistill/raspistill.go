/*
DESCRIPTION
  raspistill.go provides an implementation of the Camera interface for the
  raspistill raspberry pi camera interfacing utility. The utility is run in
  signal mode, and each capture is triggered on demand.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package raspistill provides an implementation of the Camera interface for
// the raspistill raspberry pi camera interfacing utility. This allows for the
// capture of single frames on demand.
package raspistill

import (
	"errors"
	"fmt"
	"time"

	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
)

// To indicate package when logging.
const pkg = "raspistill: "

// Raspistill configuration defaults.
const (
	defaultRotation    = 0        // degrees
	defaultWidth       = 2592     // pixels
	defaultHeight      = 1944     // pixels
	defaultJPEGQuality = 85       // %
	defaultBufferCount = 3        // buffers
	defaultBufferSize  = 80 << 10 // bytes
	minBufferCount     = 3
)

// captureTimeout is how long a capture waits for its image before failing.
const captureTimeout = 10 * time.Second

// Configuration errors.
var (
	errBadRotation    = fmt.Errorf("Rotation bad or unset, defaulting to: %v", defaultRotation)
	errBadWidth       = fmt.Errorf("Width bad or unset, defaulting to: %v", defaultWidth)
	errBadHeight      = fmt.Errorf("Height bad or unset, defaulting to: %v", defaultHeight)
	errBadJPEGQuality = fmt.Errorf("JPEGQuality bad or unset, defaulting to: %v", defaultJPEGQuality)
	errBadBufferCount = fmt.Errorf("BufferCount bad or unset, defaulting to: %v", defaultBufferCount)
	errBadBufferSize  = fmt.Errorf("BufferSize bad or unset, defaulting to: %v", defaultBufferSize)
)

// Misc errors.
var errNotStarted = errors.New("cannot capture, raspistill not started")

// Raspistill is an implementation of Camera that provides control over the
// raspistill utility for using the raspberry pi camera for the capture of
// singular images.
type Raspistill struct {
	raspistill
	cfg config.Config
	log logging.Logger
	enc *device.Encoder
}

// New returns a new Raspistill.
func New(l logging.Logger) *Raspistill {
	r := &Raspistill{raspistill: new(l), log: l}
	r.enc = device.NewEncoder(r, l, defaultBufferCount, defaultBufferSize)
	r.cfg = config.Config{
		Width:       defaultWidth,
		Height:      defaultHeight,
		JPEGQuality: defaultJPEGQuality,
		BufferCount: defaultBufferCount,
		BufferSize:  defaultBufferSize,
	}
	return r
}

// Start will prepare the arguments for the raspistill command using the
// configuration set using the Set method then start the raspistill process
// waiting for capture signals.
func (r *Raspistill) Start() error { return r.start() }

// Stop will terminate the raspistill process.
func (r *Raspistill) Stop() error { return r.stop() }

// IsRunning is used to determine if the pi's camera is running.
func (r *Raspistill) IsRunning() bool { return r.running() }

// Name returns the name of the device.
func (r *Raspistill) Name() string { return "Raspistill" }

// Capture triggers the capture of a single image. The image is delivered
// through the output callback once encoded.
func (r *Raspistill) Capture() error {
	if !r.running() {
		return errNotStarted
	}
	return r.capture()
}

// Pool returns the encoder output buffer pool.
func (r *Raspistill) Pool() *device.Pool { return r.enc.Pool() }

// EnableOutput enables the encoder output stage.
func (r *Raspistill) EnableOutput(cb device.Callback) error { return r.enc.Enable(cb) }

// DisableOutput disables the encoder output stage.
func (r *Raspistill) DisableOutput() error { return r.enc.Disable() }

// OutputEnabled returns whether the encoder output stage is enabled.
func (r *Raspistill) OutputEnabled() bool { return r.enc.Enabled() }

// SendBuffer dispatches b to the encoder output stage.
func (r *Raspistill) SendBuffer(b *device.Buffer) error { return r.enc.Send(b) }

// SetParam sets a capture time parameter. Parameters that raspistill only
// takes on its command line are applied on the next Capture.
func (r *Raspistill) SetParam(p device.Param, v uint32) error { return r.enc.SetParam(p, v) }

// AddTag adds a metadata tag to the encoder.
func (r *Raspistill) AddTag(tag string) error { return r.enc.AddTag(tag) }

// ClearTags removes the encoder's metadata tags.
func (r *Raspistill) ClearTags() { r.enc.ClearTags() }

// Set will take a Config struct, check the validity of the relevant fields
// and then performs any configuration necessary. If fields are not valid,
// an error is added to the multiError and a default value is used.
// The fields considered are Rotation, Width, Height, JPEGQuality, CameraNum,
// BufferCount and BufferSize.
func (r *Raspistill) Set(c config.Config) error {
	var errs device.MultiError

	if c.Rotation > 359 {
		c.Rotation = defaultRotation
		errs = append(errs, errBadRotation)
	}

	if c.Width == 0 {
		c.Width = defaultWidth
		errs = append(errs, errBadWidth)
	}

	if c.Height == 0 {
		c.Height = defaultHeight
		errs = append(errs, errBadHeight)
	}

	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = defaultJPEGQuality
		errs = append(errs, errBadJPEGQuality)
	}

	if c.BufferCount < minBufferCount {
		c.BufferCount = defaultBufferCount
		errs = append(errs, errBadBufferCount)
	}

	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
		errs = append(errs, errBadBufferSize)
	}

	err := r.enc.Configure(int(c.BufferCount), int(c.BufferSize))
	if err != nil {
		errs = append(errs, fmt.Errorf("could not configure encoder: %w", err))
	}
	err = r.enc.SetParam(device.ParamQuality, uint32(c.JPEGQuality))
	if err != nil {
		errs = append(errs, err)
	}

	r.cfg = c
	if len(errs) != 0 {
		return errs
	}
	return nil
}
