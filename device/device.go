/*
DESCRIPTION
  device.go provides Camera, an interface that describes a configurable still
  camera pipeline with an asynchronous encoder output stage, from which
  encoded images are delivered in transfer buffers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface and implementations for still camera
// pipelines that can be started, stopped and triggered to capture, and the
// transfer buffers and encoder output stage they share.
package device

import (
	"fmt"

	"github.com/ausocean/stillcam/config"
)

// Camera describes a still camera pipeline made of a source stage, a JPEG
// encoder stage and an output stage. Once the output stage is enabled with a
// Callback and fed buffers with SendBuffer, each Capture results in the
// encoded image being delivered through the Callback, one filled buffer at a
// time, on a goroutine owned by the Camera.
type Camera interface {
	// Name returns the name of the Camera.
	Name() string

	// Set configures the stage formats, image dimensions and output buffer
	// count and size using a Config struct. The output buffer Pool is
	// recreated, so Set must not be called while output is enabled. An
	// implementation should specify what fields are considered.
	Set(c config.Config) error

	// Start creates and starts the pipeline stages.
	Start() error

	// Stop stops the pipeline. From this point captures will fail.
	Stop() error

	// IsRunning is used to determine if the pipeline is running.
	IsRunning() bool

	// Pool returns the output stage's buffer Pool.
	Pool() *Pool

	// EnableOutput enables the output stage, wiring cb to receive each filled
	// buffer.
	EnableOutput(cb Callback) error

	// DisableOutput disables the output stage, returning any queued buffers
	// to the Pool.
	DisableOutput() error

	// OutputEnabled returns whether the output stage is enabled.
	OutputEnabled() bool

	// SendBuffer dispatches an empty buffer to the output stage for filling.
	SendBuffer(b *Buffer) error

	// SetParam sets a capture time parameter.
	SetParam(p Param, v uint32) error

	// AddTag adds or updates a key=value metadata tag on the encoder. Tags
	// persist across captures until cleared.
	AddTag(tag string) error

	// ClearTags removes all metadata tags from the encoder.
	ClearTags()

	// Capture triggers a capture. It does not wait for the image.
	Capture() error
}

// Callback receives filled buffers from the output stage. It is called on a
// goroutine owned by the Camera and must not block on the caller of Capture.
// The Callback owns the buffer and must release it.
type Callback func(c Camera, b *Buffer)

// Param is a capture time parameter.
type Param int

// Capture time parameters.
const (
	ParamQuality     Param = iota // JPEG quality 1-100.
	ParamRaw                      // Non zero to include raw sensor data.
	ParamBurst                    // Non zero to enable burst capture.
	ParamShutter                  // Shutter speed in microseconds, 0 for automatic.
	ParamExifDisable              // Non zero to disable metadata tagging.
	numParams
)

var paramNames = [numParams]string{
	ParamQuality:     "quality",
	ParamRaw:         "raw",
	ParamBurst:       "burst",
	ParamShutter:     "shutter",
	ParamExifDisable: "exif-disable",
}

func (p Param) String() string {
	if p >= 0 && p < numParams {
		return paramNames[p]
	}
	return fmt.Sprintf("Param(%d)", int(p))
}

// MultiError implements the built in error interface. MultiError is used here
// to collect multiple errors during validation of configuration parameters for
// Cameras.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
