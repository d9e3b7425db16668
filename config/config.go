/*
DESCRIPTION
  config.go contains the configuration settings for a still capture session.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for stillcam.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ausocean/stillcam/cadence"
	"github.com/ausocean/utils/logging"
)

// Enums to define inputs and naming modes.
const (
	// Indicates no option has been set.
	NothingDefined = iota

	// Inputs.
	InputRaspistill
	InputFile
)

// Output file naming modes. The frame identifier substituted into the output
// pattern is derived from one of these.
const (
	NamingUnset = iota
	NamingFrame
	NamingDateTime
	NamingTimestamp
)

// Special values for string fields.
const (
	Stdout   = "-"    // Output pattern meaning standard output.
	Disabled = "none" // Disables GPS or EXIF tagging when given as the value.
)

// Config provides parameters relevant to a capture session. Defaults for
// unset fields are applied by Validate.
type Config struct {
	// Burst enables burst capture mode on the first capture of the session.
	Burst bool

	// BufferCount is the number of transfer buffers in the encoder output pool.
	// At least three are required to keep the encoder fed.
	BufferCount uint

	BufferSize uint // Size in bytes of each transfer buffer.

	// Cadence is the policy deciding when each capture is taken.
	Cadence cadence.Policy

	CameraNum uint // Camera number for multi camera boards.

	// ExifDisabled disables all metadata tagging of captures.
	ExifDisabled bool

	// ExifTags holds user supplied key=value tags added to every capture.
	ExifTags []string

	// GPSDevice is the serial device the positioning receiver is attached to.
	// A value of Disabled turns off the telemetry reader.
	GPSDevice string

	GPSBaud int // Baud rate of the positioning receiver.

	Height uint // Height of the captured image in pixels.

	// Input defines the image source.
	//
	// Valid values are defined by enums:
	// InputRaspistill:
	//		Use the raspistill utility to capture from the Raspberry Pi camera.
	// InputFile:
	//		Serve JPEG images from a file. Location must be specified in
	//		InputPath field.
	Input uint8

	// InputPath defines the input file location for File input.
	InputPath string

	// JPEGQuality is a value 1-100 inclusive controlling JPEG compression.
	JPEGQuality int

	// Latest is an optional pattern for a link that is updated to point to the
	// most recent complete capture.
	Latest string

	// Logger holds an implementation of the Logger interface. This must be set
	// for stillcam to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Loop bool // If true, File input restarts at the beginning of the file at EOF.

	// Naming selects how the frame identifier for the output pattern is derived.
	Naming uint8

	// Output is the output filename pattern. It may contain a single integer
	// verb (e.g. image%04d.jpg) which is substituted with the frame identifier.
	// A value of Stdout writes captures to standard output.
	Output string

	Raw      bool // Raw includes raw sensor data in the JPEG metadata.
	Rotation uint // Image rotation in degrees.

	// ShutterSpeed is the shutter speed in microseconds; 0 means automatic.
	ShutterSpeed uint

	Suppress bool // Holds logger suppression state.

	// Timeout is the overall run time before stillcam stops. In Single cadence
	// it is the delay before the capture. A value of 0 means run indefinitely.
	Timeout time.Duration

	// TimelapseInterval is the period between captures in Timelapse cadence.
	TimelapseInterval time.Duration

	// TriggerPin optionally names a GPIO pin whose edges trigger captures in
	// Signal cadence, in addition to SIGUSR1.
	TriggerPin string

	Width uint // Width of the captured image in pixels.
}

// MultiError implements the built in error interface. MultiError is used to
// collect errors during parsing and validation of configuration parameters.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("config: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// errOrNil returns me as an error, or nil if me holds no errors.
func (me MultiError) errOrNil() error {
	if len(me) == 0 {
		return nil
	}
	return me
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined. Fields that were explicitly
// set to invalid values are reported in a returned MultiError.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("config has no logger")
	}
	var errs MultiError
	for _, v := range Variables {
		if v.Validate == nil {
			continue
		}
		err := v.Validate(c)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs.errOrNil()
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values converting into correct type, and then
// sets the config struct fields as appropriate. Values that cannot be parsed
// are reported in a returned MultiError; remaining values are still applied.
func (c *Config) Update(vars map[string]string) error {
	var errs MultiError
	for _, value := range Variables {
		v, ok := vars[value.Name]
		if !ok || value.Update == nil {
			continue
		}
		err := value.Update(c, v)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs.errOrNil()
}

// LogInvalidField logs that the named field was bad or unset and will take
// the default def.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
