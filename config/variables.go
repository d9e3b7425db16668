/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/stillcam/cadence"
	"github.com/ausocean/stillcam/meta"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/sliceutils"
)

// Config map Keys.
const (
	KeyBufferCount       = "BufferCount"
	KeyBufferSize        = "BufferSize"
	KeyBurst             = "Burst"
	KeyCadence           = "Cadence"
	KeyCameraNum         = "CameraNum"
	KeyExif              = "Exif"
	KeyGPSBaud           = "GPSBaud"
	KeyGPSDevice         = "GPSDevice"
	KeyHeight            = "Height"
	KeyInput             = "Input"
	KeyInputPath         = "InputPath"
	KeyJPEGQuality       = "JPEGQuality"
	KeyLatest            = "Latest"
	KeyLogging           = "logging"
	KeyLoop              = "Loop"
	KeyNaming            = "Naming"
	KeyOutput            = "Output"
	KeyRaw               = "Raw"
	KeyRotation          = "Rotation"
	KeyShutterSpeed      = "ShutterSpeed"
	KeySuppress          = "Suppress"
	KeyTimelapseInterval = "TimelapseInterval"
	KeyTimeout           = "Timeout"
	KeyTriggerPin        = "TriggerPin"
	KeyWidth             = "Width"
)

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultInput       = InputRaspistill
	defaultVerbosity   = logging.Info
	defaultWidth       = 2592 // pixels
	defaultHeight      = 1944 // pixels
	defaultJPEGQuality = 85   // %
	defaultCadence     = cadence.Single
	defaultNaming      = NamingFrame
	defaultGPSDevice   = "/dev/ttyAMA0"
	defaultGPSBaud     = 9600

	// Encoder output pool defaults.
	defaultBufferCount = 3
	defaultBufferSize  = 80 << 10 // bytes
)

// Validation bounds.
const (
	minBufferCount = 3
	maxDimension   = 8192 // pixels
	maxQuality     = 100
	maxRotation    = 359 // degrees
	maxUserTags    = 32
)

// ExifSep separates user tags within the single string value of the Exif
// variable.
const ExifSep = "\t"

// Variables describes the variables that can be used for stillcam control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string) error
	Validate func(*Config) error
}{
	{
		Name:   KeyBufferCount,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.BufferCount, err = parseUint(KeyBufferCount, v); return },
		Validate: func(c *Config) error {
			switch {
			case c.BufferCount == 0:
				c.LogInvalidField(KeyBufferCount, defaultBufferCount)
				c.BufferCount = defaultBufferCount
			case c.BufferCount < minBufferCount:
				return fmt.Errorf("%s must be at least %d, got %d", KeyBufferCount, minBufferCount, c.BufferCount)
			}
			return nil
		},
	},
	{
		Name:   KeyBufferSize,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.BufferSize, err = parseUint(KeyBufferSize, v); return },
		Validate: func(c *Config) error {
			if c.BufferSize == 0 {
				c.LogInvalidField(KeyBufferSize, defaultBufferSize)
				c.BufferSize = defaultBufferSize
			}
			return nil
		},
	},
	{
		Name:   KeyBurst,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.Burst, err = parseBool(KeyBurst, v); return },
	},
	{
		Name: KeyCadence,
		Type: "enum:single,timelapse,keypress,forever,trigger,signal,immediate",
		Update: func(c *Config, v string) error {
			p, err := cadence.ParsePolicy(v)
			if err != nil {
				return fmt.Errorf("invalid %s param: %w", KeyCadence, err)
			}
			c.Cadence = p
			return nil
		},
		Validate: func(c *Config) error {
			switch c.Cadence {
			case cadence.Unset:
				c.LogInvalidField(KeyCadence, defaultCadence)
				c.Cadence = defaultCadence
			case cadence.Timelapse:
				if c.TimelapseInterval < 0 {
					return fmt.Errorf("%s must not be negative, got %v", KeyTimelapseInterval, c.TimelapseInterval)
				}
				// A zero interval means capture as fast as the camera allows.
				if c.TimelapseInterval == 0 {
					c.Logger.Info("timelapse interval is 0, capturing immediately")
					c.Cadence = cadence.Immediate
				}
			}
			return nil
		},
	},
	{
		Name:   KeyCameraNum,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.CameraNum, err = parseUint(KeyCameraNum, v); return },
	},
	{
		Name: KeyExif,
		Type: typeString,
		Update: func(c *Config, v string) error {
			if v == Disabled {
				c.ExifDisabled = true
				c.ExifTags = nil
				return nil
			}
			for _, tag := range strings.Split(v, ExifSep) {
				if tag == "" || sliceutils.ContainsString(c.ExifTags, tag) {
					continue
				}
				c.ExifTags = append(c.ExifTags, tag)
			}
			return nil
		},
		Validate: func(c *Config) error {
			if len(c.ExifTags) > maxUserTags {
				return fmt.Errorf("too many %s tags: %d, max %d", KeyExif, len(c.ExifTags), maxUserTags)
			}
			var errs MultiError
			for _, tag := range c.ExifTags {
				err := meta.CheckTag(tag)
				if err != nil {
					errs = append(errs, fmt.Errorf("bad %s tag %q: %w", KeyExif, tag, err))
				}
			}
			return errs.errOrNil()
		},
	},
	{
		Name:   KeyGPSBaud,
		Type:   typeInt,
		Update: func(c *Config, v string) (err error) { c.GPSBaud, err = parseInt(KeyGPSBaud, v); return },
		Validate: func(c *Config) error {
			switch {
			case c.GPSBaud == 0:
				c.LogInvalidField(KeyGPSBaud, defaultGPSBaud)
				c.GPSBaud = defaultGPSBaud
			case c.GPSBaud < 0:
				return fmt.Errorf("%s must be positive, got %d", KeyGPSBaud, c.GPSBaud)
			}
			return nil
		},
	},
	{
		Name:   KeyGPSDevice,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.GPSDevice = v; return nil },
		Validate: func(c *Config) error {
			if c.GPSDevice == "" {
				c.LogInvalidField(KeyGPSDevice, defaultGPSDevice)
				c.GPSDevice = defaultGPSDevice
			}
			return nil
		},
	},
	{
		Name:   KeyHeight,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.Height, err = parseUint(KeyHeight, v); return },
		Validate: func(c *Config) error {
			return dimension(c, KeyHeight, &c.Height, defaultHeight)
		},
	},
	{
		Name: KeyInput,
		Type: "enum:raspistill,file",
		Update: func(c *Config, v string) (err error) {
			c.Input, err = parseEnum(KeyInput, v, map[string]uint8{
				"raspistill": InputRaspistill,
				"file":       InputFile,
			})
			return
		},
		Validate: func(c *Config) error {
			switch c.Input {
			case InputRaspistill:
			case InputFile:
				if c.InputPath == "" {
					return fmt.Errorf("%s must be set for file input", KeyInputPath)
				}
			default:
				c.LogInvalidField(KeyInput, defaultInput)
				c.Input = defaultInput
			}
			return nil
		},
	},
	{
		Name:   KeyInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.InputPath = v; return nil },
	},
	{
		Name:   KeyJPEGQuality,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.JPEGQuality, err = parseInt(KeyJPEGQuality, v); return },
		Validate: func(c *Config) error {
			switch {
			case c.JPEGQuality == 0:
				c.LogInvalidField(KeyJPEGQuality, defaultJPEGQuality)
				c.JPEGQuality = defaultJPEGQuality
			case c.JPEGQuality < 0 || c.JPEGQuality > maxQuality:
				return fmt.Errorf("%s must be within 1-%d, got %d", KeyJPEGQuality, maxQuality, c.JPEGQuality)
			}
			return nil
		},
	},
	{
		Name:   KeyLatest,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.Latest = v; return nil },
		Validate: func(c *Config) error {
			if c.Latest == "" {
				return nil
			}
			if c.Output == Stdout {
				return fmt.Errorf("%s cannot be used when writing to stdout", KeyLatest)
			}
			return CheckPattern(c.Latest)
		},
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) error {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				return fmt.Errorf("invalid %s param: %q", KeyLogging, v)
			}
			return nil
		},
		Validate: func(c *Config) error {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
			return nil
		},
	},
	{
		Name:   KeyLoop,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.Loop, err = parseBool(KeyLoop, v); return },
	},
	{
		Name: KeyNaming,
		Type: "enum:frame,datetime,timestamp",
		Update: func(c *Config, v string) (err error) {
			c.Naming, err = parseEnum(KeyNaming, v, map[string]uint8{
				"frame":     NamingFrame,
				"datetime":  NamingDateTime,
				"timestamp": NamingTimestamp,
			})
			return
		},
		Validate: func(c *Config) error {
			if c.Naming == NamingUnset {
				c.LogInvalidField(KeyNaming, defaultNaming)
				c.Naming = defaultNaming
			}
			return nil
		},
	},
	{
		Name:   KeyOutput,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.Output = v; return nil },
		Validate: func(c *Config) error {
			if c.Output == "" || c.Output == Stdout {
				return nil
			}
			return CheckPattern(c.Output)
		},
	},
	{
		Name:   KeyRaw,
		Type:   typeBool,
		Update: func(c *Config, v string) (err error) { c.Raw, err = parseBool(KeyRaw, v); return },
	},
	{
		Name:   KeyRotation,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.Rotation, err = parseUint(KeyRotation, v); return },
		Validate: func(c *Config) error {
			if c.Rotation > maxRotation {
				return fmt.Errorf("%s must be within 0-%d, got %d", KeyRotation, maxRotation, c.Rotation)
			}
			return nil
		},
	},
	{
		Name:   KeyShutterSpeed,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.ShutterSpeed, err = parseUint(KeyShutterSpeed, v); return },
	},
	{
		Name: KeySuppress,
		Type: typeBool,
		Update: func(c *Config, v string) (err error) {
			c.Suppress, err = parseBool(KeySuppress, v)
			if l, ok := c.Logger.(*logging.JSONLogger); ok && err == nil {
				l.SetSuppress(c.Suppress)
			}
			return
		},
	},
	{
		Name: KeyTimelapseInterval,
		Type: typeUint,
		Update: func(c *Config, v string) (err error) {
			c.TimelapseInterval, err = parseMillis(KeyTimelapseInterval, v)
			return
		},
	},
	{
		Name: KeyTimeout,
		Type: typeUint,
		Update: func(c *Config, v string) (err error) {
			c.Timeout, err = parseMillis(KeyTimeout, v)
			return
		},
		Validate: func(c *Config) error {
			if c.Timeout < 0 {
				return fmt.Errorf("%s must not be negative, got %v", KeyTimeout, c.Timeout)
			}
			return nil
		},
	},
	{
		Name:   KeyTriggerPin,
		Type:   typeString,
		Update: func(c *Config, v string) error { c.TriggerPin = v; return nil },
		Validate: func(c *Config) error {
			if c.TriggerPin != "" && c.Cadence != cadence.Signal {
				c.Logger.Warning("trigger pin is only used in signal cadence, ignoring", "pin", c.TriggerPin)
				c.TriggerPin = ""
			}
			return nil
		},
	},
	{
		Name:   KeyWidth,
		Type:   typeUint,
		Update: func(c *Config, v string) (err error) { c.Width, err = parseUint(KeyWidth, v); return },
		Validate: func(c *Config) error {
			return dimension(c, KeyWidth, &c.Width, defaultWidth)
		},
	},
}

// CheckPattern checks that an output filename pattern holds at most one verb
// and that the verb formats an integer. A literal percent is written %%.
func CheckPattern(p string) error {
	verbs, err := PatternVerbs(p)
	if err != nil {
		return err
	}
	if verbs > 1 {
		return fmt.Errorf("pattern %q has %d verbs, expected at most one", p, verbs)
	}
	return nil
}

// PatternVerbs returns the number of integer verbs in the filename pattern p.
// An escaped percent sign is not a verb.
func PatternVerbs(p string) (int, error) {
	var verbs int
	for i := 0; i < len(p); i++ {
		if p[i] != '%' {
			continue
		}
		i++
		if i < len(p) && p[i] == '%' {
			continue
		}
		for i < len(p) && strings.IndexByte("+-# 0123456789.", p[i]) >= 0 {
			i++
		}
		if i == len(p) {
			return 0, fmt.Errorf("pattern %q ends with an incomplete verb", p)
		}
		if strings.IndexByte("dxXob", p[i]) < 0 {
			return 0, fmt.Errorf("pattern %q has non-integer verb %%%c", p, p[i])
		}
		verbs++
	}
	return verbs, nil
}

func dimension(c *Config, name string, v *uint, def uint) error {
	switch {
	case *v == 0:
		c.LogInvalidField(name, def)
		*v = def
	case *v > maxDimension:
		return fmt.Errorf("%s must be within 1-%d, got %d", name, maxDimension, *v)
	}
	return nil
}

func parseUint(n, v string) (uint, error) {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected unsigned int for param %s, got %q", n, v)
	}
	return uint(_v), nil
}

func parseInt(n, v string) (int, error) {
	_v, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("expected integer for param %s, got %q", n, v)
	}
	return _v, nil
}

func parseBool(n, v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected bool for param %s, got %q", n, v)
	}
}

func parseEnum(n, v string, enums map[string]uint8) (uint8, error) {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		return 0, fmt.Errorf("invalid value for %s param: %q", n, v)
	}
	return _v, nil
}

// parseMillis parses an integer number of milliseconds.
func parseMillis(n, v string) (time.Duration, error) {
	_v, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected milliseconds for param %s, got %q", n, v)
	}
	if _v < 0 {
		return 0, errors.New("negative duration for param " + n)
	}
	return time.Duration(_v) * time.Millisecond, nil
}
