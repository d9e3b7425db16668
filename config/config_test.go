/*
DESCRIPTION
  config_test.go provides testing for the Config struct methods (Validate and Update).

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ausocean/stillcam/cadence"
	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestValidate(t *testing.T) {
	dl := &dumbLogger{}

	want := Config{
		Logger:      dl,
		LogLevel:    defaultVerbosity,
		Input:       defaultInput,
		Cadence:     defaultCadence,
		Naming:      defaultNaming,
		Width:       defaultWidth,
		Height:      defaultHeight,
		JPEGQuality: defaultJPEGQuality,
		BufferCount: defaultBufferCount,
		BufferSize:  defaultBufferSize,
		GPSDevice:   defaultGPSDevice,
		GPSBaud:     defaultGPSBaud,
	}

	got := Config{Logger: dl}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
}

func TestValidateNoLogger(t *testing.T) {
	var c Config
	if err := c.Validate(); err == nil {
		t.Error("expected error for config without logger")
	}
}

func TestValidateInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "quality too high", cfg: Config{JPEGQuality: 101}},
		{name: "quality negative", cfg: Config{JPEGQuality: -1}},
		{name: "too few buffers", cfg: Config{BufferCount: 2}},
		{name: "rotation", cfg: Config{Rotation: 360}},
		{name: "width", cfg: Config{Width: maxDimension + 1}},
		{name: "file without path", cfg: Config{Input: InputFile}},
		{name: "negative timeout", cfg: Config{Timeout: -time.Second}},
		{name: "negative interval", cfg: Config{Cadence: cadence.Timelapse, TimelapseInterval: -time.Second}},
		{name: "two verbs", cfg: Config{Output: "img%d_%d.jpg"}},
		{name: "string verb", cfg: Config{Output: "img%s.jpg"}},
		{name: "latest to stdout", cfg: Config{Output: Stdout, Latest: "latest.jpg"}},
		{name: "tag without equals", cfg: Config{ExifTags: []string{"IFD0.Artist"}}},
		{name: "tag too long", cfg: Config{ExifTags: []string{"IFD0.Artist=" + strings.Repeat("a", 120)}}},
		{name: "too many tags", cfg: Config{ExifTags: manyTags(maxUserTags + 1)}},
	}

	for _, test := range tests {
		c := test.cfg
		c.Logger = &dumbLogger{}
		err := c.Validate()
		if err == nil {
			t.Errorf("did not get expected error for test %q", test.name)
			continue
		}
		if _, ok := err.(MultiError); !ok {
			t.Errorf("unexpected error type for test %q: %T", test.name, err)
		}
	}
}

func TestValidateZeroInterval(t *testing.T) {
	c := Config{Logger: &dumbLogger{}, Cadence: cadence.Timelapse}
	err := c.Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if c.Cadence != cadence.Immediate {
		t.Errorf("did not get expected cadence.\nGot: %v\nWant: %v", c.Cadence, cadence.Immediate)
	}
}

func TestValidateTriggerPin(t *testing.T) {
	c := Config{Logger: &dumbLogger{}, Cadence: cadence.Single, TriggerPin: "GPIO_17"}
	if err := c.Validate(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if c.TriggerPin != "" {
		t.Errorf("expected trigger pin to be cleared outside signal cadence, got %q", c.TriggerPin)
	}

	c = Config{Logger: &dumbLogger{}, Cadence: cadence.Signal, TriggerPin: "GPIO_17"}
	if err := c.Validate(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if c.TriggerPin != "GPIO_17" {
		t.Errorf("expected trigger pin to be kept, got %q", c.TriggerPin)
	}
}

func TestUpdate(t *testing.T) {
	updateMap := map[string]string{
		"BufferCount":       "5",
		"BufferSize":        "4096",
		"Burst":             "true",
		"Cadence":           "timelapse",
		"CameraNum":         "1",
		"Exif":              "IFD0.Artist=Someone\tEXIF.UserComment=reef",
		"GPSBaud":           "4800",
		"GPSDevice":         "/dev/ttyUSB0",
		"Height":            "480",
		"Input":             "file",
		"InputPath":         "/tmp/in.jpg",
		"JPEGQuality":       "70",
		"Latest":            "latest.jpg",
		"logging":           "Error",
		"Loop":              "true",
		"Naming":            "datetime",
		"Output":            "img%04d.jpg",
		"Raw":               "true",
		"Rotation":          "180",
		"ShutterSpeed":      "10000",
		"TimelapseInterval": "2000",
		"Timeout":           "60000",
		"TriggerPin":        "GPIO_17",
		"Width":             "640",
	}

	dl := &dumbLogger{}

	want := Config{
		Logger:            dl,
		BufferCount:       5,
		BufferSize:        4096,
		Burst:             true,
		Cadence:           cadence.Timelapse,
		CameraNum:         1,
		ExifTags:          []string{"IFD0.Artist=Someone", "EXIF.UserComment=reef"},
		GPSBaud:           4800,
		GPSDevice:         "/dev/ttyUSB0",
		Height:            480,
		Input:             InputFile,
		InputPath:         "/tmp/in.jpg",
		JPEGQuality:       70,
		Latest:            "latest.jpg",
		LogLevel:          logging.Error,
		Loop:              true,
		Naming:            NamingDateTime,
		Output:            "img%04d.jpg",
		Raw:               true,
		Rotation:          180,
		ShutterSpeed:      10000,
		TimelapseInterval: 2 * time.Second,
		Timeout:           time.Minute,
		TriggerPin:        "GPIO_17",
		Width:             640,
	}

	got := Config{Logger: dl}
	err := got.Update(updateMap)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !cmp.Equal(want, got) {
		t.Errorf("configs not equal\nwant: %v\ngot: %v", want, got)
	}
}

func TestUpdateBadValues(t *testing.T) {
	c := Config{Logger: &dumbLogger{}}
	err := c.Update(map[string]string{
		"Width":   "wide",
		"Cadence": "sometimes",
		"Height":  "480",
	})
	me, ok := err.(MultiError)
	if !ok {
		t.Fatalf("expected MultiError, got %T: %v", err, err)
	}
	if len(me) != 2 {
		t.Errorf("unexpected number of errors: got %d, want 2", len(me))
	}
	if c.Height != 480 {
		t.Errorf("valid value was not applied alongside invalid ones, height: %d", c.Height)
	}
}

func TestUpdateExifDisabled(t *testing.T) {
	c := Config{Logger: &dumbLogger{}, ExifTags: []string{"a=b"}}
	err := c.Update(map[string]string{"Exif": Disabled})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if !c.ExifDisabled || c.ExifTags != nil {
		t.Errorf("expected tagging disabled, got disabled: %v, tags: %v", c.ExifDisabled, c.ExifTags)
	}
}

func TestCheckPattern(t *testing.T) {
	tests := []struct {
		pattern string
		ok      bool
	}{
		{"image.jpg", true},
		{"image%d.jpg", true},
		{"image%04d.jpg", true},
		{"100%%_%d.jpg", true},
		{"%x", true},
		{"image%s.jpg", false},
		{"image%d%d.jpg", false},
		{"image%", false},
		{"image%04", false},
	}

	for _, test := range tests {
		err := CheckPattern(test.pattern)
		if (err == nil) != test.ok {
			t.Errorf("unexpected result for pattern %q, err: %v, want ok: %v", test.pattern, err, test.ok)
		}
	}
}

func manyTags(n int) []string {
	tags := make([]string, n)
	for i := range tags {
		tags[i] = "EXIF.UserComment=" + strings.Repeat("x", i+1)
	}
	return tags
}
