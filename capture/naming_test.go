/*
DESCRIPTION
  naming_test.go provides testing for frame identifiers, filenames, tags,
  output finalisation and the completion signal.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package capture

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/telemetry"
	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

func TestFrameID(t *testing.T) {
	now := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local)
	tests := []struct {
		naming uint8
		want   int
	}{
		{naming: config.NamingFrame, want: 42},
		{naming: config.NamingUnset, want: 42},
		{naming: config.NamingDateTime, want: 307090503},
		{naming: config.NamingTimestamp, want: int(now.Unix())},
	}

	for _, test := range tests {
		got := FrameID(test.naming, 42, now)
		if got != test.want {
			t.Errorf("did not get expected id for naming %d.\nGot: %d\nWant: %d", test.naming, got, test.want)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{pattern: "img%04d.jpg", want: "img0007.jpg"},
		{pattern: "img%x.jpg", want: "img7.jpg"},
		{pattern: "img.jpg", want: "img.jpg"},
		{pattern: "100%%-%d.jpg", want: "100%-7.jpg"},
		{pattern: "100%%.jpg", want: "100%.jpg"},
	}

	for _, test := range tests {
		got := Filename(test.pattern, 7)
		if got != test.want {
			t.Errorf("did not get expected filename for %q.\nGot: %s\nWant: %s", test.pattern, got, test.want)
		}
	}
}

func TestTags(t *testing.T) {
	now := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local)
	base := []string{
		"IFD0.Model=RP_OV5647",
		"IFD0.Make=RaspberryPi",
		"EXIF.DateTimeDigitized=2024:03:07 09:05:03",
		"EXIF.DateTimeOriginal=2024:03:07 09:05:03",
		"IFD0.DateTime=2024:03:07 09:05:03",
	}

	got := Tags(now, telemetry.PositionFix{}, false)
	if !cmp.Equal(got, base) {
		t.Errorf("did not get expected tags without fix.\n%s", cmp.Diff(base, got))
	}

	fix := telemetry.PositionFix{
		Latitude:  telemetry.Coordinate{Ref: telemetry.North, Deg: 48, MinScaled: 7038, MinScale: 1000},
		Longitude: telemetry.Coordinate{Ref: telemetry.West, Deg: 11, MinScaled: 31000, MinScale: 1000},
		Speed:     telemetry.Fixed{Value: 224, Scale: 10},
		Course:    telemetry.Fixed{Value: 844, Scale: 10},
	}
	want := append(base,
		"GPS.GPSLatitude=48/1,7038/1000,0/1000",
		"GPS.GPSLatitudeRef=N",
		"GPS.GPSLongitude=11/1,31000/1000,0/1000",
		"GPS.GPSLongitudeRef=W",
		"GPS.GPSSpeed=224/10",
		"GPS.GPSTrack=844/10",
		"GPS.GPSImgDirection=844/10",
	)
	got = Tags(now, fix, true)
	if !cmp.Equal(got, want) {
		t.Errorf("did not get expected tags with fix.\n%s", cmp.Diff(want, got))
	}
}

func TestFinalize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img1.jpg")
	latest := filepath.Join(dir, "latest.jpg")
	data := []byte("image data")

	// A stale temporary link must not stop the latest link being made.
	err := os.WriteFile(latest+tempSuffix, []byte("stale"), 0o644)
	if err != nil {
		t.Fatalf("could not write stale link: %v", err)
	}

	out, err := openFile(path, 0)
	if err != nil {
		t.Fatalf("could not open output: %v", err)
	}
	_, err = out.Write(data)
	if err != nil {
		t.Fatalf("could not write output: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("final file exists before finalize: %v", err)
	}

	err = out.finalize(latest, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("could not finalize: %v", err)
	}

	for _, p := range []string{path, latest} {
		got, err := os.ReadFile(p)
		if err != nil {
			t.Errorf("could not read %s: %v", p, err)
			continue
		}
		if !bytes.Equal(got, data) {
			t.Errorf("unexpected contents of %s: %q", p, got)
		}
	}
	for _, p := range []string{path + tempSuffix, latest + tempSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("temporary file %s remains: %v", p, err)
		}
	}
}

func TestSinkDiscards(t *testing.T) {
	var s sink
	n, err := s.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Errorf("unexpected result writing without output: %d, %v", n, err)
	}

	var none *output
	s.set(none)
	n, err = s.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Errorf("unexpected result writing to unopened output: %d, %v", n, err)
	}

	var buf bytes.Buffer
	s.set(openStdout(&buf))
	s.Write([]byte("def"))
	s.set(nil)
	s.Write([]byte("ghi"))
	if buf.String() != "def" {
		t.Errorf("unexpected sink output: %q", buf.String())
	}
}

func TestCompletionOnce(t *testing.T) {
	c := newCompletion()
	if !c.post(true) {
		t.Fatal("first post had no effect")
	}
	if c.post(false) {
		t.Error("second post had an effect")
	}
	err := c.wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if !c.failed.Load() {
		t.Error("failure from first post was not kept")
	}
	err = c.wait(context.Background(), 10*time.Millisecond)
	if err != errWaitTimeout {
		t.Errorf("did not get expected error.\nGot: %v\nWant: %v", err, errWaitTimeout)
	}
}

func TestCompletionCancelled(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.wait(ctx, 0)
	if err != context.Canceled {
		t.Errorf("did not get expected error.\nGot: %v\nWant: %v", err, context.Canceled)
	}
}
