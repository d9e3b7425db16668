/*
DESCRIPTION
  tags.go provides assembly of the metadata tags added to each capture.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package capture

import (
	"fmt"
	"time"

	"github.com/ausocean/stillcam/telemetry"
)

// Camera identification tags.
const (
	cameraModel = "RP_OV5647"
	cameraMake  = "RaspberryPi"
)

// tagTimeFormat is the EXIF date and time format.
const tagTimeFormat = "2006:01:02 15:04:05"

// Tags returns the built in metadata tags for a capture taken at now. GPS
// tags are only included if ok, i.e. a fix has been received, and rational
// tags are omitted while their value is unknown.
func Tags(now time.Time, fix telemetry.PositionFix, ok bool) []string {
	ts := now.Local().Format(tagTimeFormat)
	tags := []string{
		"IFD0.Model=" + cameraModel,
		"IFD0.Make=" + cameraMake,
		"EXIF.DateTimeDigitized=" + ts,
		"EXIF.DateTimeOriginal=" + ts,
		"IFD0.DateTime=" + ts,
	}
	if !ok {
		return tags
	}

	tags = append(tags,
		"GPS.GPSLatitude="+coordinate(fix.Latitude),
		"GPS.GPSLatitudeRef="+fix.Latitude.Ref.String(),
		"GPS.GPSLongitude="+coordinate(fix.Longitude),
		"GPS.GPSLongitudeRef="+fix.Longitude.Ref.String(),
	)
	for _, r := range []struct {
		key string
		v   telemetry.Fixed
	}{
		{"GPS.GPSAltitude", fix.Altitude},
		{"GPS.GPSSpeed", fix.Speed},
		{"GPS.GPSTrack", fix.Course},
		{"GPS.GPSImgDirection", fix.Course},
	} {
		if r.v.Known() {
			tags = append(tags, r.key+"="+r.v.Rational())
		}
	}
	return tags
}

// coordinate formats c as EXIF degrees, minutes and seconds rationals.
func coordinate(c telemetry.Coordinate) string {
	return fmt.Sprintf("%d/1,%d/%d,0/1000", c.Deg, c.MinScaled, c.MinScale)
}
