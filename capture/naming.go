/*
DESCRIPTION
  naming.go provides derivation of frame identifiers and output filenames.

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
	"strings"
	"time"

	"github.com/ausocean/stillcam/config"
)

// tempSuffix is appended to an output path while the capture is written.
const tempSuffix = "~"

// FrameID returns the identifier substituted into output patterns for the
// given naming mode. Datetime naming gives MMDDhhmmss in local time and
// timestamp naming gives unix seconds; otherwise the frame counter is used.
func FrameID(naming uint8, frame int, now time.Time) int {
	switch naming {
	case config.NamingDateTime:
		now = now.Local()
		return int(now.Month())*100000000 + now.Day()*1000000 + now.Hour()*10000 + now.Minute()*100 + now.Second()
	case config.NamingTimestamp:
		return int(now.Unix())
	default:
		return frame
	}
}

// Filename returns pattern with its integer verb, if any, substituted with
// id. Patterns are expected to have passed config.CheckPattern.
func Filename(pattern string, id int) string {
	n, err := config.PatternVerbs(pattern)
	if err != nil || n == 0 {
		return strings.ReplaceAll(pattern, "%%", "%")
	}
	return fmt.Sprintf(pattern, id)
}
