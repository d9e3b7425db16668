/*
DESCRIPTION
  nmea.go provides parsing of the NMEA 0183 RMC and GGA positioning sentences.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package telemetry

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sentence types.
const (
	typeRMC = "RMC" // Recommended minimum: position, speed and course.
	typeGGA = "GGA" // Fix data: position and altitude.
)

// Field indices, counting the address field as 0.
const (
	rmcLat    = 3
	rmcLatDir = 4
	rmcLon    = 5
	rmcLonDir = 6
	rmcSpeed  = 7
	rmcCourse = 8
	rmcFields = 9

	ggaLat      = 2
	ggaLatDir   = 3
	ggaLon      = 4
	ggaLonDir   = 5
	ggaAltitude = 9
	ggaFields   = 10
)

var (
	errNotSentence  = errors.New("not an NMEA sentence")
	errChecksum     = errors.New("checksum mismatch")
	errUnsupported  = errors.New("unsupported sentence type")
	errShort        = errors.New("too few fields")
	errNoPosition   = errors.New("no position")
	errBadFixed     = errors.New("bad decimal field")
	errBadDirection = errors.New("bad direction field")
)

// sentence is a parsed sentence that can be applied to a PositionFix.
type sentence interface {
	apply(*PositionFix)
}

// rmc is a parsed RMC sentence.
type rmc struct {
	lat, lon      Fixed
	speed, course Fixed
}

func (s rmc) apply(f *PositionFix) {
	f.Latitude = Normalize(s.lat, North, South)
	f.Longitude = Normalize(s.lon, East, West)
	if s.speed.Known() {
		f.Speed = s.speed
	}
	if s.course.Known() {
		f.Course = s.course
	}
}

// gga is a parsed GGA sentence.
type gga struct {
	lat, lon Fixed
	altitude Fixed
}

func (s gga) apply(f *PositionFix) {
	f.Latitude = Normalize(s.lat, North, South)
	f.Longitude = Normalize(s.lon, East, West)
	if s.altitude.Known() {
		f.Altitude = s.altitude
	}
}

// parse parses a single sentence line. Trailing line terminators are
// ignored, and a checksum is verified if one is present.
func parse(line string) (sentence, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 6 || (line[0] != '$' && line[0] != '!') {
		return nil, errNotSentence
	}
	line = line[1:]

	if i := strings.IndexByte(line, '*'); i >= 0 {
		err := verify(line[:i], line[i+1:])
		if err != nil {
			return nil, err
		}
		line = line[:i]
	}

	fields := strings.Split(line, ",")
	addr := fields[0]
	if len(addr) != 5 {
		return nil, errors.Wrapf(errNotSentence, "address %q", addr)
	}

	switch addr[2:] {
	case typeRMC:
		return parseRMC(fields)
	case typeGGA:
		return parseGGA(fields)
	default:
		return nil, errors.Wrap(errUnsupported, addr)
	}
}

func parseRMC(fields []string) (sentence, error) {
	if len(fields) < rmcFields {
		return nil, errors.Wrap(errShort, typeRMC)
	}
	var (
		s   rmc
		err error
	)
	s.lat, s.lon, err = position(fields[rmcLat], fields[rmcLatDir], fields[rmcLon], fields[rmcLonDir])
	if err != nil {
		return nil, errors.Wrap(err, typeRMC)
	}
	s.speed, err = parseFixed(fields[rmcSpeed])
	if err != nil {
		return nil, errors.Wrap(err, "RMC speed")
	}
	s.course, err = parseFixed(fields[rmcCourse])
	if err != nil {
		return nil, errors.Wrap(err, "RMC course")
	}
	return s, nil
}

func parseGGA(fields []string) (sentence, error) {
	if len(fields) < ggaFields {
		return nil, errors.Wrap(errShort, typeGGA)
	}
	var (
		s   gga
		err error
	)
	s.lat, s.lon, err = position(fields[ggaLat], fields[ggaLatDir], fields[ggaLon], fields[ggaLonDir])
	if err != nil {
		return nil, errors.Wrap(err, typeGGA)
	}
	s.altitude, err = parseFixed(fields[ggaAltitude])
	if err != nil {
		return nil, errors.Wrap(err, "GGA altitude")
	}
	return s, nil
}

// position parses latitude and longitude fields with their directions into
// signed values, negative for south and west.
func position(lat, latDir, lon, lonDir string) (Fixed, Fixed, error) {
	if lat == "" || lon == "" {
		return Fixed{}, Fixed{}, errNoPosition
	}
	la, err := coordinate(lat, latDir, 'N', 'S')
	if err != nil {
		return Fixed{}, Fixed{}, errors.Wrap(err, "latitude")
	}
	lo, err := coordinate(lon, lonDir, 'E', 'W')
	if err != nil {
		return Fixed{}, Fixed{}, errors.Wrap(err, "longitude")
	}
	return la, lo, nil
}

func coordinate(v, dir string, pos, neg byte) (Fixed, error) {
	f, err := parseFixed(v)
	if err != nil {
		return Fixed{}, err
	}
	switch {
	case dir == string(pos):
	case dir == string(neg):
		f.Value = -f.Value
	default:
		return Fixed{}, errors.Wrapf(errBadDirection, "%q", dir)
	}
	return f, nil
}

// parseFixed parses a decimal field into a Fixed. An empty field gives an
// unknown value. Fractional digits beyond what fits in 31 bits are truncated;
// an integer part that does not fit is an error.
func parseFixed(s string) (Fixed, error) {
	var (
		value, scale int
		sign         int
		digits       bool
		truncated    bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case (c == '+' || c == '-') && sign == 0 && value == 0 && scale == 0:
			sign = 1
			if c == '-' {
				sign = -1
			}
		case c >= '0' && c <= '9':
			digits = true
			d := int(c - '0')
			if truncated || value > (math.MaxInt32-d)/10 || scale > math.MaxInt32/10 {
				if scale == 0 {
					return Fixed{}, errors.Wrapf(errBadFixed, "%q out of range", s)
				}
				truncated = true
				continue
			}
			value = value*10 + d
			if scale != 0 {
				scale *= 10
			}
		case c == '.' && scale == 0:
			scale = 1
		default:
			return Fixed{}, errors.Wrapf(errBadFixed, "%q", s)
		}
	}
	if digits && scale == 0 {
		scale = 1
	}
	if sign < 0 {
		value = -value
	}
	return Fixed{Value: value, Scale: scale}, nil
}

// verify checks the XOR checksum of body against the hex checksum sum.
func verify(body, sum string) error {
	want, err := strconv.ParseUint(strings.TrimSpace(sum), 16, 8)
	if err != nil {
		return errors.Wrapf(errChecksum, "bad checksum %q", sum)
	}
	var got byte
	for i := 0; i < len(body); i++ {
		got ^= body[i]
	}
	if got != byte(want) {
		return errors.Wrapf(errChecksum, "got %02X, want %02X", got, want)
	}
	return nil
}
