/*
DESCRIPTION
  fix.go provides the PositionFix record published by the telemetry reader and
  a Store that guards it between the reader and capture goroutines.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package telemetry

import (
	"strconv"
	"sync"
	"time"
)

// Ref is a hemisphere reference.
type Ref byte

// Hemisphere references.
const (
	North Ref = 'N'
	South Ref = 'S'
	East  Ref = 'E'
	West  Ref = 'W'
)

func (r Ref) String() string { return string(r) }

// Fixed is a fixed point decimal value equal to Value/Scale. A zero Scale
// means the value is unknown.
type Fixed struct {
	Value int
	Scale int
}

// Known returns whether f holds a value.
func (f Fixed) Known() bool { return f.Scale != 0 }

// Rational formats f as a value/scale rational.
func (f Fixed) Rational() string {
	return strconv.Itoa(f.Value) + "/" + strconv.Itoa(f.Scale)
}

// Coordinate is a latitude or longitude as whole degrees and minutes, with
// the minutes held as MinScaled/MinScale.
type Coordinate struct {
	Ref       Ref
	Deg       int
	MinScaled int
	MinScale  int
}

// Normalize converts a signed coordinate in NMEA ddmm.mmmm form to a
// Coordinate. Non-negative values take the pos hemisphere and negative values
// the neg hemisphere.
func Normalize(f Fixed, pos, neg Ref) Coordinate {
	c := Coordinate{Ref: pos, MinScale: f.Scale}
	v := f.Value
	if v < 0 {
		v = -v
		c.Ref = neg
	}
	if f.Scale == 0 {
		return c
	}
	c.Deg = v / (f.Scale * 100)
	c.MinScaled = v % (f.Scale * 100)
	return c
}

// PositionFix is the last known position and motion of the device.
type PositionFix struct {
	Latitude  Coordinate
	Longitude Coordinate
	Speed     Fixed // Knots.
	Course    Fixed // Degrees true.
	Altitude  Fixed // Metres above mean sea level.

	// Updated is when the fix was last updated; zero if no fix has been
	// received.
	Updated time.Time
}

// Store holds the latest PositionFix. It is safe for concurrent use by one
// writer and any number of readers, and readers always see a consistent fix.
type Store struct {
	mu  sync.RWMutex
	fix PositionFix
}

// Snapshot returns a copy of the latest fix, and false if no fix has been
// received.
func (s *Store) Snapshot() (PositionFix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix, !s.fix.Updated.IsZero()
}

// apply updates the fix from a parsed sentence.
func (s *Store) apply(sen sentence, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen.apply(&s.fix)
	s.fix.Updated = now
}

// Set replaces the fix with f, marking it updated now if f.Updated is zero.
func (s *Store) Set(f PositionFix) {
	if f.Updated.IsZero() {
		f.Updated = time.Now()
	}
	s.mu.Lock()
	s.fix = f
	s.mu.Unlock()
}
