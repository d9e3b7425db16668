/*
DESCRIPTION
  reader.go provides a Reader that ingests NMEA sentences from a serial
  positioning receiver and publishes the latest fix to a Store.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package telemetry provides ingestion of NMEA positioning sentences from a
// serial receiver and a concurrency safe store of the last position fix.
package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// Reader timing and sizing.
const (
	defaultPause    = 100 * time.Millisecond // Wait between reads.
	readTimeout     = 100 * time.Millisecond // Serial read timeout.
	readSize        = 512                    // Bytes requested per read.
	maxPending      = 4 << 10                // Largest unterminated line kept.
	maxReopenPeriod = 30 * time.Second
)

// OpenFunc opens the sentence source.
type OpenFunc func() (io.ReadCloser, error)

// Serial returns an OpenFunc opening the serial device at the given baud.
func Serial(device string, baud int) OpenFunc {
	return func() (io.ReadCloser, error) {
		p, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        baud,
			ReadTimeout: readTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("could not open serial port %s: %w", device, err)
		}
		return p, nil
	}
}

// Reader reads sentences from a source, assembles and parses them, and
// updates a Store with each recognised fix.
type Reader struct {
	open  OpenFunc
	src   io.ReadCloser
	store *Store
	log   logging.Logger
	pause time.Duration
	now   func() time.Time

	pending []byte // Bytes of the current unterminated line.
	buf     []byte
}

// NewReader opens a source with open and returns a Reader updating store.
// A failure to open the source is returned and the Reader is not created.
func NewReader(open OpenFunc, store *Store, l logging.Logger) (*Reader, error) {
	src, err := open()
	if err != nil {
		return nil, err
	}
	return &Reader{
		open:  open,
		src:   src,
		store: store,
		log:   l,
		pause: defaultPause,
		now:   time.Now,
		buf:   make([]byte, readSize),
	}, nil
}

// Run reads from the source until ctx is cancelled. Malformed sentences are
// skipped. Reads that return no data are not errors; any other read error
// causes the source to be reopened with exponential backoff.
func (r *Reader) Run(ctx context.Context) {
	defer func() {
		if r.src != nil {
			r.src.Close()
		}
	}()

	for ctx.Err() == nil {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.ingest(r.buf[:n])
		}
		switch err {
		case nil, io.EOF:
		default:
			r.log.Warning("telemetry read failed, reopening", "error", err.Error())
			if !r.reopen(ctx) {
				return
			}
			continue
		}

		// Short read, wait for more data.
		if n < len(r.buf) {
			select {
			case <-ctx.Done():
			case <-time.After(r.pause):
			}
		}
	}
}

// ingest appends p to the pending bytes and handles every complete line.
func (r *Reader) ingest(p []byte) {
	r.pending = append(r.pending, p...)
	start := 0
	for {
		i := bytes.IndexByte(r.pending[start:], '\n')
		if i < 0 {
			break
		}
		r.handle(string(r.pending[start : start+i+1]))
		start += i + 1
	}

	// Compact, discarding consumed lines.
	n := copy(r.pending, r.pending[start:])
	r.pending = r.pending[:n]
	if len(r.pending) > maxPending {
		r.log.Debug("discarding unterminated telemetry data", "len", len(r.pending))
		r.pending = r.pending[:0]
	}
}

func (r *Reader) handle(line string) {
	s, err := parse(line)
	if err != nil {
		r.log.Debug("skipping sentence", "error", err.Error())
		return
	}
	r.store.apply(s, r.now())
}

// reopen closes the source and opens it again, backing off between failed
// attempts. It returns false if ctx was cancelled first.
func (r *Reader) reopen(ctx context.Context) bool {
	r.src.Close()
	r.src = nil
	r.pending = r.pending[:0]

	op := func() error {
		if ctx.Err() != nil {
			return nil
		}
		src, err := r.open()
		if err != nil {
			r.log.Debug("could not reopen telemetry source", "error", err.Error())
			return err
		}
		r.src = src
		return nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.1,
		Multiplier:          2.,
		MaxInterval:         maxReopenPeriod,
		MaxElapsedTime:      0, // Keep trying until cancelled.
		Clock:               backoff.SystemClock,
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil || r.src == nil {
		return false
	}
	r.log.Info("telemetry source reopened")
	return true
}
