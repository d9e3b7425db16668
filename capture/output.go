/*
DESCRIPTION
  output.go provides the output targets captures are written to, and their
  finalisation by rename and latest link.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/ausocean/utils/logging"
)

// defaultMinFree is the disk space, in bytes, that must remain available for
// a file output to be opened.
const defaultMinFree = 50000000 // 50MB.

// output is the target of a single capture. File outputs are written to a
// temporary path and renamed into place once complete.
type output struct {
	final string
	temp  string
	f     *os.File
	w     io.Writer // Set for stdout.
}

// flusher is implemented by buffered stdout writers.
type flusher interface {
	Flush() error
}

// openStdout returns an output writing to w.
func openStdout(w io.Writer) *output {
	return &output{final: "-", w: w}
}

// openFile creates the temporary file for a capture to be finalised at path.
// It fails if less than minFree bytes are available on the file system.
func openFile(path string, minFree uint64) (*output, error) {
	if minFree != 0 {
		var stat syscall.Statfs_t
		err := syscall.Statfs(filepath.Dir(path), &stat)
		if err != nil {
			return nil, fmt.Errorf("could not read disk space: %w", err)
		}
		avail := stat.Bavail * uint64(stat.Bsize)
		if avail < minFree {
			return nil, fmt.Errorf("only %d bytes of disk space available, need %d", avail, minFree)
		}
	}

	o := &output{final: path, temp: path + tempSuffix}
	var err error
	o.f, err = os.Create(o.temp)
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	return o, nil
}

// Write implements io.Writer.
func (o *output) Write(p []byte) (int, error) {
	if o.w != nil {
		return o.w.Write(p)
	}
	return o.f.Write(p)
}

// finalize completes the output. Stdout is flushed if buffered. A file is closed and
// renamed from its temporary path, then if latest is not empty a link to it
// is put in place at latest.
func (o *output) finalize(latest string, log logging.Logger) error {
	if o.w != nil {
		return o.flush()
	}

	err := o.f.Close()
	if err != nil {
		log.Warning("could not close output file", "file", o.temp, "error", err.Error())
	}
	err = os.Rename(o.temp, o.final)
	if err != nil {
		return fmt.Errorf("could not rename %s to %s: %w", o.temp, o.final, err)
	}
	log.Debug("finalised output", "file", o.final)

	if latest == "" {
		return nil
	}
	return link(o.final, latest, log)
}

// discard closes and removes a file output, for captures that failed.
func (o *output) discard() error {
	if o.w != nil {
		return o.flush()
	}
	o.f.Close()
	return os.Remove(o.temp)
}

func (o *output) flush() error {
	if f, ok := o.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// link atomically replaces latest with a link to target. A hard link is
// tried first, then a symbolic link.
func link(target, latest string, log logging.Logger) error {
	tmp := latest + tempSuffix
	err := os.Remove(tmp)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warning("could not remove stale link", "file", tmp, "error", err.Error())
	}

	err = os.Link(target, tmp)
	if err != nil {
		log.Debug("could not hard link, trying symlink", "error", err.Error())
		abs, aerr := filepath.Abs(target)
		if aerr == nil {
			target = abs
		}
		err = os.Symlink(target, tmp)
		if err != nil {
			return fmt.Errorf("could not link %s to %s: %w", tmp, target, err)
		}
	}

	err = os.Rename(tmp, latest)
	if err != nil {
		return fmt.Errorf("could not rename %s to %s: %w", tmp, latest, err)
	}
	return nil
}

// sink is the output a capture's callback writes to. Bytes written while no
// output is set are discarded.
type sink struct {
	mu  sync.Mutex
	out *output
}

func (s *sink) set(o *output) {
	s.mu.Lock()
	s.out = o
	s.mu.Unlock()
}

// Write implements io.Writer.
func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return len(p), nil
	}
	return s.out.Write(p)
}
