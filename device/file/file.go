/*
DESCRIPTION
  file.go provides an implementation of the Camera interface for JPEG and
  MJPEG files.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides an implementation of Camera for files. Each capture
// serves the next JPEG image lexed from the file.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ausocean/stillcam/codec/jpeg"
	"github.com/ausocean/stillcam/config"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
)

// Output pool defaults, used if Set is not called.
const (
	defaultBufferCount = 3
	defaultBufferSize  = 80 << 10
)

// frameTimeout is how long a capture waits for the next image in the file.
const frameTimeout = 5 * time.Second

var (
	errNotSet     = errors.New("file camera has not been set with config")
	errNotStarted = errors.New("file camera not started")
)

// File is an implementation of the Camera interface for a file containing
// one or more concatenated JPEG images.
type File struct {
	f         *os.File
	path      string
	loop      bool
	isRunning bool
	log       logging.Logger
	set       bool
	enc       *device.Encoder
	frames    chan []byte
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// New returns a new File.
func New(l logging.Logger) *File {
	m := &File{log: l}
	m.enc = device.NewEncoder(m, l, defaultBufferCount, defaultBufferSize)
	return m
}

// NewWith returns a new File with required params provided i.e. the Set
// method does not need to be called.
func NewWith(l logging.Logger, path string, loop bool) *File {
	m := New(l)
	m.path = path
	m.loop = loop
	m.set = true
	return m
}

// Name returns the name of the device.
func (m *File) Name() string {
	return "File"
}

// Set uses the InputPath, Loop, BufferCount and BufferSize fields of c.
func (m *File) Set(c config.Config) error {
	if c.InputPath == "" {
		return errors.New("no input path for file camera")
	}
	if c.BufferCount != 0 && c.BufferSize != 0 {
		err := m.enc.Configure(int(c.BufferCount), int(c.BufferSize))
		if err != nil {
			return fmt.Errorf("could not configure encoder: %w", err)
		}
	}
	m.mu.Lock()
	m.path = c.InputPath
	m.loop = c.Loop
	m.set = true
	m.mu.Unlock()
	return nil
}

// Start will open the file at the location of the InputPath field of the
// config struct and start lexing images from it.
func (m *File) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return errNotSet
	}
	if m.isRunning {
		return nil
	}
	var err error
	m.f, err = os.Open(m.path)
	if err != nil {
		return fmt.Errorf("could not open media file: %w", err)
	}
	m.frames = make(chan []byte)
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.lex(m.f, m.loop, m.frames, m.done)
	m.isRunning = true
	return nil
}

// Stop will close the file such that any further captures will fail.
func (m *File) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	close(m.done)
	err := m.f.Close()
	m.mu.Unlock()
	m.wg.Wait()
	return err
}

// IsRunning is used to determine if the File device is running.
func (m *File) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f != nil && m.isRunning
}

// Capture takes the next image from the file and delivers it through the
// output callback. If the file is exhausted and not looping the capture
// fails.
func (m *File) Capture() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return errNotStarted
	}
	frames, done := m.frames, m.done
	m.mu.Unlock()

	go func() {
		t := time.NewTimer(frameTimeout)
		defer t.Stop()
		select {
		case img, ok := <-frames:
			if !ok {
				m.enc.Fail(io.EOF)
				return
			}
			m.enc.Encode(img)
		case <-t.C:
			m.enc.Fail(errors.New("timed out waiting for image from file"))
		case <-done:
			m.enc.Fail(errNotStarted)
		}
	}()
	return nil
}

// Pool returns the encoder output buffer pool.
func (m *File) Pool() *device.Pool { return m.enc.Pool() }

// EnableOutput enables the encoder output stage.
func (m *File) EnableOutput(cb device.Callback) error { return m.enc.Enable(cb) }

// DisableOutput disables the encoder output stage.
func (m *File) DisableOutput() error { return m.enc.Disable() }

// OutputEnabled returns whether the encoder output stage is enabled.
func (m *File) OutputEnabled() bool { return m.enc.Enabled() }

// SendBuffer dispatches b to the encoder output stage.
func (m *File) SendBuffer(b *device.Buffer) error { return m.enc.Send(b) }

// SetParam sets a capture time parameter. Only ParamExifDisable has an effect
// on file images.
func (m *File) SetParam(p device.Param, v uint32) error { return m.enc.SetParam(p, v) }

// AddTag adds a metadata tag to the encoder.
func (m *File) AddTag(tag string) error { return m.enc.AddTag(tag) }

// ClearTags removes the encoder's metadata tags.
func (m *File) ClearTags() { m.enc.ClearTags() }

// lex sends images lexed from f on frames until the file is exhausted or done
// is closed. If loop is true, lexing restarts at the beginning of the file.
func (m *File) lex(f *os.File, loop bool, frames chan<- []byte, done <-chan struct{}) {
	defer m.wg.Done()
	defer close(frames)
	w := &frameWriter{frames: frames, done: done}
	for {
		err := jpeg.Lex(w, f, 0)
		select {
		case <-done:
			return
		default:
		}
		if err != io.EOF {
			m.log.Error("could not lex file", "error", err.Error())
			return
		}
		if !loop {
			m.log.Info("end of input file")
			return
		}
		if w.n == 0 {
			m.log.Error("no images in input file, not looping")
			return
		}
		w.n = 0

		m.log.Info("looping input file")
		_, err = f.Seek(0, io.SeekStart)
		if err != nil {
			m.log.Error("could not seek to start of file for input loop", "error", err.Error())
			return
		}
	}
}

// frameWriter is an io.Writer passing each write, a whole image, on a
// channel.
type frameWriter struct {
	frames chan<- []byte
	done   <-chan struct{}
	n      int // Images written.
}

var errStopped = errors.New("file camera stopped")

func (w *frameWriter) Write(p []byte) (int, error) {
	select {
	case w.frames <- p:
		w.n++
		return len(p), nil
	case <-w.done:
		return 0, errStopped
	}
}
