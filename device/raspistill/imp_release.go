//go:build !test
// +build !test

/*
DESCRIPTION
  imp_release.go provides implementations for the Raspistill struct for release
  conditions, i.e. we're running on a raspberry pi with access to the actual
  raspistill utility with a pi camera connected. The code here runs a raspistill
  background process in signal mode, signals it for each capture and lexes the
  JPEG images it writes to stdout.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package raspistill

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/stillcam/codec/jpeg"
	"github.com/ausocean/stillcam/device"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

// Frame ring buffer parameters.
const (
	ringLen         = 4
	ringElementSize = 2 << 20 // Grown if an image does not fit.
	ringTimeout     = 5 * time.Second
	drainTimeout    = time.Millisecond
)

// startSettle is how long raspistill takes to initialise the camera before it
// handles capture signals. Until then SIGUSR1 terminates it.
const startSettle = 2 * time.Second

// args holds the command line parameters raspistill was started with. Burst
// mode is fixed for the life of the process.
type args struct {
	raw     bool
	burst   bool
	shutter uint32
	quality uint32
}

type raspistill struct {
	cmd       *exec.Cmd
	out       io.ReadCloser
	done      chan struct{}
	isRunning bool
	applied   args
	ready     time.Time // When signals may first be sent.
	frames    *ring
	wg        sync.WaitGroup
	mu        sync.Mutex
}

func new(l logging.Logger) raspistill {
	return raspistill{}
}

func (r *Raspistill) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopProcess()
}

// stopProcess kills the raspistill process and waits for its output
// routines. The caller must hold r.mu.
func (r *Raspistill) stopProcess() error {
	if !r.isRunning {
		return nil
	}
	close(r.done)
	r.isRunning = false
	if r.cmd == nil || r.cmd.Process == nil {
		return errors.New("raspistill process was never started")
	}
	err := r.cmd.Process.Kill()
	if err != nil {
		return fmt.Errorf("could not kill raspistill process: %w", err)
	}
	r.wg.Wait()
	r.cmd.Wait()
	return nil
}

func (r *Raspistill) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startProcess(r.params())
}

// params returns the command line parameters wanted for the next capture.
func (r *Raspistill) params() args {
	return args{
		raw:     r.enc.Param(device.ParamRaw) != 0,
		burst:   r.cfg.Burst,
		shutter: r.enc.Param(device.ParamShutter),
		quality: r.enc.Param(device.ParamQuality),
	}
}

// startProcess starts raspistill waiting for capture signals. The caller must
// hold r.mu.
func (r *Raspistill) startProcess(a args) error {
	if r.isRunning {
		return nil
	}
	if a.quality == 0 {
		a.quality = uint32(r.cfg.JPEGQuality)
	}
	cmdArgs := []string{
		"--output", "-",
		"--nopreview",
		"--signal",
		"--timeout", "0",
		"--width", fmt.Sprint(r.cfg.Width),
		"--height", fmt.Sprint(r.cfg.Height),
		"--rotation", fmt.Sprint(r.cfg.Rotation),
		"--quality", fmt.Sprint(a.quality),
		"--camselect", fmt.Sprint(r.cfg.CameraNum),
	}
	if a.raw {
		cmdArgs = append(cmdArgs, "--raw")
	}
	if a.burst {
		cmdArgs = append(cmdArgs, "--burst")
	}
	if a.shutter != 0 {
		cmdArgs = append(cmdArgs, "--shutter", fmt.Sprint(a.shutter))
	}

	r.log.Info(pkg+"raspistill args", "args", strings.Join(cmdArgs, " "))
	r.cmd = exec.Command("raspistill", cmdArgs...)

	var err error
	r.out, err = r.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("could not pipe command output: %w", err)
	}

	stderr, err := r.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("could not pipe command error: %w", err)
	}

	err = r.cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start raspistill process: %w", err)
	}

	r.done = make(chan struct{})
	if r.frames == nil {
		r.frames = newRing(r.log)
	}
	r.wg.Add(2)
	go r.logStderr(stderr, r.done)
	go r.lex(r.out, r.done)

	r.applied = a
	r.ready = time.Now().Add(startSettle)
	r.isRunning = true
	return nil
}

// logStderr logs lines raspistill writes to stderr until done is closed or
// the pipe is closed.
func (r *Raspistill) logStderr(stderr io.Reader, done chan struct{}) {
	defer r.wg.Done()
	errScnr := bufio.NewScanner(stderr)
	for errScnr.Scan() {
		select {
		case <-done:
			r.log.Info("raspistill.Stop() called, finished checking stderr")
			return
		default:
		}
		r.log.Error("error line from raspistill stderr", "error", errScnr.Text())
	}
	err := errScnr.Err()
	if err != nil {
		r.log.Debug("error from stderr scan", "error", err)
	}
}

// lex splits raspistill output into images and queues them in the frame ring.
func (r *Raspistill) lex(out io.Reader, done chan struct{}) {
	defer r.wg.Done()
	err := jpeg.Lex(r.frames, out, 0)
	select {
	case <-done:
		return
	default:
	}
	switch err {
	case io.EOF:
		r.log.Warning(pkg + "raspistill output closed")
	default:
		r.log.Error(pkg+"could not lex raspistill output", "error", err.Error())
	}
}

func (r *Raspistill) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning
}

// capture signals raspistill to take an image, restarting it first if the
// capture parameters have changed. Images left over from earlier captures are
// discarded. The image is encoded on a new goroutine.
func (r *Raspistill) capture() error {
	r.mu.Lock()
	a := r.params()
	if a.quality == 0 {
		a.quality = uint32(r.cfg.JPEGQuality)
	}
	if a != r.applied {
		r.log.Info(pkg+"capture parameters changed, restarting raspistill", "raw", a.raw, "burst", a.burst, "shutter", a.shutter, "quality", a.quality)
		err := r.stopProcess()
		if err != nil {
			r.log.Warning(pkg+"could not stop raspistill", "error", err.Error())
		}
		err = r.startProcess(a)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("could not restart raspistill: %w", err)
		}
	}
	if d := time.Until(r.ready); d > 0 {
		r.log.Debug(pkg+"waiting for raspistill to initialise", "wait", d)
		time.Sleep(d)
	}
	if n := r.frames.drain(); n != 0 {
		r.log.Warning(pkg+"discarded stale images", "images", n)
	}
	err := r.cmd.Process.Signal(syscall.SIGUSR1)
	frames := r.frames
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("could not signal raspistill: %w", err)
	}

	go func() {
		img, err := frames.next(captureTimeout)
		if err != nil {
			r.enc.Fail(fmt.Errorf("no image from raspistill: %w", err))
			return
		}
		r.enc.Encode(img)
	}()
	return nil
}

// ring is a ring buffer of whole JPEG images.
type ring struct {
	mu  sync.Mutex
	buf *pool.Buffer
	log logging.Logger
}

func newRing(l logging.Logger) *ring {
	return &ring{buf: pool.NewBuffer(ringLen, ringElementSize, ringTimeout), log: l}
}

// Write implements io.Writer. Each call writes a single image. If the image
// does not fit an element the ring is recreated with larger elements.
func (rb *ring) Write(img []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n, err := rb.buf.Write(img)
	if err == pool.ErrTooLong {
		size := len(img) * 2
		rb.log.Info(pkg+"growing frame ring elements", "size", size)
		rb.buf = pool.NewBuffer(ringLen, size, ringTimeout)
		n, err = rb.buf.Write(img)
	}
	switch err {
	case nil:
		rb.buf.Flush()
		return n, nil
	case pool.ErrDropped:
		rb.log.Warning(pkg+"old image overwritten", "images", rb.buf.Len())
		rb.buf.Flush()
		return n, nil
	default:
		rb.log.Error(pkg+"unexpected ring buffer error", "error", err.Error())
		return len(img), nil
	}
}

// next returns a copy of the oldest image, waiting up to timeout.
func (rb *ring) next(timeout time.Duration) ([]byte, error) {
	rb.mu.Lock()
	buf := rb.buf
	rb.mu.Unlock()
	chunk, err := buf.Next(timeout)
	if err != nil {
		return nil, err
	}
	img := make([]byte, len(chunk.Bytes()))
	copy(img, chunk.Bytes())
	err = chunk.Close()
	if err != nil {
		rb.log.Debug(pkg+"chunk close error", "error", err.Error())
	}
	return img, nil
}

// drain discards queued images, returning how many there were.
func (rb *ring) drain() int {
	var n int
	for i := 0; i < ringLen; i++ {
		_, err := rb.next(drainTimeout)
		if err != nil {
			break
		}
		n++
	}
	return n
}
