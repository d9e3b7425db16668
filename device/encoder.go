/*
DESCRIPTION
  encoder.go provides Encoder, the JPEG encoder output stage shared by Camera
  implementations. It tags images with metadata, splits them across the
  buffers dispatched to it and delivers each filled buffer to the output
  callback.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ausocean/stillcam/codec/jpeg"
	"github.com/ausocean/stillcam/meta"
	"github.com/ausocean/utils/logging"
)

// DefaultFillTimeout is how long the Encoder waits for a dispatched buffer
// before failing the image.
const DefaultFillTimeout = 2 * time.Second

// Encoder errors.
var (
	ErrOutputDisabled = errors.New("output stage disabled")
	ErrOutputEnabled  = errors.New("output stage enabled")
	ErrQueueFull      = errors.New("output queue full")
	ErrNotStarted     = errors.New("camera not started")
	errStopped        = errors.New("output disabled while waiting for buffer")
)

// Encoder is the output stage of a Camera. Cameras hand it complete images
// with Encode, or report a failed capture with Fail; both deliver buffers to
// the enabled Callback on the calling goroutine. An image belongs to the
// output session it started in; once output is disabled its remaining
// buffers are never delivered.
type Encoder struct {
	cam         Camera // Passed to the callback.
	log         logging.Logger
	fillTimeout time.Duration

	mu      sync.Mutex
	pool    *Pool
	queue   chan *Buffer // Buffers dispatched for filling.
	cb      Callback
	enabled bool
	stop    chan struct{} // Closed when the current output session ends.
	params  [numParams]uint32
	tags    *meta.Data
}

// NewEncoder returns a new Encoder for cam with a pool of n buffers each of
// size bytes.
func NewEncoder(cam Camera, l logging.Logger, n, size int) *Encoder {
	e := &Encoder{
		cam:         cam,
		log:         l,
		fillTimeout: DefaultFillTimeout,
		tags:        meta.New(),
	}
	e.configure(n, size)
	return e
}

// Configure recreates the buffer pool with n buffers of size bytes. It fails
// if output is enabled.
func (e *Encoder) Configure(n, size int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		return ErrOutputEnabled
	}
	e.configure(n, size)
	return nil
}

func (e *Encoder) configure(n, size int) {
	e.pool = NewPool(n, size)
	e.queue = make(chan *Buffer, n)
}

// Pool returns the output buffer pool.
func (e *Encoder) Pool() *Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

// Enable enables output, delivering filled buffers to cb.
func (e *Encoder) Enable(cb Callback) error {
	if cb == nil {
		return errors.New("nil output callback")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		return ErrOutputEnabled
	}
	e.cb = cb
	e.enabled = true
	e.stop = make(chan struct{})
	return nil
}

// Disable disables output and returns queued buffers to the pool.
func (e *Encoder) Disable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return nil
	}
	e.enabled = false
	e.cb = nil
	close(e.stop)
	var errs MultiError
	for {
		select {
		case b := <-e.queue:
			err := b.Release()
			if err != nil {
				errs = append(errs, err)
			}
			continue
		default:
		}
		break
	}
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Enabled returns whether output is enabled.
func (e *Encoder) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Send dispatches b for filling. Buffers can only be sent while output is
// enabled.
func (e *Encoder) Send(b *Buffer) error {
	if b == nil {
		return errors.New("nil buffer")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return ErrOutputDisabled
	}
	select {
	case e.queue <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetParam sets a capture time parameter.
func (e *Encoder) SetParam(p Param, v uint32) error {
	if p < 0 || p >= numParams {
		return fmt.Errorf("unknown parameter: %v", p)
	}
	e.mu.Lock()
	e.params[p] = v
	e.mu.Unlock()
	return nil
}

// Param returns the value of a capture time parameter.
func (e *Encoder) Param(p Param) uint32 {
	if p < 0 || p >= numParams {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params[p]
}

// AddTag adds or updates a key=value metadata tag.
func (e *Encoder) AddTag(tag string) error {
	return e.tags.AddTag(tag)
}

// ClearTags removes all metadata tags.
func (e *Encoder) ClearTags() { e.tags.Reset() }

// Tags returns the metadata tags held.
func (e *Encoder) Tags() *meta.Data { return e.tags }

// Encode tags img and delivers it to the output callback across as many
// dispatched buffers as needed, the last flagged FlagFrameEnd. If output is
// disabled the image is dropped. If no buffer is dispatched in time the image
// is failed instead.
func (e *Encoder) Encode(img []byte) {
	cb, stop, ok := e.callback()
	if !ok {
		e.log.Warning("output disabled, dropping image", "len", len(img))
		return
	}

	img = e.tag(img)
	for off := 0; ; {
		b, err := e.next(stop)
		if err == errStopped {
			e.log.Debug("output disabled during image, dropping remainder", "written", off, "len", len(img))
			return
		}
		if err != nil {
			e.log.Error("no buffer dispatched for image", "error", err.Error(), "written", off)
			e.deliver(cb, failed(), FlagTransmissionFailed)
			return
		}
		n := b.Cap()
		if n > len(img)-off {
			n = len(img) - off
		}
		var f Flags
		if off+n == len(img) {
			f = FlagFrameEnd
		}
		b.fill(img[off:off+n], f)
		off += n
		cb(e.cam, b)
		if f&FlagFrameEnd != 0 {
			return
		}
	}
}

// Fail reports a failed capture to the output callback with an empty buffer
// flagged FlagTransmissionFailed.
func (e *Encoder) Fail(cause error) {
	cb, stop, ok := e.callback()
	if !ok {
		e.log.Warning("output disabled, dropping capture failure", "error", cause.Error())
		return
	}
	e.log.Error("capture failed", "error", cause.Error())
	b, err := e.next(stop)
	if err == errStopped {
		return
	}
	if err != nil {
		b = failed()
	}
	e.deliver(cb, b, FlagTransmissionFailed)
}

func (e *Encoder) deliver(cb Callback, b *Buffer, f Flags) {
	b.fill(nil, f)
	cb(e.cam, b)
}

// tag inserts the metadata tags into img unless tagging is disabled.
func (e *Encoder) tag(img []byte) []byte {
	if e.Param(ParamExifDisable) != 0 || e.tags.Len() == 0 {
		return img
	}
	tagged, err := jpeg.InsertComment(img, e.tags.Encode())
	if err != nil {
		e.log.Warning("could not tag image", "error", err.Error())
		return img
	}
	return tagged
}

func (e *Encoder) callback() (Callback, <-chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cb, e.stop, e.enabled
}

// next waits for a buffer dispatched in the output session ended by stop.
func (e *Encoder) next(stop <-chan struct{}) (*Buffer, error) {
	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()
	t := time.NewTimer(e.fillTimeout)
	defer t.Stop()
	select {
	case b := <-q:
		if e.current(stop) {
			return b, nil
		}
		e.requeue(b)
		return nil, errStopped
	case <-stop:
		return nil, errStopped
	case <-t.C:
		return nil, ErrPoolExhausted
	}
}

// current returns whether stop belongs to the enabled output session.
func (e *Encoder) current(stop <-chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled && e.stop == stop
}

// requeue returns b to the queue of the enabled session, or to the pool.
func (e *Encoder) requeue(b *Buffer) {
	e.mu.Lock()
	if e.enabled {
		select {
		case e.queue <- b:
			e.mu.Unlock()
			return
		default:
		}
	}
	e.mu.Unlock()
	err := b.Release()
	if err != nil {
		e.log.Warning("could not release buffer", "error", err.Error())
	}
}

// failed returns a buffer outside any pool for reporting failure.
func failed() *Buffer { return &Buffer{} }
