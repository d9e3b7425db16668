/*
DESCRIPTION
  buffer.go provides the transfer Buffer and fixed size Pool used to move
  encoded image data from a Camera's output stage to the application.

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
	"sync"
	"sync/atomic"
)

// Flags mark the state of a filled Buffer.
type Flags uint32

// Buffer flags.
const (
	FlagFrameEnd           Flags = 1 << iota // Last buffer of an image.
	FlagTransmissionFailed                   // The image could not be delivered.
)

// Pool errors.
var (
	ErrDoubleRelease = errors.New("buffer released twice")
	ErrPoolExhausted = errors.New("no buffer available in pool")
)

// Buffer is a fixed size transfer buffer. A Buffer is owned by its Pool
// except while acquired, when it is held by the output stage being filled
// or by the consumer it was delivered to.
type Buffer struct {
	mu     sync.Mutex // Memory lock.
	data   []byte
	Length int   // Number of valid bytes in the buffer.
	Flags  Flags // State of the filled buffer.

	pool *Pool
	held atomic.Bool
}

// Lock locks the buffer memory, returning the valid bytes. The slice must
// not be used after Unlock.
func (b *Buffer) Lock() []byte {
	b.mu.Lock()
	return b.data[:b.Length]
}

// Unlock unlocks the buffer memory.
func (b *Buffer) Unlock() { b.mu.Unlock() }

// Cap returns the capacity of the buffer in bytes.
func (b *Buffer) Cap() int { return len(b.data) }

// fill copies as much of p as fits into the buffer, returning the number of
// bytes copied.
func (b *Buffer) fill(p []byte, f Flags) int {
	b.mu.Lock()
	n := copy(b.data, p)
	b.Length = n
	b.Flags = f
	b.mu.Unlock()
	return n
}

// Release returns the buffer to its Pool. Buffers not belonging to a Pool,
// such as those used to report failure when the pool is exhausted, are
// discarded.
func (b *Buffer) Release() error {
	if b.pool == nil {
		return nil
	}
	if !b.held.CompareAndSwap(true, false) {
		return ErrDoubleRelease
	}
	b.mu.Lock()
	b.Length = 0
	b.Flags = 0
	b.mu.Unlock()
	b.pool.released.Add(1)
	b.pool.free <- b
	return nil
}

// Pool is a fixed set of preallocated Buffers. It is safe for concurrent use.
type Pool struct {
	free chan *Buffer
	n    int
	size int

	acquired atomic.Int64
	released atomic.Int64
}

// NewPool returns a Pool of n buffers each of size bytes.
func NewPool(n, size int) *Pool {
	p := &Pool{free: make(chan *Buffer, n), n: n, size: size}
	for i := 0; i < n; i++ {
		p.free <- &Buffer{data: make([]byte, size), pool: p}
	}
	return p
}

// Acquire takes a buffer from the pool without blocking. It returns false
// if none are available.
func (p *Pool) Acquire() (*Buffer, bool) {
	select {
	case b := <-p.free:
		b.held.Store(true)
		p.acquired.Add(1)
		return b, true
	default:
		return nil, false
	}
}

// Len returns the number of buffers available in the pool.
func (p *Pool) Len() int { return len(p.free) }

// Size returns the number of buffers belonging to the pool.
func (p *Pool) Size() int { return p.n }

// BufferSize returns the size in bytes of each buffer.
func (p *Pool) BufferSize() int { return p.size }

// Stats returns the number of acquisitions and releases made so far.
func (p *Pool) Stats() (acquired, released int64) {
	return p.acquired.Load(), p.released.Load()
}
