/*
DESCRIPTION
  buffer_test.go provides testing for the transfer Buffer and Pool.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package device

import (
	"bytes"
	"sync"
	"testing"
)

func TestPoolAcquireRelease(t *testing.T) {
	const n = 3
	p := NewPool(n, 8)
	if p.Len() != n || p.Size() != n || p.BufferSize() != 8 {
		t.Fatalf("unexpected pool state: len %d, size %d, buffer size %d", p.Len(), p.Size(), p.BufferSize())
	}

	var held []*Buffer
	for i := 0; i < n; i++ {
		b, ok := p.Acquire()
		if !ok {
			t.Fatalf("could not acquire buffer %d", i)
		}
		held = append(held, b)
	}
	if _, ok := p.Acquire(); ok {
		t.Error("acquired buffer from exhausted pool")
	}

	for _, b := range held {
		err := b.Release()
		if err != nil {
			t.Errorf("unexpected release error: %v", err)
		}
	}
	if p.Len() != n {
		t.Errorf("pool did not get buffers back, len: %d", p.Len())
	}

	err := held[0].Release()
	if err != ErrDoubleRelease {
		t.Errorf("did not get expected error for double release.\nGot: %v\nWant: %v", err, ErrDoubleRelease)
	}

	acq, rel := p.Stats()
	if acq != n || rel != n {
		t.Errorf("unexpected stats: acquired %d, released %d", acq, rel)
	}
}

func TestBufferFill(t *testing.T) {
	p := NewPool(1, 4)
	b, _ := p.Acquire()
	n := b.fill([]byte("abcdef"), FlagFrameEnd)
	if n != 4 {
		t.Errorf("unexpected bytes filled: %d", n)
	}
	got := b.Lock()
	if !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("unexpected buffer contents: %q", got)
	}
	b.Unlock()
	if b.Flags != FlagFrameEnd {
		t.Errorf("unexpected flags: %v", b.Flags)
	}

	err := b.Release()
	if err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if b.Length != 0 || b.Flags != 0 {
		t.Errorf("released buffer not reset: length %d, flags %v", b.Length, b.Flags)
	}
}

func TestReleaseUnpooled(t *testing.T) {
	b := &Buffer{}
	for i := 0; i < 2; i++ {
		err := b.Release()
		if err != nil {
			t.Errorf("unexpected error releasing unpooled buffer: %v", err)
		}
	}
}

func TestPoolConcurrent(t *testing.T) {
	const (
		n       = 4
		workers = 8
		rounds  = 1000
	)
	p := NewPool(n, 16)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				b, ok := p.Acquire()
				if !ok {
					continue
				}
				b.fill([]byte("data"), 0)
				err := b.Release()
				if err != nil {
					t.Errorf("unexpected release error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	acq, rel := p.Stats()
	if acq != rel {
		t.Errorf("acquired %d buffers but released %d", acq, rel)
	}
	if p.Len() != n {
		t.Errorf("pool lost buffers, len: %d", p.Len())
	}
}
