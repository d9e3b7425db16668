/*
DESCRIPTION
  completion.go provides the one shot signal marking the end of a capture.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var errWaitTimeout = errors.New("timed out waiting for capture completion")

// completion is posted once by the output callback when a capture ends and
// waited on once by the capture loop.
type completion struct {
	c      chan struct{}
	posted atomic.Bool
	failed atomic.Bool
}

func newCompletion() *completion {
	return &completion{c: make(chan struct{}, 1)}
}

// post signals completion, recording whether the capture failed. Only the
// first call has an effect; it returns false for later calls.
func (c *completion) post(failed bool) bool {
	if !c.posted.CompareAndSwap(false, true) {
		return false
	}
	c.failed.Store(failed)
	c.c <- struct{}{}
	return true
}

// wait blocks until completion is posted, ctx is done or timeout elapses. A
// zero timeout waits indefinitely.
func (c *completion) wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-c.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return errWaitTimeout
	}
}
