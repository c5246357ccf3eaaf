// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Channel is the bounded signaling channel described in §4.4: it carries
// slot indices, never message bytes, from whichever goroutine just filled a
// slot to whichever goroutine is waiting to drain one. It is the only part
// of the shared-memory transport that ever suspends a caller.
//
// Send and Recv are built on Lane's non-blocking Offer/Poll plus an
// [iox.Backoff] retry loop: the backoff escalates its wait internally, and
// every iteration re-checks ctx before retrying, so cancellation is
// observed well inside the bounded poll interval the contract requires.
//
// After Close, every Send already waiting, or issued after, returns
// ErrChannelClosed; Recv keeps returning values still queued and returns
// ErrChannelClosed once the lane is empty. Unlike a raw Go channel, Close
// is safe to call more than once; Reset reopens a closed Channel.
type Channel struct {
	lane   *Lane[int]
	closed atomix.Bool
}

// NewChannel creates a Channel able to hold up to capacity slot indices.
func NewChannel(capacity int) *Channel {
	return &Channel{lane: NewLane[int](capacity)}
}

// Send delivers v, suspending while the channel is full until either space
// frees up or ctx is done.
func (c *Channel) Send(ctx context.Context, v int) error {
	if c.closed.LoadAcquire() {
		return ErrChannelClosed
	}
	bo := iox.Backoff{}
	for {
		err := c.lane.Offer(v)
		if err == nil {
			return nil
		}
		if c.closed.LoadAcquire() {
			return ErrChannelClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		bo.Wait()
	}
}

// Recv waits for and returns the next value, suspending while the channel
// is empty until either a value arrives or ctx is done.
func (c *Channel) Recv(ctx context.Context) (int, error) {
	bo := iox.Backoff{}
	for {
		v, err := c.lane.Poll()
		if err == nil {
			return v, nil
		}
		if c.closed.LoadAcquire() {
			return 0, ErrChannelClosed
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		bo.Wait()
	}
}

// TryRecv returns the next value without suspending. It reports
// ErrWouldBlock if none is ready and ErrChannelClosed if the channel has
// been closed.
func (c *Channel) TryRecv() (int, error) {
	v, err := c.lane.Poll()
	if err == nil {
		return v, nil
	}
	if c.closed.LoadAcquire() {
		return 0, ErrChannelClosed
	}
	return 0, err
}

// Reset reopens a closed channel with a fresh, empty lane of the same
// capacity.
func (c *Channel) Reset() {
	c.lane = NewLane[int](c.lane.Cap())
	c.closed.StoreRelease(false)
}

// Close makes every blocked and future Send return ErrChannelClosed, and
// every Recv return ErrChannelClosed once no queued value remains. Safe to
// call more than once.
func (c *Channel) Close() {
	c.closed.StoreRelease(true)
}

// Closed reports whether Close has been called since construction or the
// last Reset.
func (c *Channel) Closed() bool {
	return c.closed.LoadAcquire()
}
