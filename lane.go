// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Lane is the lock-free, fixed-capacity FIFO that backs every hand-off in
// this package: free slot indices in the shared-memory transport's
// admission Channel, ready slot indices in its delivery Channel, and
// nothing else — Lane
// never touches message bytes, only the small values that index them.
//
// Built on the SCQ (Scalable Circular Queue) algorithm by Nikolaev (DISC
// 2019): Fetch-And-Add blindly advances producer/consumer counters instead
// of CAS-looping on them, which scales better under contention. It needs 2n
// physical slots for a capacity of n. Each slot carries a cycle (round)
// counter so a stale or not-yet-written slot is distinguishable from an
// empty one without ever reading an uninitialized value — Offer and Poll
// only ever observe slots this constructor has already stamped with a
// cycle, so a racing consumer can never read tombstone data.
type Lane[T any] struct {
	_         pad
	tail      atomix.Uint64
	_         pad
	head      atomix.Uint64
	_         pad
	threshold atomix.Int64
	_         pad
	draining  atomix.Bool
	_         pad
	buffer    []laneSlot[T]
	capacity  uint64
	size      uint64
	mask      uint64
}

type laneSlot[T any] struct {
	cycle atomix.Uint64
	data  T
	_     padShort
}

// NewLane creates a Lane with room for capacity items, rounded up to the
// next power of 2. capacity must be >= 1: a Lane of capacity 1 backs the
// single-buffer-handshake mailbox allowed by IpcConfig's MaxQueueSize == 1
// (§6), and rounds internally to the same minimum of 2 physical slot pairs
// roundToPow2 already enforces.
func NewLane[T any](capacity int) *Lane[T] {
	if capacity < 1 {
		panic("messenger: lane capacity must be >= 1")
	}

	n := uint64(roundToPow2(capacity))
	size := n * 2

	l := &Lane[T]{
		buffer:   make([]laneSlot[T], size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	l.threshold.StoreRelaxed(3*int64(n) - 1)
	for i := uint64(0); i < size; i++ {
		l.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return l
}

// Offer adds v to the lane. It reports ErrWouldBlock if the lane is full;
// callers that need to suspend instead of failing wrap Offer in a backoff
// loop (see Channel).
func (l *Lane[T]) Offer(v T) error {
	sw := spin.Wait{}
	for {
		tail := l.tail.LoadAcquire()
		head := l.head.LoadAcquire()
		if tail >= head+l.capacity {
			return ErrWouldBlock
		}

		myTail := l.tail.AddAcqRel(1) - 1
		slot := &l.buffer[myTail&l.mask]
		expectedCycle := myTail / l.capacity
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			slot.data = v
			slot.cycle.StoreRelease(expectedCycle + 1)
			l.threshold.StoreRelaxed(3*int64(l.capacity) - 1)
			return nil
		}
		if int64(slotCycle) < int64(expectedCycle) {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Drain puts the lane into drain mode: Poll stops treating an empty lane as
// a livelock signal and instead returns ErrWouldBlock promptly once no item
// remains, letting a consumer empty out the last items without producer
// pressure.
func (l *Lane[T]) Drain() {
	l.draining.StoreRelease(true)
}

// Poll removes and returns the oldest item. It reports (zero value,
// ErrWouldBlock) if the lane is empty.
func (l *Lane[T]) Poll() (T, error) {
	if !l.draining.LoadAcquire() && l.threshold.LoadRelaxed() < 0 {
		var zero T
		return zero, ErrWouldBlock
	}

	sw := spin.Wait{}
	for {
		myHead := l.head.AddAcqRel(1) - 1
		slot := &l.buffer[myHead&l.mask]
		expectedCycle := myHead/l.capacity + 1
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			v := slot.data
			var zero T
			slot.data = zero
			nextEnqCycle := (myHead + l.size) / l.capacity
			slot.cycle.StoreRelease(nextEnqCycle)
			return v, nil
		}

		if int64(slotCycle) < int64(expectedCycle) {
			nextEnqCycle := (myHead + l.size) / l.capacity
			slot.cycle.CompareAndSwapAcqRel(slotCycle, nextEnqCycle)

			tail := l.tail.LoadAcquire()
			if tail <= myHead+1 {
				l.catchup(tail, myHead+1)
				l.threshold.AddAcqRel(-1)
				var zero T
				return zero, ErrWouldBlock
			}
			if l.threshold.AddAcqRel(-1) <= 0 && !l.draining.LoadAcquire() {
				var zero T
				return zero, ErrWouldBlock
			}
		}
		sw.Once()
	}
}

func (l *Lane[T]) catchup(tail, head uint64) {
	for tail < head {
		if l.tail.CompareAndSwapRelaxed(tail, head) {
			break
		}
		tail = l.tail.LoadRelaxed()
		head = l.head.LoadRelaxed()
	}
}

// Cap returns the lane's usable capacity.
func (l *Lane[T]) Cap() int {
	return int(l.capacity)
}
