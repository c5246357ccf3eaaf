// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"context"
	"encoding/binary"

	"code.hybscloud.com/atomix"
)

const (
	shmOpen int32 = iota
	shmDraining
	shmClosed
)

// ShmTransport is the in-process, shared-memory-shaped mailbox described in
// §4.5: a bounded slot table gated by an admission Channel, with delivery
// order carried by a second Channel of ready slot indices.
//
// The slot table is a single contiguous []byte of exactly
// max_queue_size*max_message_size bytes, allocated once at construction —
// the §5 memory-budget invariant names this figure exactly, so the table
// cannot grow the way a general-purpose Pool does. The admission Channel
// doubles as the table's free list: it is prefilled with every slot index
// 0..max_queue_size-1, so acquiring a slot is just a Channel receive and
// freeing one is a Channel send of that same index back.
//
// Admission and delivery are deliberately two separate Channels rather than
// one: admission bounds how many writers may be mid-flight at once (the
// slot table invariant — used marks never exceed max_queue_size), while
// delivery preserves the order in which writers committed, independent of
// how quickly each write happened to run.
//
// A ShmTransport starts Open, accepting sends and receives. Drain moves it
// to Draining, where new sends fail immediately with ErrNoFreeSlots (the
// lifecycle's "rejects new sends outright" rule takes precedence over "only
// when the table is full" once draining has begun) while already-admitted
// messages still deliver. Close is terminal.
type ShmTransport struct {
	cfg     IpcConfig
	codec   Codec
	region  []byte
	admit   *Channel
	ready   *Channel
	scratch shmScratchPool
	state   atomix.Int32
}

// NewShmTransport creates a ShmTransport from cfg, encoding and decoding
// messages with codec. cfg is validated; an invalid cfg returns a
// *ConfigError.
func NewShmTransport(cfg IpcConfig, codec Codec) (*ShmTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &ShmTransport{
		cfg:    cfg,
		codec:  codec,
		region: make([]byte, cfg.MaxQueueSize*cfg.MaxMessageSize),
		admit:  NewChannel(cfg.MaxQueueSize),
		ready:  NewChannel(cfg.MaxQueueSize),
	}

	// MaxBufferSize picks which tier of scratch buffer best fits a slot;
	// zero defers to MaxMessageSize, per its doc comment in config.go.
	scratchSize := cfg.MaxBufferSize
	if scratchSize <= 0 {
		scratchSize = cfg.MaxMessageSize
	}
	t.scratch = newScratchPool(cfg.MaxQueueSize, scratchSize)

	background := context.Background()
	for i := 0; i < cfg.MaxQueueSize; i++ {
		_ = t.admit.Send(background, i)
	}

	return t, nil
}

// slot returns the byte range backing slot index idx within the
// contiguous region.
func (t *ShmTransport) slot(idx int) []byte {
	off := idx * t.cfg.MaxMessageSize
	return t.region[off : off+t.cfg.MaxMessageSize]
}

// Send implements Transport.
func (t *ShmTransport) Send(ctx context.Context, m Message) error {
	switch t.state.LoadAcquire() {
	case shmClosed:
		return ErrChannelClosed
	case shmDraining:
		return ErrNoFreeSlots
	}

	encoded, err := t.codec.Encode(m)
	if err != nil {
		return &EncodeError{Err: err}
	}
	if len(encoded) > t.cfg.MaxMessageSize-lengthPrefixSize {
		return NewTooLargeError(len(encoded), t.cfg.MaxMessageSize)
	}

	idx, err := t.admit.Recv(ctx)
	if err != nil {
		return err
	}

	if t.state.LoadAcquire() == shmClosed {
		_ = t.admit.Send(context.Background(), idx)
		return ErrChannelClosed
	}

	// Slot frame per §6: 4-byte big-endian total_len, then the codec bytes.
	// Both writes complete before the slot index is published below, so no
	// reader ever observes a length prefix without its matching body.
	slot := t.slot(idx)
	binary.BigEndian.PutUint32(slot[0:4], uint32(len(encoded)))
	copy(slot[4:], encoded)

	if err := t.ready.Send(ctx, idx); err != nil {
		_ = t.admit.Send(context.Background(), idx)
		return err
	}
	return nil
}

// Receive implements Transport.
func (t *ShmTransport) Receive(ctx context.Context) (Message, error) {
	idx, err := t.ready.Recv(ctx)
	if err != nil {
		return Message{}, err
	}

	slot := t.slot(idx)
	n := binary.BigEndian.Uint32(slot[0:4])
	if int(n)+lengthPrefixSize > t.cfg.MaxMessageSize {
		// Frame corruption (§4.5 step 2): free the slot so the mailbox stays
		// usable and surface the failure without touching the body bytes.
		_ = t.admit.Send(context.Background(), idx)
		return Message{}, ErrMemoryOverflow
	}

	decoded, derr := t.decodeViaScratch(slot[lengthPrefixSize : lengthPrefixSize+int(n)])

	_ = t.admit.Send(context.Background(), idx)

	if derr != nil {
		return Message{}, derr
	}
	return decoded, nil
}

// decodeViaScratch copies raw into a pooled scratch buffer and decodes it
// from there; raw larger than the scratch tier, or a momentarily exhausted
// scratch pool, decodes raw in place instead. Decoding runs while the slot
// that produced raw is still held: Receive frees the slot back to the
// admission Channel only after decodeViaScratch returns.
func (t *ShmTransport) decodeViaScratch(raw []byte) (Message, error) {
	if len(raw) > t.scratch.tierSize() {
		// Larger than the scratch tier holds: decode raw directly rather
		// than truncate it into an undersized buffer.
		m, err := t.codec.Decode(raw)
		if err != nil {
			return Message{}, &DecodeError{Err: err}
		}
		return m, nil
	}

	scratchIdx, serr := t.scratch.get()
	if serr != nil {
		// Scratch pool momentarily exhausted: fall back to decoding raw
		// directly rather than failing the receive over an optimization.
		m, err := t.codec.Decode(raw)
		if err != nil {
			return Message{}, &DecodeError{Err: err}
		}
		return m, nil
	}
	defer func() { _ = t.scratch.put(scratchIdx) }()

	return t.scratch.decode(t.codec, scratchIdx, raw)
}

// Cleanup implements Transport. It zeroes the slot region, replaces the
// admission and delivery channels with fresh, open ones and closes the old
// ones (so a Send or Receive blocked on them returns ErrChannelClosed), and
// marks every slot free again, without making the transport terminal —
// unlike Close, a ShmTransport accepts sends and receives again immediately
// after Cleanup returns.
func (t *ShmTransport) Cleanup() error {
	for i := range t.region {
		t.region[i] = 0
	}
	oldAdmit, oldReady := t.admit, t.ready
	t.admit = NewChannel(t.cfg.MaxQueueSize)
	t.ready = NewChannel(t.cfg.MaxQueueSize)
	oldAdmit.Close()
	oldReady.Close()
	background := context.Background()
	for i := 0; i < t.cfg.MaxQueueSize; i++ {
		_ = t.admit.Send(background, i)
	}
	t.state.CompareAndSwapAcqRel(shmDraining, shmOpen)
	return nil
}

// Drain moves the transport to Draining: new Send calls fail with
// ErrNoFreeSlots, but messages already admitted still deliver through
// Receive.
func (t *ShmTransport) Drain() {
	t.state.CompareAndSwapAcqRel(shmOpen, shmDraining)
}

// IsReady implements Transport. A ShmTransport is ready until Close.
func (t *ShmTransport) IsReady() bool {
	return t.state.LoadAcquire() != shmClosed
}

// Reconnect implements Transport. Shared memory has no connection to
// re-establish; Reconnect is a no-op that succeeds unless the transport is
// closed.
func (t *ShmTransport) Reconnect(context.Context) error {
	if t.state.LoadAcquire() == shmClosed {
		return ErrChannelClosed
	}
	return nil
}

// MaxMessageSize implements Transport.
func (t *ShmTransport) MaxMessageSize() int {
	return t.cfg.MaxMessageSize
}

// Close implements Transport. It is terminal and always returns nil.
func (t *ShmTransport) Close() error {
	t.state.StoreRelease(shmClosed)
	t.admit.Close()
	t.ready.Close()
	return nil
}
