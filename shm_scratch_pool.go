// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import "code.hybscloud.com/iobuf"

// shmScratchPool is the minimal surface ShmTransport's receive path needs
// from a tiered iobuf buffer pool. iobuf exposes one concrete BoundedPool
// type per tier (PicoBuffer, NanoBuffer, ...), each a differently sized
// byte array, so there is no single generic pool type to hold behind one
// field — shmScratchPool erases the tier once newScratchPool has picked it.
type shmScratchPool interface {
	// tierSize is the fixed capacity, in bytes, of every buffer in the pool.
	tierSize() int
	// get reserves a buffer, returning its index, or iox.ErrWouldBlock if
	// the pool is momentarily exhausted (it is configured non-blocking).
	get() (int, error)
	// put returns a previously reserved buffer to the pool.
	put(indirect int) error
	// decode copies raw into the buffer at indirect and decodes it with
	// codec, wrapping a codec failure as a *DecodeError.
	decode(codec Codec, indirect int, raw []byte) (Message, error)
}

// tieredScratchPool adapts one iobuf.BoundedPool[T] tier to shmScratchPool.
// toBytes/fromBytes convert between T's fixed-size array and a []byte view
// of it; both are supplied as tier-specific closures by newScratchPool,
// since a type parameter ranging over arrays of different lengths has no
// common core type and so cannot be sliced generically.
type tieredScratchPool[T any] struct {
	pool      *iobuf.BoundedPool[T]
	size      int
	toBytes   func(T) []byte
	fromBytes func([]byte) T
}

func (s *tieredScratchPool[T]) tierSize() int { return s.size }

func (s *tieredScratchPool[T]) get() (int, error) { return s.pool.Get() }

func (s *tieredScratchPool[T]) put(indirect int) error { return s.pool.Put(indirect) }

func (s *tieredScratchPool[T]) decode(codec Codec, indirect int, raw []byte) (Message, error) {
	buf := s.toBytes(s.pool.Value(indirect))
	n := copy(buf, raw)
	s.pool.SetValue(indirect, s.fromBytes(buf))

	m, err := codec.Decode(buf[:n])
	if err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	return m, nil
}

// newScratchPool picks the smallest iobuf tier that holds size bytes,
// among the eight tiers iobuf names a BoundedPool constructor for, and
// builds it with capacity slots, non-blocking Get/Put (a momentarily
// exhausted scratch pool falls back to a direct decode rather than
// suspend a receiver — see ShmTransport.decodeViaScratch).
func newScratchPool(capacity, size int) shmScratchPool {
	switch {
	case size <= iobuf.BufferSizePico:
		return newTieredScratchPool(capacity, iobuf.BufferSizePico, iobuf.NewPicoBufferPool,
			func(b iobuf.PicoBuffer) []byte { return b[:] },
			func(b []byte) iobuf.PicoBuffer { var a iobuf.PicoBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeNano:
		return newTieredScratchPool(capacity, iobuf.BufferSizeNano, iobuf.NewNanoBufferPool,
			func(b iobuf.NanoBuffer) []byte { return b[:] },
			func(b []byte) iobuf.NanoBuffer { var a iobuf.NanoBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeMicro:
		return newTieredScratchPool(capacity, iobuf.BufferSizeMicro, iobuf.NewMicroBufferPool,
			func(b iobuf.MicroBuffer) []byte { return b[:] },
			func(b []byte) iobuf.MicroBuffer { var a iobuf.MicroBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeSmall:
		return newTieredScratchPool(capacity, iobuf.BufferSizeSmall, iobuf.NewSmallBufferPool,
			func(b iobuf.SmallBuffer) []byte { return b[:] },
			func(b []byte) iobuf.SmallBuffer { var a iobuf.SmallBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeMedium:
		return newTieredScratchPool(capacity, iobuf.BufferSizeMedium, iobuf.NewMediumBufferPool,
			func(b iobuf.MediumBuffer) []byte { return b[:] },
			func(b []byte) iobuf.MediumBuffer { var a iobuf.MediumBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeLarge:
		return newTieredScratchPool(capacity, iobuf.BufferSizeLarge, iobuf.NewLargeBufferPool,
			func(b iobuf.LargeBuffer) []byte { return b[:] },
			func(b []byte) iobuf.LargeBuffer { var a iobuf.LargeBuffer; copy(a[:], b); return a })
	case size <= iobuf.BufferSizeHuge:
		return newTieredScratchPool(capacity, iobuf.BufferSizeHuge, iobuf.NewHugeBufferPool,
			func(b iobuf.HugeBuffer) []byte { return b[:] },
			func(b []byte) iobuf.HugeBuffer { var a iobuf.HugeBuffer; copy(a[:], b); return a })
	default:
		return newTieredScratchPool(capacity, iobuf.BufferSizeGiant, iobuf.NewGiantBufferPool,
			func(b iobuf.GiantBuffer) []byte { return b[:] },
			func(b []byte) iobuf.GiantBuffer { var a iobuf.GiantBuffer; copy(a[:], b); return a })
	}
}

func newTieredScratchPool[T any](
	capacity, size int,
	newPool func(int) *iobuf.BoundedPool[T],
	toBytes func(T) []byte,
	fromBytes func([]byte) T,
) *tieredScratchPool[T] {
	p := newPool(capacity)
	p.Fill(func() T { var zero T; return zero })
	p.SetNonblock(true)
	return &tieredScratchPool[T]{pool: p, size: size, toBytes: toBytes, fromBytes: fromBytes}
}
