// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// poolChunkSize is the number of slots allocated per chunk. Chosen to match
// a handful of cache lines per chunk rather than one slot per line: pool
// growth is rare enough that per-chunk bookkeeping overhead matters more
// than false sharing between slots of the same chunk.
const poolChunkSize = 64

const poolFreeNil = int32(-1)

// Pool is a fixed-identity, chunk-growing object pool: Acquire hands back a
// stable integer index alongside a pointer to a pre-built T, and Release
// returns that index to circulation. It never blocks and never shrinks —
// when every existing chunk is exhausted it allocates one more 64-slot
// chunk and links it in, rather than making a caller wait.
//
// This is the Go shape of a chunked arena with an embedded per-chunk
// free-list: each chunk owns a lock-free Treiber stack of its own free
// slots (an atomix-backed counter pairs the stack head with an ABA
// generation so a slot freed and re-acquired between a reader's load and
// CAS is never mistaken for the slot it started as). Growing the chunk
// list itself takes a short-lived mutex; that is the only operation in
// this type that can ever contend, and it happens at most once per new
// high-water mark of concurrent outstanding items.
//
// A generic atomic pointer wrapper was not found in use anywhere across
// the retrieval pack (atomix's exported types cover integers and bools,
// not pointers), so Pool uses the standard library's sync/atomic.Pointer
// for the chunk list and sync.Mutex to serialize growth — see DESIGN.md.
type Pool[T any] struct {
	newFunc func() T
	chunks  atomic.Pointer[[]*poolChunk[T]]
	growMu  sync.Mutex
}

type poolChunk[T any] struct {
	base     int
	slots    [poolChunkSize]T
	freeNext [poolChunkSize]int32
	freeHead atomix.Uint64 // packed (index uint32 | generation uint32)
}

func newPoolChunk[T any](base int, newFunc func() T) *poolChunk[T] {
	c := &poolChunk[T]{base: base}
	for i := range c.slots {
		c.slots[i] = newFunc()
		if i < poolChunkSize-1 {
			c.freeNext[i] = int32(i + 1)
		} else {
			c.freeNext[i] = poolFreeNil
		}
	}
	c.freeHead.StoreRelease(packPoolFree(0, 0))
	return c
}

func packPoolFree(idx int32, gen uint32) uint64 {
	return uint64(uint32(idx)) | uint64(gen)<<32
}

func unpackPoolFree(v uint64) (idx int32, gen uint32) {
	return int32(uint32(v)), uint32(v >> 32)
}

// acquire pops a free local slot index from the chunk, or reports false if
// the chunk is fully checked out.
func (c *poolChunk[T]) acquire() (int32, bool) {
	for {
		head := c.freeHead.LoadAcquire()
		idx, gen := unpackPoolFree(head)
		if idx == poolFreeNil {
			return 0, false
		}
		next := c.freeNext[idx]
		if c.freeHead.CompareAndSwapAcqRel(head, packPoolFree(next, gen+1)) {
			return idx, true
		}
	}
}

// release pushes a local slot index back onto the chunk's free stack.
func (c *poolChunk[T]) release(idx int32) {
	for {
		head := c.freeHead.LoadAcquire()
		oldIdx, gen := unpackPoolFree(head)
		c.freeNext[idx] = oldIdx
		if c.freeHead.CompareAndSwapAcqRel(head, packPoolFree(idx, gen+1)) {
			return
		}
	}
}

// NewPool creates an empty Pool whose first chunk is pre-built with
// newFunc, which constructs the zero-initialized value stored at every
// slot. newFunc is also used to build every slot of every later chunk as
// the pool grows.
func NewPool[T any](newFunc func() T) *Pool[T] {
	p := &Pool[T]{newFunc: newFunc}
	first := newPoolChunk(0, newFunc)
	chunks := []*poolChunk[T]{first}
	p.chunks.Store(&chunks)
	return p
}

// Acquire reserves a slot and returns its pool-wide index and a pointer to
// its value, ready for the caller to overwrite in place. It never blocks:
// if every chunk is exhausted, Acquire grows the pool by one chunk first.
func (p *Pool[T]) Acquire() (int, *T) {
	for {
		chunks := *p.chunks.Load()
		for _, c := range chunks {
			if local, ok := c.acquire(); ok {
				return c.base + int(local), &c.slots[local]
			}
		}
		p.grow(len(chunks))
	}
}

// grow appends one more chunk to the pool, unless another goroutine already
// grew past expectedLen while the caller was deciding to.
func (p *Pool[T]) grow(expectedLen int) {
	p.growMu.Lock()
	defer p.growMu.Unlock()

	chunks := *p.chunks.Load()
	if len(chunks) != expectedLen {
		return // another goroutine already grew the pool
	}
	next := newPoolChunk(len(chunks)*poolChunkSize, p.newFunc)
	grown := make([]*poolChunk[T], len(chunks)+1)
	copy(grown, chunks)
	grown[len(chunks)] = next
	p.chunks.Store(&grown)
}

// Release returns the slot at index to circulation. index must have come
// from a prior Acquire on the same Pool and must not already be released.
func (p *Pool[T]) Release(index int) {
	chunks := *p.chunks.Load()
	chunkIdx := index / poolChunkSize
	local := int32(index % poolChunkSize)
	chunks[chunkIdx].release(local)
}

// At returns a pointer to the value stored at index without acquiring or
// releasing it. Callers use this to read back a value a concurrent Release
// has not yet reused.
func (p *Pool[T]) At(index int) *T {
	chunks := *p.chunks.Load()
	chunkIdx := index / poolChunkSize
	local := index % poolChunkSize
	return &chunks[chunkIdx].slots[local]
}
