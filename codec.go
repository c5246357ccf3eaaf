// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"encoding/binary"
	"fmt"
)

// Codec converts a Message to and from a self-delimiting byte sequence.
// decode(encode(m)) must equal m byte-for-byte in every field for every
// valid Message. Implementations must be safe for concurrent use; the core
// transports never mutate the byte slices a Codec hands back or receives.
//
// Any binary-clean, self-delimiting format satisfies this contract — the
// transports in this package are opaque to the wire representation chosen
// here.
type Codec interface {
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)
}

// LengthPrefixedCodec is the canonical codec described in §4.1/§6: three
// length-prefixed byte runs in order — topic, id, payload — each prefixed
// by a 4-byte little-endian unsigned length, with no inter-run padding.
//
// LengthPrefixedCodec holds no state and is safe for concurrent use; the
// zero value is ready to use.
type LengthPrefixedCodec struct{}

const lengthPrefixSize = 4

// Encode implements Codec.
func (LengthPrefixedCodec) Encode(m Message) ([]byte, error) {
	topic := []byte(m.topic)
	id := []byte(m.id)
	payload := m.payload

	total := 3*lengthPrefixSize + len(topic) + len(id) + len(payload)
	out := make([]byte, total)
	off := 0
	off = putRun(out, off, topic)
	off = putRun(out, off, id)
	putRun(out, off, payload)
	return out, nil
}

func putRun(dst []byte, off int, run []byte) int {
	binary.LittleEndian.PutUint32(dst[off:], uint32(len(run)))
	off += lengthPrefixSize
	copy(dst[off:], run)
	return off + len(run)
}

// Decode implements Codec. It fails with a *DecodeError if any declared
// run length overruns the remaining input.
func (LengthPrefixedCodec) Decode(b []byte) (Message, error) {
	topic, rest, err := takeRun(b)
	if err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	id, rest, err := takeRun(rest)
	if err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	payload, rest, err := takeRun(rest)
	if err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	if len(rest) != 0 {
		return Message{}, &DecodeError{Err: fmt.Errorf("%d trailing bytes after payload run", len(rest))}
	}
	return Message{topic: string(topic), id: string(id), payload: payload}, nil
}

func takeRun(b []byte) (run, rest []byte, err error) {
	if len(b) < lengthPrefixSize {
		return nil, nil, fmt.Errorf("truncated length prefix: have %d bytes, need %d", len(b), lengthPrefixSize)
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[lengthPrefixSize:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("declared run length %d overruns remaining %d bytes", n, len(b))
	}
	run = make([]byte, n)
	copy(run, b[:n])
	return run, b[n:], nil
}
