// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"code.hybscloud.com/atomix"
)

var (
	errNotADialer   = errors.New("messenger: transport was not created as a dialer")
	errNotAListener = errors.New("messenger: transport was not created as a listener")
)

// StreamTransport is the length-framed, bidirectional byte transport
// described in §4.6: every message on the wire is a 4-byte big-endian
// length prefix followed by exactly that many encoded bytes, matching §6's
// external wire format.
//
// A StreamTransport is either a dialer (it owns host:port and redials it on
// Reconnect) or a listener (it owns a net.Listener and hands out connected
// peers one at a time via Accept). Accept is always explicit: nothing in
// this package auto-accepts an inbound connection on a listener's behalf.
//
// Read and write paths use separate mutexes so a Send in flight never
// blocks a concurrent Receive and vice versa; a third mutex guards the
// connection pointer itself across Accept/Reconnect/Close. Any I/O error
// that happens mid-frame — a short read or write — leaves the stream in an
// unrecoverable state: there is no way to resynchronize on a length-framed
// protocol once a partial frame has been consumed, so the transport drops
// that connection rather than risk desyncing the next frame boundary. The
// transport itself stays open; Reconnect or Accept establishes a new peer.
type StreamTransport struct {
	cfg   TcpConfig
	codec Codec

	listener net.Listener
	dialMode bool

	connMu sync.RWMutex
	conn   net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	// payloads pools the receive-side payload buffer: one fixed-size []byte
	// per outstanding Receive instead of a fresh allocation per frame.
	payloads *Pool[[]byte]

	closed atomix.Bool
}

// NewStreamDialer creates a StreamTransport that connects outward to
// cfg.Host:cfg.Port. Call Dial (or Reconnect) before Send/Receive.
func NewStreamDialer(cfg TcpConfig, codec Codec) (*StreamTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StreamTransport{cfg: cfg, codec: codec, dialMode: true, payloads: newPayloadPool(cfg)}, nil
}

// NewStreamListener creates a StreamTransport bound to cfg.Host:cfg.Port,
// ready to Accept inbound peers.
func NewStreamListener(cfg TcpConfig, codec Codec) (*StreamTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", netAddr(cfg))
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	return &StreamTransport{cfg: cfg, codec: codec, listener: ln, payloads: newPayloadPool(cfg)}, nil
}

// newPayloadPool builds the per-transport payload buffer pool, each slot
// sized to hold the largest frame cfg allows.
func newPayloadPool(cfg TcpConfig) *Pool[[]byte] {
	return NewPool(func() []byte { return make([]byte, cfg.MaxMessageSize) })
}

func netAddr(cfg TcpConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
}

// Dial establishes the outbound connection for a dialer-mode transport.
func (t *StreamTransport) Dial(ctx context.Context) error {
	if !t.dialMode {
		return &TransportError{Op: "dial", Err: errNotADialer}
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", netAddr(t.cfg))
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	return nil
}

// Accept waits for and adopts the next inbound connection on a
// listener-mode transport. It fails with ErrAlreadyConnected if a peer is
// already connected — the current peer must be dropped (by Cleanup, or by
// an I/O error) before another can be accepted.
func (t *StreamTransport) Accept(ctx context.Context) error {
	if t.listener == nil {
		return &TransportError{Op: "accept", Err: errNotAListener}
	}
	t.connMu.RLock()
	already := t.conn != nil
	t.connMu.RUnlock()
	if already {
		return ErrAlreadyConnected
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := t.listener.Accept()
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return &TransportError{Op: "accept", Err: r.err}
		}
		t.connMu.Lock()
		t.conn = r.conn
		t.connMu.Unlock()
		return nil
	}
}

// Send implements Transport: it encodes m and writes its 4-byte
// length-prefixed frame.
func (t *StreamTransport) Send(ctx context.Context, m Message) error {
	if t.closed.LoadAcquire() {
		return ErrChannelClosed
	}

	encoded, err := t.codec.Encode(m)
	if err != nil {
		return &EncodeError{Err: err}
	}
	if len(encoded) > t.cfg.MaxMessageSize {
		return NewTooLargeError(len(encoded), t.cfg.MaxMessageSize)
	}

	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame := make([]byte, lengthPrefixSize+len(encoded))
	binary.BigEndian.PutUint32(frame, uint32(len(encoded)))
	copy(frame[lengthPrefixSize:], encoded)

	if _, err := writeFull(ctx, conn, frame); err != nil {
		t.forceClose()
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Receive implements Transport: it reads one 4-byte-prefixed frame and
// decodes it.
func (t *StreamTransport) Receive(ctx context.Context) (Message, error) {
	if t.closed.LoadAcquire() {
		return Message{}, ErrChannelClosed
	}

	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return Message{}, ErrNotConnected
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	header := make([]byte, lengthPrefixSize)
	if _, err := readFull(ctx, conn, header); err != nil {
		t.forceClose()
		return Message{}, &TransportError{Op: "receive", Err: err}
	}
	n := binary.BigEndian.Uint32(header)
	if int(n) > t.cfg.MaxMessageSize {
		t.forceClose()
		return Message{}, NewTooLargeError(int(n), t.cfg.MaxMessageSize)
	}

	idx, buf := t.payloads.Acquire()
	defer t.payloads.Release(idx)
	payload := (*buf)[:n]
	if _, err := readFull(ctx, conn, payload); err != nil {
		t.forceClose()
		return Message{}, &TransportError{Op: "receive", Err: err}
	}

	m, err := t.codec.Decode(payload)
	if err != nil {
		t.forceClose()
		return Message{}, &DecodeError{Err: err}
	}
	return m, nil
}

// writeFull writes all of b to conn. net.Conn has no cancellation hook
// short of a deadline, so ctx cancellation of an in-flight write relies on
// the caller eventually calling Close, same as Go's own net package callers
// do.
func writeFull(_ context.Context, conn net.Conn, b []byte) (int, error) {
	return conn.Write(b)
}

func readFull(_ context.Context, conn net.Conn, b []byte) (int, error) {
	return io.ReadFull(conn, b)
}

// forceClose drops the current connection after a framing-breaking I/O
// error; the transport itself is not closed, so Reconnect/Accept can
// establish a fresh peer.
func (t *StreamTransport) forceClose() {
	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()
}

// Cleanup implements Transport. For a stream transport this is a synonym
// for dropping (but not reconnecting) the current peer: best-effort,
// idempotent, non-terminal.
func (t *StreamTransport) Cleanup() error {
	t.forceClose()
	return nil
}

// IsReady implements Transport: true while a peer connection is live.
func (t *StreamTransport) IsReady() bool {
	if t.closed.LoadAcquire() {
		return false
	}
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// Reconnect implements Transport. For a dialer, it redials the stored
// endpoint. A listener-mode transport has no endpoint to redial; callers
// must Accept again instead.
func (t *StreamTransport) Reconnect(ctx context.Context) error {
	if t.closed.LoadAcquire() {
		return ErrChannelClosed
	}
	if !t.dialMode {
		return &TransportError{Op: "reconnect", Err: errNotADialer}
	}
	t.forceClose()
	return t.Dial(ctx)
}

// MaxMessageSize implements Transport.
func (t *StreamTransport) MaxMessageSize() int {
	return t.cfg.MaxMessageSize
}

// Close implements Transport. It is terminal and always returns nil.
func (t *StreamTransport) Close() error {
	t.closed.StoreRelease(true)
	t.forceClose()
	if t.listener != nil {
		_ = t.listener.Close()
	}
	return nil
}
