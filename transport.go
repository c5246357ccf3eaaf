// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import "context"

// Transport is the uniform surface every transport in this package
// satisfies (§4.8). ShmTransport and StreamTransport both implement it; a
// caller-level publish/subscribe or RPC dispatch layer is expected to
// depend only on this interface, never on a concrete transport type.
//
// Send and Receive may suspend (block the calling goroutine) under
// back-pressure or while waiting for I/O readiness; both accept a
// context.Context so suspension is cancellable without corrupting
// transport state (§5).
type Transport interface {
	// Send encodes and delivers m. It may suspend on back-pressure (a full
	// mailbox, a busy writer mutex) until ctx is done or space is
	// available.
	Send(ctx context.Context, m Message) error

	// Receive waits for and returns the next Message in delivery order. It
	// may suspend until data is available or ctx is done.
	Receive(ctx context.Context) (Message, error)

	// Cleanup returns the transport to its initial state: best-effort and
	// idempotent. Safe to call mid-life; it does not terminate the
	// transport.
	Cleanup() error

	// IsReady reports whether the transport can currently send/receive.
	// Stream-oriented transports reflect connection state; the
	// shared-memory transport reports true until Close.
	IsReady() bool

	// Reconnect re-establishes a dropped connection using the transport's
	// stored endpoint. It is a no-op for the shared-memory transport.
	Reconnect(ctx context.Context) error

	// MaxMessageSize returns the configured maximum encoded message size.
	// Stable across the transport's life.
	MaxMessageSize() int

	// Close terminates the transport. Subsequent operations fail with
	// ErrChannelClosed. Close itself always returns nil, even if prior
	// state was already inconsistent — the transport is being discarded.
	Close() error
}
