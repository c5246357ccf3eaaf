// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Sentinel errors for failure kinds that carry no extra data. Each is a
// distinct value; callers dispatch with errors.Is, never by matching error
// text.
var (
	// ErrNoMessagesAvailable means a non-blocking receive found nothing
	// ready to deliver.
	ErrNoMessagesAvailable = errors.New("messenger: no messages available")

	// ErrMemoryOverflow means a slot's length prefix failed the sanity
	// check against the slot's configured size (frame corruption). The
	// offending slot has already been freed by the time this is returned.
	ErrMemoryOverflow = errors.New("messenger: memory overflow")

	// ErrNoFreeSlots means the shared-memory mailbox is Draining. In Open
	// state, sends instead suspend until a slot frees; this error is
	// surfaced only in Draining, where new sends are rejected outright.
	ErrNoFreeSlots = errors.New("messenger: no free slots")

	// ErrMemoryUnavailable means a byte-budgeted admission control check
	// could not be satisfied within its wait policy.
	ErrMemoryUnavailable = errors.New("messenger: memory unavailable")

	// ErrChannelClosed means the operation targeted a transport (or its
	// internal signaling channel) that has been closed. It is terminal:
	// every subsequent operation on the same transport returns it too.
	ErrChannelClosed = errors.New("messenger: channel closed")

	// ErrMessageNotFound means a receive resolved a descriptor (slot index
	// or message id) that no longer maps to stored bytes.
	ErrMessageNotFound = errors.New("messenger: message not found")

	// ErrNotConnected means a stream transport's send/receive was called
	// before a connection was established, or while reconnecting.
	ErrNotConnected = errors.New("messenger: not connected")

	// ErrAlreadyConnected means Accept was called on a stream listener
	// that already holds an established peer connection.
	ErrAlreadyConnected = errors.New("messenger: already connected")
)

// ErrWouldBlock re-exports iox's semantic non-blocking signal for callers
// that use the non-blocking variants of the FIFO lane and bounded channel.
// It is a control-flow value, not a failure, mirroring the convention the
// rest of the hybscloud ecosystem shares.
var ErrWouldBlock = iox.ErrWouldBlock

// TooLargeError reports that a message's encoded size exceeds a transport's
// configured maximum (the MessageTooLarge taxonomy entry). It carries the
// actual and maximum sizes so callers can act on them without parsing text.
type TooLargeError struct {
	Actual int
	Max    int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("messenger: message too large: actual %d, max %d", e.Actual, e.Max)
}

// NewTooLargeError constructs a TooLargeError for the given sizes.
func NewTooLargeError(actual, max int) *TooLargeError {
	return &TooLargeError{Actual: actual, Max: max}
}

// TransportError reports a generic I/O or protocol violation from a
// transport. Op names the failing operation (e.g. "send", "receive",
// "accept"); Err is the underlying cause, if any.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "messenger: transport error: " + e.Op
	}
	return fmt.Sprintf("messenger: transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EncodeError reports a codec failure while converting a Message to bytes.
type EncodeError struct{ Err error }

func (e *EncodeError) Error() string { return "messenger: encode error: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports a codec failure while converting bytes to a Message.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return "messenger: decode error: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigError reports invalid configuration supplied at construction.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "messenger: config error: " + e.Reason }

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil, ErrWouldBlock, or ErrMore.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
