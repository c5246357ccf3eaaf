// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

// minMessageSize is the smallest max_message_size accepted for a
// shared-memory mailbox: the four-byte length prefix plus a few bytes of
// headroom for a non-trivial payload.
const minMessageSize = 64

// IpcConfig configures a shared-memory transport (§3, §4.5).
type IpcConfig struct {
	// MaxMessageSize is the number of bytes reserved per slot, including
	// the 4-byte length prefix. Must be >= 64.
	MaxMessageSize int

	// MaxQueueSize is the number of slots in the mailbox. Must be >= 1.
	// A value of 1 collapses the mailbox to a single-buffer handshake.
	MaxQueueSize int

	// SharedMemoryName names the mailbox's backing region. This package
	// allocates the region as in-process memory and does not read this
	// field; it does not map the region onto a named OS-level
	// shared-memory object.
	SharedMemoryName string

	// MaxBufferSize sizes the scratch-buffer pool ShmTransport uses to stage
	// bytes during receive (see newScratchPool). Zero defaults to
	// MaxMessageSize.
	MaxBufferSize int
}

// Validate checks the invariants in §3: MaxQueueSize >= 1 and
// MaxMessageSize >= 64. It returns a *ConfigError describing the first
// violation found.
func (c IpcConfig) Validate() error {
	if c.MaxQueueSize < 1 {
		return &ConfigError{Reason: "max_queue_size must be >= 1"}
	}
	if c.MaxMessageSize < minMessageSize {
		return &ConfigError{Reason: "max_message_size must be >= 64"}
	}
	return nil
}

// TcpConfig configures a stream transport (§3, §4.6) over TCP.
type TcpConfig struct {
	// Host is the address to dial (connected-peer mode) or bind (listener
	// mode).
	Host string

	// Port is the TCP port to dial or bind.
	Port uint16

	// MaxMessageSize caps the payload length enforced on both sides of the
	// wire; frames declaring a larger length are rejected and the
	// connection is closed (§4.6).
	MaxMessageSize int
}

// Validate checks that MaxMessageSize is at least 4 and that Host is not
// empty. MaxMessageSize caps the encoded message alone, not counting the
// 4-byte frame length; a LengthPrefixedCodec message needs at least 12.
func (c TcpConfig) Validate() error {
	if c.MaxMessageSize < lengthPrefixSize {
		return &ConfigError{Reason: "max_message_size must be >= 4"}
	}
	if c.Host == "" {
		return &ConfigError{Reason: "host must not be empty"}
	}
	return nil
}
