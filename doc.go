// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package messenger implements an in-process messaging layer over two
// Transport implementations: ShmTransport, a bounded shared-memory-shaped
// mailbox for same-process hand-off, and StreamTransport, a length-framed
// transport for communicating across a TCP connection.
//
// Both transports speak Message values, converted to and from bytes by a
// Codec passed to the transport's constructor — LengthPrefixedCodec is the
// canonical one this package provides.
// Neither transport nor Codec knows about topics beyond carrying the field
// opaquely: a caller building a publish/subscribe or request/reply layer on
// top of Transport can use Message.Topic to carry its own convention (for
// example "<method>.request" and "<method>.reply.<id>", correlating a reply
// back to its request via Message.ID) without any change to this package.
// This package stops at the transport boundary; it does not dispatch,
// route, or correlate messages itself.
package messenger
