// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import "bytes"

// Message is the unit of exchange carried by every transport in this
// package. It is immutable after construction: Topic, ID, and Payload are
// fixed at NewMessage time and never mutated in place.
//
// Two Messages compare equal (via Equal) when all three fields are
// byte-for-byte identical.
type Message struct {
	topic   string
	id      string
	payload []byte
}

// NewMessage constructs a Message with a freshly generated ID.
// payload is not copied; callers must not mutate it after the call.
func NewMessage(topic string, payload []byte) Message {
	return Message{topic: topic, id: NewID(), payload: payload}
}

// NewMessageWithID constructs a Message with a caller-supplied ID, bypassing
// the generator, for callers that already have an ID, such as tests that
// need deterministic IDs.
func NewMessageWithID(topic, id string, payload []byte) Message {
	return Message{topic: topic, id: id, payload: payload}
}

// Topic returns the message's routing topic.
func (m Message) Topic() string { return m.topic }

// ID returns the message's opaque identifier.
func (m Message) ID() string { return m.id }

// Payload returns the message's payload bytes. The returned slice aliases
// the Message's internal storage; callers must not mutate it.
func (m Message) Payload() []byte { return m.payload }

// Len returns the number of payload bytes.
func (m Message) Len() int { return len(m.payload) }

// Equal reports whether m and other have byte-identical Topic, ID, and
// Payload fields.
func (m Message) Equal(other Message) bool {
	return m.topic == other.topic && m.id == other.id && bytes.Equal(m.payload, other.payload)
}
