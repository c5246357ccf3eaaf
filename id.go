// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger

import (
	"crypto/rand"
)

// idAlphabet is the character set for generated message IDs: upper-case
// letters and digits, matching the external identifier format in §6.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// idGroups is the number of 4-character groups in a generated ID.
const idGroups = 4
const idGroupLen = 4

// NewID returns a 19-character token composed of upper-case alphanumerics
// grouped 4-4-4-4 by hyphens (16 random characters plus 3 hyphen
// separators), suitable as a human-visible message ID.
//
// A third-party ID generator (e.g. github.com/teris-io/shortid, pulled in
// by the aistore example in the retrieval pack) was considered and
// rejected: none of them produce this exact grouped, upper-case-alphanumeric
// shape, and re-formatting their output would leave the dependency
// contributing nothing but entropy that crypto/rand already provides.
func NewID() string {
	var raw [idGroups * idGroupLen]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand failing indicates a broken host RNG; there is no
		// sane fallback that preserves the unpredictability this ID is
		// for, so surface it the same way crypto/rand's own callers do.
		panic("messenger: failed to read random bytes: " + err.Error())
	}

	buf := make([]byte, 0, 19)
	for i, b := range raw {
		if i > 0 && i%idGroupLen == 0 {
			buf = append(buf, '-')
		}
		buf = append(buf, idAlphabet[int(b)%len(idAlphabet)])
	}
	return string(buf)
}
