// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger_test

import (
	"testing"

	"code.hybscloud.com/messenger"
)

func TestTooLargeErrorMessage(t *testing.T) {
	err := messenger.NewTooLargeError(100, 64)
	if err.Actual != 100 || err.Max != 64 {
		t.Fatalf("TooLargeError fields: got %+v", err)
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestIsWouldBlock(t *testing.T) {
	if !messenger.IsWouldBlock(messenger.ErrWouldBlock) {
		t.Fatal("IsWouldBlock(ErrWouldBlock) = false, want true")
	}
	if messenger.IsWouldBlock(messenger.ErrChannelClosed) {
		t.Fatal("IsWouldBlock(ErrChannelClosed) = true, want false")
	}
}

func TestIsNonFailure(t *testing.T) {
	if !messenger.IsNonFailure(nil) {
		t.Fatal("IsNonFailure(nil) = false, want true")
	}
	if !messenger.IsNonFailure(messenger.ErrWouldBlock) {
		t.Fatal("IsNonFailure(ErrWouldBlock) = false, want true")
	}
}
