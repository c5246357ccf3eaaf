// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package messenger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/messenger"
)

func newTestShm(t *testing.T, maxMessageSize, maxQueueSize int) *messenger.ShmTransport {
	t.Helper()
	cfg := messenger.IpcConfig{
		MaxMessageSize:   maxMessageSize,
		MaxQueueSize:     maxQueueSize,
		SharedMemoryName: "test-mailbox",
	}
	tr, err := messenger.NewShmTransport(cfg, messenger.LengthPrefixedCodec{})
	if err != nil {
		t.Fatalf("NewShmTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// Scenario 1: single round trip.
func TestShmTransportRoundTrip(t *testing.T) {
	tr := newTestShm(t, 1024, 16)
	ctx := context.Background()

	m := messenger.NewMessageWithID("t", "A", []byte{1, 2, 3, 4, 5})
	if err := tr.Send(ctx, m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !got.Equal(m) {
		t.Fatalf("Receive() = %+v, want %+v", got, m)
	}
}

// Scenario 2: oversize rejection, then a subsequent in-size send succeeds.
func TestShmTransportOversizeRejection(t *testing.T) {
	tr := newTestShm(t, 64, 4)
	ctx := context.Background()

	big := messenger.NewMessageWithID("t", "id-big", make([]byte, 100))
	err := tr.Send(ctx, big)
	var tooLarge *messenger.TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("Send(oversize): got %v, want *TooLargeError", err)
	}
	if tooLarge.Max != 64 {
		t.Fatalf("TooLargeError.Max: got %d, want 64", tooLarge.Max)
	}

	small := messenger.NewMessageWithID("t", "id-small", make([]byte, 10))
	if err := tr.Send(ctx, small); err != nil {
		t.Fatalf("Send(small) after oversize rejection: %v", err)
	}
	got, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !got.Equal(small) {
		t.Fatalf("Receive() = %+v, want %+v", got, small)
	}
}

// Scenario 3: full mailbox blocks the next send until a receive frees a slot.
func TestShmTransportFullMailboxBlocksThenDelivers(t *testing.T) {
	tr := newTestShm(t, 256, 2)
	ctx := context.Background()

	m1 := messenger.NewMessageWithID("t", "1", []byte("one"))
	m2 := messenger.NewMessageWithID("t", "2", []byte("two"))
	m3 := messenger.NewMessageWithID("t", "3", []byte("three"))

	if err := tr.Send(ctx, m1); err != nil {
		t.Fatalf("Send(m1): %v", err)
	}
	if err := tr.Send(ctx, m2); err != nil {
		t.Fatalf("Send(m2): %v", err)
	}

	sendDone := make(chan error, 1)
	go func() { sendDone <- tr.Send(ctx, m3) }()

	select {
	case <-sendDone:
		t.Fatal("third send returned before any slot freed")
	case <-time.After(50 * time.Millisecond):
	}

	got1, err := tr.Receive(ctx)
	if err != nil || !got1.Equal(m1) {
		t.Fatalf("Receive() = (%+v, %v), want (%+v, nil)", got1, err, m1)
	}

	select {
	case err := <-sendDone:
		if err != nil {
			t.Fatalf("blocked Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked send never completed after a slot freed")
	}

	got2, err := tr.Receive(ctx)
	if err != nil || !got2.Equal(m2) {
		t.Fatalf("Receive() = (%+v, %v), want (%+v, nil)", got2, err, m2)
	}
	got3, err := tr.Receive(ctx)
	if err != nil || !got3.Equal(m3) {
		t.Fatalf("Receive() = (%+v, %v), want (%+v, nil)", got3, err, m3)
	}
}

// Capacity/back-pressure: cancelling a blocked send leaves the queue full
// with no extra state consumed.
func TestShmTransportCancelBlockedSendLeavesSlotsUsed(t *testing.T) {
	tr := newTestShm(t, 256, 1)
	bg := context.Background()

	m1 := messenger.NewMessageWithID("t", "1", []byte("one"))
	if err := tr.Send(bg, m1); err != nil {
		t.Fatalf("Send(m1): %v", err)
	}

	cancelCtx, cancel := context.WithCancel(bg)
	sendDone := make(chan error, 1)
	go func() {
		sendDone <- tr.Send(cancelCtx, messenger.NewMessageWithID("t", "2", []byte("two")))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-sendDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled Send: got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled send never returned")
	}

	got, err := tr.Receive(bg)
	if err != nil || !got.Equal(m1) {
		t.Fatalf("Receive() = (%+v, %v), want (%+v, nil)", got, err, m1)
	}
}

// Scenario 6 / cleanup idempotence: cleanup during idle discards un-received
// messages and subsequent sends/receives see only the next batch.
func TestShmTransportCleanupDiscardsPending(t *testing.T) {
	tr := newTestShm(t, 256, 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tr.Send(ctx, messenger.NewMessageWithID("t", "first", []byte{byte(i)})); err != nil {
			t.Fatalf("Send(first batch %d): %v", i, err)
		}
	}

	if err := tr.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if err := tr.Cleanup(); err != nil {
		t.Fatalf("Cleanup (second call): %v", err)
	}

	second := make([]messenger.Message, 3)
	for i := range second {
		second[i] = messenger.NewMessageWithID("t", "second", []byte{byte(10 + i)})
		if err := tr.Send(ctx, second[i]); err != nil {
			t.Fatalf("Send(second batch %d): %v", i, err)
		}
	}

	for i := range second {
		got, err := tr.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive(%d): %v", i, err)
		}
		if !got.Equal(second[i]) {
			t.Fatalf("Receive(%d) = %+v, want %+v", i, got, second[i])
		}
	}
}

// Ordering: single sender, single receiver, FIFO.
func TestShmTransportSingleSenderSingleReceiverOrdering(t *testing.T) {
	tr := newTestShm(t, 256, 32)
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		if err := tr.Send(ctx, messenger.NewMessageWithID("t", "seq", []byte{byte(i)})); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		got, err := tr.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive(%d): %v", i, err)
		}
		if got.Payload()[0] != byte(i) {
			t.Fatalf("Receive(%d): got payload %v, want [%d]", i, got.Payload(), i)
		}
	}
}

// Draining: new sends are rejected once Drain is called, but already
// in-flight-admitted messages still deliver.
func TestShmTransportDrainRejectsNewSends(t *testing.T) {
	tr := newTestShm(t, 256, 4)
	ctx := context.Background()

	m := messenger.NewMessageWithID("t", "pre-drain", []byte("x"))
	if err := tr.Send(ctx, m); err != nil {
		t.Fatalf("Send before drain: %v", err)
	}

	tr.Drain()

	err := tr.Send(ctx, messenger.NewMessageWithID("t", "post-drain", []byte("y")))
	if !errors.Is(err, messenger.ErrNoFreeSlots) {
		t.Fatalf("Send after Drain: got %v, want ErrNoFreeSlots", err)
	}

	got, err := tr.Receive(ctx)
	if err != nil || !got.Equal(m) {
		t.Fatalf("Receive() after Drain = (%+v, %v), want (%+v, nil)", got, err, m)
	}
}

func TestShmTransportCloseFailsFurtherOps(t *testing.T) {
	tr := newTestShm(t, 256, 4)
	ctx := context.Background()

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Send(ctx, messenger.NewMessageWithID("t", "x", nil)); !errors.Is(err, messenger.ErrChannelClosed) {
		t.Fatalf("Send after Close: got %v, want ErrChannelClosed", err)
	}
	if _, err := tr.Receive(ctx); !errors.Is(err, messenger.ErrChannelClosed) {
		t.Fatalf("Receive after Close: got %v, want ErrChannelClosed", err)
	}
	if tr.IsReady() {
		t.Fatal("IsReady() true after Close")
	}
}

func TestShmTransportReconnectIsNoopUnlessClosed(t *testing.T) {
	tr := newTestShm(t, 256, 4)
	if err := tr.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect on open transport: %v", err)
	}
	_ = tr.Close()
	if err := tr.Reconnect(context.Background()); !errors.Is(err, messenger.ErrChannelClosed) {
		t.Fatalf("Reconnect on closed transport: got %v, want ErrChannelClosed", err)
	}
}

func TestShmTransportMaxMessageSizeStable(t *testing.T) {
	tr := newTestShm(t, 512, 4)
	if tr.MaxMessageSize() != 512 {
		t.Fatalf("MaxMessageSize(): got %d, want 512", tr.MaxMessageSize())
	}
}

func TestNewShmTransportInvalidConfig(t *testing.T) {
	_, err := messenger.NewShmTransport(messenger.IpcConfig{MaxMessageSize: 10, MaxQueueSize: 1}, messenger.LengthPrefixedCodec{})
	var cfgErr *messenger.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewShmTransport(invalid cfg): got %v, want *ConfigError", err)
	}
}

// Concurrent stress: many senders and receivers, multiset equality, no
// unexpected errors.
func TestShmTransportConcurrentStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}

	const senders = 20
	const receivers = 20
	const perSender = 50
	tr := newTestShm(t, 256, 256)
	ctx := context.Background()

	var sendWG sync.WaitGroup
	for s := 0; s < senders; s++ {
		sendWG.Add(1)
		go func(id int) {
			defer sendWG.Done()
			for i := 0; i < perSender; i++ {
				payload := []byte{byte(id), byte(i)}
				if err := tr.Send(ctx, messenger.NewMessage("t", payload)); err != nil {
					t.Errorf("Send(sender=%d,i=%d): %v", id, i, err)
				}
			}
		}(s)
	}

	total := senders * perSender
	results := make(chan [2]byte, total)
	var recvWG sync.WaitGroup
	var received int
	var mu sync.Mutex
	for r := 0; r < receivers; r++ {
		recvWG.Add(1)
		go func() {
			defer recvWG.Done()
			for {
				mu.Lock()
				if received >= total {
					mu.Unlock()
					return
				}
				received++
				mu.Unlock()

				m, err := tr.Receive(ctx)
				if err != nil {
					t.Errorf("Receive: %v", err)
					return
				}
				var key [2]byte
				copy(key[:], m.Payload())
				results <- key
			}
		}()
	}

	sendWG.Wait()
	recvWG.Wait()
	close(results)

	count := make(map[[2]byte]int, total)
	for k := range results {
		count[k]++
	}
	if len(count) != total {
		t.Fatalf("expected %d distinct (sender,i) pairs, got %d", total, len(count))
	}
	for k, c := range count {
		if c != 1 {
			t.Fatalf("pair %v received %d times, want 1", k, c)
		}
	}
}
