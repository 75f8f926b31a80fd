package stream

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscriber) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		if !ok {
			t.Fatal("channel closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.Start(ctx)
	defer h.Stop()

	a := h.Subscribe("nifty")
	b := h.Subscribe("banknifty")

	h.Publish(Snapshot{Topic: "nifty", Seq: 1})

	if got := receive(t, a); got.Seq != 1 {
		t.Errorf("seq = %d", got.Seq)
	}
	select {
	case snap := <-b.C:
		t.Errorf("other topic received %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubReplaysLatestToNewSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.Start(ctx)
	defer h.Stop()

	first := h.Subscribe("nifty")
	h.Publish(Snapshot{Topic: "nifty", Seq: 7})
	receive(t, first)

	late := h.Subscribe("nifty")
	if got := receive(t, late); got.Seq != 7 {
		t.Errorf("replayed seq = %d", got.Seq)
	}
}

func TestHubIgnoresStaleSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.Start(ctx)
	defer h.Stop()

	sub := h.Subscribe("nifty")
	h.Publish(Snapshot{Topic: "nifty", Seq: 5})
	receive(t, sub)
	h.Publish(Snapshot{Topic: "nifty", Seq: 3})
	h.Publish(Snapshot{Topic: "nifty", Seq: 6})

	if got := receive(t, sub); got.Seq != 6 {
		t.Errorf("seq = %d, want 6", got.Seq)
	}
	if latest, _ := h.Latest("nifty"); latest.Seq != 6 {
		t.Errorf("latest = %d", latest.Seq)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHubWithConfig(HubConfig{BufferSize: 16, SubscriberBufferSize: 1})
	h.Start(ctx)
	defer h.Stop()

	slow := h.Subscribe("nifty")
	for i := 1; i <= 5; i++ {
		h.Publish(Snapshot{Topic: "nifty", Seq: uint64(i)})
	}

	deadline := time.Now().Add(time.Second)
	for m := h.GetMetrics(); m.Delivered+m.Dropped < 5 && time.Now().Before(deadline); m = h.GetMetrics() {
		time.Sleep(5 * time.Millisecond)
	}
	m := h.GetMetrics()
	if m.Received != 5 || m.Delivered != 1 || m.Dropped != 4 {
		t.Errorf("metrics = %+v", m)
	}
	if got := receive(t, slow); got.Seq != 1 {
		t.Errorf("seq = %d", got.Seq)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("nifty")
	h.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open")
	}
	if m := h.GetMetrics(); m.Subscribers != 0 || m.Topics != 0 {
		t.Error("subscriber not removed")
	}
}

func TestHubForgetsTopicsWithoutSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.Start(ctx)
	defer h.Stop()

	for i := 0; i < 200; i++ {
		topic := fmt.Sprintf("owner%d|2024-01-15|NIFTY", i)
		sub := h.Subscribe(topic)
		h.Publish(Snapshot{Topic: topic, Seq: uint64(i + 1)})
		receive(t, sub)
		h.Unsubscribe(sub)
	}

	if m := h.GetMetrics(); m.Subscribers != 0 || m.Retained != 0 {
		t.Fatalf("metrics = %+v, want no subscribers and nothing retained", m)
	}

	again := h.Subscribe("owner0|2024-01-15|NIFTY")
	defer h.Unsubscribe(again)
	select {
	case snap := <-again.C:
		t.Errorf("new subscriber replayed a released snapshot: seq=%d", snap.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsSnapshotsForUnwatchedTopics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.Start(ctx)
	defer h.Stop()

	h.Publish(Snapshot{Topic: "nobody", Seq: 1})
	watched := h.Subscribe("nifty")
	h.Publish(Snapshot{Topic: "nifty", Seq: 2})
	receive(t, watched)

	if _, ok := h.Latest("nobody"); ok {
		t.Error("snapshot retained for a topic without subscribers")
	}
	if m := h.GetMetrics(); m.Retained != 1 || m.Received != 2 {
		t.Errorf("metrics = %+v", m)
	}
}
