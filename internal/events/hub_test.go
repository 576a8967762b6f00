package events

import (
	"testing"
	"time"
)

func TestPublishAssignsIncreasingSeq(t *testing.T) {
	hub := NewHub(10)
	first := hub.Publish(KindActionApplied, "chan-a", nil)
	second := hub.Publish(KindActionRejected, "chan-a", nil)
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("unexpected seqs: %d, %d", first.Seq, second.Seq)
	}
}

func TestSubscribeReplaysAfterSeq(t *testing.T) {
	hub := NewHub(10)
	hub.Publish(KindActionApplied, "chan-a", nil)
	hub.Publish(KindActionApplied, "chan-b", nil)
	hub.Publish(KindPaymentRecorded, "", nil)

	replay, _, cancel := hub.Subscribe(1)
	defer cancel()
	if len(replay) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(replay))
	}
	if replay[0].Seq != 2 || replay[1].Seq != 3 {
		t.Fatalf("unexpected replay order: %d, %d", replay[0].Seq, replay[1].Seq)
	}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	hub := NewHub(10)
	_, live, cancel := hub.Subscribe(0)
	defer cancel()

	hub.Publish(KindActionApplied, "chan-a", map[string]string{"state": "created"})

	select {
	case event := <-live:
		if event.Kind != KindActionApplied || event.Channel != "chan-a" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 5; i++ {
		hub.Publish(KindActionApplied, "chan-a", nil)
	}
	replay, _, cancel := hub.Subscribe(0)
	defer cancel()
	if len(replay) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(replay))
	}
	if replay[0].Seq != 4 || replay[1].Seq != 5 {
		t.Fatalf("expected newest events kept, got %d, %d", replay[0].Seq, replay[1].Seq)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	hub := NewHub(10)
	_, live, cancel := hub.Subscribe(0)
	cancel()
	hub.Publish(KindActionApplied, "chan-a", nil)
	if _, ok := <-live; ok {
		t.Fatal("expected closed channel after cancel")
	}
}
