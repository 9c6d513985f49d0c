package diagnostics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	var got atomic.Int32
	b.Subscribe("session.start", func(e Envelope) {
		if e.Event == "session.start" {
			got.Add(1)
		}
	})
	b.Publish("session.start", BuildEnvelope("session.start", "wizard", "create_session", map[string]any{"session_id": "abc"}))
	if got.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", got.Load())
	}
}

func TestWildcardSubscriber(t *testing.T) {
	b := NewBus()
	var count atomic.Int32
	b.Subscribe("*", func(e Envelope) { count.Add(1) })
	b.Publish("foo", BuildEnvelope("foo", "c", "op", nil))
	b.Publish("bar", BuildEnvelope("bar", "c", "op", nil))
	if count.Load() != 2 {
		t.Errorf("expected 2 deliveries, got %d", count.Load())
	}
}

func TestSubscriberPanicIsFailSafe(t *testing.T) {
	b := NewBus()
	b.Subscribe("x", func(e Envelope) { panic("boom") })
	b.Publish("x", BuildEnvelope("x", "c", "op", nil))
}

func TestSafePublishNilBus(t *testing.T) {
	var b *Bus
	b.SafePublish("x", "c", "op", nil)
}

func TestRecentOrdersAndLimits(t *testing.T) {
	b := NewBus()
	for i := 0; i < 5; i++ {
		b.Publish("e", BuildEnvelope("e", "c", "op", map[string]any{"i": i}))
	}
	recent := b.Recent(3)
	if len(recent) != 3 {
		t.Errorf("expected 3 envelopes, got %d", len(recent))
	}
	if recent[0].Data["i"] != 2 || recent[2].Data["i"] != 4 {
		t.Errorf("expected the last three envelopes oldest first, got %+v", recent)
	}
}

func TestObservationSuccessAndFailure(t *testing.T) {
	b := NewBus()
	obs, ctx := b.Observe(context.Background(), "file_io", "file_io.copy", map[string]any{"root": "inbox"})
	_ = ctx
	obs.Summary()["bytes"] = 10
	var err error
	obs.End(&err)

	obs2, _ := b.Observe(context.Background(), "file_io", "file_io.copy", map[string]any{"root": "inbox"})
	failErr := errors.New("boom")
	obs2.End(&failErr)
}
