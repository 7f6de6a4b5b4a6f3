package gate

import (
	"errors"
	"fmt"
	"testing"
)

type recorder struct {
	sent []string
	fail map[string]bool
}

func (r *recorder) send(p string) error {
	if r.fail[p] {
		return errors.New("boom")
	}
	r.sent = append(r.sent, p)
	return nil
}

func TestGate_QueuesUntilReady(t *testing.T) {
	g := New()
	rec := &recorder{}

	for i := 0; i < 5; i++ {
		queued, err := g.EnqueueOrSend(fmt.Sprintf("m%d", i), rec.send)
		if err != nil {
			t.Fatal(err)
		}
		if !queued {
			t.Fatalf("message %d should have been queued", i)
		}
	}
	if len(rec.sent) != 0 {
		t.Fatalf("nothing should be sent before ready, got %v", rec.sent)
	}
	if g.Pending() != 5 {
		t.Fatalf("expected 5 pending, got %d", g.Pending())
	}

	flipped, flushed, err := g.MarkReady(rec.send)
	if err != nil {
		t.Fatal(err)
	}
	if !flipped || flushed != 5 {
		t.Fatalf("expected flip with 5 flushed, got %v %d", flipped, flushed)
	}
	for i, p := range rec.sent {
		if p != fmt.Sprintf("m%d", i) {
			t.Errorf("flush order broken at %d: %s", i, p)
		}
	}
	if g.Pending() != 0 {
		t.Errorf("queue should be empty after flush, got %d", g.Pending())
	}
}

func TestGate_SendsImmediatelyWhenReady(t *testing.T) {
	g := New()
	rec := &recorder{}
	g.MarkReady(rec.send)

	queued, err := g.EnqueueOrSend("now", rec.send)
	if err != nil {
		t.Fatal(err)
	}
	if queued {
		t.Error("should not queue once ready")
	}
	if len(rec.sent) != 1 || rec.sent[0] != "now" {
		t.Errorf("expected immediate send, got %v", rec.sent)
	}
	if g.Pending() != 0 {
		t.Error("queue must stay untouched once ready")
	}
}

func TestGate_MarkReadyOnce(t *testing.T) {
	g := New()
	rec := &recorder{}
	g.EnqueueOrSend("a", rec.send)

	if flipped, _, _ := g.MarkReady(rec.send); !flipped {
		t.Fatal("first MarkReady should flip")
	}
	if flipped, n, _ := g.MarkReady(rec.send); flipped || n != 0 {
		t.Fatal("second MarkReady must be a no-op")
	}
	if !g.Ready() {
		t.Fatal("gate never reverts to not ready")
	}
	if len(rec.sent) != 1 {
		t.Errorf("payload flushed twice: %v", rec.sent)
	}
}

func TestGate_FlushContinuesPastErrors(t *testing.T) {
	g := New()
	rec := &recorder{fail: map[string]bool{"b": true}}
	g.EnqueueOrSend("a", rec.send)
	g.EnqueueOrSend("b", rec.send)
	g.EnqueueOrSend("c", rec.send)

	_, flushed, err := g.MarkReady(rec.send)
	if err == nil {
		t.Fatal("expected flush error")
	}
	if flushed != 3 {
		t.Errorf("expected 3 attempted, got %d", flushed)
	}
	if len(rec.sent) != 2 || rec.sent[0] != "a" || rec.sent[1] != "c" {
		t.Errorf("unexpected sends: %v", rec.sent)
	}
	if g.Pending() != 0 {
		t.Error("queue must be cleared even on error")
	}
}

func TestGate_FreshGateIsNotReady(t *testing.T) {
	old := New()
	old.MarkReady(func(string) error { return nil })

	fresh := New()
	if fresh.Ready() || fresh.Pending() != 0 {
		t.Error("a new gate must start empty and not ready")
	}
}
