package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"kanmonconnect/internal/bridge"
	"kanmonconnect/internal/bridge/bridgetest"
	"kanmonconnect/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type harness struct {
	machine   *Machine
	factory   *bridgetest.Factory
	presenter *bridgetest.Presenter
	forwarded []protocol.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{factory: &bridgetest.Factory{}, presenter: &bridgetest.Presenter{}}
	tr := bridge.New(bridge.Config{Factory: h.factory, Presenter: h.presenter, Logger: testLogger()})
	h.machine = New(Config{Transport: tr, Logger: testLogger()})
	h.machine.Subscribe(func(m protocol.Message) { h.forwarded = append(h.forwarded, m) })
	t.Cleanup(h.machine.Close)
	return h
}

const pageURL = "https://connect.kanmon.dev/connect?connectToken=t&disableModalTransition=true"

func TestMachine_ShowBeforeStartIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.machine.Show(protocol.ShowConnect{}); err != nil {
		t.Fatalf("show before start must not fail: %v", err)
	}
	if len(h.factory.Surfaces()) != 0 {
		t.Error("no surface should exist")
	}
	if presented, _ := h.presenter.Counts(); presented != 0 {
		t.Error("nothing should be presented")
	}
	if got := h.machine.Snapshot().State; got != Uninitialized {
		t.Errorf("state = %v", got)
	}
}

func TestMachine_FullLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.Start(ctx, pageURL); err != nil {
		t.Fatal(err)
	}
	if snap := h.machine.Snapshot(); snap.State != Loading || snap.Visible {
		t.Fatalf("after start: %+v", snap)
	}
	s := h.factory.Last()

	s.Post(`{"action":"MESSAGING_READY"}`)
	if snap := h.machine.Snapshot(); snap.Phase() != "ACTIVE_HIDDEN" {
		t.Fatalf("after ready: %s", snap.Phase())
	}
	if len(h.forwarded) != 0 {
		t.Fatalf("MESSAGING_READY must not be forwarded, got %v", h.forwarded)
	}

	if err := h.machine.Show(protocol.ShowConnect{}); err != nil {
		t.Fatal(err)
	}
	if sent := s.Sent(); len(sent) != 1 || sent[0] != `{"action":"SHOW_KANMON_CONNECT"}` {
		t.Fatalf("show should send immediately once ready, got %v", sent)
	}
	if snap := h.machine.Snapshot(); snap.Phase() != "ACTIVE_VISIBLE" {
		t.Fatalf("after show: %s", snap.Phase())
	}
	if !h.presenter.Showing() {
		t.Fatal("surface should be presented")
	}

	s.Post(`{"action":"HIDE"}`)
	if snap := h.machine.Snapshot(); snap.Phase() != "ACTIVE_HIDDEN" {
		t.Fatalf("after hide: %s", snap.Phase())
	}
	if h.presenter.Showing() {
		t.Error("hide should dismiss presentation")
	}
	if s.Closed() {
		t.Error("hide must not destroy the surface")
	}
	if len(h.forwarded) != 1 {
		t.Fatalf("HIDE should be forwarded once, got %v", h.forwarded)
	}

	// Showing again reuses the loaded surface.
	h.machine.Show(protocol.ShowConnect{Component: protocol.ComponentStatements})
	if len(h.factory.Surfaces()) != 1 {
		t.Error("show after hide must not reload")
	}
	if presented, _ := h.presenter.Counts(); presented != 2 {
		t.Errorf("presented = %d", presented)
	}

	h.machine.Stop()
	if snap := h.machine.Snapshot(); snap.State != Destroyed || snap.Visible {
		t.Fatalf("after stop: %+v", snap)
	}
	if !s.Closed() {
		t.Error("stop must close the surface")
	}

	before := len(s.Scripts())
	h.machine.Show(protocol.ShowConnect{})
	if len(s.Scripts()) != before {
		t.Error("show after stop must not evaluate anything")
	}
}

func TestMachine_ShowWhileLoadingQueues(t *testing.T) {
	h := newHarness(t)
	h.machine.Start(context.Background(), pageURL)
	s := h.factory.Last()

	h.machine.Show(protocol.ShowConnect{Component: protocol.ComponentSummary})
	if len(s.Scripts()) != 0 {
		t.Fatal("show during loading must queue")
	}
	if snap := h.machine.Snapshot(); snap.State != Loading || !snap.Visible {
		t.Fatalf("snapshot = %+v", snap)
	}

	s.Post(`{"action":"MESSAGING_READY"}`)
	if snap := h.machine.Snapshot(); snap.Phase() != "ACTIVE_VISIBLE" {
		t.Errorf("visibility lost on ready: %s", snap.Phase())
	}
	if len(s.Sent()) != 1 {
		t.Errorf("queued show not flushed")
	}
}

func TestMachine_StartTwiceReplacesSurface(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.machine.Start(ctx, pageURL)
	first := h.factory.Last()
	first.Post(`{"action":"MESSAGING_READY"}`)

	h.machine.Start(ctx, pageURL)
	second := h.factory.Last()

	if !first.Closed() {
		t.Fatal("first surface still live")
	}
	if second.Closed() {
		t.Fatal("second surface should be live")
	}
	if snap := h.machine.Snapshot(); snap.State != Loading || snap.SurfaceID != second.ID() {
		t.Errorf("snapshot = %+v", snap)
	}
	for i, s := range h.factory.Surfaces() {
		if i < len(h.factory.Surfaces())-1 && !s.Closed() {
			t.Errorf("surface %d still live", i)
		}
	}
}

func TestMachine_RestartAfterStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.machine.Start(ctx, pageURL)
	h.machine.Stop()
	h.machine.Stop()

	if err := h.machine.Start(ctx, pageURL); err != nil {
		t.Fatal(err)
	}
	if got := h.machine.Snapshot().State; got != Loading {
		t.Errorf("state = %v", got)
	}
}

func TestMachine_StartFailure(t *testing.T) {
	h := newHarness(t)
	h.factory.SetError(errors.New("no webview"))
	if err := h.machine.Start(context.Background(), pageURL); err == nil {
		t.Fatal("expected error")
	}
	if got := h.machine.Snapshot().State; got != Destroyed {
		t.Errorf("state = %v", got)
	}
	if err := h.machine.Show(protocol.ShowConnect{}); err != nil {
		t.Errorf("show after failed start should be a no-op, got %v", err)
	}
}

func TestMachine_ForwardsDomainMessages(t *testing.T) {
	h := newHarness(t)
	h.machine.Start(context.Background(), pageURL)
	s := h.factory.Last()
	s.Post(`{"action":"MESSAGING_READY"}`)
	s.Post(`{"action":"ERROR","errorType":"UNEXPECTED_ERROR","message":"x"}`)
	s.Post(`{"action":"WORKFLOW_UPDATED","section":"ONBOARDING","nextStep":"ONBOARDING.START_FLOW"}`)

	if len(h.forwarded) != 2 {
		t.Fatalf("forwarded = %v", h.forwarded)
	}
	if _, ok := h.forwarded[0].(protocol.PageError); !ok {
		t.Errorf("first forwarded = %T", h.forwarded[0])
	}
}

func TestState_String(t *testing.T) {
	if Loading.String() != "LOADING" || State(42).String() != "State(42)" {
		t.Error("unexpected State strings")
	}
}
