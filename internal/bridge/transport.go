// Package bridge owns the embedded web surface and moves typed messages
// between it and the host.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kanmonconnect/internal/domain"
	"kanmonconnect/internal/gate"
	"kanmonconnect/internal/metrics"
	"kanmonconnect/internal/protocol"

	"github.com/google/uuid"
)

// ErrTransportUnavailable is returned when an operation needs a live surface.
var ErrTransportUnavailable = errors.New("bridge: no live surface")

// Inbound is a decoded page message and the surface that produced it.
type Inbound struct {
	SurfaceID string
	Message   protocol.Message
}

// Observer is told about bridge traffic after the transport lock is released.
// Observers must not call back into the transport.
type Observer interface {
	SurfaceCreated(surfaceID, url string)
	SurfaceDestroyed(surfaceID string)
	MessageReceived(surfaceID string, m protocol.Message)
	MessageSent(surfaceID string, m protocol.Message, queued bool)
}

// Config wires a Transport to its host capabilities.
type Config struct {
	Factory   domain.SurfaceFactory
	Presenter domain.Presenter // optional
	Logger    *slog.Logger
	Metrics   *metrics.Bridge // optional
	Observers []Observer
}

// Transport owns at most one live surface. The surface, its readiness gate
// and presentation state form one critical section guarded by mu.
type Transport struct {
	factory   domain.SurfaceFactory
	presenter domain.Presenter
	logger    *slog.Logger
	metrics   *metrics.Bridge
	observers []Observer

	mu        sync.Mutex
	surface   domain.Surface
	gate      *gate.Gate
	createdAt time.Time
	presented bool

	subMu   sync.RWMutex
	subs    map[int]func(Inbound)
	nextSub int
}

func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		factory:   cfg.Factory,
		presenter: cfg.Presenter,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		observers: cfg.Observers,
		subs:      make(map[int]func(Inbound)),
	}
}

// CreateSurface tears down any live surface, then creates, configures and
// starts loading a new one. It returns the new surface id without waiting
// for the page.
func (t *Transport) CreateSurface(ctx context.Context, url string) (string, error) {
	t.mu.Lock()
	oldID, hadOld := t.destroyLocked()

	id := uuid.NewString()
	s, err := t.factory.NewSurface(ctx, domain.SurfaceConfig{
		ID:              id,
		Channel:         ChannelName,
		BootstrapScript: BootstrapScript(ChannelName),
		OnMessage:       func(p domain.InboundPayload) { t.receive(id, p) },
	})
	if err != nil {
		t.mu.Unlock()
		t.notifyDestroyed(oldID, hadOld)
		return "", fmt.Errorf("create surface: %w", err)
	}

	t.surface = s
	t.gate = gate.New()
	t.createdAt = time.Now()
	t.metrics.SurfaceCreated()

	if err := s.Load(url); err != nil {
		t.destroyLocked()
		t.mu.Unlock()
		t.notifyDestroyed(oldID, hadOld)
		t.notifyDestroyed(id, true)
		return "", fmt.Errorf("load surface: %w", err)
	}
	t.mu.Unlock()

	t.notifyDestroyed(oldID, hadOld)
	for _, o := range t.observers {
		o.SurfaceCreated(id, url)
	}
	t.logger.Debug("surface created", "surface", id)
	return id, nil
}

// DestroySurface releases the live surface. Calling it with no surface is a no-op.
func (t *Transport) DestroySurface() {
	t.mu.Lock()
	id, ok := t.destroyLocked()
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("cannot stop: no surface has been started")
		return
	}
	t.notifyDestroyed(id, true)
	t.logger.Debug("surface stopped", "surface", id)
}

func (t *Transport) destroyLocked() (string, bool) {
	s := t.surface
	if s == nil {
		return "", false
	}
	if t.presented && t.presenter != nil {
		if err := t.presenter.Dismiss(s); err != nil {
			t.logger.Warn("dismiss before destroy failed", "surface", s.ID(), "err", err)
		}
	}
	t.presented = false
	if err := s.Close(); err != nil {
		t.logger.Warn("surface close failed", "surface", s.ID(), "err", err)
	}
	t.surface = nil
	t.gate = nil
	t.metrics.SurfaceDestroyed()
	return s.ID(), true
}

func (t *Transport) notifyDestroyed(id string, ok bool) {
	if !ok {
		return
	}
	for _, o := range t.observers {
		o.SurfaceDestroyed(id)
	}
}

// Send encodes m and delivers it through the readiness gate: queued while
// the page is not ready, evaluated in the page otherwise.
func (t *Transport) Send(m protocol.Message) error {
	raw, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	t.mu.Lock()
	s := t.surface
	if s == nil {
		t.mu.Unlock()
		t.logger.Warn("send ignored: no live surface", "action", m.Action())
		return ErrTransportUnavailable
	}
	queued, err := t.gate.EnqueueOrSend(raw, evaluator(s))
	pending := t.gate.Pending()
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("deliver %s: %w", m.Action(), err)
	}
	t.metrics.Sent(string(m.Action()), queued, pending)
	for _, o := range t.observers {
		o.MessageSent(s.ID(), m, queued)
	}
	if queued {
		t.logger.Debug("message queued until page is ready", "action", m.Action(), "pending", pending)
	}
	return nil
}

func evaluator(s domain.Surface) gate.SendFunc {
	return func(raw string) error {
		return s.Evaluate(SendScript(raw))
	}
}

// Present shows the presentation chrome around the live surface.
func (t *Transport) Present() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.surface == nil {
		t.logger.Warn("present ignored: no live surface")
		return ErrTransportUnavailable
	}
	if t.presenter != nil {
		if err := t.presenter.Present(t.surface); err != nil {
			return fmt.Errorf("present surface: %w", err)
		}
	}
	t.presented = true
	return nil
}

// Dismiss hides the presentation chrome but keeps the surface and its state.
func (t *Transport) Dismiss() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.surface == nil || !t.presented {
		return nil
	}
	t.presented = false
	if t.presenter != nil {
		if err := t.presenter.Dismiss(t.surface); err != nil {
			return fmt.Errorf("dismiss surface: %w", err)
		}
	}
	return nil
}

// Subscribe registers fn for every accepted inbound message. The returned
// function removes the subscription.
func (t *Transport) Subscribe(fn func(Inbound)) func() {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

// Status is a point-in-time view of the transport.
type Status struct {
	SurfaceID string
	Origin    string
	Ready     bool
	Pending   int
	Presented bool
}

func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.surface == nil {
		return Status{}
	}
	return Status{
		SurfaceID: t.surface.ID(),
		Origin:    t.surface.Origin(),
		Ready:     t.gate.Ready(),
		Pending:   t.gate.Pending(),
		Presented: t.presented,
	}
}

func (t *Transport) receive(surfaceID string, p domain.InboundPayload) {
	t.mu.Lock()
	s := t.surface
	if s == nil || s.ID() != surfaceID {
		t.mu.Unlock()
		t.metrics.Dropped("stale")
		t.logger.Debug("dropping message from a released surface", "surface", surfaceID)
		return
	}
	if p.Origin != s.Origin() {
		t.mu.Unlock()
		t.metrics.Dropped("origin")
		return
	}

	m, err := protocol.Decode(p.Payload)
	if err != nil {
		t.mu.Unlock()
		t.metrics.Dropped("decode")
		t.logger.Warn("dropping inbound message", "err", err)
		return
	}

	var (
		flipped  bool
		flushed  int
		flushErr error
		elapsed  time.Duration
	)
	if _, ok := m.(protocol.MessagingReady); ok {
		flipped, flushed, flushErr = t.gate.MarkReady(evaluator(s))
		elapsed = time.Since(t.createdAt)
	}
	t.mu.Unlock()

	t.metrics.Received(string(m.Action()))
	if flipped {
		t.metrics.Ready(elapsed)
		t.logger.Debug("page ready", "surface", surfaceID, "flushed", flushed, "after", elapsed)
	}
	if flushErr != nil {
		t.logger.Error("flush pending messages", "surface", surfaceID, "err", flushErr)
	}

	for _, o := range t.observers {
		o.MessageReceived(surfaceID, m)
	}
	t.dispatch(Inbound{SurfaceID: surfaceID, Message: m})
}

func (t *Transport) dispatch(in Inbound) {
	t.subMu.RLock()
	handlers := make([]func(Inbound), 0, len(t.subs))
	for _, fn := range t.subs {
		handlers = append(handlers, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("inbound subscriber panic", "action", in.Message.Action(), "panic", r)
				}
			}()
			fn(in)
		}()
	}
}
