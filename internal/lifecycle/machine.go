// Package lifecycle tracks the state of the embedded surface across
// start, show, hide and stop.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kanmonconnect/internal/bridge"
	"kanmonconnect/internal/metrics"
	"kanmonconnect/internal/protocol"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Active
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Loading:
		return "LOADING"
	case Active:
		return "ACTIVE"
	case Destroyed:
		return "DESTROYED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transport is the part of the bridge transport the machine drives.
type Transport interface {
	CreateSurface(ctx context.Context, url string) (string, error)
	DestroySurface()
	Send(m protocol.Message) error
	Present() error
	Dismiss() error
	Subscribe(fn func(bridge.Inbound)) func()
}

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	State     State
	Visible   bool
	SurfaceID string
}

// Phase renders the snapshot as a single label, e.g. ACTIVE_VISIBLE.
func (s Snapshot) Phase() string {
	if s.State != Active {
		return s.State.String()
	}
	if s.Visible {
		return "ACTIVE_VISIBLE"
	}
	return "ACTIVE_HIDDEN"
}

type Config struct {
	Transport Transport
	Logger    *slog.Logger
	Metrics   *metrics.Bridge
}

// Machine enforces the surface lifecycle. Inbound MESSAGING_READY and HIDE
// are consumed here; every other page message, and HIDE, is forwarded to
// subscribers.
type Machine struct {
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Bridge

	mu        sync.Mutex
	state     State
	visible   bool
	surfaceID string

	subMu   sync.RWMutex
	subs    map[int]func(protocol.Message)
	nextSub int

	unsubscribe func()
}

func New(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Machine{
		transport: cfg.Transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		subs:      make(map[int]func(protocol.Message)),
	}
	m.unsubscribe = cfg.Transport.Subscribe(m.onInbound)
	return m
}

// Close detaches the machine from the transport. It does not stop the surface.
func (m *Machine) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, Visible: m.visible, SurfaceID: m.surfaceID}
}

// transitionLocked moves to (to, visible) and records the change.
func (m *Machine) transitionLocked(to State, visible bool) {
	from := Snapshot{State: m.state, Visible: m.visible}.Phase()
	m.state = to
	m.visible = visible
	next := Snapshot{State: m.state, Visible: m.visible}.Phase()
	if from != next {
		m.metrics.Transition(from, next)
		m.logger.Debug("lifecycle transition", "from", from, "to", next)
	}
}

// Start loads url in a fresh surface, tearing down any prior one first.
func (m *Machine) Start(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.transport.CreateSurface(ctx, url)
	if err != nil {
		m.surfaceID = ""
		m.transitionLocked(Destroyed, false)
		return err
	}
	m.surfaceID = id
	m.transitionLocked(Loading, false)
	return nil
}

// Show sends msg through the readiness gate and presents the surface.
// Without a started surface it logs a warning and does nothing.
func (m *Machine) Show(msg protocol.ShowConnect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Uninitialized, Destroyed:
		m.logger.Warn("connect must be started before show is called", "state", m.state.String())
		return nil
	}

	if err := m.transport.Send(msg); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if err := m.transport.Present(); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	m.transitionLocked(m.state, true)
	return nil
}

// Stop releases the surface. It is safe in any state.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport.DestroySurface()
	m.surfaceID = ""
	m.transitionLocked(Destroyed, false)
}

// Subscribe registers fn for page messages other than MESSAGING_READY.
func (m *Machine) Subscribe(fn func(protocol.Message)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Machine) onInbound(in bridge.Inbound) {
	m.mu.Lock()
	if in.SurfaceID != m.surfaceID || m.state == Destroyed {
		m.mu.Unlock()
		return
	}

	forward := true
	switch in.Message.(type) {
	case protocol.MessagingReady:
		forward = false
		if m.state == Loading {
			m.transitionLocked(Active, m.visible)
		}
	case protocol.Hide:
		if m.visible {
			if err := m.transport.Dismiss(); err != nil {
				m.logger.Warn("dismiss on hide failed", "err", err)
			}
			m.transitionLocked(m.state, false)
		}
	}
	m.mu.Unlock()

	if !forward {
		return
	}

	m.subMu.RLock()
	handlers := make([]func(protocol.Message), 0, len(m.subs))
	for _, fn := range m.subs {
		handlers = append(handlers, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range handlers {
		fn(in.Message)
	}
}
