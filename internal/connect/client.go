// Package connect is the consumer API: start a Connect session, show the
// widget, stop it, and receive typed events from the page.
package connect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kanmonconnect/internal/metrics"
	"kanmonconnect/internal/protocol"
)

// Params configure one Start call.
type Params struct {
	ConnectToken                  string
	Environment                   Environment
	OnEvent                       func(Event)      // optional
	OnError                       func(ErrorEvent) // optional
	CustomInitializationName      string
	ProductSubsetDuringOnboarding []protocol.ProductType
}

// ShowArgs select what the widget opens on. The zero value opens the default view.
type ShowArgs struct {
	Component         protocol.Component
	SessionToken      string
	InvoiceID         string
	PlatformInvoiceID string
}

// Lifecycle is the state machine the client drives.
type Lifecycle interface {
	Start(ctx context.Context, url string) error
	Show(msg protocol.ShowConnect) error
	Stop()
	Subscribe(fn func(protocol.Message)) func()
}

type Config struct {
	Lifecycle Lifecycle
	Logger    *slog.Logger
	Metrics   *metrics.Bridge // optional
}

// Client is safe for concurrent use. Callbacks run on the goroutine that
// delivers inbound page messages.
type Client struct {
	lifecycle Lifecycle
	logger    *slog.Logger
	metrics   *metrics.Bridge

	mu          sync.Mutex
	onEvent     func(Event)
	onError     func(ErrorEvent)
	unsubscribe func()
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		lifecycle: cfg.Lifecycle,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Start validates p, builds the load URL and starts a fresh surface. Any
// previous session and its callbacks are replaced.
func (c *Client) Start(ctx context.Context, p Params) error {
	if p.ConnectToken == "" {
		return &ValidationError{Field: "connectToken", Reason: "must be a non-empty string"}
	}
	for _, prod := range p.ProductSubsetDuringOnboarding {
		if !prod.Known() {
			return &ValidationError{Field: "productSubsetDuringOnboarding", Reason: fmt.Sprintf("unknown product %q", prod)}
		}
	}
	base, err := BaseURL(p.Environment)
	if err != nil {
		return err
	}
	url := BuildURL(URLParams{
		BaseURL:                       base,
		ConnectToken:                  p.ConnectToken,
		CustomInitializationName:      p.CustomInitializationName,
		ProductSubsetDuringOnboarding: p.ProductSubsetDuringOnboarding,
	})

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.onEvent = p.OnEvent
	c.onError = p.OnError
	c.unsubscribe = c.lifecycle.Subscribe(c.dispatch)
	c.mu.Unlock()

	c.logger.Info("starting connect session", "base", base, "products", len(p.ProductSubsetDuringOnboarding))
	if err := c.lifecycle.Start(ctx, url); err != nil {
		return fmt.Errorf("start connect: %w", err)
	}
	return nil
}

// Show opens the widget. Session-scoped components require a session token.
func (c *Client) Show(args ShowArgs) error {
	if args.Component != "" && !args.Component.Known() {
		return &ValidationError{Field: "component", Reason: fmt.Sprintf("unknown component %q", args.Component)}
	}
	if args.Component.RequiresSession() && args.SessionToken == "" {
		return &ValidationError{Field: "sessionToken", Reason: fmt.Sprintf("required for component %s", args.Component)}
	}
	return c.lifecycle.Show(protocol.ShowConnect{
		Component:         args.Component,
		SessionToken:      args.SessionToken,
		InvoiceID:         args.InvoiceID,
		PlatformInvoiceID: args.PlatformInvoiceID,
	})
}

// Stop releases the surface and drops the callbacks. Safe to call repeatedly.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.onEvent = nil
	c.onError = nil
	c.mu.Unlock()

	c.lifecycle.Stop()
}

func (c *Client) dispatch(m protocol.Message) {
	c.mu.Lock()
	onEvent, onError := c.onEvent, c.onError
	c.mu.Unlock()

	if pe, ok := m.(protocol.PageError); ok {
		c.deliverError(onError, ErrorEvent{ErrorType: pe.ErrorType, Message: pe.Message})
		return
	}

	ev, ok, err := eventFor(m)
	if err != nil {
		c.logger.Error("cannot translate page message", "action", m.Action(), "err", err)
		c.deliverError(onError, ErrorEvent{ErrorType: protocol.ErrorTypeUnexpected, Message: err.Error()})
		return
	}
	if !ok {
		return
	}
	c.metrics.EventDelivered(string(ev.EventType()))
	if onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("onEvent callback panic", "event", ev.EventType(), "panic", r)
		}
	}()
	onEvent(ev)
}

func (c *Client) deliverError(onError func(ErrorEvent), e ErrorEvent) {
	c.metrics.EventDelivered("ERROR")
	if onError == nil {
		c.logger.Warn("page reported an error", "errorType", e.ErrorType, "message", e.Message)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("onError callback panic", "errorType", e.ErrorType, "panic", r)
		}
	}()
	onError(e)
}
