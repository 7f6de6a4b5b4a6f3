// Package bridgetest provides in-memory host capabilities for tests: a
// surface factory whose surfaces record scripts and let tests post page
// messages synchronously, and a presenter that counts calls.
package bridgetest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"kanmonconnect/internal/domain"
)

// ErrClosed is returned by Evaluate on a closed surface.
var ErrClosed = errors.New("surface closed")

// Surface is a fake domain.Surface.
type Surface struct {
	mu          sync.Mutex
	cfg         domain.SurfaceConfig
	origin      string
	loads       []string
	scripts     []string
	closed      bool
	evaluateErr error
	record      func(string)
}

func (s *Surface) ID() string { return s.cfg.ID }

func (s *Surface) Config() domain.SurfaceConfig { return s.cfg }

func (s *Surface) Load(rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.loads = append(s.loads, rawURL)
	s.record("load " + s.cfg.ID + " " + rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		s.origin = u.Scheme + "://" + u.Host
	}
	return nil
}

func (s *Surface) Evaluate(script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.evaluateErr != nil {
		return s.evaluateErr
	}
	s.scripts = append(s.scripts, script)
	return nil
}

func (s *Surface) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.loads = append(s.loads, "about:blank")
	s.record("close " + s.cfg.ID)
	return nil
}

// SetEvaluateError makes later Evaluate calls fail with err.
func (s *Surface) SetEvaluateError(err error) {
	s.mu.Lock()
	s.evaluateErr = err
	s.mu.Unlock()
}

func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Surface) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

func (s *Surface) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// Sent returns the JSON payloads carried by every evaluated send script.
func (s *Surface) Sent() []string {
	var out []string
	for _, script := range s.Scripts() {
		if p, ok := ExtractPayload(script); ok {
			out = append(out, p)
		}
	}
	return out
}

// Post delivers payload as if the top-level page had posted it.
func (s *Surface) Post(payload string) {
	s.PostFrom(s.Origin(), payload)
}

// PostFrom delivers payload as if a document with origin had posted it.
func (s *Surface) PostFrom(origin, payload string) {
	if s.cfg.OnMessage != nil {
		s.cfg.OnMessage(domain.InboundPayload{Origin: origin, Payload: payload})
	}
}

const (
	payloadStart = "JSON.parse('"
	payloadEnd   = "') });"
)

var scriptUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\n`, "\n", `\r`, "\r")

// ExtractPayload recovers the JSON payload from a send script.
func ExtractPayload(script string) (string, bool) {
	i := strings.Index(script, payloadStart)
	j := strings.LastIndex(script, payloadEnd)
	if i < 0 || j < i+len(payloadStart) {
		return "", false
	}
	return scriptUnescaper.Replace(script[i+len(payloadStart) : j]), true
}

// Factory is a fake domain.SurfaceFactory.
type Factory struct {
	mu       sync.Mutex
	surfaces []*Surface
	events   []string
	err      error
}

func (f *Factory) NewSurface(_ context.Context, cfg domain.SurfaceConfig) (domain.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &Surface{cfg: cfg, record: f.record}
	f.surfaces = append(f.surfaces, s)
	f.events = append(f.events, "create "+cfg.ID)
	return s, nil
}

func (f *Factory) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

// Events returns "create <id>", "load <id> <url>" and "close <id>" entries
// for every surface in the order they happened.
func (f *Factory) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// SetError makes later NewSurface calls fail with err.
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Factory) Surfaces() []*Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Surface(nil), f.surfaces...)
}

// Last returns the most recently created surface, or nil.
func (f *Factory) Last() *Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.surfaces) == 0 {
		return nil
	}
	return f.surfaces[len(f.surfaces)-1]
}

// Presenter is a fake domain.Presenter.
type Presenter struct {
	mu        sync.Mutex
	presented int
	dismissed int
	showing   bool
}

func (p *Presenter) Present(domain.Surface) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented++
	p.showing = true
	return nil
}

func (p *Presenter) Dismiss(domain.Surface) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	p.showing = false
	return nil
}

// Counts returns how many times Present and Dismiss ran.
func (p *Presenter) Counts() (presented, dismissed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented, p.dismissed
}

func (p *Presenter) Showing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.showing
}
