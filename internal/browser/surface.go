package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kanmonconnect/internal/domain"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ErrSurfaceClosed is returned by operations on a released surface.
var ErrSurfaceClosed = errors.New("browser: surface closed")

const closeTimeout = 5 * time.Second

// Surface is one Chrome tab hosting the Connect page.
type Surface struct {
	host   *Host
	cfg    domain.SurfaceConfig
	logger *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	calls    *inbox

	mu       sync.Mutex
	closed   bool
	origin   string
	contexts map[runtime.ExecutionContextID]string
	scripts  []page.ScriptIdentifier
	bindings []string
	children map[target.ID]context.CancelFunc
}

func newSurface(h *Host, ctx context.Context, cancel context.CancelFunc, cfg domain.SurfaceConfig) *Surface {
	return &Surface{
		host:     h,
		cfg:      cfg,
		logger:   h.logger.With("surface", cfg.ID),
		ctx:      ctx,
		cancel:   cancel,
		calls:    newInbox(),
		contexts: make(map[runtime.ExecutionContextID]string),
		children: make(map[target.ID]context.CancelFunc),
	}
}

func (s *Surface) ID() string { return s.cfg.ID }

// install creates the tab, exposes the bindings and registers the bootstrap
// scripts for every future document. Event handling starts here too.
func (s *Surface) install() error {
	chromedp.ListenTarget(s.ctx, s.onEvent)
	chromedp.ListenBrowser(s.ctx, s.onBrowserEvent)

	bindings := []string{downloadBinding, permissionBinding}
	scripts := []string{extensionsScript()}
	if s.cfg.Channel != "" {
		bindings = append(bindings, s.cfg.Channel)
	}
	if s.cfg.BootstrapScript != "" {
		scripts = append(scripts, s.cfg.BootstrapScript)
	}

	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, name := range bindings {
			if err := runtime.AddBinding(name).Do(ctx); err != nil {
				return fmt.Errorf("add binding %s: %w", name, err)
			}
		}
		for _, src := range scripts {
			id, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
			if err != nil {
				return fmt.Errorf("add bootstrap script: %w", err)
			}
			s.scripts = append(s.scripts, id)
		}
		return browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(s.host.cfg.DownloadsDir).
			WithEventsEnabled(true).
			Do(ctx)
	}))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bindings = bindings
	if t := chromedp.FromContext(s.ctx).Target; t != nil {
		s.targetID = t.TargetID
	}
	s.mu.Unlock()

	go s.calls.drain(s.ctx)
	return nil
}

// onEvent runs on chromedp's event goroutine. It must never issue commands;
// anything that talks back to Chrome is queued onto the inbox.
func (s *Surface) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		s.mu.Lock()
		s.contexts[ev.Context.ID] = ev.Context.Origin
		s.mu.Unlock()

	case *runtime.EventExecutionContextDestroyed:
		s.mu.Lock()
		delete(s.contexts, ev.ExecutionContextID)
		s.mu.Unlock()

	case *runtime.EventExecutionContextsCleared:
		s.mu.Lock()
		s.contexts = make(map[runtime.ExecutionContextID]string)
		s.mu.Unlock()

	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		s.mu.Lock()
		s.origin = ev.Frame.SecurityOrigin
		s.mu.Unlock()
		s.logger.Debug("surface navigated", "origin", ev.Frame.SecurityOrigin)

	case *runtime.EventBindingCalled:
		s.mu.Lock()
		origin := s.contexts[ev.ExecutionContextID]
		s.mu.Unlock()
		name, payload := ev.Name, ev.Payload
		s.calls.push(func() { s.onBinding(name, origin, payload) })

	case *browser.EventDownloadWillBegin:
		s.logger.Info("download started", "file", ev.SuggestedFilename)
	}
}

// onBrowserEvent watches for windows opened by this surface's page.
func (s *Surface) onBrowserEvent(ev any) {
	created, ok := ev.(*target.EventTargetCreated)
	if !ok || created.TargetInfo == nil {
		return
	}
	info := created.TargetInfo
	s.mu.Lock()
	opener := s.targetID
	s.mu.Unlock()
	if info.Type != "page" || opener == "" || info.OpenerID != opener {
		return
	}
	s.calls.push(func() { s.attachChild(info.TargetID, info.URL) })
}

func (s *Surface) onBinding(name, origin, payload string) {
	switch name {
	case s.cfg.Channel:
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(domain.InboundPayload{Origin: origin, Payload: payload})
		}
	case downloadBinding:
		if _, err := saveDownload(s.host.cfg.DownloadsDir, payload); err != nil {
			s.logger.Error("page download failed", "err", err)
		}
	case permissionBinding:
		handlePermissionRequest(s.ctx, s.host, s.logger, origin, payload)
	}
}

// attachChild configures a window the page opened so downloads and device
// requests work there too. Closing the surface closes its children.
func (s *Surface) attachChild(id target.ID, url string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	childCtx, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	child := &childWindow{surface: s, ctx: childCtx, contexts: make(map[runtime.ExecutionContextID]string), calls: newInbox()}
	chromedp.ListenTarget(childCtx, child.onEvent)

	err := chromedp.Run(childCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, name := range []string{downloadBinding, permissionBinding} {
			if err := runtime.AddBinding(name).Do(ctx); err != nil {
				return err
			}
		}
		_, err := page.AddScriptToEvaluateOnNewDocument(extensionsScript()).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		s.logger.Warn("attach child window failed", "target", id, "err", err)
		return
	}
	go child.calls.drain(childCtx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.children[id] = cancel
	s.mu.Unlock()
	s.logger.Debug("child window attached", "target", id, "url", url)
}

// Load starts navigating to url and returns immediately.
func (s *Surface) Load(url string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSurfaceClosed
	}

	go func() {
		if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil && s.ctx.Err() == nil {
			s.logger.Error("surface navigation failed", "err", err)
		}
	}()
	return nil
}

func (s *Surface) Evaluate(script string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSurfaceClosed
	}
	return chromedp.Run(s.ctx, chromedp.Evaluate(script, nil))
}

func (s *Surface) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// Close tears the tab down. It does not wait for queued binding calls; the
// transport drops whatever they deliver afterwards.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	scripts, bindings := s.scripts, s.bindings
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for _, cancel := range children {
		cancel()
	}

	ctx, cancelTimeout := context.WithTimeout(s.ctx, closeTimeout)
	defer cancelTimeout()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := page.StopLoading().Do(ctx); err != nil {
			return err
		}
		for _, name := range bindings {
			if err := runtime.RemoveBinding(name).Do(ctx); err != nil {
				return err
			}
		}
		for _, id := range scripts {
			if err := page.RemoveScriptToEvaluateOnNewDocument(id).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}), chromedp.Navigate("about:blank"))

	s.cancel()
	if err != nil {
		return fmt.Errorf("close surface: %w", err)
	}
	return nil
}

func (s *Surface) setWindowState(ctx context.Context, state browser.WindowState) error {
	s.mu.Lock()
	id := s.targetID
	s.mu.Unlock()
	windowID, _, err := browser.GetWindowForTarget().WithTargetID(id).Do(ctx)
	if err != nil {
		return err
	}
	return browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: state}).Do(ctx)
}

// childWindow is a popup opened by the surface's page.
type childWindow struct {
	surface *Surface
	ctx     context.Context
	calls   *inbox

	mu       sync.Mutex
	contexts map[runtime.ExecutionContextID]string
}

func (c *childWindow) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		c.mu.Lock()
		c.contexts[ev.Context.ID] = ev.Context.Origin
		c.mu.Unlock()
	case *runtime.EventExecutionContextDestroyed:
		c.mu.Lock()
		delete(c.contexts, ev.ExecutionContextID)
		c.mu.Unlock()
	case *runtime.EventBindingCalled:
		c.mu.Lock()
		origin := c.contexts[ev.ExecutionContextID]
		c.mu.Unlock()
		name, payload := ev.Name, ev.Payload
		c.calls.push(func() {
			s := c.surface
			switch name {
			case downloadBinding:
				if _, err := saveDownload(s.host.cfg.DownloadsDir, payload); err != nil {
					s.logger.Error("child window download failed", "err", err)
				}
			case permissionBinding:
				handlePermissionRequest(c.ctx, s.host, s.logger, origin, payload)
			}
		})
	}
}

// inbox is an unbounded FIFO of work drained by a single goroutine, so
// event callbacks never block chromedp's event loop.
type inbox struct {
	mu    sync.Mutex
	items []func()
	wake  chan struct{}
}

func newInbox() *inbox {
	return &inbox{wake: make(chan struct{}, 1)}
}

func (q *inbox) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *inbox) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		q.mu.Unlock()

		for _, fn := range items {
			fn()
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}
