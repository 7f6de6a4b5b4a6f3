// Package browser hosts Connect surfaces in Chrome tabs driven over the
// DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"kanmonconnect/internal/domain"
	"kanmonconnect/internal/permission"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// ErrNotStarted is returned by NewSurface before Start or after Close.
var ErrNotStarted = errors.New("browser: host not started")

// HostConfig holds configuration for the Chrome host.
type HostConfig struct {
	ProfileDir      string // Chrome user data directory (persists cookies/sessions)
	Headless        bool
	UserAgentPrefix string // prepended to the browser user agent, e.g. KanmonWebView
	DownloadsDir    string // where files the page hands over are written
	Permissions     *permission.Registry
	Prompter        domain.PermissionPrompter // nil denies every device request
	Logger          *slog.Logger
}

// Host owns one Chrome process and opens a tab per surface. It implements
// domain.SurfaceFactory and domain.Presenter.
type Host struct {
	cfg    HostConfig
	logger *slog.Logger

	mu          sync.Mutex
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

func NewHost(cfg HostConfig) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".kanmonconnect", "chrome-profile")
	}
	if cfg.DownloadsDir == "" {
		home, _ := os.UserHomeDir()
		cfg.DownloadsDir = filepath.Join(home, "Downloads")
	}
	if cfg.Permissions == nil {
		cfg.Permissions = permission.NewRegistry(cfg.Logger)
	}
	return &Host{cfg: cfg, logger: cfg.Logger}
}

func (h *Host) allocatorOptions() []chromedp.ExecAllocatorOption {
	ua := defaultUserAgent
	if h.cfg.UserAgentPrefix != "" {
		ua = h.cfg.UserAgentPrefix + " " + ua
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(h.cfg.ProfileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.UserAgent(ua),
	)
	if h.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// Start launches Chrome. The process lives until Close or until ctx is done.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browserCtx != nil {
		return nil
	}

	if err := os.MkdirAll(h.cfg.ProfileDir, 0o755); err != nil {
		h.logger.Error("failed to create profile dir", "dir", h.cfg.ProfileDir, "err", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, h.allocatorOptions()...)
	browserCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("launch chrome: %w", err)
	}

	h.browserCtx = browserCtx
	h.cancelAlloc = allocCancel
	h.cancelTab = tabCancel
	h.logger.Info("chrome started", "headless", h.cfg.Headless, "profile", h.cfg.ProfileDir)
	return nil
}

// Close shuts Chrome down. Surfaces still open are released with it.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browserCtx == nil {
		return
	}
	h.cancelTab()
	h.cancelAlloc()
	h.browserCtx = nil
	h.logger.Info("chrome stopped")
}

// Permissions returns the registry device-permission requests are parked in.
func (h *Host) Permissions() *permission.Registry { return h.cfg.Permissions }

// NewSurface opens a tab with the inbound channel and bootstrap installed.
func (h *Host) NewSurface(ctx context.Context, cfg domain.SurfaceConfig) (domain.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	parent := h.browserCtx
	h.mu.Unlock()
	if parent == nil {
		return nil, ErrNotStarted
	}

	tabCtx, cancel := chromedp.NewContext(parent)
	s := newSurface(h, tabCtx, cancel, cfg)
	if err := s.install(); err != nil {
		cancel()
		return nil, fmt.Errorf("open surface tab: %w", err)
	}
	return s, nil
}

// Present brings the surface's window to the front, restoring it if it was
// minimized by Dismiss.
func (h *Host) Present(ds domain.Surface) error {
	s, ok := ds.(*Surface)
	if !ok {
		return fmt.Errorf("present: unsupported surface %T", ds)
	}
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := s.setWindowState(ctx, browser.WindowStateNormal); err != nil {
			h.logger.Debug("restore window failed", "surface", s.ID(), "err", err)
		}
		return page.BringToFront().Do(ctx)
	}))
}

// Dismiss minimizes the surface's window. The tab keeps running.
func (h *Host) Dismiss(ds domain.Surface) error {
	s, ok := ds.(*Surface)
	if !ok {
		return fmt.Errorf("dismiss: unsupported surface %T", ds)
	}
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return s.setWindowState(ctx, browser.WindowStateMinimized)
	}))
}
