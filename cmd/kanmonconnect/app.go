package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kanmonconnect/internal/bridge"
	"kanmonconnect/internal/browser"
	"kanmonconnect/internal/config"
	"kanmonconnect/internal/connect"
	"kanmonconnect/internal/console"
	"kanmonconnect/internal/journal"
	"kanmonconnect/internal/lifecycle"
	"kanmonconnect/internal/metrics"
	"kanmonconnect/internal/permission"
	"kanmonconnect/internal/protocol"
	"kanmonconnect/internal/server"

	"github.com/spf13/cobra"
)

// app wires the host: Chrome, the bridge transport, the lifecycle machine
// and the consumer client, plus the optional journal and control server.
// It is the Controller both the console and the server drive.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Bridge
	host      *browser.Host
	transport *bridge.Transport
	machine   *lifecycle.Machine
	client    *connect.Client
	journal   *journal.Store // nil when disabled

	mu      sync.Mutex
	console *console.Console
	hub     *server.Hub
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	registry := permission.NewRegistry(logger)
	prompter, err := browser.NewPolicyPrompter(cfg.Browser.CameraPolicy, registry, logger)
	if err != nil {
		return nil, err
	}

	a.host = browser.NewHost(browser.HostConfig{
		ProfileDir:      cfg.Browser.ProfileDir,
		Headless:        cfg.Browser.Headless,
		UserAgentPrefix: cfg.Browser.UserAgentPrefix,
		DownloadsDir:    cfg.Browser.DownloadsDir,
		Permissions:     registry,
		Prompter:        prompter,
		Logger:          logger,
	})
	if err := a.host.Start(ctx); err != nil {
		return nil, err
	}

	var observers []bridge.Observer
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			a.host.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		if _, err := store.Prune(ctx, cfg.Journal.RetentionDays); err != nil {
			logger.Warn("journal prune failed", "err", err)
		}
		a.journal = store
		observers = append(observers, store)
	}

	a.transport = bridge.New(bridge.Config{
		Factory:   a.host,
		Presenter: a.host,
		Logger:    logger,
		Metrics:   a.metrics,
		Observers: observers,
	})
	a.machine = lifecycle.New(lifecycle.Config{
		Transport: a.transport,
		Logger:    logger,
		Metrics:   a.metrics,
	})
	a.client = connect.New(connect.Config{
		Lifecycle: a.machine,
		Logger:    logger,
		Metrics:   a.metrics,
	})
	return a, nil
}

func (a *app) params() connect.Params {
	products := make([]protocol.ProductType, 0, len(a.cfg.Connect.ProductSubset))
	for _, p := range a.cfg.Connect.ProductSubset {
		products = append(products, protocol.ProductType(p))
	}
	return connect.Params{
		ConnectToken:                  a.cfg.Connect.ConnectToken,
		Environment:                   connect.Environment(a.cfg.Connect.Environment),
		OnEvent:                       a.onEvent,
		OnError:                       a.onError,
		CustomInitializationName:      a.cfg.Connect.CustomInitializationName,
		ProductSubsetDuringOnboarding: products,
	}
}

func (a *app) Start(ctx context.Context) error {
	// The surface outlives the request or command that started it.
	return a.client.Start(context.WithoutCancel(ctx), a.params())
}

func (a *app) Show(args connect.ShowArgs) error { return a.client.Show(args) }

func (a *app) Stop() { a.client.Stop() }

func (a *app) status() server.Status {
	st := a.transport.Status()
	return server.Status{
		Phase:     a.machine.Snapshot().Phase(),
		SurfaceID: st.SurfaceID,
		Origin:    st.Origin,
		Ready:     st.Ready,
		Pending:   st.Pending,
		Presented: st.Presented,
	}
}

func (a *app) statusLine() string {
	st := a.status()
	return fmt.Sprintf("phase=%s surface=%s ready=%t pending=%d presented=%t",
		st.Phase, st.SurfaceID, st.Ready, st.Pending, st.Presented)
}

func (a *app) onEvent(ev connect.Event) {
	payload, err := connect.EncodeEvent(ev)
	if err != nil {
		logger.Error("cannot encode event", "event", ev.EventType(), "err", err)
		return
	}
	a.publish("event", payload)
}

func (a *app) onError(e connect.ErrorEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	a.publish("error", payload)
}

func (a *app) publish(label string, payload []byte) {
	a.mu.Lock()
	out, hub := a.console, a.hub
	a.mu.Unlock()

	if out != nil {
		out.Print(label, payload)
	} else {
		fmt.Printf("%s %s\n", label, payload)
	}
	if hub != nil {
		hub.Broadcast(payload)
	}
	if a.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.journal.RecordEvent(ctx, payload); err != nil {
			logger.Warn("journal event write failed", "err", err)
		}
	}
}

func (a *app) Close() {
	a.client.Stop()
	a.machine.Close()
	a.host.Close()
	if a.journal != nil {
		a.journal.Close()
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a session and control it from the terminal",
		Long: `Starts Chrome, loads a Connect session with the configured token and reads
commands from stdin: show [component] [sessionToken] [invoiceId], start,
stop, status, quit. Delivered events are printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, false)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a session with the HTTP control server",
		Long: `Like run, plus a local HTTP server: GET /status, POST /start, POST /show,
POST /stop, a websocket event feed on /events and, when enabled, Prometheus
metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, true)
		},
	}
}

func runHost(cmd *cobra.Command, withServer bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCloser, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	con := console.New(console.Config{
		Logger:     logger,
		Controller: a,
		Status:     a.statusLine,
	})
	a.mu.Lock()
	a.console = con
	a.mu.Unlock()

	serverErr := make(chan error, 1)
	if withServer || cfg.Server.Enabled {
		srvCfg := server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger,
			Controller:     a,
			Status:         a.status,
			Version:        version,
		}
		if cfg.Metrics.Enabled {
			srvCfg.Metrics = a.metrics.Handler()
			srvCfg.MetricsPath = cfg.Metrics.Endpoint
		}
		srv := server.New(srvCfg)
		a.mu.Lock()
		a.hub = srv.Hub()
		a.mu.Unlock()
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("control server error", "err", err)
				serverErr <- err
				stop()
			}
		}()
	}

	if cfg.Connect.ConnectToken != "" {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		logger.Info("session loading", "environment", cfg.Connect.Environment)
	} else {
		logger.Warn("no connect token configured; use --token or KANMON_CONNECT_TOKEN before start")
	}

	err = con.Run(ctx)
	switch {
	case errors.Is(err, io.EOF) && (withServer || cfg.Server.Enabled):
		// No terminal attached; keep serving until signalled.
		<-ctx.Done()
	case err != nil && !errors.Is(err, io.EOF):
		return err
	}
	logger.Info("shutting down")

	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}
