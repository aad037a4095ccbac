// Package daemon wires the occlusion pipeline together: the capture
// synchronizer, the report bridge, the control socket, the insets source and
// config hot reload.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/occlude/internal/bridge"
	"github.com/1broseidon/occlude/internal/capture"
	"github.com/1broseidon/occlude/internal/config"
	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/hotkeys"
	"github.com/1broseidon/occlude/internal/insets"
	"github.com/1broseidon/occlude/internal/ipc"
	"github.com/1broseidon/occlude/internal/occlusion"
	"github.com/1broseidon/occlude/internal/runtimepath"
	"github.com/1broseidon/occlude/internal/x11"
)

// ErrInsetsManaged is returned by SetInsets when insets come from the
// display server.
var ErrInsetsManaged = errors.New("insets are tracked from the display server")

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// ConfigPath enables hot reload when set.
	ConfigPath    string
	ControlSocket string
	BridgeSocket  string
	// Capturer overrides the capturer named in Config.
	Capturer capture.Capturer
	Logger   *slog.Logger
	// LevelVar, when set, follows log_level across reloads.
	LevelVar *slog.LevelVar
}

// Daemon owns every long-lived component of one occlude process.
type Daemon struct {
	logger     *slog.Logger
	levelVar   *slog.LevelVar
	configPath string

	mu  sync.Mutex
	cfg *config.Config

	sync     *capture.Synchronizer
	capturer capture.Capturer
	tracker  *insets.Tracker
	x11      *x11.Connection
	hotkeys  *hotkeys.Handler
	bridge   *bridge.Listener
	ipc      *ipc.Server
	reporter *Reporter
	reloadCh chan struct{}
}

// New builds the daemon. Sockets are not opened until Run.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LevelVar != nil {
		opts.LevelVar.Set(cfg.SlogLevel())
	}

	d := &Daemon{
		logger:     logger,
		levelVar:   opts.LevelVar,
		configPath: opts.ConfigPath,
		cfg:        cfg,
		tracker:    insets.NewTracker(cfg.StaticMetrics()),
		reloadCh:   make(chan struct{}, 1),
	}

	if cfg.Insets.Source == config.InsetsX11 {
		conn, err := x11.NewConnection(cfg.Insets.Display)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to display: %w", err)
		}
		d.x11 = conn
	}

	if cfg.Hotkeys.Enabled() {
		conn, err := x11.NewConnection(cfg.Insets.Display)
		if err != nil {
			d.closeX11()
			return nil, fmt.Errorf("failed to connect to display for hotkeys: %w", err)
		}
		d.hotkeys = hotkeys.NewHandler(conn, d, logger)
		if err := d.hotkeys.Register(hotkeys.Bindings{
			MaskScreen:   cfg.Hotkeys.MaskScreen,
			ResetSession: cfg.Hotkeys.ResetSession,
		}); err != nil {
			d.closeX11()
			return nil, err
		}
	}

	d.capturer = opts.Capturer
	if d.capturer == nil {
		d.capturer = capturerFor(cfg.Capturer, logger)
	}
	d.sync = capture.New(cfg.CaptureConfig(logger), d.capturer, d.tracker)

	bridgeSocket := opts.BridgeSocket
	if bridgeSocket == "" {
		var err error
		bridgeSocket, err = runtimepath.BridgeSocketPath()
		if err != nil {
			d.closeX11()
			return nil, fmt.Errorf("failed to resolve bridge socket path: %w", err)
		}
	}
	d.bridge = bridge.NewListener(bridgeSocket, d.sync, logger)

	server, err := ipc.NewServer(opts.ControlSocket, d, d.reloadCh)
	if err != nil {
		d.closeX11()
		return nil, err
	}
	d.ipc = server

	d.reporter = NewReporter(ReporterConfig{
		Interval: time.Duration(cfg.StatusIntervalSec) * time.Second,
		Logger:   logger,
	}, d.sync)

	return d, nil
}

func capturerFor(kind config.CapturerKind, logger *slog.Logger) capture.Capturer {
	switch kind {
	case config.CapturerNone:
		return capture.Discard
	default:
		return capture.LogCapturer{Logger: logger}
	}
}

func (d *Daemon) closeX11() {
	if d.x11 != nil {
		d.x11.Close()
	}
	if d.hotkeys != nil {
		d.hotkeys.Close()
	}
}

// Run serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.sync.Run(ctx)
	}()

	if err := d.bridge.Start(); err != nil {
		cancel()
		wg.Wait()
		d.closeX11()
		return err
	}
	defer d.bridge.Stop()

	if err := d.ipc.Start(); err != nil {
		cancel()
		wg.Wait()
		d.closeX11()
		return err
	}
	defer d.ipc.Stop()

	if d.x11 != nil {
		watcher := x11.NewInsetsWatcher(d.x11, d.tracker, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				d.logger.Error("display metrics watcher stopped", "error", err)
			}
		}()
	}

	if d.hotkeys != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.hotkeys.Run(ctx)
		}()
	}

	if d.configPath != "" {
		watcher := config.NewWatcher(d.configPath, d.applyConfig, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				d.logger.Warn("config hot reload disabled", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.reporter.Run(ctx)
	}()

	d.logger.Info("occlude daemon started",
		"control_socket", d.ipc.SocketPath(),
		"insets_source", string(d.config().Insets.Source))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down occlude daemon")
			cancel()
			wg.Wait()
			return nil
		case <-d.reloadCh:
			d.Reload()
		}
	}
}

// Reload re-reads the config file, if the daemon has one.
func (d *Daemon) Reload() {
	if d.configPath == "" {
		d.logger.Info("reload requested but daemon runs without a config file")
		return
	}
	cfg, err := config.LoadFromPath(d.configPath)
	if err != nil {
		d.logger.Warn("config reload failed", "error", err)
		return
	}
	d.applyConfig(cfg)
}

// applyConfig pushes runtime-tunable settings to running components.
// Socket, queue capacity and insets source changes need a restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	if err := d.sync.Configure(cfg.EngineConfig(d.logger), cfg.ResolveDeadline()); err != nil {
		d.logger.Warn("failed to apply occlusion settings", "error", err)
	}
	if d.levelVar != nil {
		d.levelVar.Set(cfg.SlogLevel())
	}

	d.mu.Lock()
	prev := d.cfg
	d.cfg = cfg
	d.mu.Unlock()
	if cfg.Insets.Source == config.InsetsStatic && prev.Insets.Source == config.InsetsStatic {
		d.tracker.Update(cfg.StaticMetrics())
	}

	if cfg.Queue.Capacity != prev.Queue.Capacity {
		d.logger.Warn("queue.capacity change takes effect after restart")
	}
	if cfg.Insets.Source != prev.Insets.Source {
		d.logger.Warn("insets.source change takes effect after restart")
	}
	if cfg.Hotkeys != prev.Hotkeys {
		d.logger.Warn("hotkeys change takes effect after restart")
	}
	d.reporter.SetInterval(time.Duration(cfg.StatusIntervalSec) * time.Second)
}

func (d *Daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Synchronizer exposes the capture synchronizer for in-process capturers.
func (d *Daemon) Synchronizer() *capture.Synchronizer {
	return d.sync
}

func (d *Daemon) Status(ctx context.Context) (capture.Status, error) {
	return d.sync.Status(ctx)
}

// ResolveFunc resolves through the synchronizer and hands the rects to the
// capturer as well as fn.
func (d *Daemon) ResolveFunc(req capture.Request, fn func(occlusion.Result)) error {
	return d.sync.ResolveFunc(req, func(res occlusion.Result) {
		d.capturer.Capture(req, res.Rects)
		fn(res)
	})
}

func (d *Daemon) ResetSession() error {
	return d.sync.ResetSession()
}

func (d *Daemon) OccludeNextFrame(rects ...geometry.Rect) error {
	return d.sync.OccludeNextFrame(rects...)
}

func (d *Daemon) SetInsets(m insets.Metrics) error {
	if d.x11 != nil {
		return ErrInsetsManaged
	}
	d.tracker.Update(m)
	return nil
}

func (d *Daemon) Insets() (insets.Metrics, string) {
	return d.tracker.Metrics(), string(d.config().Insets.Source)
}

func (d *Daemon) BridgeBatches() uint64 {
	return d.bridge.Batches()
}
