package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/gate"
	"storybook/internal/logging"
	"storybook/internal/pipeline"
	"storybook/internal/run"
	"storybook/internal/services/comfyui"
	"storybook/internal/services/storyllm"
	"storybook/internal/services/supertonic"
	"storybook/internal/services/whisper"
	"storybook/internal/stt"
)

// Daemon owns the run store, the session gate, the orchestrator, and the HTTP
// surface, and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *run.Store
	bus          *events.Bus
	gate         *gate.Gate
	orchestrator *pipeline.Orchestrator
	sttSvc       *stt.Service
	health       map[string]func(context.Context) bool

	api *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Uptime       time.Duration
	Busy         bool
	InFlightRun  string
	RetainedRuns int
	OutputDir    string
	LockFilePath string
	Backends     map[string]bool
}

// New constructs a daemon with all collaborators wired to the configured
// backends.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	store, err := run.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	bus := events.NewBus(cfg.KeepaliveInterval())
	store.SetEvictHook(bus.Drop)
	sessionGate := gate.New()

	storyClient := storyllm.NewClient(storyllm.Config{
		BaseURL:        cfg.Story.BaseURL,
		Model:          cfg.Story.Model,
		TimeoutSeconds: cfg.Story.TimeoutSeconds,
	})
	imageClient := comfyui.NewClient(comfyui.Config{
		BaseURL:        cfg.Images.BaseURL,
		TimeoutSeconds: cfg.Images.TimeoutSeconds,
		PollSeconds:    cfg.Images.PollSeconds,
	})
	renderer := comfyui.NewRenderer(imageClient, cfg.Images.WorkflowPath, logger)
	synth := supertonic.NewClient(supertonic.Config{
		BaseURL:        cfg.TTS.BaseURL,
		Voice:          cfg.TTS.Voice,
		Language:       cfg.TTS.Language,
		Speed:          cfg.TTS.Speed,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	}, logger)
	transcriber := whisper.NewClient(whisper.Config{
		BaseURL:        cfg.STT.BaseURL,
		Model:          cfg.STT.Model,
		Language:       cfg.STT.Language,
		TimeoutSeconds: cfg.STT.TimeoutSeconds,
	})

	orchestrator := pipeline.New(cfg, pipeline.Deps{
		Store:    store,
		Bus:      bus,
		Gate:     sessionGate,
		Story:    storyllm.NewGenerator(storyClient, cfg.Story.MaxAttempts, logger),
		Images:   renderer,
		Audio:    synth,
		Releaser: renderer,
	}, logger)

	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		bus:          bus,
		gate:         sessionGate,
		orchestrator: orchestrator,
		sttSvc:       stt.NewService(transcriber, logger),
		health: map[string]func(context.Context) bool{
			"story":  storyClient.Healthy,
			"images": imageClient.Healthy,
			"tts":    synth.Healthy,
			"stt":    transcriber.Healthy,
		},
		lockPath: filepath.Join(cfg.Paths.LogDir, "storybookd.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, reclaims runs interrupted by a previous
// process, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another storybookd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	reclaimed, err := d.store.ReclaimInterrupted(d.ctx)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return fmt.Errorf("reclaim interrupted runs: %w", err)
	}
	if reclaimed > 0 {
		d.logger.Warn("marked interrupted runs failed", logging.Int("count", reclaimed))
	}

	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return err
	}

	d.running.Store(true)
	d.startedAt = time.Now()
	d.logger.Info("storybook daemon started",
		logging.String("lock", d.lockPath),
		logging.String("outputs", d.cfg.Paths.OutputDir),
	)
	return nil
}

// Stop shuts the API down and cancels the daemon context, aborting any
// in-flight run. It waits until the aborted run has recorded its FAILED state
// before releasing the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.orchestrator.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("storybook daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr reports the bound API address, empty until Start succeeds.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// StartRun admits and launches a run through the orchestrator.
func (d *Daemon) StartRun(inputs run.Inputs) (*run.Run, error) {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return d.orchestrator.StartRun(ctx, inputs)
}

// Status reports current daemon state.
func (d *Daemon) Status(ctx context.Context) Status {
	count, err := d.store.Count(ctx)
	if err != nil {
		d.logger.Warn("count retained runs", logging.Error(err))
	}
	var uptime time.Duration
	if d.running.Load() && !d.startedAt.IsZero() {
		uptime = time.Since(d.startedAt)
	}

	backends := make(map[string]bool, len(d.health))
	var (
		healthMu sync.Mutex
		healthWg sync.WaitGroup
	)
	for name, check := range d.health {
		healthWg.Add(1)
		go func(name string, check func(context.Context) bool) {
			defer healthWg.Done()
			ok := check(ctx)
			healthMu.Lock()
			backends[name] = ok
			healthMu.Unlock()
		}(name, check)
	}
	healthWg.Wait()

	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Uptime:       uptime,
		Busy:         d.gate.Busy(),
		InFlightRun:  d.gate.InFlight(),
		RetainedRuns: count,
		OutputDir:    d.cfg.Paths.OutputDir,
		LockFilePath: d.lockPath,
		Backends:     backends,
	}
}
