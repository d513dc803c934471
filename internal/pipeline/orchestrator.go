package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/gate"
	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
)

// Orchestrator drives one run at a time through the generation pipeline:
// text, then images in page order, with audio either alongside the images or
// after them depending on the configured ordering.
type Orchestrator struct {
	store *run.Store
	bus   *events.Bus
	gate  *gate.Gate

	story    StoryGenerator
	images   ImageRenderer
	audio    SpeechSynthesizer
	releaser ResourceReleaser

	ordering     string
	audioWorkers int
	logger       *slog.Logger

	seedFn  func() int64
	admitMu sync.Mutex
	wg      sync.WaitGroup
}

// Deps bundles the collaborators an orchestrator drives.
type Deps struct {
	Store    *run.Store
	Bus      *events.Bus
	Gate     *gate.Gate
	Story    StoryGenerator
	Images   ImageRenderer
	Audio    SpeechSynthesizer
	Releaser ResourceReleaser
}

// New constructs an orchestrator.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Orchestrator {
	workers := cfg.Pipeline.AudioWorkers
	if workers <= 0 {
		workers = run.PageCount
	}
	// Retention must never evict the run holding the gate, even before its
	// status transition to RUNNING is recorded.
	deps.Store.SetProtectedRun(deps.Gate.InFlight)
	return &Orchestrator{
		store:        deps.Store,
		bus:          deps.Bus,
		gate:         deps.Gate,
		story:        deps.Story,
		images:       deps.Images,
		audio:        deps.Audio,
		releaser:     deps.Releaser,
		ordering:     cfg.Pipeline.Ordering,
		audioWorkers: workers,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		seedFn: func() int64 {
			return rand.Int63n(9000000) + 1000000
		},
	}
}

// StartRun admits and launches a run. The run state is reserved first, then
// the session gate decides admission; a refused reservation is removed again
// so no orphaned Queued run lingers. Reservation and gate acquisition happen
// under one admission lock so a concurrent create's retention sweep cannot
// observe an admitted run that does not yet hold the gate.
func (o *Orchestrator) StartRun(ctx context.Context, inputs run.Inputs) (*run.Run, error) {
	o.admitMu.Lock()
	r, err := o.store.Create(ctx, inputs)
	if err != nil {
		o.admitMu.Unlock()
		return nil, err
	}
	if !o.gate.TryAcquire(r.ID) {
		o.store.Remove(ctx, r.ID)
		o.admitMu.Unlock()
		return nil, services.Wrap(services.ErrBusy, "admission", "start",
			"another run is in flight", nil)
	}
	o.admitMu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(ctx, r)
	}()
	return r, nil
}

// Wait blocks until all launched runs have reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) execute(ctx context.Context, r *run.Run) {
	defer o.gate.Release()

	logger := logging.WithRun(o.logger, r.ID)

	if err := o.store.MarkRunning(ctx, r); err != nil {
		logger.Error("mark running failed", logging.Error(err))
		o.finish(ctx, r, fmt.Sprintf("persist run state: %v", err))
		return
	}
	o.publish(r)

	// Stale GPU state from a previous run makes the backends flaky.
	o.release(ctx, logger, "pre-run")

	storyboard, err := o.textStage(ctx, r, logger)
	if err != nil {
		o.finish(ctx, r, err.Error())
		return
	}

	seed := o.seedFn()
	logger.Info("rendering pages", logging.Int64("seed", seed), logging.String("ordering", o.ordering))

	var audioErr error
	audioDone := func() {}
	if o.ordering != config.OrderingSequential {
		audioDone = o.startAudio(ctx, r, storyboard, logger, &audioErr)
	}

	imageErr := o.imageStage(ctx, r, storyboard, seed, logger)

	o.release(ctx, logger, "post-images")

	if o.ordering == config.OrderingSequential && imageErr == nil {
		audioDone = o.startAudio(ctx, r, storyboard, logger, &audioErr)
	}
	audioDone()

	switch {
	case imageErr != nil:
		o.finish(ctx, r, imageErr.Error())
	case audioErr != nil:
		o.finish(ctx, r, audioErr.Error())
	default:
		r.SetStage(run.StageAudio)
		o.publish(r)
		o.finish(ctx, r, "")
		logger.Info("run complete")
	}
}

func (o *Orchestrator) textStage(ctx context.Context, r *run.Run, logger *slog.Logger) (Storyboard, error) {
	r.SetStage(run.StageText)
	o.publish(r)

	storyboard, err := o.story.Generate(ctx, r.Inputs)
	if err != nil {
		logger.Error("text stage failed", logging.Error(err))
		return Storyboard{}, err
	}

	for page := 0; page < run.PageCount; page++ {
		panel := storyboard.Panels[page]
		r.SetPageText(page, panel.Title, panel.Summary)
	}
	o.publish(r)
	logger.Info("text stage complete", logging.String("title", storyboard.Panels[0].Title))
	return storyboard, nil
}

// imageStage renders pages strictly in index order. The stage tag advances
// only when a page's image has been written.
func (o *Orchestrator) imageStage(ctx context.Context, r *run.Run, storyboard Storyboard, seed int64, logger *slog.Logger) error {
	for page := 0; page < run.PageCount; page++ {
		filename, err := o.images.Render(ctx, storyboard.Panels[page].Prompt, seed, page, o.store.RunDir(r.ID))
		if err != nil {
			logger.Error("image stage failed", logging.Int("page", page), logging.Error(err))
			return err
		}
		r.SetPageImage(page, filename)
		r.SetStage(run.StageForPage(page))
		o.publish(r)
		logger.Info("page image ready", logging.Int("page", page), logging.String("file", filename))
	}
	return nil
}

// startAudio schedules one synthesis unit per narratable page, bounded by
// the worker limit, and returns a wait function. The first failure wins;
// remaining units still run to completion.
func (o *Orchestrator) startAudio(ctx context.Context, r *run.Run, storyboard Storyboard, logger *slog.Logger, firstErr *error) func() {
	if !r.Inputs.TTSEnabled {
		return func() {}
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
	)
	sem := make(chan struct{}, o.audioWorkers)
	for page := 0; page < run.PageCount; page++ {
		text := storyboard.Text(page)
		if text == "" {
			continue
		}
		wg.Add(1)
		go func(page int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			filename, err := o.audio.Synthesize(ctx, text, page, o.store.RunDir(r.ID))
			if err != nil {
				logger.Error("audio unit failed", logging.Int("page", page), logging.Error(err))
				errMu.Lock()
				if *firstErr == nil {
					*firstErr = err
				}
				errMu.Unlock()
				return
			}
			r.SetPageAudio(page, filename)
			o.publish(r)
			logger.Info("page audio ready", logging.Int("page", page), logging.String("file", filename))
		}(page, text)
	}
	return wg.Wait
}

func (o *Orchestrator) release(ctx context.Context, logger *slog.Logger, phase string) {
	if o.releaser == nil {
		return
	}
	if err := o.releaser.Release(ctx); err != nil {
		logger.Warn("resource release failed", logging.String("phase", phase), logging.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run.Run, message string) {
	o.store.Finish(ctx, r, message)
	o.publish(r)
}

func (o *Orchestrator) publish(r *run.Run) {
	o.bus.Publish(r.ID, events.FromSnapshot(r.Snapshot()))
}
