package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/gate"
	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
	"storybook/internal/testsupport"
)

func testStoryboard() Storyboard {
	var sb Storyboard
	sb.Panels[0] = PanelText{Title: "용감한 토끼", Prompt: "cover prompt"}
	for page := 1; page < run.PageCount; page++ {
		sb.Panels[page] = PanelText{
			Summary: fmt.Sprintf("%d번째 장면이에요.", page),
			Prompt:  fmt.Sprintf("panel %d prompt", page),
		}
	}
	return sb
}

type timeline struct {
	mu      sync.Mutex
	entries []string
}

func (tl *timeline) add(entry string) {
	tl.mu.Lock()
	tl.entries = append(tl.entries, entry)
	tl.mu.Unlock()
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.entries...)
}

type fakeStory struct {
	sb    Storyboard
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (f *fakeStory) Generate(ctx context.Context, _ run.Inputs) (Storyboard, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Storyboard{}, ctx.Err()
		}
	}
	return f.sb, f.err
}

type fakeRenderer struct {
	tl       *timeline
	err      error
	failPage int
	inFlight atomic.Int32
	overlap  atomic.Bool
	seeds    []int64
	mu       sync.Mutex
}

func (f *fakeRenderer) Render(_ context.Context, _ string, seed int64, page int, _ string) (string, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.seeds = append(f.seeds, seed)
	f.mu.Unlock()
	if f.err != nil && page == f.failPage {
		return "", f.err
	}
	if f.tl != nil {
		f.tl.add(fmt.Sprintf("img-%d", page))
	}
	return run.ImageFilename(page), nil
}

type fakeSynth struct {
	tl       *timeline
	err      error
	failPage int
	calls    atomic.Int32
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, page int, _ string) (string, error) {
	f.calls.Add(1)
	if f.err != nil && page == f.failPage {
		return "", f.err
	}
	if f.tl != nil {
		f.tl.add(fmt.Sprintf("aud-%d", page))
	}
	return run.AudioFilename(page), nil
}

type fakeReleaser struct {
	calls atomic.Int32
	err   error
}

func (f *fakeReleaser) Release(context.Context) error {
	f.calls.Add(1)
	return f.err
}

type harness struct {
	cfg      *config.Config
	store    *run.Store
	bus      *events.Bus
	gate     *gate.Gate
	orch     *Orchestrator
	story    *fakeStory
	renderer *fakeRenderer
	synth    *fakeSynth
	releaser *fakeReleaser
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		bus:      events.NewBus(time.Second),
		gate:     gate.New(),
		story:    &fakeStory{sb: testStoryboard()},
		renderer: &fakeRenderer{},
		synth:    &fakeSynth{},
		releaser: &fakeReleaser{},
	}
	h.orch = New(cfg, Deps{
		Store:    h.store,
		Bus:      h.bus,
		Gate:     h.gate,
		Story:    h.story,
		Images:   h.renderer,
		Audio:    h.synth,
		Releaser: h.releaser,
	}, logging.NewNop())
	return h
}

func testInputs() run.Inputs {
	return run.Inputs{
		Era:        "조선",
		Place:      "서울",
		Characters: "토끼",
		Topic:      "여행",
		TTSEnabled: true,
	}
}

func TestRunCompletesSuccessfully(t *testing.T) {
	h := newHarness(t)

	r, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	snap := r.Snapshot()
	if snap.Status != run.StatusDone {
		t.Fatalf("status = %s, want DONE (error: %s)", snap.Status, snap.Error)
	}
	if snap.Stage != run.StageAudio {
		t.Errorf("stage = %s, want AUDIO", snap.Stage)
	}
	if snap.ReadyMaxPage != 4 || snap.ReadyMaxAudioPage != 4 {
		t.Errorf("ready indices = %d/%d, want 4/4", snap.ReadyMaxPage, snap.ReadyMaxAudioPage)
	}
	if snap.Pages[0].Title == "" {
		t.Error("cover title empty after text stage")
	}
	for page := 1; page < run.PageCount; page++ {
		if snap.Pages[page].Summary == "" {
			t.Errorf("page %d summary empty", page)
		}
	}
	if h.renderer.overlap.Load() {
		t.Error("image renders overlapped")
	}
	for _, seed := range h.renderer.seeds {
		if seed != h.renderer.seeds[0] {
			t.Errorf("seeds differ across pages: %v", h.renderer.seeds)
		}
	}
	if got := h.releaser.calls.Load(); got < 2 {
		t.Errorf("releaser called %d times, want at least 2", got)
	}
	if h.gate.Busy() {
		t.Error("gate still busy after terminal run")
	}
}

func TestImagesRenderInPageOrder(t *testing.T) {
	h := newHarness(t, testsupport.WithOrdering(config.OrderingSequential))
	h.renderer.tl = &timeline{}
	h.synth.tl = h.renderer.tl

	if _, err := h.orch.StartRun(context.Background(), testInputs()); err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	var images []string
	lastImage := -1
	for _, entry := range h.renderer.tl.snapshot() {
		if strings.HasPrefix(entry, "img-") {
			images = append(images, entry)
			lastImage = len(images) - 1
			continue
		}
		// sequential ordering: no audio entry may precede the final image
		if lastImage < run.PageCount-1 {
			t.Fatalf("audio entry %q before image sequence finished: %v", entry, h.renderer.tl.snapshot())
		}
	}
	for i, entry := range images {
		if entry != fmt.Sprintf("img-%d", i) {
			t.Fatalf("image order = %v", images)
		}
	}
}

func TestSecondRunRejectedWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.story.block = make(chan struct{})

	first, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("first StartRun returned error: %v", err)
	}

	_, err = h.orch.StartRun(context.Background(), testInputs())
	if !errors.Is(err, services.ErrBusy) {
		t.Fatalf("second StartRun error = %v, want ErrBusy", err)
	}

	close(h.story.block)
	h.orch.Wait()

	if got := h.store.Get(first.ID); got == nil {
		t.Error("admitted run missing from store")
	}
	count, err := h.store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("store holds %d runs, want 1 (rejected reservation not removed)", count)
	}
}

func TestRetentionSpareAdmittedRunBeforeRunning(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxRuns(1))
	h.story.block = make(chan struct{})

	admitted, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}

	// A concurrent create sweeps retention while the admitted run holds the
	// gate, possibly before its RUNNING transition is recorded.
	if _, err := h.store.Create(context.Background(), testInputs()); err != nil {
		t.Fatalf("concurrent Create failed: %v", err)
	}

	if h.store.Get(admitted.ID) == nil {
		t.Fatal("gate-holding run evicted by retention sweep")
	}
	if _, err := os.Stat(h.store.RunDir(admitted.ID)); err != nil {
		t.Fatalf("gate-holding run lost its artifact directory: %v", err)
	}

	close(h.story.block)
	h.orch.Wait()

	if got := admitted.Snapshot(); got.Status != run.StatusDone {
		t.Errorf("status = %s, want DONE (error: %s)", got.Status, got.Error)
	}
}

func TestTextStageFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.story.err = services.Wrap(services.ErrGeneration, "story", "generate", "failed after retries", nil)

	r, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	snap := r.Snapshot()
	if snap.Status != run.StatusFailed {
		t.Fatalf("status = %s, want FAILED", snap.Status)
	}
	if snap.Error == "" {
		t.Error("failed run has empty error")
	}
	if got := h.renderer.seeds; len(got) != 0 {
		t.Errorf("renderer called %d times after text failure", len(got))
	}
	if h.gate.Busy() {
		t.Error("gate not released after failure")
	}
}

func TestAudioFailureFailsRunKeepsImages(t *testing.T) {
	h := newHarness(t)
	h.synth.err = services.Wrap(services.ErrConversion, "audio", "synthesize", "backend blew up", nil)
	h.synth.failPage = 2

	r, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	snap := r.Snapshot()
	if snap.Status != run.StatusFailed {
		t.Fatalf("status = %s, want FAILED", snap.Status)
	}
	if snap.ReadyMaxPage != 4 {
		t.Errorf("ready_max_page = %d, want 4 (images keep their artifacts)", snap.ReadyMaxPage)
	}
	for page := 0; page < run.PageCount; page++ {
		if snap.Pages[page].ImageFile == "" {
			t.Errorf("page %d image missing after audio-only failure", page)
		}
	}
}

func TestTTSDisabledSkipsAudio(t *testing.T) {
	h := newHarness(t)
	inputs := testInputs()
	inputs.TTSEnabled = false

	r, err := h.orch.StartRun(context.Background(), inputs)
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	snap := r.Snapshot()
	if snap.Status != run.StatusDone {
		t.Fatalf("status = %s, want DONE", snap.Status)
	}
	if h.synth.calls.Load() != 0 {
		t.Errorf("synthesizer called %d times with tts disabled", h.synth.calls.Load())
	}
	if snap.ReadyMaxAudioPage != -1 {
		t.Errorf("ready_max_audio_page = %d, want -1", snap.ReadyMaxAudioPage)
	}
}

func TestReleaserFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.releaser.err = errors.New("gpu free failed")

	r, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	h.orch.Wait()

	if snap := r.Snapshot(); snap.Status != run.StatusDone {
		t.Fatalf("status = %s, want DONE despite release failures", snap.Status)
	}
}

func TestEventStreamIsMonotonic(t *testing.T) {
	h := newHarness(t)

	r, err := h.orch.StartRun(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	sub := h.bus.Subscribe(r.ID, events.FromSnapshot(r.Snapshot()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lastPage, lastAudio := -1, -1
	sawTerminal := false
	for {
		evt, ok, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		if !ok {
			break
		}
		if evt.Keepalive {
			continue
		}
		if evt.ReadyMaxPage < lastPage || evt.ReadyMaxAudioPage < lastAudio {
			t.Fatalf("ready indices regressed: %d/%d after %d/%d",
				evt.ReadyMaxPage, evt.ReadyMaxAudioPage, lastPage, lastAudio)
		}
		lastPage, lastAudio = evt.ReadyMaxPage, evt.ReadyMaxAudioPage
		if evt.Terminal() {
			sawTerminal = true
			if evt.Status != run.StatusDone {
				t.Fatalf("terminal status = %s, want DONE", evt.Status)
			}
		}
	}
	if !sawTerminal {
		t.Fatal("stream ended without a terminal event")
	}
	h.orch.Wait()
}
