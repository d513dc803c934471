package run

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a run. Transitions are monotonic:
// Queued -> Running -> {Done|Failed}.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusQueued:  0,
	StatusRunning: 1,
	StatusDone:    2,
	StatusFailed:  2,
}

// Stage identifies the pipeline phase currently executing.
type Stage string

const (
	StageText   Stage = "TEXT"
	StageCover  Stage = "COVER"
	StagePanel1 Stage = "PANEL_1"
	StagePanel2 Stage = "PANEL_2"
	StagePanel3 Stage = "PANEL_3"
	StagePanel4 Stage = "PANEL_4"
	StageAudio  Stage = "AUDIO"
)

var pageStages = [PageCount]Stage{StageCover, StagePanel1, StagePanel2, StagePanel3, StagePanel4}

// StageForPage maps a page index to the stage tag that completes it.
func StageForPage(page int) Stage {
	if page < 0 || page >= PageCount {
		return StageCover
	}
	return pageStages[page]
}

// PageCount is the fixed number of pages in every storybook (cover + 4 panels).
const PageCount = 5

// Inputs is the immutable snapshot of user-supplied story parameters.
type Inputs struct {
	Era        string
	Place      string
	Characters string
	Topic      string
	TTSEnabled bool
}

// Page holds the generated content references for one page slot.
type Page struct {
	Page      int    `json:"page"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	ImageFile string `json:"image_file"`
	AudioFile string `json:"audio_file"`
}

// Run is the in-memory state of one generation job. It is mutated only by the
// orchestrator goroutine executing the run; any number of readers may take
// snapshots concurrently.
type Run struct {
	ID        string
	Inputs    Inputs
	CreatedAt time.Time

	mu                sync.RWMutex
	status            Status
	stage             Stage
	pages             [PageCount]Page
	readyMaxPage      int
	readyMaxAudioPage int
	errMessage        string
}

// Snapshot is a point-in-time copy of a run's observable state.
type Snapshot struct {
	ID                string
	Inputs            Inputs
	Status            Status
	Stage             Stage
	Pages             [PageCount]Page
	ReadyMaxPage      int
	ReadyMaxAudioPage int
	Error             string
	CreatedAt         time.Time
}

// NewID generates a creation-time-sortable run identifier.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102_150405"), suffix)
}

// IsID reports whether s has the shape of a run identifier.
func IsID(s string) bool {
	if len(s) != 22 || s[8] != '_' || s[15] != '_' {
		return false
	}
	if _, err := time.Parse("20060102_150405", s[:15]); err != nil {
		return false
	}
	for _, c := range s[16:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func newRun(id string, inputs Inputs, createdAt time.Time) *Run {
	r := &Run{
		ID:                id,
		Inputs:            inputs,
		CreatedAt:         createdAt,
		status:            StatusQueued,
		stage:             StageText,
		readyMaxPage:      -1,
		readyMaxAudioPage: -1,
	}
	for i := range r.pages {
		r.pages[i].Page = i
	}
	return r
}

// Snapshot returns a consistent copy of the run state.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:                r.ID,
		Inputs:            r.Inputs,
		Status:            r.status,
		Stage:             r.stage,
		Pages:             r.pages,
		ReadyMaxPage:      r.readyMaxPage,
		ReadyMaxAudioPage: r.readyMaxAudioPage,
		Error:             r.errMessage,
		CreatedAt:         r.CreatedAt,
	}
}

// Status returns the current status.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus advances the status. Regressions are ignored so terminal states
// stay absorbing.
func (r *Run) SetStatus(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if statusRank[status] < statusRank[r.status] || r.status.Terminal() {
		return
	}
	r.status = status
}

// SetStage advances the pipeline stage tag.
func (r *Run) SetStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
}

// SetPageText records the generated title or summary for a page. Empty values
// leave the existing text untouched.
func (r *Run) SetPageText(page int, title, summary string) {
	if page < 0 || page >= PageCount {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if title != "" {
		r.pages[page].Title = title
	}
	if summary != "" {
		r.pages[page].Summary = summary
	}
}

// SetPageImage records a persisted image artifact for a page. Idempotent:
// repeated calls overwrite the filename and only ever raise the ready index.
func (r *Run) SetPageImage(page int, filename string) {
	if page < 0 || page >= PageCount {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[page].ImageFile = filename
	if page > r.readyMaxPage {
		r.readyMaxPage = page
	}
}

// SetPageAudio records a persisted audio artifact for a page. Same idempotence
// rules as SetPageImage.
func (r *Run) SetPageAudio(page int, filename string) {
	if page < 0 || page >= PageCount {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[page].AudioFile = filename
	if page > r.readyMaxAudioPage {
		r.readyMaxAudioPage = page
	}
}

// Fail moves the run to FAILED, recording the error message once.
func (r *Run) Fail(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.status = StatusFailed
	if r.errMessage == "" {
		r.errMessage = message
	}
}

// Complete moves the run to DONE.
func (r *Run) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.status = StatusDone
}
