package api

import "storybook/internal/run"

// CreateRunRequest starts a new storybook run. Inputs are Korean free text.
type CreateRunRequest struct {
	EraKo        string `json:"era_ko"`
	PlaceKo      string `json:"place_ko"`
	CharactersKo string `json:"characters_ko"`
	TopicKo      string `json:"topic_ko"`
	TTSEnabled   *bool  `json:"tts_enabled,omitempty"`
}

// CreateRunResponse carries the identifier of an admitted run.
type CreateRunResponse struct {
	RunID string `json:"run_id"`
}

// PageInfo is one page slot of a run as seen by API consumers. Artifact URLs
// are relative to the API root and empty until the artifact exists.
type PageInfo struct {
	Page     int    `json:"page"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
}

// RunStateResponse is the full observable state of a run.
type RunStateResponse struct {
	Status            run.Status `json:"status"`
	Stage             run.Stage  `json:"stage"`
	ReadyMaxPage      int        `json:"ready_max_page"`
	ReadyMaxAudioPage int        `json:"ready_max_audio_page"`
	Pages             []PageInfo `json:"pages"`
	Error             string     `json:"error,omitempty"`
}

// RunEvent is one progress frame from the run event stream.
type RunEvent struct {
	Status            run.Status `json:"status"`
	Stage             run.Stage  `json:"stage"`
	ReadyMaxPage      int        `json:"ready_max_page"`
	ReadyMaxAudioPage int        `json:"ready_max_audio_page"`
	Error             string     `json:"error,omitempty"`
}

// FieldSTTResponse is the result of a voice form-field transcription.
type FieldSTTResponse struct {
	STTText     string  `json:"stt_text"`
	ParsedValue string  `json:"parsed_value"`
	Confidence  float64 `json:"confidence"`
}

// RunSummary is one row of the retained-run listing.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Topic      string `json:"topic,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RunListResponse wraps the retained-run listing, newest first.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running       bool            `json:"running"`
	PID           int             `json:"pid"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Busy          bool            `json:"busy"`
	InFlightRun   string          `json:"in_flight_run,omitempty"`
	RetainedRuns  int             `json:"retained_runs"`
	OutputDir     string          `json:"output_dir"`
	LockFilePath  string          `json:"lock_file_path"`
	Backends      map[string]bool `json:"backends"`
}
