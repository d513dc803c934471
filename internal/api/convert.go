package api

import (
	"fmt"

	"storybook/internal/run"
)

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RunStateFromSnapshot converts an in-memory run snapshot into its transport
// shape, deriving artifact URLs from the artifact filenames.
func RunStateFromSnapshot(snap run.Snapshot) RunStateResponse {
	pages := make([]PageInfo, run.PageCount)
	for i, page := range snap.Pages {
		info := PageInfo{
			Page:    i,
			Title:   page.Title,
			Summary: page.Summary,
		}
		if page.ImageFile != "" {
			info.ImageURL = fmt.Sprintf("/api/runs/%s/images/%s", snap.ID, page.ImageFile)
		}
		if page.AudioFile != "" {
			info.AudioURL = fmt.Sprintf("/api/runs/%s/audio/%s", snap.ID, page.AudioFile)
		}
		pages[i] = info
	}
	return RunStateResponse{
		Status:            snap.Status,
		Stage:             snap.Stage,
		ReadyMaxPage:      snap.ReadyMaxPage,
		ReadyMaxAudioPage: snap.ReadyMaxAudioPage,
		Pages:             pages,
		Error:             snap.Error,
	}
}

// SummaryFromRecord converts a run index row into its listing shape.
func SummaryFromRecord(rec run.Record) RunSummary {
	summary := RunSummary{
		RunID:     rec.RunID,
		Status:    string(rec.Status),
		Topic:     rec.Inputs.Topic,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt.Format(dateTimeFormat),
	}
	if !rec.FinishedAt.IsZero() {
		summary.FinishedAt = rec.FinishedAt.Format(dateTimeFormat)
	}
	return summary
}
