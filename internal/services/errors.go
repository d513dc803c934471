package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying failures across the generation backends. Stage
// code wraps errors with one of these markers; the HTTP layer and orchestrator
// branch on them with errors.Is.
var (
	// ErrBusy rejects run creation while another run holds the session gate.
	ErrBusy = errors.New("another run in flight")
	// ErrInputRejected marks a non-retryable input policy violation.
	ErrInputRejected = errors.New("input rejected")
	// ErrGeneration marks a story generation failure after retries.
	ErrGeneration = errors.New("generation error")
	// ErrUnavailable marks an unreachable backend.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrTimeout marks a backend call that exceeded its ceiling.
	ErrTimeout = errors.New("generation timeout")
	// ErrMissingAsset marks a backend missing a required model or voice asset.
	ErrMissingAsset = errors.New("missing asset")
	// ErrConversion marks an audio payload the backend could not process.
	ErrConversion = errors.New("conversion error")
	// ErrNotFound marks an unknown run id or artifact.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrGeneration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the text stage may retry after err.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInputRejected)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
