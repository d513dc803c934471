package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"storybook/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := services.Wrap(services.ErrUnavailable, "image", "render", "page 2", base)

	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("marker lost: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause lost: %v", err)
	}
	for _, part := range []string{"image", "render", "page 2"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("detail %q missing from %v", part, err)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "story", "", "", nil)
	if !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("expected generation marker, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrInputRejected, "story", "validate", "", nil)) {
		t.Fatal("input rejection must not be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrGeneration, "story", "parse", "", nil)) {
		t.Fatal("generation errors should be retryable")
	}
	if services.Retryable(nil) {
		t.Fatal("nil error is not retryable")
	}
}
