package testsupport

import (
	"testing"

	"storybook/internal/config"
	"storybook/internal/logging"
	"storybook/internal/run"
)

// MustOpenStore opens a run store rooted in the test config's directories and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *run.Store {
	t.Helper()

	store, err := run.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open run store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close run store: %v", err)
		}
	})
	return store
}
