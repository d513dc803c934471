package run_test

import (
	"context"
	"testing"

	"storybook/internal/config"
	"storybook/internal/run"
	"storybook/internal/testsupport"
)

func newStoreConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, opts...)
}

func mustOpen(t *testing.T, cfg *config.Config) *run.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, cfg)
}

func mustCreate(t *testing.T, store *run.Store, inputs run.Inputs) *run.Run {
	t.Helper()
	r, err := store.Create(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return r
}
