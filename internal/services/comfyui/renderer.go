package comfyui

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
)

// Renderer renders page images through ComfyUI. The backend is a
// single-worker GPU service, so callers serialize Render calls.
type Renderer struct {
	client       *Client
	workflowPath string
	logger       *slog.Logger
}

// NewRenderer constructs an image renderer.
func NewRenderer(client *Client, workflowPath string, logger *slog.Logger) *Renderer {
	return &Renderer{
		client:       client,
		workflowPath: workflowPath,
		logger:       logging.NewComponentLogger(logger, "comfyui"),
	}
}

// Render implements pipeline.ImageRenderer: queue the patched workflow, wait
// for the prompt to finish, download the first output image, and write it to
// destDir under the page's artifact name.
func (r *Renderer) Render(ctx context.Context, prompt string, seed int64, page int, destDir string) (string, error) {
	if !r.client.Healthy(ctx) {
		return "", services.Wrap(services.ErrUnavailable, "images", "health",
			"comfyui is not reachable", nil)
	}

	wf, err := LoadWorkflow(r.workflowPath)
	if err != nil {
		return "", services.Wrap(services.ErrGeneration, "images", "workflow", "", err)
	}

	promptID, err := r.client.QueuePrompt(ctx, BuildAPIWorkflow(wf, prompt, seed))
	if err != nil {
		return "", err
	}
	r.logger.Info("queued image prompt",
		logging.Int("page", page),
		logging.String("prompt_id", promptID),
		logging.Int64("seed", seed),
	)

	entry, err := r.client.WaitForCompletion(ctx, promptID)
	if err != nil {
		return "", err
	}

	ref, ok := firstImage(entry)
	if !ok {
		return "", services.Wrap(services.ErrMissingAsset, "images", "render",
			"comfyui produced no output image", nil)
	}
	data, err := r.client.DownloadImage(ctx, ref)
	if err != nil {
		return "", err
	}

	filename := run.ImageFilename(page)
	if err := os.WriteFile(filepath.Join(destDir, filename), data, 0o644); err != nil {
		return "", services.Wrap(services.ErrGeneration, "images", "write", "", err)
	}
	return filename, nil
}

// Release implements pipeline.ResourceReleaser by asking ComfyUI to unload
// models and free GPU memory.
func (r *Renderer) Release(ctx context.Context) error {
	if err := r.client.Free(ctx); err != nil {
		r.logger.Warn("gpu free failed", logging.Error(err))
		return err
	}
	r.logger.Debug("gpu memory freed")
	return nil
}

func firstImage(entry historyEntry) (imageRef, bool) {
	for _, output := range entry.Outputs {
		if len(output.Images) > 0 {
			return output.Images[0], true
		}
	}
	return imageRef{}, false
}
