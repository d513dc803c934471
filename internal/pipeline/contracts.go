package pipeline

import (
	"context"

	"storybook/internal/run"
)

// PanelText is the generated text for one page: the cover carries a title,
// panels carry a summary, and every page carries an image-generation prompt.
type PanelText struct {
	Title   string
	Summary string
	Prompt  string
}

// Storyboard is the structured output of the text stage, one entry per page.
type Storyboard struct {
	Panels [run.PageCount]PanelText
}

// Text returns the narration text for a page: the title for the cover, the
// summary otherwise.
func (s Storyboard) Text(page int) string {
	if page < 0 || page >= run.PageCount {
		return ""
	}
	if page == 0 {
		return s.Panels[0].Title
	}
	return s.Panels[page].Summary
}

// StoryGenerator produces a storyboard from user inputs. Implementations own
// their retry policy; a returned error means the text stage failed for good.
type StoryGenerator interface {
	Generate(ctx context.Context, inputs run.Inputs) (Storyboard, error)
}

// ImageRenderer renders one page's image into destDir and returns the
// artifact filename. The backend is a stateful single-worker GPU service, so
// callers must not issue concurrent Render calls.
type ImageRenderer interface {
	Render(ctx context.Context, prompt string, seed int64, page int, destDir string) (string, error)
}

// SpeechSynthesizer renders one page's narration into destDir and returns the
// artifact filename. Safe for concurrent calls.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, page int, destDir string) (string, error)
}

// ResourceReleaser frees external GPU/process resources between runs. Calls
// are best-effort; failures are logged and swallowed.
type ResourceReleaser interface {
	Release(ctx context.Context) error
}
