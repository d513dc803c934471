package storyllm

import (
	"context"
	"log/slog"
	"strings"

	"storybook/internal/logging"
	"storybook/internal/pipeline"
	"storybook/internal/run"
	"storybook/internal/services"
)

// Completer is the completion contract consumed by the generator; satisfied
// by *Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator drives storyboard generation with an outer retry loop: each
// attempt completes, extracts, decodes, and validates; a malformed attempt
// escalates the prompt with a corrective reminder before the next try.
type Generator struct {
	completer   Completer
	maxAttempts int
	logger      *slog.Logger
}

// NewGenerator constructs a storyboard generator.
func NewGenerator(completer Completer, maxAttempts int, logger *slog.Logger) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Generator{
		completer:   completer,
		maxAttempts: maxAttempts,
		logger:      logging.NewComponentLogger(logger, "storyllm"),
	}
}

// Generate implements pipeline.StoryGenerator.
func (g *Generator) Generate(ctx context.Context, inputs run.Inputs) (pipeline.Storyboard, error) {
	var empty pipeline.Storyboard
	if err := validateInputs(inputs); err != nil {
		return empty, err
	}

	prompt := BuildPrompt(inputs)
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		g.logger.Info("story attempt",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", g.maxAttempts),
		)

		sb, err := g.generateOnce(ctx, prompt)
		if err == nil {
			return sb, nil
		}
		lastErr = err
		if !services.Retryable(err) || ctx.Err() != nil {
			return empty, err
		}
		g.logger.Warn("story attempt failed", logging.Int("attempt", attempt), logging.Error(err))
		prompt = retryReminder + prompt
	}
	return empty, services.Wrap(services.ErrGeneration, "story", "generate",
		"failed after retries", lastErr)
}

func (g *Generator) generateOnce(ctx context.Context, prompt string) (pipeline.Storyboard, error) {
	var empty pipeline.Storyboard

	content, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return empty, err
	}

	jsonText, err := ExtractFirstJSONObject(content)
	if err != nil {
		return empty, services.Wrap(services.ErrGeneration, "story", "extract", "", err)
	}
	parsed, err := decodeStoryboard(jsonText)
	if err != nil {
		return empty, services.Wrap(services.ErrGeneration, "story", "parse", "", err)
	}
	if err := validatePanels(parsed); err != nil {
		return empty, services.Wrap(services.ErrGeneration, "story", "validate", "", err)
	}

	var sb pipeline.Storyboard
	for _, panel := range parsed.Panels {
		entry := pipeline.PanelText{Prompt: strings.TrimSpace(panel.Prompt)}
		if panel.Panel == 0 {
			entry.Title = strings.TrimSpace(panel.Subject)
		} else {
			entry.Summary = strings.TrimSpace(panel.Summary)
		}
		sb.Panels[panel.Panel] = entry
	}
	return sb, nil
}

func validateInputs(inputs run.Inputs) error {
	fields := map[string]string{
		"era":        inputs.Era,
		"place":      inputs.Place,
		"characters": inputs.Characters,
		"topic":      inputs.Topic,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return services.Wrap(services.ErrInputRejected, "story", "inputs", name+" is empty", nil)
		}
	}
	return nil
}
