package stt

import (
	"context"
	"log/slog"

	"storybook/internal/logging"
	"storybook/internal/services/whisper"
)

// Transcriber is the transcription contract consumed by the service;
// satisfied by *whisper.Client and by test fakes.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (whisper.Transcription, error)
}

// Result is one processed field transcription: the raw text, the value
// normalized for the field, and the model's confidence.
type Result struct {
	STTText     string
	ParsedValue string
	Confidence  float64
}

// Service turns a voice clip into a normalized form-field value.
type Service struct {
	transcriber Transcriber
	logger      *slog.Logger
}

// NewService constructs a field transcription service.
func NewService(transcriber Transcriber, logger *slog.Logger) *Service {
	return &Service{
		transcriber: transcriber,
		logger:      logging.NewComponentLogger(logger, "stt"),
	}
}

// Process transcribes the clip and normalizes the text for the field. The
// language is any BCP 47 tag; it is reduced to its base language before the
// backend sees it.
func (s *Service) Process(ctx context.Context, audio []byte, filename string, field Field, languageTag string) (Result, error) {
	lang := NormalizeLanguage(languageTag)
	transcription, err := s.transcriber.Transcribe(ctx, audio, filename, lang)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		STTText:     transcription.Text,
		ParsedValue: field.Parse(transcription.Text),
		Confidence:  transcription.Confidence,
	}
	s.logger.Info("field transcribed",
		logging.String("field", string(field)),
		logging.String("language", lang),
		logging.Float64("confidence", result.Confidence),
	)
	return result, nil
}
