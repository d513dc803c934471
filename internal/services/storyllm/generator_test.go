package storyllm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
)

const validCompletion = `{
  "panels": [
    {"panel": 0, "subject": "용감한 토끼", "prompt": "storybook illustration, brave rabbit"},
    {"panel": 1, "summary": "옛날 옛적에 토끼가 살았어요.", "prompt": "rabbit, meadow, morning light"},
    {"panel": 2, "summary": "어느 날 큰 문제가 생겼답니다.", "prompt": "rabbit, storm clouds"},
    {"panel": 3, "summary": "토끼는 용기를 내어 도전했어요.", "prompt": "rabbit, climbing hill"},
    {"panel": 4, "summary": "모두 행복하게 살았답니다.", "prompt": "rabbit, celebration, sunset"}
  ]
}`

type fakeCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	call := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	return "", errors.New("no scripted response")
}

func testInputs() run.Inputs {
	return run.Inputs{
		Era:        "조선시대",
		Place:      "숲속 마을",
		Characters: "토끼와 거북이",
		Topic:      "우정",
	}
}

func TestGenerateParsesValidCompletion(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"Sure! " + validCompletion}}
	gen := NewGenerator(completer, 3, logging.NewNop())

	sb, err := gen.Generate(context.Background(), testInputs())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if sb.Panels[0].Title != "용감한 토끼" {
		t.Errorf("title = %q", sb.Panels[0].Title)
	}
	if sb.Panels[1].Summary == "" || sb.Panels[4].Summary == "" {
		t.Error("summaries missing")
	}
	for page := 0; page < run.PageCount; page++ {
		if sb.Panels[page].Prompt == "" {
			t.Errorf("panel %d prompt empty", page)
		}
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("completer called %d times, want 1", len(completer.prompts))
	}
}

func TestGenerateRetriesWithReminder(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"panels": []}`,
		validCompletion,
	}}
	gen := NewGenerator(completer, 3, logging.NewNop())

	if _, err := gen.Generate(context.Background(), testInputs()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("completer called %d times, want 2", len(completer.prompts))
	}
	if strings.HasPrefix(completer.prompts[0], retryReminder) {
		t.Error("first attempt already carried the retry reminder")
	}
	if !strings.HasPrefix(completer.prompts[1], retryReminder) {
		t.Error("second attempt missing the retry reminder")
	}
}

func TestGenerateFailsAfterExhaustingAttempts(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"no json here", "no json here", "no json here",
	}}
	gen := NewGenerator(completer, 3, logging.NewNop())

	_, err := gen.Generate(context.Background(), testInputs())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
	if len(completer.prompts) != 3 {
		t.Fatalf("completer called %d times, want 3", len(completer.prompts))
	}
}

func TestGenerateRejectsEmptyInputs(t *testing.T) {
	completer := &fakeCompleter{}
	gen := NewGenerator(completer, 3, logging.NewNop())

	inputs := testInputs()
	inputs.Topic = "  "
	_, err := gen.Generate(context.Background(), inputs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrInputRejected) {
		t.Fatalf("error = %v, want ErrInputRejected", err)
	}
	if len(completer.prompts) != 0 {
		t.Fatal("completer should not be called for rejected inputs")
	}
}

func TestGenerateStopsOnNonRetryableError(t *testing.T) {
	rejected := services.Wrap(services.ErrInputRejected, "story", "complete", "policy", nil)
	completer := &fakeCompleter{errs: []error{rejected}}
	gen := NewGenerator(completer, 3, logging.NewNop())

	_, err := gen.Generate(context.Background(), testInputs())
	if !errors.Is(err, services.ErrInputRejected) {
		t.Fatalf("error = %v, want ErrInputRejected", err)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("completer called %d times, want 1", len(completer.prompts))
	}
}

func TestExtractFirstJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"nested", `before {"a":{"b":"}"}} after`, `{"a":{"b":"}"}}`, true},
		{"escaped quote", `{"a":"\"}"}`, `{"a":"\"}"}`, true},
		{"none", "plain text", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractFirstJSONObject(tc.in)
			if tc.ok != (err == nil) {
				t.Fatalf("err = %v, ok = %v", err, tc.ok)
			}
			if tc.ok && got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidatePanelsRejectsEnglishSummary(t *testing.T) {
	sb := wireStoryboard{Panels: []wirePanel{
		{Panel: 0, Subject: "제목", Prompt: "p"},
		{Panel: 1, Summary: "once upon a time", Prompt: "p"},
		{Panel: 2, Summary: "둘째 장면이에요.", Prompt: "p"},
		{Panel: 3, Summary: "셋째 장면이에요.", Prompt: "p"},
		{Panel: 4, Summary: "넷째 장면이에요.", Prompt: "p"},
	}}
	if err := validatePanels(sb); err == nil {
		t.Fatal("expected rejection of English summary")
	}
}

func TestValidatePanelsRejectsDuplicateIndices(t *testing.T) {
	sb := wireStoryboard{Panels: []wirePanel{
		{Panel: 0, Subject: "제목", Prompt: "p"},
		{Panel: 1, Summary: "장면이에요.", Prompt: "p"},
		{Panel: 1, Summary: "장면이에요.", Prompt: "p"},
		{Panel: 3, Summary: "장면이에요.", Prompt: "p"},
		{Panel: 4, Summary: "장면이에요.", Prompt: "p"},
	}}
	if err := validatePanels(sb); err == nil {
		t.Fatal("expected rejection of duplicate panel index")
	}
}
