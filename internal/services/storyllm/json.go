package storyllm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractFirstJSONObject returns the first balanced top-level JSON object in
// text. Models often wrap their output in prose or code fences; everything
// outside the braces is discarded.
func ExtractFirstJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errors.New("no JSON object in completion")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object in completion")
}

type wirePanel struct {
	Panel   int    `json:"panel"`
	Subject string `json:"subject"`
	Summary string `json:"summary"`
	Prompt  string `json:"prompt"`
}

type wireStoryboard struct {
	Panels []wirePanel `json:"panels"`
}

func decodeStoryboard(text string) (wireStoryboard, error) {
	var parsed wireStoryboard
	decoder := json.NewDecoder(strings.NewReader(text))
	if err := decoder.Decode(&parsed); err != nil {
		return wireStoryboard{}, fmt.Errorf("decode storyboard: %w", err)
	}
	return parsed, nil
}
