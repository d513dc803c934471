package stt

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Field identifies which story input a voice clip fills in.
type Field string

const (
	FieldEra        Field = "era"
	FieldPlace      Field = "place"
	FieldCharacters Field = "characters"
	FieldTopic      Field = "topic"
)

// ParseField validates a wire field name.
func ParseField(value string) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(value))) {
	case FieldEra:
		return FieldEra, nil
	case FieldPlace:
		return FieldPlace, nil
	case FieldCharacters:
		return FieldCharacters, nil
	case FieldTopic:
		return FieldTopic, nil
	default:
		return "", fmt.Errorf("invalid field_type %q, must be one of era, place, characters, topic", value)
	}
}

// parsers normalizes a transcription for a specific field. Every field
// currently trims whitespace; the table keeps per-field rules in one place
// so a field can grow its own normalization without touching callers.
var parsers = map[Field]func(string) string{
	FieldEra:        strings.TrimSpace,
	FieldPlace:      strings.TrimSpace,
	FieldCharacters: strings.TrimSpace,
	FieldTopic:      strings.TrimSpace,
}

// Parse normalizes a raw transcription for the given field.
func (f Field) Parse(text string) string {
	if parse, ok := parsers[f]; ok {
		return parse(text)
	}
	return strings.TrimSpace(text)
}

// NormalizeLanguage reduces a BCP 47 tag to the bare base language the
// transcription backend expects, e.g. "ko-KR" becomes "ko". Unparseable tags
// fall back to Korean.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "ko"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "ko"
	}
	base, _ := parsed.Base()
	return base.String()
}
