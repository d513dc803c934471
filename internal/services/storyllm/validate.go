package storyllm

import (
	"fmt"
	"strings"
)

func hasKorean(text string) bool {
	for _, r := range text {
		if r >= 0xAC00 && r <= 0xD7A3 {
			return true
		}
	}
	return false
}

// validatePanels enforces the storyboard contract: exactly 5 panels indexed
// 0-4 with unique indices, a non-empty subject on panel 0, non-empty Korean
// summaries on panels 1-4, and a non-empty prompt on every panel.
func validatePanels(sb wireStoryboard) error {
	if len(sb.Panels) != 5 {
		return fmt.Errorf("panels must be length 5 exactly, got %d", len(sb.Panels))
	}

	seen := make(map[int]struct{}, 5)
	for _, panel := range sb.Panels {
		if panel.Panel < 0 || panel.Panel > 4 {
			return fmt.Errorf("panel index %d out of range 0..4", panel.Panel)
		}
		if _, dup := seen[panel.Panel]; dup {
			return fmt.Errorf("duplicate panel index %d", panel.Panel)
		}
		seen[panel.Panel] = struct{}{}

		if strings.TrimSpace(panel.Prompt) == "" {
			return fmt.Errorf("panel%d.prompt empty", panel.Panel)
		}
		if panel.Panel == 0 {
			if strings.TrimSpace(panel.Subject) == "" {
				return fmt.Errorf("panel0.subject empty")
			}
			continue
		}
		summary := strings.TrimSpace(panel.Summary)
		if summary == "" {
			return fmt.Errorf("panel%d.summary empty", panel.Panel)
		}
		if !hasKorean(summary) {
			return fmt.Errorf("panel%d.summary should be Korean", panel.Panel)
		}
	}
	return nil
}
