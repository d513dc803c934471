package run

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ImageFilename returns the deterministic artifact name for a page's image.
func ImageFilename(page int) string {
	if page == 0 {
		return "cover.png"
	}
	return fmt.Sprintf("panel_%d.png", page)
}

// AudioFilename returns the deterministic artifact name for a page's audio.
func AudioFilename(page int) string {
	return fmt.Sprintf("page_%d.wav", page)
}

// ArtifactPath resolves filename inside the run's artifact directory,
// rejecting anything that could escape it.
func (s *Store) ArtifactPath(runID, filename string) (string, error) {
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}
	return filepath.Join(s.runDir(runID), filename), nil
}
