// Package artifact writes the local transcript fallback files that survive a
// persistence outage.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "20060102T150405"

// WriteTranscript stores content under dir with a name derived from the call
// identifier and the current time, creating dir if needed. It returns the
// written path. An empty callID falls back to "unattributed" so degraded
// sessions still leave an artifact.
func WriteTranscript(dir, callID, content string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "artifacts"
	}
	if strings.TrimSpace(callID) == "" {
		callID = "unattributed"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create dir: %w", err)
	}
	name := fmt.Sprintf("transcript_%s_%s.txt", sanitize(callID), time.Now().UTC().Format(timestampLayout))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("artifact: write: %w", err)
	}
	return path, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}
