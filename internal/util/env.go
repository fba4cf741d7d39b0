package util

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvOrDefault returns the trimmed environment variable value or fallback when it is empty.
func EnvOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// ExpandPath resolves a leading "~/" against the home directory and cleans
// the result. Paths it cannot expand are returned cleaned.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return filepath.Clean(path)
}
