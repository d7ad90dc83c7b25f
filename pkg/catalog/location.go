package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// StripScheme removes an optional file:// prefix from a dataset location.
func StripScheme(location string) string {
	return strings.TrimPrefix(location, fileScheme)
}

// IsFileBacked reports whether a location refers to a local dataset file
// under datasetsDir. The optional file:// scheme prefix is ignored.
func IsFileBacked(location, datasetsDir string) bool {
	if location == "" || datasetsDir == "" {
		return false
	}
	path := filepath.ToSlash(filepath.Clean(StripScheme(location)))
	prefix := filepath.ToSlash(filepath.Clean(datasetsDir))
	return strings.HasPrefix(path, prefix+"/")
}

// Resolve strips the scheme prefix and verifies the file exists, returning
// the local path the engine can load.
func Resolve(location string) (string, error) {
	path := StripScheme(location)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("dataset file not found at %s", path)
		}
		return "", fmt.Errorf("failed to stat dataset file: %w", err)
	}
	return path, nil
}
