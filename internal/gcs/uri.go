package gcs

import (
	"fmt"
	"path"
	"strings"
)

const scheme = "gs://"

// IsURI reports whether s names a Cloud Storage location.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits gs://bucket/prefix into bucket and prefix. The prefix may
// be empty and never carries a trailing slash.
func ParseURI(uri string) (bucket, prefix string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("ParseURI: %q: %w", uri, ErrInvalidURI)
	}

	trimmed := strings.TrimPrefix(uri, scheme)
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("ParseURI: %q has no bucket: %w", uri, ErrInvalidURI)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// ObjectPath joins a prefix and a file name into an object name.
func ObjectPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ExtractFilename extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func ExtractFilename(uri string) string {
	trimmed := strings.TrimPrefix(uri, scheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
