// Package urlutil joins the configured base URL with application paths.
package urlutil

import "strings"

// BuildAbsolute builds an absolute URL from a base origin and a path.
// Absolute paths are returned unchanged.
func BuildAbsolute(base, path string) string {
	base = NormalizeBase(base)
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// NormalizeBase trims whitespace and trailing slashes.
func NormalizeBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
