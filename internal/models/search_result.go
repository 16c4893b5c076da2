package models

import "strings"

// SearchResult is a torrent result produced by an external search source.
// MagnetHash and MagnetLink are optional; an empty string means absent.
type SearchResult struct {
	Title      string `json:"title"`
	Source     string `json:"source"`
	MagnetHash string `json:"magnetHash,omitempty"`
	MagnetLink string `json:"magnetLink,omitempty"`
	Size       string `json:"size,omitempty"`
	Seeders    string `json:"seeders,omitempty"`
}

// Hash returns the normalized (lower case, trimmed) magnet hash, or "" when absent.
func (r SearchResult) Hash() string {
	return NormalizeHash(r.MagnetHash)
}

// HasMagnetLink reports whether the result carries a usable magnet link.
func (r SearchResult) HasMagnetLink() bool {
	return strings.TrimSpace(r.MagnetLink) != ""
}

// NormalizeHash lower-cases and trims an info hash so lookups are case insensitive.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
