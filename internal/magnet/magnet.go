// Package magnet reads info hashes out of magnet links.
package magnet

import (
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/Zerr0-C00L/rdfetch/internal/models"
)

// Info is the useful part of a parsed magnet link.
type Info struct {
	Hash        string
	DisplayName string
	Trackers    []string
}

// Parse decodes a magnet URI. The hash is returned in lower-case hex.
func Parse(link string) (Info, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Info{}, fmt.Errorf("magnet link is empty")
	}
	m, err := metainfo.ParseMagnetUri(link)
	if err != nil {
		return Info{}, fmt.Errorf("parse magnet link: %w", err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return Info{}, fmt.Errorf("magnet link has no btih info hash")
	}
	return Info{
		Hash:        models.NormalizeHash(m.InfoHash.HexString()),
		DisplayName: m.DisplayName,
		Trackers:    m.Trackers,
	}, nil
}

// ValidHash reports whether hash is a hex encoded btih info hash. Case and
// surrounding space are ignored.
func ValidHash(hash string) bool {
	var h metainfo.Hash
	return h.FromHexString(strings.TrimSpace(hash)) == nil
}

// Build returns a magnet link for a hex info hash.
func Build(hash, displayName string) (string, error) {
	var h metainfo.Hash
	if err := h.FromHexString(strings.TrimSpace(hash)); err != nil {
		return "", fmt.Errorf("invalid info hash %q: %w", hash, err)
	}
	m := metainfo.Magnet{InfoHash: h, DisplayName: displayName}
	return m.String(), nil
}

// Normalize fills a missing MagnetHash from MagnetLink. Results whose link
// cannot be parsed are returned unchanged.
func Normalize(result models.SearchResult) models.SearchResult {
	if result.Hash() != "" || !result.HasMagnetLink() {
		result.MagnetHash = result.Hash()
		return result
	}
	info, err := Parse(result.MagnetLink)
	if err != nil {
		return result
	}
	result.MagnetHash = info.Hash
	return result
}

// NormalizeAll applies Normalize to every result.
func NormalizeAll(results []models.SearchResult) []models.SearchResult {
	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		out[i] = Normalize(r)
	}
	return out
}
