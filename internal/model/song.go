package model

import (
	"strings"
	"time"
	"unicode"
)

// Song is one distinct real-world track the catalog has identified.
// Its ID is derived from the normalized (artist, title) pair, which is
// also the dedup key: repeated independent discoveries of the same pair
// collapse into one Song.
type Song struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`

	// Streaming links, absent at discovery time; populated only if a
	// later enrichment pass fills them in.
	SpotifyURL    string `json:"spotify_url,omitempty"`
	YouTubeURL    string `json:"youtube_url,omitempty"`
	AppleMusicURL string `json:"apple_music_url,omitempty"`

	DiscoveredAt   time.Time `json:"discovered_at"`
	DiscoveryCount int       `json:"discovery_count"`

	// SourceRequestIDs is derived from requests whose resolved_song_id
	// points here; the request owns the link, not the song.
	SourceRequestIDs []string `json:"source_request_ids,omitempty"`

	// OriginalDescriptions is the append-only list of distinct
	// descriptions that led people to this song.
	OriginalDescriptions []string `json:"original_descriptions,omitempty"`
}

// SongID derives the dedup key for an (artist, title) pair: lowercase,
// every non-alphanumeric rune replaced with an underscore, joined as
// artist_title. The rule intentionally collapses punctuation variants
// and does not unify differing romanizations; changing it would silently
// re-key the whole catalog.
func SongID(artist, title string) string {
	return normalizeIdentity(artist + "_" + title)
}

func normalizeIdentity(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// MergeSongs folds a new discovery of an already-known song into the
// existing record: the count goes up by one and any not-yet-present
// description strings are appended. Identity fields keep their
// first-seen values since repeat extractions are assumed noisier.
func MergeSongs(existing, incoming Song) Song {
	merged := existing
	merged.DiscoveryCount++
	merged.OriginalDescriptions = AppendDistinct(existing.OriginalDescriptions, incoming.OriginalDescriptions...)
	return merged
}

// AppendDistinct appends values not already present by exact string
// match, preserving order of first appearance.
func AppendDistinct(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	out := list
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
