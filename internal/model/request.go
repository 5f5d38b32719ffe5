package model

import "time"

// RequestStatus tracks where a request is in its lifecycle, derived from
// the thread's tag text at classification time.
type RequestStatus string

const (
	StatusOpen     RequestStatus = "open"
	StatusSolved   RequestStatus = "solved"
	StatusUnsolved RequestStatus = "unsolved"
	StatusUnknown  RequestStatus = "unknown"
)

// Request is one song-identification thread captured from the forum.
type Request struct {
	ID          string        `json:"id"`
	SourceGroup string        `json:"source_group"`
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	Author      string        `json:"author"`
	Permalink   string        `json:"permalink"`
	CreatedAt   time.Time     `json:"created_at"`
	ScrapedAt   time.Time     `json:"scraped_at"`
	Status      RequestStatus `json:"status"`
	Tag         string        `json:"tag,omitempty"`
	Score       int           `json:"score"`
	ReplyCount  int           `json:"reply_count"`
	MediaLinks  []string      `json:"media_links,omitempty"`

	// Description is populated only by the enrichment step.
	Description string `json:"description,omitempty"`

	// Resolution fields are set once, when a song is linked.
	ResolutionReplyID string `json:"resolution_reply_id,omitempty"`
	ResolutionText    string `json:"resolution_text,omitempty"`
	ResolvedSongID    string `json:"resolved_song_id,omitempty"`
}

// Resolved reports whether a song has been linked to this request.
func (r *Request) Resolved() bool {
	return r.ResolvedSongID != ""
}

// Reply is a single comment on a request's thread, flattened out of the
// source's comment tree.
type Reply struct {
	ID               string    `json:"id"`
	Author           string    `json:"author"`
	Text             string    `json:"text"`
	Score            int       `json:"score"`
	CreatedAt        time.Time `json:"created_at"`
	IsOriginalPoster bool      `json:"is_original_poster"`
	IsReplyToRoot    bool      `json:"is_reply_to_root"`
}

// CatalogStats aggregates catalog-wide counters.
type CatalogStats struct {
	TotalRequests    int     `json:"total_requests"`
	SolvedRequests   int     `json:"solved_requests"`
	UnsolvedRequests int     `json:"unsolved_requests"`
	SolveRate        float64 `json:"solve_rate"`
	TotalSongs       int     `json:"total_songs"`
}

// Cycle records one completed discovery cycle.
type Cycle struct {
	ID              string    `json:"id"`
	Mode            string    `json:"mode"`
	RequestsScraped int       `json:"requests_scraped"`
	SongsFound      int       `json:"songs_found"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
