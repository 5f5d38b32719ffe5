package store

import (
	"context"

	"github.com/sells-group/songscout/internal/model"
)

// RequestFilter specifies criteria for listing requests.
type RequestFilter struct {
	Status      model.RequestStatus `json:"status,omitempty"`
	SourceGroup string              `json:"source_group,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
	Offset      int                 `json:"offset,omitempty"`
}

// SongLink ties a song discovery back to the request it resolves.
type SongLink struct {
	RequestID      string
	ReplyID        string
	ResolutionText string
	// Description is appended to the song's original_descriptions if
	// not already present.
	Description string
}

// Store defines the persistence interface for the song catalog.
//
// Get operations return (nil, nil) when the row does not exist.
type Store interface {
	// Requests
	UpsertRequest(ctx context.Context, req model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error)
	OpenRequests(ctx context.Context, limit int) ([]model.Request, error)

	// Songs. LinkSong upserts the song and points the request at it in
	// one transaction: a new song starts at discovery_count 1, a known
	// one gains a count only when the request was not already linked.
	LinkSong(ctx context.Context, song model.Song, link SongLink) (*model.Song, error)
	GetSong(ctx context.Context, id string) (*model.Song, error)
	SearchSongs(ctx context.Context, query string, limit int) ([]model.Song, error)
	TopSongs(ctx context.Context, limit int) ([]model.Song, error)
	RandomSong(ctx context.Context) (*model.Song, error)

	// Aggregates
	Stats(ctx context.Context) (*model.CatalogStats, error)

	// Cycles
	RecordCycle(ctx context.Context, c model.Cycle) error
	ListCycles(ctx context.Context, limit int) ([]model.Cycle, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
