package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/songscout/internal/classify"
	"github.com/sells-group/songscout/internal/extract"
	"github.com/sells-group/songscout/internal/model"
	"github.com/sells-group/songscout/internal/store"
)

// CycleOptions configures one discovery cycle.
type CycleOptions struct {
	// Mode selects the scrape listing: "new", "hot", or "solved".
	Mode string
	// Limit caps threads fetched per group, and solved threads
	// processed for songs.
	Limit int
	// Enrich runs the description pass on each scraped request.
	Enrich bool
	// Process resolves solved requests into songs. Only effective in
	// solved mode, where every scraped thread is known solved.
	Process bool
}

// CycleResult summarizes a completed cycle.
type CycleResult struct {
	Cycle model.Cycle        `json:"cycle"`
	Stats model.CatalogStats `json:"stats"`
}

// Service orchestrates scrape, enrich, persist, and resolve.
type Service struct {
	fetcher   *classify.Fetcher
	extractor *extract.Extractor
	store     store.Store
}

// New creates a discovery Service.
func New(fetcher *classify.Fetcher, extractor *extract.Extractor, st store.Store) *Service {
	return &Service{fetcher: fetcher, extractor: extractor, store: st}
}

// RunCycle runs one full discovery cycle and records it. Work is
// sequential; a failing item is logged and skipped, never aborting the
// batch.
func (s *Service) RunCycle(ctx context.Context, opts CycleOptions) (*CycleResult, error) {
	if opts.Mode == "" {
		opts.Mode = "solved"
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	startedAt := time.Now().UTC()

	zap.L().Info("starting discovery cycle",
		zap.String("mode", opts.Mode),
		zap.Int("limit", opts.Limit),
		zap.Bool("enrich", opts.Enrich),
		zap.Bool("process", opts.Process),
	)

	scraped, err := s.scrapeAndStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	songsFound := 0
	if opts.Process && opts.Mode == "solved" {
		songsFound = s.ProcessSolved(ctx, opts.Limit)
	}

	cycle := model.Cycle{
		ID:              uuid.New().String(),
		Mode:            opts.Mode,
		RequestsScraped: scraped,
		SongsFound:      songsFound,
		StartedAt:       startedAt,
		FinishedAt:      time.Now().UTC(),
	}
	if err := s.store.RecordCycle(ctx, cycle); err != nil {
		return nil, eris.Wrap(err, "discovery: record cycle")
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: stats")
	}

	zap.L().Info("discovery cycle complete",
		zap.Int("requests_scraped", scraped),
		zap.Int("songs_found", songsFound),
		zap.Float64("solve_rate", stats.SolveRate),
	)

	return &CycleResult{Cycle: cycle, Stats: *stats}, nil
}

func (s *Service) scrapeAndStore(ctx context.Context, opts CycleOptions) (int, error) {
	var reqs []model.Request
	var err error

	switch opts.Mode {
	case "new":
		reqs, err = s.fetcher.ScrapeNew(ctx, opts.Limit)
	case "hot":
		reqs, err = s.fetcher.ScrapeHot(ctx, opts.Limit)
	case "solved":
		reqs, err = s.fetcher.ScrapeSolved(ctx, opts.Limit)
	default:
		return 0, eris.Errorf("discovery: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "discovery: scrape %s", opts.Mode)
	}

	count := 0
	for _, req := range reqs {
		if opts.Enrich {
			if err := s.extractor.EnrichRequest(ctx, &req); err != nil {
				zap.L().Warn("enrichment failed, storing without description",
					zap.String("request_id", req.ID),
					zap.Error(err),
				)
			}
		}
		if err := s.store.UpsertRequest(ctx, req); err != nil {
			zap.L().Warn("request upsert failed, skipping",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			continue
		}
		count++
	}
	return count, nil
}

// ProcessSolved resolves stored solved requests that have no linked
// song yet. It returns the number of songs discovered; per-item
// failures are logged and skipped.
func (s *Service) ProcessSolved(ctx context.Context, limit int) int {
	reqs, err := s.store.ListRequests(ctx, store.RequestFilter{
		Status: model.StatusSolved,
		Limit:  limit,
	})
	if err != nil {
		zap.L().Warn("listing solved requests failed", zap.Error(err))
		return 0
	}

	songsFound := 0
	for _, req := range reqs {
		if req.Resolved() {
			continue
		}

		_, replies, err := s.fetcher.FetchWithReplies(ctx, req.ID)
		if err != nil {
			zap.L().Warn("reply fetch failed, skipping",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			continue
		}

		result, err := s.extractor.ExtractSolution(ctx, &req, replies)
		if err != nil {
			zap.L().Warn("solution extraction failed, skipping",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			continue
		}
		if result == nil {
			continue
		}

		link := store.SongLink{
			RequestID:      req.ID,
			ReplyID:        result.ReplyID,
			ResolutionText: replyText(replies, result.ReplyID),
			Description:    req.Description,
		}
		if _, err := s.store.LinkSong(ctx, result.Song, link); err != nil {
			zap.L().Warn("song link failed, skipping",
				zap.String("request_id", req.ID),
				zap.String("song_id", result.Song.ID),
				zap.Error(err),
			)
			continue
		}

		songsFound++
		zap.L().Info("song discovered",
			zap.String("song_id", result.Song.ID),
			zap.String("artist", result.Song.Artist),
			zap.String("title", result.Song.Title),
			zap.String("confidence", result.Confidence),
		)
	}
	return songsFound
}

func replyText(replies []model.Reply, id string) string {
	if id == "" {
		return ""
	}
	for _, r := range replies {
		if r.ID == id {
			return r.Text
		}
	}
	return ""
}
