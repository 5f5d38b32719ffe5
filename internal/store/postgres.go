package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/songscout/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, narrow enough for
// pgxmock to stand in during tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS requests (
	id                  TEXT PRIMARY KEY,
	source_group        TEXT NOT NULL,
	title               TEXT NOT NULL,
	body                TEXT NOT NULL DEFAULT '',
	author              TEXT NOT NULL,
	permalink           TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	scraped_at          TIMESTAMPTZ NOT NULL,
	status              TEXT NOT NULL DEFAULT 'unknown',
	tag                 TEXT NOT NULL DEFAULT '',
	score               INTEGER NOT NULL DEFAULT 0,
	reply_count         INTEGER NOT NULL DEFAULT 0,
	media_links         JSONB NOT NULL DEFAULT '[]',
	description         TEXT NOT NULL DEFAULT '',
	resolution_reply_id TEXT NOT NULL DEFAULT '',
	resolution_text     TEXT NOT NULL DEFAULT '',
	resolved_song_id    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS songs (
	id                    TEXT PRIMARY KEY,
	title                 TEXT NOT NULL,
	artist                TEXT NOT NULL,
	album                 TEXT NOT NULL DEFAULT '',
	year                  INTEGER NOT NULL DEFAULT 0,
	spotify_url           TEXT NOT NULL DEFAULT '',
	youtube_url           TEXT NOT NULL DEFAULT '',
	apple_music_url       TEXT NOT NULL DEFAULT '',
	discovered_at         TIMESTAMPTZ NOT NULL,
	discovery_count       INTEGER NOT NULL DEFAULT 1,
	original_descriptions JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS cycles (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode             TEXT NOT NULL,
	requests_scraped INTEGER NOT NULL DEFAULT 0,
	songs_found      INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_source_group ON requests(source_group);
CREATE INDEX IF NOT EXISTS idx_requests_resolved_song ON requests(resolved_song_id);
CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);
CREATE INDEX IF NOT EXISTS idx_songs_discovery_count ON songs(discovery_count DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) UpsertRequest(ctx context.Context, req model.Request) error {
	if req.ScrapedAt.IsZero() {
		req.ScrapedAt = time.Now().UTC()
	}

	linksJSON, err := json.Marshal(req.MediaLinks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal media links")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO requests (id, source_group, title, body, author, permalink, created_at, scraped_at,
		   status, tag, score, reply_count, media_links, description,
		   resolution_reply_id, resolution_text, resolved_song_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		   source_group = EXCLUDED.source_group,
		   title        = EXCLUDED.title,
		   body         = EXCLUDED.body,
		   author       = EXCLUDED.author,
		   permalink    = EXCLUDED.permalink,
		   created_at   = EXCLUDED.created_at,
		   status       = EXCLUDED.status,
		   tag          = EXCLUDED.tag,
		   score        = EXCLUDED.score,
		   reply_count  = EXCLUDED.reply_count,
		   media_links  = EXCLUDED.media_links,
		   description  = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE requests.description END`,
		req.ID, req.SourceGroup, req.Title, req.Body, req.Author, req.Permalink,
		req.CreatedAt, req.ScrapedAt, string(req.Status), req.Tag, req.Score,
		req.ReplyCount, linksJSON, req.Description,
		req.ResolutionReplyID, req.ResolutionText, req.ResolvedSongID,
	)
	return eris.Wrapf(err, "postgres: upsert request %s", req.ID)
}

const pgRequestColumns = `id, source_group, title, body, author, permalink, created_at, scraped_at,
	status, tag, score, reply_count, media_links, description,
	resolution_reply_id, resolution_text, resolved_song_id`

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRequestColumns+` FROM requests WHERE id = $1`, id)

	req, err := scanPGRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get request %s", id)
	}
	return req, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error) {
	query := `SELECT ` + pgRequestColumns + ` FROM requests WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SourceGroup != "" {
		query += fmt.Sprintf(` AND source_group = $%d`, argIdx)
		args = append(args, filter.SourceGroup)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanPGRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan request")
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

func (s *PostgresStore) OpenRequests(ctx context.Context, limit int) ([]model.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRequestColumns+` FROM requests
		 WHERE status IN ('open', 'unknown')
		 ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanPGRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan request")
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: open requests iterate")
}

func (s *PostgresStore) LinkSong(ctx context.Context, song model.Song, link SongLink) (*model.Song, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin link song")
	}
	defer tx.Rollback(ctx)

	existing, err := scanPGSong(tx.QueryRow(ctx,
		`SELECT `+pgSongColumns+` FROM songs WHERE id = $1`, song.ID))

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if song.DiscoveredAt.IsZero() {
			song.DiscoveredAt = time.Now().UTC()
		}
		descs := model.AppendDistinct(nil, link.Description)
		newDescJSON, merr := json.Marshal(descs)
		if merr != nil {
			return nil, eris.Wrap(merr, "postgres: marshal descriptions")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO songs (id, title, artist, album, year, spotify_url, youtube_url,
			   apple_music_url, discovered_at, discovery_count, original_descriptions)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)`,
			song.ID, song.Title, song.Artist, song.Album, song.Year,
			song.SpotifyURL, song.YouTubeURL, song.AppleMusicURL,
			song.DiscoveredAt, newDescJSON,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert song %s", song.ID)
		}

	case err != nil:
		return nil, eris.Wrapf(err, "postgres: get song %s", song.ID)

	default:
		// Re-linking the same request must not inflate the count.
		var prevSongID string
		err = tx.QueryRow(ctx,
			`SELECT resolved_song_id FROM requests WHERE id = $1`, link.RequestID,
		).Scan(&prevSongID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(err, "postgres: check link for request %s", link.RequestID)
		}

		incoming := song
		incoming.OriginalDescriptions = []string{link.Description}
		merged := model.MergeSongs(*existing, incoming)
		if prevSongID == song.ID {
			merged.DiscoveryCount = existing.DiscoveryCount
		}

		newDescJSON, merr := json.Marshal(merged.OriginalDescriptions)
		if merr != nil {
			return nil, eris.Wrap(merr, "postgres: marshal descriptions")
		}
		_, err = tx.Exec(ctx,
			`UPDATE songs SET discovery_count = $1, original_descriptions = $2 WHERE id = $3`,
			merged.DiscoveryCount, newDescJSON, song.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: update song %s", song.ID)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE requests SET resolution_reply_id = $1, resolution_text = $2, resolved_song_id = $3, status = 'solved'
		 WHERE id = $4`,
		link.ReplyID, link.ResolutionText, song.ID, link.RequestID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: link request %s", link.RequestID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("request not found: %s", link.RequestID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit link song")
	}

	return s.GetSong(ctx, song.ID)
}

const pgSongColumns = `id, title, artist, album, year, spotify_url, youtube_url,
	apple_music_url, discovered_at, discovery_count, original_descriptions`

func (s *PostgresStore) GetSong(ctx context.Context, id string) (*model.Song, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSongColumns+` FROM songs WHERE id = $1`, id)

	song, err := scanPGSong(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get song %s", id)
	}

	if err := s.loadSourceRequests(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

func (s *PostgresStore) loadSourceRequests(ctx context.Context, song *model.Song) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM requests WHERE resolved_song_id = $1 ORDER BY created_at`,
		song.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: source requests for %s", song.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return eris.Wrap(err, "postgres: scan source request id")
		}
		song.SourceRequestIDs = append(song.SourceRequestIDs, id)
	}
	return eris.Wrap(rows.Err(), "postgres: source requests iterate")
}

func (s *PostgresStore) SearchSongs(ctx context.Context, query string, limit int) ([]model.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSongColumns+` FROM songs
		 WHERE title ILIKE $1 OR artist ILIKE $1
		 ORDER BY discovery_count DESC LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search songs")
	}
	return collectPGSongs(rows)
}

func (s *PostgresStore) TopSongs(ctx context.Context, limit int) ([]model.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSongColumns+` FROM songs ORDER BY discovery_count DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top songs")
	}
	return collectPGSongs(rows)
}

func (s *PostgresStore) RandomSong(ctx context.Context) (*model.Song, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSongColumns+` FROM songs ORDER BY random() LIMIT 1`)

	song, err := scanPGSong(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: random song")
	}
	if err := s.loadSourceRequests(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'solved' THEN 1 ELSE 0 END), 0)
		 FROM requests`,
	).Scan(&stats.TotalRequests, &stats.SolvedRequests)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: request stats")
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM songs`).Scan(&stats.TotalSongs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: song stats")
	}

	stats.UnsolvedRequests = stats.TotalRequests - stats.SolvedRequests
	if stats.TotalRequests > 0 {
		stats.SolveRate = float64(stats.SolvedRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

func (s *PostgresStore) RecordCycle(ctx context.Context, c model.Cycle) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cycles (id, mode, requests_scraped, songs_found, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Mode, c.RequestsScraped, c.SongsFound, c.StartedAt, c.FinishedAt,
	)
	return eris.Wrap(err, "postgres: record cycle")
}

func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]model.Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, mode, requests_scraped, songs_found, started_at, finished_at
		 FROM cycles ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var cycles []model.Cycle
	for rows.Next() {
		var c model.Cycle
		if err := rows.Scan(&c.ID, &c.Mode, &c.RequestsScraped, &c.SongsFound, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		cycles = append(cycles, c)
	}
	return cycles, eris.Wrap(rows.Err(), "postgres: list cycles iterate")
}

// scan helpers

func scanPGRequest(row pgx.Row) (*model.Request, error) {
	var r model.Request
	var status string
	var linksJSON []byte

	err := row.Scan(&r.ID, &r.SourceGroup, &r.Title, &r.Body, &r.Author, &r.Permalink,
		&r.CreatedAt, &r.ScrapedAt, &status, &r.Tag, &r.Score, &r.ReplyCount,
		&linksJSON, &r.Description, &r.ResolutionReplyID, &r.ResolutionText, &r.ResolvedSongID)
	if err != nil {
		return nil, err
	}

	r.Status = model.RequestStatus(status)
	if err := json.Unmarshal(linksJSON, &r.MediaLinks); err != nil {
		return nil, eris.Wrap(err, "unmarshal media links")
	}
	return &r, nil
}

func scanPGSong(row pgx.Row) (*model.Song, error) {
	var song model.Song
	var descJSON []byte

	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Year,
		&song.SpotifyURL, &song.YouTubeURL, &song.AppleMusicURL,
		&song.DiscoveredAt, &song.DiscoveryCount, &descJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(descJSON, &song.OriginalDescriptions); err != nil {
		return nil, eris.Wrap(err, "unmarshal descriptions")
	}
	return &song, nil
}

func collectPGSongs(rows pgx.Rows) ([]model.Song, error) {
	defer rows.Close()

	var songs []model.Song
	for rows.Next() {
		s, err := scanPGSong(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan song")
		}
		songs = append(songs, *s)
	}
	return songs, eris.Wrap(rows.Err(), "postgres: collect songs iterate")
}
