package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/songscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS requests (
	id                  TEXT PRIMARY KEY,
	source_group        TEXT NOT NULL,
	title               TEXT NOT NULL,
	body                TEXT NOT NULL DEFAULT '',
	author              TEXT NOT NULL,
	permalink           TEXT NOT NULL,
	created_at          DATETIME NOT NULL,
	scraped_at          DATETIME NOT NULL,
	status              TEXT NOT NULL DEFAULT 'unknown',
	tag                 TEXT NOT NULL DEFAULT '',
	score               INTEGER NOT NULL DEFAULT 0,
	reply_count         INTEGER NOT NULL DEFAULT 0,
	media_links         TEXT NOT NULL DEFAULT '[]',
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
	discovered_at         DATETIME NOT NULL,
	discovery_count       INTEGER NOT NULL DEFAULT 1,
	original_descriptions TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS cycles (
	id               TEXT PRIMARY KEY,
	mode             TEXT NOT NULL,
	requests_scraped INTEGER NOT NULL DEFAULT 0,
	songs_found      INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_source_group ON requests(source_group);
CREATE INDEX IF NOT EXISTS idx_requests_resolved_song ON requests(resolved_song_id);
CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);
CREATE INDEX IF NOT EXISTS idx_songs_discovery_count ON songs(discovery_count);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const requestColumns = `id, source_group, title, body, author, permalink, created_at, scraped_at,
	status, tag, score, reply_count, media_links, description,
	resolution_reply_id, resolution_text, resolved_song_id`

func (s *SQLiteStore) UpsertRequest(ctx context.Context, req model.Request) error {
	if req.ScrapedAt.IsZero() {
		req.ScrapedAt = time.Now().UTC()
	}

	linksJSON, err := json.Marshal(req.MediaLinks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal media links")
	}

	// scraped_at and the resolution columns keep their first-written
	// values on conflict; an empty incoming description never clobbers
	// an enriched one.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source_group = excluded.source_group,
		   title        = excluded.title,
		   body         = excluded.body,
		   author       = excluded.author,
		   permalink    = excluded.permalink,
		   created_at   = excluded.created_at,
		   status       = excluded.status,
		   tag          = excluded.tag,
		   score        = excluded.score,
		   reply_count  = excluded.reply_count,
		   media_links  = excluded.media_links,
		   description  = CASE WHEN excluded.description <> '' THEN excluded.description ELSE requests.description END`,
		req.ID, req.SourceGroup, req.Title, req.Body, req.Author, req.Permalink,
		req.CreatedAt, req.ScrapedAt, string(req.Status), req.Tag, req.Score,
		req.ReplyCount, string(linksJSON), req.Description,
		req.ResolutionReplyID, req.ResolutionText, req.ResolvedSongID,
	)
	return eris.Wrapf(err, "sqlite: upsert request %s", req.ID)
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get request %s", id)
	}
	return req, nil
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SourceGroup != "" {
		query += ` AND source_group = ?`
		args = append(args, filter.SourceGroup)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan request")
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

func (s *SQLiteStore) OpenRequests(ctx context.Context, limit int) ([]model.Request, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests
		 WHERE status IN ('open', 'unknown')
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan request")
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: open requests iterate")
}

func (s *SQLiteStore) LinkSong(ctx context.Context, song model.Song, link SongLink) (*model.Song, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin link song")
	}
	defer tx.Rollback()

	existing, err := scanSong(tx.QueryRowContext(ctx,
		`SELECT `+songColumns+` FROM songs WHERE id = ?`, song.ID))

	switch {
	case err == sql.ErrNoRows:
		if song.DiscoveredAt.IsZero() {
			song.DiscoveredAt = time.Now().UTC()
		}
		descs := model.AppendDistinct(nil, link.Description)
		newDescJSON, merr := json.Marshal(descs)
		if merr != nil {
			return nil, eris.Wrap(merr, "sqlite: marshal descriptions")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO songs (id, title, artist, album, year, spotify_url, youtube_url,
			   apple_music_url, discovered_at, discovery_count, original_descriptions)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			song.ID, song.Title, song.Artist, song.Album, song.Year,
			song.SpotifyURL, song.YouTubeURL, song.AppleMusicURL,
			song.DiscoveredAt, string(newDescJSON),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert song %s", song.ID)
		}

	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: get song %s", song.ID)

	default:
		// Re-linking the same request must not inflate the count.
		var prevSongID string
		err = tx.QueryRowContext(ctx,
			`SELECT resolved_song_id FROM requests WHERE id = ?`, link.RequestID,
		).Scan(&prevSongID)
		if err != nil && err != sql.ErrNoRows {
			return nil, eris.Wrapf(err, "sqlite: check link for request %s", link.RequestID)
		}

		incoming := song
		incoming.OriginalDescriptions = []string{link.Description}
		merged := model.MergeSongs(*existing, incoming)
		if prevSongID == song.ID {
			merged.DiscoveryCount = existing.DiscoveryCount
		}

		newDescJSON, merr := json.Marshal(merged.OriginalDescriptions)
		if merr != nil {
			return nil, eris.Wrap(merr, "sqlite: marshal descriptions")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE songs SET discovery_count = ?, original_descriptions = ? WHERE id = ?`,
			merged.DiscoveryCount, string(newDescJSON), song.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update song %s", song.ID)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE requests SET resolution_reply_id = ?, resolution_text = ?, resolved_song_id = ?, status = 'solved'
		 WHERE id = ?`,
		link.ReplyID, link.ResolutionText, song.ID, link.RequestID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: link request %s", link.RequestID)
	}
	if err := checkRowsAffected(res, "request", link.RequestID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit link song")
	}

	return s.GetSong(ctx, song.ID)
}

const songColumns = `id, title, artist, album, year, spotify_url, youtube_url,
	apple_music_url, discovered_at, discovery_count, original_descriptions`

func (s *SQLiteStore) GetSong(ctx context.Context, id string) (*model.Song, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+songColumns+` FROM songs WHERE id = ?`, id)

	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get song %s", id)
	}

	if err := s.loadSourceRequests(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

func (s *SQLiteStore) loadSourceRequests(ctx context.Context, song *model.Song) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM requests WHERE resolved_song_id = ? ORDER BY created_at`,
		song.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: source requests for %s", song.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return eris.Wrap(err, "sqlite: scan source request id")
		}
		song.SourceRequestIDs = append(song.SourceRequestIDs, id)
	}
	return eris.Wrap(rows.Err(), "sqlite: source requests iterate")
}

func (s *SQLiteStore) SearchSongs(ctx context.Context, query string, limit int) ([]model.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+songColumns+` FROM songs
		 WHERE title LIKE ? COLLATE NOCASE OR artist LIKE ? COLLATE NOCASE
		 ORDER BY discovery_count DESC LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search songs")
	}
	return collectSongs(rows)
}

func (s *SQLiteStore) TopSongs(ctx context.Context, limit int) ([]model.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+songColumns+` FROM songs ORDER BY discovery_count DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top songs")
	}
	return collectSongs(rows)
}

func (s *SQLiteStore) RandomSong(ctx context.Context) (*model.Song, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+songColumns+` FROM songs ORDER BY RANDOM() LIMIT 1`)

	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: random song")
	}
	if err := s.loadSourceRequests(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.CatalogStats, error) {
	var stats model.CatalogStats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'solved' THEN 1 ELSE 0 END), 0)
		 FROM requests`,
	).Scan(&stats.TotalRequests, &stats.SolvedRequests)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: request stats")
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&stats.TotalSongs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: song stats")
	}

	stats.UnsolvedRequests = stats.TotalRequests - stats.SolvedRequests
	if stats.TotalRequests > 0 {
		stats.SolveRate = float64(stats.SolvedRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, c model.Cycle) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, mode, requests_scraped, songs_found, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Mode, c.RequestsScraped, c.SongsFound, c.StartedAt, c.FinishedAt,
	)
	return eris.Wrap(err, "sqlite: record cycle")
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]model.Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, requests_scraped, songs_found, started_at, finished_at
		 FROM cycles ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close()

	var cycles []model.Cycle
	for rows.Next() {
		var c model.Cycle
		if err := rows.Scan(&c.ID, &c.Mode, &c.RequestsScraped, &c.SongsFound, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		cycles = append(cycles, c)
	}
	return cycles, eris.Wrap(rows.Err(), "sqlite: list cycles iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*model.Request, error) {
	var r model.Request
	var status, linksJSON string

	err := row.Scan(&r.ID, &r.SourceGroup, &r.Title, &r.Body, &r.Author, &r.Permalink,
		&r.CreatedAt, &r.ScrapedAt, &status, &r.Tag, &r.Score, &r.ReplyCount,
		&linksJSON, &r.Description, &r.ResolutionReplyID, &r.ResolutionText, &r.ResolvedSongID)
	if err != nil {
		return nil, err
	}

	r.Status = model.RequestStatus(status)
	if err := json.Unmarshal([]byte(linksJSON), &r.MediaLinks); err != nil {
		return nil, eris.Wrap(err, "unmarshal media links")
	}
	return &r, nil
}

func scanSong(row scannable) (*model.Song, error) {
	var song model.Song
	var descJSON string

	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Year,
		&song.SpotifyURL, &song.YouTubeURL, &song.AppleMusicURL,
		&song.DiscoveredAt, &song.DiscoveryCount, &descJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(descJSON), &song.OriginalDescriptions); err != nil {
		return nil, eris.Wrap(err, "unmarshal descriptions")
	}
	return &song, nil
}

func collectSongs(rows *sql.Rows) ([]model.Song, error) {
	defer rows.Close()

	var songs []model.Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan song")
		}
		songs = append(songs, *s)
	}
	return songs, eris.Wrap(rows.Err(), "sqlite: collect songs iterate")
}
