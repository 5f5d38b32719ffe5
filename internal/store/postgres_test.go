package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/songscout/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_UpsertRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO requests`).
		WithArgs("t1", "tipofmytongue", "[TOMT][Song] synth song", "body", "someone",
			"https://reddit.com/x", pgxmock.AnyArg(), pgxmock.AnyArg(), "solved", "Solved",
			42, 7, pgxmock.AnyArg(), "", "", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertRequest(context.Background(), model.Request{
		ID:          "t1",
		SourceGroup: "tipofmytongue",
		Title:       "[TOMT][Song] synth song",
		Body:        "body",
		Author:      "someone",
		Permalink:   "https://reddit.com/x",
		CreatedAt:   time.Now().UTC(),
		ScrapedAt:   time.Now().UTC(),
		Status:      model.StatusSolved,
		Tag:         "Solved",
		Score:       42,
		ReplyCount:  7,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRequest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetRequest(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRequest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scraped := created.Add(time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "source_group", "title", "body", "author", "permalink", "created_at", "scraped_at",
		"status", "tag", "score", "reply_count", "media_links", "description",
		"resolution_reply_id", "resolution_text", "resolved_song_id",
	}).AddRow("t1", "WhatsThisSong", "what song is this", "", "someone", "https://reddit.com/x",
		created, scraped, "open", "", 3, 1, []byte(`["https://youtu.be/abc"]`), "",
		"", "", "")

	mock.ExpectQuery(`(?s)SELECT .+ FROM requests WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(rows)

	got, err := s.GetRequest(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusOpen, got.Status)
	assert.Equal(t, []string{"https://youtu.be/abc"}, got.MediaLinks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSong_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM songs WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetSong(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkSong_NewSong(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	discovered := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .+ FROM songs WHERE id = \$1`).
		WithArgs("new_order_blue_monday").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO songs`).
		WithArgs("new_order_blue_monday", "Blue Monday", "New Order", "", 1983,
			"", "", "", discovered, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE requests SET resolution_reply_id`).
		WithArgs("c9", "it is Blue Monday", "new_order_blue_monday", "t1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// The post-commit read.
	songRows := pgxmock.NewRows([]string{
		"id", "title", "artist", "album", "year", "spotify_url", "youtube_url",
		"apple_music_url", "discovered_at", "discovery_count", "original_descriptions",
	}).AddRow("new_order_blue_monday", "Blue Monday", "New Order", "", 1983,
		"", "", "", discovered, 1, []byte(`["synth intro"]`))
	mock.ExpectQuery(`(?s)SELECT .+ FROM songs WHERE id = \$1`).
		WithArgs("new_order_blue_monday").
		WillReturnRows(songRows)
	mock.ExpectQuery(`SELECT id FROM requests WHERE resolved_song_id = \$1`).
		WithArgs("new_order_blue_monday").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("t1"))

	got, err := s.LinkSong(context.Background(), model.Song{
		ID:           "new_order_blue_monday",
		Title:        "Blue Monday",
		Artist:       "New Order",
		Year:         1983,
		DiscoveredAt: discovered,
	}, SongLink{
		RequestID:      "t1",
		ReplyID:        "c9",
		ResolutionText: "it is Blue Monday",
		Description:    "synth intro",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.DiscoveryCount)
	assert.Equal(t, []string{"t1"}, got.SourceRequestIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkSong_ExistingSongMerges(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	discovered := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	songRow := func(count int, descs string, sourceIDs ...string) {
		rows := pgxmock.NewRows([]string{
			"id", "title", "artist", "album", "year", "spotify_url", "youtube_url",
			"apple_music_url", "discovered_at", "discovery_count", "original_descriptions",
		}).AddRow("new_order_blue_monday", "Blue Monday", "New Order", "", 1983,
			"", "", "", discovered, count, []byte(descs))
		mock.ExpectQuery(`(?s)SELECT .+ FROM songs WHERE id = \$1`).
			WithArgs("new_order_blue_monday").
			WillReturnRows(rows)
		if len(sourceIDs) > 0 {
			idRows := pgxmock.NewRows([]string{"id"})
			for _, id := range sourceIDs {
				idRows.AddRow(id)
			}
			mock.ExpectQuery(`SELECT id FROM requests WHERE resolved_song_id = \$1`).
				WithArgs("new_order_blue_monday").
				WillReturnRows(idRows)
		}
	}

	mock.ExpectBegin()
	songRow(1, `["synth intro"]`)
	mock.ExpectQuery(`SELECT resolved_song_id FROM requests WHERE id = \$1`).
		WithArgs("t2").
		WillReturnRows(pgxmock.NewRows([]string{"resolved_song_id"}).AddRow(""))
	mock.ExpectExec(`UPDATE songs SET discovery_count`).
		WithArgs(2, []byte(`["synth intro","gym speakers"]`), "new_order_blue_monday").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE requests SET resolution_reply_id`).
		WithArgs("c4", "Blue Monday again", "new_order_blue_monday", "t2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// The post-commit read.
	songRow(2, `["synth intro","gym speakers"]`, "t1", "t2")

	got, err := s.LinkSong(context.Background(), model.Song{
		ID:     "new_order_blue_monday",
		Title:  "Blue Monday",
		Artist: "New Order",
		Year:   1983,
	}, SongLink{
		RequestID:      "t2",
		ReplyID:        "c4",
		ResolutionText: "Blue Monday again",
		Description:    "gym speakers",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.DiscoveryCount)
	assert.Equal(t, []string{"t1", "t2"}, got.SourceRequestIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkSong_UnknownRequestRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .+ FROM songs WHERE id = \$1`).
		WithArgs("new_order_blue_monday").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO songs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE requests SET resolution_reply_id`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := s.LinkSong(context.Background(), model.Song{
		ID:     "new_order_blue_monday",
		Title:  "Blue Monday",
		Artist: "New Order",
	}, SongLink{RequestID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "solved"}).AddRow(4, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM songs`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 1, stats.SolvedRequests)
	assert.Equal(t, 3, stats.UnsolvedRequests)
	assert.InDelta(t, 0.25, stats.SolveRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO cycles`).
		WithArgs(pgxmock.AnyArg(), "solved", 10, 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCycle(context.Background(), model.Cycle{
		Mode:            "solved",
		RequestsScraped: 10,
		SongsFound:      2,
		StartedAt:       time.Now().UTC(),
		FinishedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
