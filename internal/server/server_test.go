package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/songscout/internal/model"
	"github.com/sells-group/songscout/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, nil), st
}

func doJSON(t *testing.T, s *Server, method, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func seedSolvedCatalog(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.UpsertRequest(ctx, model.Request{
		ID:          "t1",
		SourceGroup: "WhatsThisSong",
		Title:       "what's that 80s synth song",
		Author:      "alice",
		Permalink:   "https://reddit.com/t1",
		CreatedAt:   time.Now().UTC(),
		Status:      model.StatusSolved,
	}))
	require.NoError(t, st.UpsertRequest(ctx, model.Request{
		ID:          "t2",
		SourceGroup: "tipofmytongue",
		Title:       "[TOMT][Song] still looking",
		Author:      "bob",
		Permalink:   "https://reddit.com/t2",
		CreatedAt:   time.Now().UTC(),
		Status:      model.StatusOpen,
	}))
	_, err := st.LinkSong(ctx, model.Song{
		ID:           "new_order_blue_monday",
		Title:        "Blue Monday",
		Artist:       "New Order",
		Year:         1983,
		DiscoveredAt: time.Now().UTC(),
	}, store.SongLink{RequestID: "t1", ReplyID: "c1", ResolutionText: "Blue Monday"})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	var body map[string]string
	rec := doJSON(t, s, http.MethodGet, "/health", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestDiscover_NoServiceConfigured(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/discover", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/process", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTopSongs(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var songs []model.Song
	rec := doJSON(t, s, http.MethodGet, "/api/songs", &songs)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, songs, 1)
	assert.Equal(t, "Blue Monday", songs[0].Title)
}

func TestGetSong(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var song model.Song
	rec := doJSON(t, s, http.MethodGet, "/api/songs/new_order_blue_monday", &song)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New Order", song.Artist)
	assert.Equal(t, []string{"t1"}, song.SourceRequestIDs)
}

func TestGetSong_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/songs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRandomSong_EmptyCatalog(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/songs/random", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchSongs(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var songs []model.Song
	rec := doJSON(t, s, http.MethodGet, "/api/songs/search?q=blue", &songs)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, songs, 1)
	assert.Equal(t, "new_order_blue_monday", songs[0].ID)
}

func TestSearchSongs_MissingQuery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/songs/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenRequests(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var reqs []model.Request
	rec := doJSON(t, s, http.MethodGet, "/api/requests/open", &reqs)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reqs, 1)
	assert.Equal(t, "t2", reqs[0].ID)
}

func TestGetRequest(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var req model.Request
	rec := doJSON(t, s, http.MethodGet, "/api/requests/t1", &req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new_order_blue_monday", req.ResolvedSongID)

	rec = doJSON(t, s, http.MethodGet, "/api/requests/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	s, st := newTestServer(t)
	seedSolvedCatalog(t, st)

	var stats model.CatalogStats
	rec := doJSON(t, s, http.MethodGet, "/api/stats", &stats)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.SolvedRequests)
	assert.Equal(t, 1, stats.TotalSongs)
	assert.InDelta(t, 0.5, stats.SolveRate, 1e-9)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/songs?limit=5", nil)
	assert.Equal(t, 5, queryInt(req, "limit", 20))

	req = httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	assert.Equal(t, 20, queryInt(req, "limit", 20))

	req = httptest.NewRequest(http.MethodGet, "/api/songs?limit=-3", nil)
	assert.Equal(t, 20, queryInt(req, "limit", 20))

	req = httptest.NewRequest(http.MethodGet, "/api/songs?limit=abc", nil)
	assert.Equal(t, 20, queryInt(req, "limit", 20))
}
