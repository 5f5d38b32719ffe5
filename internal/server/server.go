package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/songscout/internal/discovery"
	"github.com/sells-group/songscout/internal/store"
)

// Server exposes the catalog and the discovery pipeline over HTTP.
type Server struct {
	store   store.Store
	service *discovery.Service
	router  chi.Router
}

// New creates a Server with its routes mounted. service may be nil for
// a read-only catalog server; the trigger endpoints then return 503.
func New(st store.Store, service *discovery.Service) *Server {
	s := &Server{store: st, service: service}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/discover", s.handleDiscover)
		r.Post("/process", s.handleProcess)

		r.Get("/songs", s.handleTopSongs)
		r.Get("/songs/random", s.handleRandomSong)
		r.Get("/songs/search", s.handleSearchSongs)
		r.Get("/songs/{id}", s.handleGetSong)

		r.Get("/requests/open", s.handleOpenRequests)
		r.Get("/requests/{id}", s.handleGetRequest)

		r.Get("/stats", s.handleStats)
		r.Get("/cycles", s.handleCycles)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type discoverRequest struct {
	Mode    string `json:"mode"`
	Limit   int    `json:"limit"`
	Enrich  *bool  `json:"enrich"`
	Process *bool  `json:"process"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		respondError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}

	var body discoverRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	opts := discovery.CycleOptions{
		Mode:    body.Mode,
		Limit:   body.Limit,
		Enrich:  true,
		Process: true,
	}
	if body.Enrich != nil {
		opts.Enrich = *body.Enrich
	}
	if body.Process != nil {
		opts.Process = *body.Process
	}

	result, err := s.service.RunCycle(r.Context(), opts)
	if err != nil {
		zap.L().Error("discovery cycle failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "discovery cycle failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		respondError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}

	var body struct {
		Limit int `json:"limit"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if body.Limit <= 0 {
		body.Limit = 50
	}

	found := s.service.ProcessSolved(r.Context(), body.Limit)
	respondJSON(w, http.StatusOK, map[string]int{"songs_found": found})
}

func (s *Server) handleTopSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.store.TopSongs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		zap.L().Error("top songs failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

func (s *Server) handleRandomSong(w http.ResponseWriter, r *http.Request) {
	song, err := s.store.RandomSong(r.Context())
	if err != nil {
		zap.L().Error("random song failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if song == nil {
		respondError(w, http.StatusNotFound, "no songs in catalog")
		return
	}
	respondJSON(w, http.StatusOK, song)
}

func (s *Server) handleSearchSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	songs, err := s.store.SearchSongs(r.Context(), q, queryInt(r, "limit", 20))
	if err != nil {
		zap.L().Error("song search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	song, err := s.store.GetSong(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("get song failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if song == nil {
		respondError(w, http.StatusNotFound, "song not found")
		return
	}
	respondJSON(w, http.StatusOK, song)
}

func (s *Server) handleOpenRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.store.OpenRequests(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		zap.L().Error("open requests failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("get request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if req == nil {
		respondError(w, http.StatusNotFound, "request not found")
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		zap.L().Error("stats failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.store.ListCycles(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		zap.L().Error("list cycles failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, cycles)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
