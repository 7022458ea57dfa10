package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/cache"
)

const (
	defaultRunLimit = 10
	maxRunLimit     = 100
	cacheTimeout    = 3 * time.Second
)

// getCache handles GET /api/v1/cache. It returns the whole citation view
// {"entries": {...}, "count": n, "oldest_update": ...}; page templates
// consume it to label publications with their counts.
func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	cc, ok := s.loadCache(w, r)
	if !ok {
		return
	}

	view := cacheDTO{
		Entries: make(map[string]entryDTO, cc.Len()),
		Count:   cc.Len(),
	}
	for _, key := range cc.Keys() {
		entry, ok := cc.Get(key)
		if !ok {
			continue
		}
		view.Entries[key] = toEntryDTO(entry)
	}
	if oldest, ok := cc.OldestUpdate(); ok {
		view.OldestUpdate = &oldest
	}
	writeJSON(w, http.StatusOK, view)
}

// getCacheEntry handles GET /api/v1/cache/{key}. It returns {"key": ...,
// "entry": {...}} or 404 when the key has never been fetched.
func (s *Server) getCacheEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	cc, ok := s.loadCache(w, r)
	if !ok {
		return
	}
	entry, ok := cc.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "cache entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"entry": toEntryDTO(entry),
	})
}

// listRuns handles GET /api/v1/runs?limit=. Runs come back most recent
// first, straight from the in-memory history.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": s.runs.Recent(limit),
	})
}

// getLatestRun handles GET /api/v1/runs/latest. 404 means the process has
// not completed or started any refresh run yet.
func (s *Server) getLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	rec, ok := s.runs.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no refresh runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": rec})
}

func (s *Server) loadCache(w http.ResponseWriter, r *http.Request) (*cache.Cache, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), cacheTimeout)
	defer cancel()

	cc, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("load cache for API failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load citation cache")
		return nil, false
	}
	return cc, true
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > maxLimit {
		val = maxLimit
	}
	return val, nil
}

func toEntryDTO(e *cache.Entry) entryDTO {
	dto := entryDTO{
		Cites: e.Cites,
		URL:   e.URL,
		Query: e.Query,
	}
	if !e.Updated.IsZero() {
		t := e.Updated
		dto.Updated = &t
	}
	if !e.Attempted.IsZero() {
		t := e.Attempted
		dto.Attempted = &t
	}
	return dto
}

type entryDTO struct {
	Cites     int        `json:"cites"`
	URL       string     `json:"url,omitempty"`
	Query     string     `json:"query,omitempty"`
	Updated   *time.Time `json:"updated,omitempty"`
	Attempted *time.Time `json:"attempted,omitempty"`
}

type cacheDTO struct {
	Entries      map[string]entryDTO `json:"entries"`
	Count        int                 `json:"count"`
	OldestUpdate *time.Time          `json:"oldest_update,omitempty"`
}
