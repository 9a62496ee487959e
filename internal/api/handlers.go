package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/control"
	"github.com/nao1215/publiccrawler/internal/database"
	"github.com/nao1215/publiccrawler/internal/model"
)

// startRequest is the body of POST /api/crawl/start. Absent numbers keep
// the server defaults; delay and timeout are in seconds.
type startRequest struct {
	Starts       []string `json:"starts"`
	AllowDomains []string `json:"allow_domains"`
	MaxPages     *int     `json:"max_pages"`
	MaxDepth     *int     `json:"max_depth"`
	Concurrency  *int     `json:"concurrency"`
	Delay        *float64 `json:"delay"`
	Timeout      *float64 `json:"timeout"`
	IncludeRegex string   `json:"include_regex"`
	ExcludeRegex string   `json:"exclude_regex"`
}

// crawlConfig overlays the request on a copy of base.
func (req startRequest) crawlConfig(base *config.Config) *config.Config {
	cfg := *base
	cfg.Seeds = req.Starts
	cfg.AllowDomains = req.AllowDomains
	cfg.IncludePattern = req.IncludeRegex
	cfg.ExcludePattern = req.ExcludeRegex
	if req.MaxPages != nil {
		cfg.MaxPages = *req.MaxPages
	}
	if req.MaxDepth != nil {
		cfg.MaxDepth = *req.MaxDepth
	}
	if req.Concurrency != nil {
		cfg.Concurrency = *req.Concurrency
	}
	if req.Delay != nil {
		cfg.PerHostDelay = seconds(*req.Delay)
	}
	if req.Timeout != nil {
		cfg.RequestTimeout = seconds(*req.Timeout)
	}
	return &cfg
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

type itemsResponse struct {
	Items []*model.FetchedPage `json:"items"`
	Count int64                `json:"count"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.AllowDomains) == 0 {
		respondWithError(w, http.StatusBadRequest, "allow_domains required")
		return
	}

	h, err := s.manager.Start(req.crawlConfig(s.base))
	if err != nil {
		if !errors.Is(err, control.ErrAlreadyRunning) {
			s.logger.Warn("crawl start rejected", "error", err)
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.manager.Status(r.Context(), h)
	if err != nil {
		s.logger.Error("failed to read crawl status", "error", err)
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Status(r.Context(), "")
	if err != nil {
		s.logger.Error("failed to read crawl status", "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not retrieve status")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.manager.Stop(""); err != nil {
		s.logger.Error("failed to stop crawl", "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not stop crawl")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), database.DefaultListLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	items, err := s.store.ListItems(r.Context(), database.ListOptions{
		Limit:  limit,
		Offset: offset,
		Query:  q.Get("q"),
	})
	if err != nil {
		s.logger.Error("failed to list items", "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not list items")
		return
	}
	count, err := s.store.CountItems(r.Context())
	if err != nil {
		s.logger.Error("failed to count items", "error", err)
		respondWithError(w, http.StatusInternalServerError, "could not count items")
		return
	}
	if items == nil {
		items = []*model.FetchedPage{}
	}
	respondWithJSON(w, http.StatusOK, itemsResponse{Items: items, Count: count})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="items.ndjson"`)
	if err := s.store.ExportNDJSON(r.Context(), w); err != nil {
		// Headers are already sent once the first line is written.
		s.logger.Error("failed to export items", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountItems(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// intParam parses a non-negative integer query value.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
