// Package server exposes contributor reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/naka-gawa/contributor-stats/internal/config"
	"github.com/naka-gawa/contributor-stats/internal/domain"
	"github.com/naka-gawa/contributor-stats/internal/usecase"
	"go.uber.org/zap"
)

const (
	minCacheSeconds = 4 * 60 * 60
	maxCacheSeconds = 24 * 60 * 60
)

// ReportGenerator builds a report for one request.
type ReportGenerator interface {
	Generate(ctx context.Context, req usecase.Request) (*domain.Report, error)
}

// Handler serves the report API.
type Handler struct {
	generator ReportGenerator
	defaults  *config.Config
	token     string
	logger    *zap.Logger
}

// NewHandler wires the report, metrics and health endpoints on a single router.
// defaults supplies values for query parameters that are not given.
func NewHandler(generator ReportGenerator, defaults *config.Config, token string, metricsHandler http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metricsHandler == nil {
		metricsHandler = http.NotFoundHandler()
	}
	h := &Handler{
		generator: generator,
		defaults:  defaults,
		token:     token,
		logger:    logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/api", h.report)
	router.Handle("/metrics", metricsHandler)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	req, cacheSeconds, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to generate report", zap.String("user", req.Username), zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", cacheSeconds))
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) parseRequest(r *http.Request) (usecase.Request, int, error) {
	q := r.URL.Query()
	req := usecase.Request{
		ProcessOptions: usecase.ProcessOptions{
			Username:     strings.TrimSpace(q.Get("username")),
			Columns:      h.defaults.Columns,
			OrderBy:      h.defaults.OrderBy,
			Limit:        h.defaults.Limit,
			Exclude:      h.defaults.Exclude,
			Token:        h.token,
			EmbedAvatars: h.defaults.EmbedAvatars,
		},
		CombineAllYears: h.defaults.CombineAllYearlyContributions,
	}
	if req.Username == "" {
		return req, 0, errors.New("username is required")
	}

	if raw := q.Get("columns"); raw != "" {
		columns, err := domain.ParseColumns(raw)
		if err != nil {
			return req, 0, err
		}
		req.Columns = columns
	}
	hide := h.defaults.Hide
	if raw := q.Get("hide"); raw != "" {
		parsed, err := domain.ParseRankList(raw)
		if err != nil {
			return req, 0, err
		}
		hide = parsed
	}
	req.Columns = domain.MergeHide(req.Columns, hide)

	if raw := q.Get("order_by"); raw != "" {
		orderBy, err := domain.ParseOrderBy(raw)
		if err != nil {
			return req, 0, err
		}
		req.OrderBy = orderBy
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return req, 0, fmt.Errorf("invalid limit %q", raw)
		}
		req.Limit = limit
	}
	if raw := q.Get("exclude"); raw != "" {
		req.Exclude = domain.SplitList(raw)
	}
	if raw := q.Get("combine_all_yearly_contributions"); raw != "" {
		combine, err := strconv.ParseBool(raw)
		if err != nil {
			return req, 0, fmt.Errorf("invalid combine_all_yearly_contributions %q", raw)
		}
		req.CombineAllYears = combine
	}

	cacheSeconds := h.defaults.Server.CacheSeconds
	if raw := q.Get("cache_seconds"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return req, 0, fmt.Errorf("invalid cache_seconds %q", raw)
		}
		cacheSeconds = parsed
	}
	return req, clampCacheSeconds(cacheSeconds), nil
}

func clampCacheSeconds(seconds int) int {
	return min(max(seconds, minCacheSeconds), maxCacheSeconds)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
