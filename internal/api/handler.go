// Package api exposes the admin HTTP surface: run triggers, recomputes, and
// read-only views of runs, watermarks, and rejections.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/coverlake/coverlake/internal/curated"
	"github.com/coverlake/coverlake/internal/domain"
	"github.com/coverlake/coverlake/internal/orchestrator"
	"github.com/coverlake/coverlake/internal/repository"
	"github.com/coverlake/coverlake/internal/schema"
)

const defaultListLimit = 50

// Pinger checks backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the admin API.
type Handler struct {
	orch     *orchestrator.Orchestrator
	registry *schema.Registry
	runRepo  repository.JobRunRepository
	wmRepo   repository.WatermarkRepository
	rejRepo  repository.RejectionLogRepository
	curRepo  repository.CuratedRepository
	pinger   Pinger
	log      *slog.Logger
}

// NewHandler creates the admin API handler.
func NewHandler(
	orch *orchestrator.Orchestrator,
	registry *schema.Registry,
	runRepo repository.JobRunRepository,
	wmRepo repository.WatermarkRepository,
	rejRepo repository.RejectionLogRepository,
	curRepo repository.CuratedRepository,
	pinger Pinger,
	log *slog.Logger,
) *Handler {
	return &Handler{
		orch:     orch,
		registry: registry,
		runRepo:  runRepo,
		wmRepo:   wmRepo,
		rejRepo:  rejRepo,
		curRepo:  curRepo,
		pinger:   pinger,
		log:      log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && path == "/healthz":
		h.handleHealth(w, r)
	case r.Method == http.MethodGet && path == "/api/runs":
		h.handleListRuns(w, r)
	case r.Method == http.MethodGet && path == "/api/watermarks":
		h.handleListWatermarks(w, r)
	case r.Method == http.MethodGet && path == "/api/rejections":
		h.handleListRejections(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/status/"):
		h.handleStatus(w, r, strings.TrimPrefix(path, "/api/status/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/curated/"):
		h.handleListCurated(w, r, strings.TrimPrefix(path, "/api/curated/"))
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/run/"):
		h.handleRun(w, r, strings.TrimPrefix(path, "/api/run/"))
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/recompute/"):
		h.handleRecompute(w, r, strings.TrimPrefix(path, "/api/recompute/"))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("database unreachable: %v", err), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, dataset string) {
	if _, err := h.registry.Get(dataset); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	run, err := h.orch.Run(r.Context(), dataset)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		// The run completed with a FAILED status; the record carries the
		// details the caller needs.
		writeJSON(w, http.StatusInternalServerError, run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request, table string) {
	result, err := h.orch.Recompute(r.Context(), table)
	if err != nil {
		if errors.Is(err, curated.ErrUnknownTable) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, dataset string) {
	if _, err := h.registry.Get(dataset); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	status, err := h.orch.Status(r.Context(), dataset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	runs, err := h.runRepo.ListByDataset(r.Context(), dataset, queryLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleListWatermarks(w http.ResponseWriter, r *http.Request) {
	datasets := h.registry.Datasets()
	if only := r.URL.Query().Get("dataset"); only != "" {
		datasets = []string{only}
	}
	marks := make([]domain.Watermark, 0, len(datasets))
	for _, dataset := range datasets {
		mark, err := h.wmRepo.Get(r.Context(), dataset, domain.TransitionRawToStaging)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		marks = append(marks, mark)
	}
	writeJSON(w, http.StatusOK, marks)
}

func (h *Handler) handleListRejections(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	entries, err := h.rejRepo.List(r.Context(), dataset, queryLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleListCurated(w http.ResponseWriter, r *http.Request, table string) {
	var payload any
	var err error
	switch table {
	case domain.CuratedLossRatio:
		payload, err = h.curRepo.ListLossRatios(r.Context())
	case domain.CuratedGeoFraud:
		payload, err = h.curRepo.ListFraudFlags(r.Context())
	case domain.CuratedSolvency:
		payload, err = h.curRepo.ListSolvency(r.Context())
	default:
		http.Error(w, fmt.Sprintf("unknown curated table %q", table), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
