package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"safe-delete/internal/database"
	"safe-delete/internal/deletion"
)

const (
	defaultLogLimit  = 100
	maxLogLimit      = 1000
	defaultStatsDays = 7
	maxStatsDays     = 365
)

// DeletionsLogResponse is the API response for deletion log
type DeletionsLogResponse struct {
	Entries    []database.DeletionRecord `json:"entries"`
	TotalCount int                       `json:"total_count"`
	PageSize   int                       `json:"page_size"`
	Page       int                       `json:"page"`
	HasMore    bool                      `json:"has_more"`
}

// deletionsLogHandler handles GET /api/v1/deletions/log
func (a *API) deletionsLogHandler(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		respondError(w, "deletion history is disabled", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	limit := intParam(q.Get("limit"), defaultLogLimit, 1, maxLogLimit)
	page := intParam(q.Get("page"), 1, 1, 1<<20)

	f := database.Filter{
		Action: q.Get("action"),
		Kind:   q.Get("kind"),
		Path:   q.Get("path"),
	}
	if f.Action != "" && f.Action != "DELETE" && f.Action != "ERROR" {
		respondKindError(w, deletion.KindInvalidRequest, "action must be DELETE or ERROR")
		return
	}
	if f.Kind != "" {
		if _, ok := deletion.ParseKind(f.Kind); !ok {
			respondKindError(w, deletion.KindInvalidRequest, "unknown kind "+strconv.Quote(f.Kind))
			return
		}
	}

	offset := (page - 1) * limit
	records, total, err := a.opts.History.Query(f, limit, offset)
	if err != nil {
		a.opts.Logger.Error("deletion log query failed", "error", err)
		respondError(w, "failed to query deletion history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.DeletionRecord{}
	}

	respondJSON(w, DeletionsLogResponse{
		Entries:    records,
		TotalCount: total,
		PageSize:   limit,
		Page:       page,
		HasMore:    offset+limit < total,
	}, http.StatusOK)
}

// deletionHandler handles GET /api/v1/deletions/{request_id}
func (a *API) deletionHandler(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		respondError(w, "deletion history is disabled", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["request_id"]
	record, err := a.opts.History.GetDeletionByRequestID(id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, "no deletion with request id "+strconv.Quote(id), http.StatusNotFound)
		return
	}
	if err != nil {
		a.opts.Logger.Error("deletion lookup failed", "request_id", id, "error", err)
		respondError(w, "failed to query deletion history", http.StatusInternalServerError)
		return
	}
	respondJSON(w, record, http.StatusOK)
}

// deletionStatsHandler handles GET /api/v1/deletions/stats
func (a *API) deletionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		respondError(w, "deletion history is disabled", http.StatusServiceUnavailable)
		return
	}

	days := intParam(r.URL.Query().Get("days"), defaultStatsDays, 1, maxStatsDays)
	stats, err := a.opts.History.GetDeletionStats(days)
	if err != nil {
		a.opts.Logger.Error("deletion stats query failed", "error", err)
		respondError(w, "failed to query deletion history", http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

// intParam parses s, falling back to def when it is empty, malformed or out of range.
func intParam(s string, def, lo, hi int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}
