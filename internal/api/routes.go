// Package api is the HTTP dispatcher in front of the deletion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"safe-delete/internal/api/middleware"
	"safe-delete/internal/auth"
	"safe-delete/internal/database"
	"safe-delete/internal/deletion"
)

// Deleter is the part of the deletion service the API drives.
type Deleter interface {
	Execute(req deletion.Request) deletion.Outcome
	DeleteBatch(ctx context.Context, reqs []deletion.Request) []deletion.Outcome
}

// History answers deletion log queries.
type History interface {
	Query(f database.Filter, limit, offset int) ([]database.DeletionRecord, int, error)
	GetDeletionByRequestID(requestID string) (*database.DeletionRecord, error)
	GetDeletionStats(days int) (*database.DeletionStats, error)
}

// Options configures the router. Nil History disables the log endpoints,
// nil Events disables the event stream and nil JWT disables authentication.
type Options struct {
	Service      Deleter
	History      History
	Events       http.Handler
	JWT          *auth.JWTManager
	Logger       *slog.Logger
	RateLimit    rate.Limit
	RateBurst    int
	MaxBodyBytes int64
	MaxBatchSize int
}

// API holds the handlers' dependencies.
type API struct {
	opts    Options
	limiter *middleware.RateLimiter
}

// New builds the API. Close releases the rate limiter.
func New(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 500
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 50
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 100
	}
	return &API{
		opts:    opts,
		limiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, 10*time.Minute),
	}
}

func (a *API) Close() {
	a.limiter.Stop()
}

// Router returns the HTTP handler with every route and middleware mounted.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(a.opts.Logger))
	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.RequestBodySizeLimitMiddleware(a.opts.MaxBodyBytes))
	router.Use(a.limiter.Middleware())

	router.HandleFunc("/api/v1/health", HealthHandler).Methods(http.MethodGet, http.MethodHead)

	protected := router.PathPrefix("/api/v1").Subrouter()
	if a.opts.JWT != nil {
		protected.Use(middleware.AuthMiddleware(a.opts.JWT))
	}

	protected.Handle("/delete", a.guard(auth.PermissionDelete, a.deleteHandler)).Methods(http.MethodPost)
	protected.Handle("/delete/batch", a.guard(auth.PermissionDelete, a.batchHandler)).Methods(http.MethodPost)
	protected.Handle("/deletions/log", a.guard(auth.PermissionViewLogs, a.deletionsLogHandler)).Methods(http.MethodGet)
	protected.Handle("/deletions/stats", a.guard(auth.PermissionViewLogs, a.deletionStatsHandler)).Methods(http.MethodGet)
	protected.Handle("/deletions/{request_id}", a.guard(auth.PermissionViewLogs, a.deletionHandler)).Methods(http.MethodGet)
	if a.opts.Events != nil {
		protected.Handle("/ws/events", a.guard(auth.PermissionViewLogs, a.opts.Events.ServeHTTP)).Methods(http.MethodGet)
	}

	return router
}

func (a *API) guard(permission string, h http.HandlerFunc) http.Handler {
	if a.opts.JWT == nil {
		return h
	}
	return middleware.RequirePermission(permission)(h)
}

// DeleteResponse is returned for a successful delete.
type DeleteResponse struct {
	Status    string `json:"status"`
	Path      string `json:"path"`
	RequestID string `json:"request_id"`
}

// ErrorResponse represents error message
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(k deletion.Kind) int {
	switch k {
	case deletion.KindNone:
		return http.StatusOK
	case deletion.KindInvalidRequest:
		return http.StatusBadRequest
	case deletion.KindPermissionDenied, deletion.KindRefused:
		return http.StatusForbidden
	case deletion.KindNotFound:
		return http.StatusNotFound
	case deletion.KindTypeMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DeleteRequest is the body of a delete. is_directory must be present;
// a body without it is rejected rather than treated as a file.
type DeleteRequest struct {
	Path        string `json:"path"`
	IsDirectory *bool  `json:"is_directory" validate:"required"`
}

func (d DeleteRequest) request() deletion.Request {
	return deletion.Request{Path: d.Path, IsDirectory: *d.IsDirectory}
}

func (a *API) deleteHandler(w http.ResponseWriter, r *http.Request) {
	var body DeleteRequest
	if !a.decode(w, r, &body) || !checkBody(w, &body) {
		return
	}
	req := body.request()

	out := a.opts.Service.Execute(req)
	if !out.OK() {
		respondJSON(w, ErrorResponse{
			Error:     out.Kind.String(),
			Code:      StatusFor(out.Kind),
			Message:   out.Message,
			RequestID: out.RequestID,
		}, StatusFor(out.Kind))
		return
	}
	respondJSON(w, DeleteResponse{Status: "success", Path: req.Path, RequestID: out.RequestID}, http.StatusOK)
}

// BatchRequest is the body of a batch delete.
type BatchRequest struct {
	Requests []DeleteRequest `json:"requests" validate:"dive"`
}

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Status      string `json:"status"`
	RequestID   string `json:"request_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Message     string `json:"message,omitempty"`
}

// BatchResponse lists results in request order.
type BatchResponse struct {
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

func (a *API) batchHandler(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if !a.decode(w, r, &body) {
		return
	}
	if len(body.Requests) == 0 {
		respondKindError(w, deletion.KindInvalidRequest, "batch contains no requests")
		return
	}
	if len(body.Requests) > a.opts.MaxBatchSize {
		respondKindError(w, deletion.KindInvalidRequest, "batch exceeds the maximum size")
		return
	}
	if !checkBody(w, &body) {
		return
	}

	reqs := make([]deletion.Request, len(body.Requests))
	for i, d := range body.Requests {
		reqs[i] = d.request()
	}
	outcomes := a.opts.Service.DeleteBatch(r.Context(), reqs)

	resp := BatchResponse{Results: make([]BatchResult, len(outcomes))}
	for i, out := range outcomes {
		res := BatchResult{
			Path:        reqs[i].Path,
			IsDirectory: reqs[i].IsDirectory,
			Status:      "success",
			RequestID:   out.RequestID,
		}
		if out.OK() {
			resp.Succeeded++
		} else {
			res.Status = "failure"
			res.Kind = out.Kind.String()
			res.Message = out.Message
			resp.Failed++
		}
		resp.Results[i] = res
	}
	respondJSON(w, resp, http.StatusOK)
}

// decode reads a JSON body into v and writes the error response on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		respondKindError(w, deletion.KindInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// checkBody validates a decoded body and writes the error response on failure.
func checkBody(w http.ResponseWriter, v interface{}) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		respondKindError(w, deletion.KindInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	// drop the struct name: "DeleteRequest.is_directory" -> "is_directory"
	field := fieldErrs[0].Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	msg := field + " is required"
	if fieldErrs[0].Tag() != "required" {
		msg = field + " is invalid"
	}
	respondKindError(w, deletion.KindInvalidRequest, msg)
	return false
}

// HealthHandler returns server health status
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
	}, status)
}

func respondKindError(w http.ResponseWriter, k deletion.Kind, message string) {
	status := StatusFor(k)
	respondJSON(w, ErrorResponse{Error: k.String(), Code: status, Message: message}, status)
}
