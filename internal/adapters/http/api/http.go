// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/roster/internal/app"
	"github.com/okian/roster/internal/domain/model"
)

// StudentDependencies covers the student record operations.
type StudentDependencies interface {
	CreateStudent(ctx context.Context, in model.Student) (model.Student, error)
	GetStudent(ctx context.Context, id int64) (model.Student, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
	UpdateStudent(ctx context.Context, id int64, p model.Patch) (model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
}

// WebhookDependencies covers the subscriber registry.
type WebhookDependencies interface {
	ListWebhooks(ctx context.Context) ([]model.Subscriber, error)
	CreateWebhook(ctx context.Context, url string) (model.Subscriber, error)
	UpdateWebhook(ctx context.Context, id int64, url *string, active *bool) (model.Subscriber, error)
	DeleteWebhook(ctx context.Context, id int64) error
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StudentDependencies
	WebhookDependencies
	StatsProvider
}

// Route prefixes.
const (
	studentsPath = "/api/students"
	webhooksPath = "/api/webhooks"
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	studentsHandler *StudentsHandler
	webhooksHandler *WebhooksHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		studentsHandler: NewStudentsHandler(deps),
		webhooksHandler: NewWebhooksHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc(studentsPath, MetricsMiddleware(s.studentsHandler.HandleCollection, "students"))
	mux.HandleFunc(studentsPath+"/", MetricsMiddleware(s.studentsHandler.HandleItem, "student"))
	mux.HandleFunc(webhooksPath, MetricsMiddleware(s.webhooksHandler.HandleCollection, "webhooks"))
	mux.HandleFunc(webhooksPath+"/", MetricsMiddleware(s.webhooksHandler.HandleItem, "webhook"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service error kinds onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidID):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// pathID extracts a positive numeric id following prefix.
func pathID(path, prefix string) (int64, error) {
	raw := strings.TrimPrefix(path, prefix+"/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, ErrInvalidID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
