package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// WebhooksHandler serves /api/webhooks and /api/webhooks/{id}.
type WebhooksHandler struct {
	deps WebhookDependencies
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(deps WebhookDependencies) *WebhooksHandler {
	return &WebhooksHandler{deps: deps}
}

type webhookRequest struct {
	URL      *string         `json:"url"`
	IsActive json.RawMessage `json:"isActive"`
}

// active accepts true/false as well as 1/0.
func (r webhookRequest) active() (*bool, error) {
	if len(r.IsActive) == 0 || string(r.IsActive) == "null" {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(r.IsActive, &b); err == nil {
		return &b, nil
	}
	var n float64
	if err := json.Unmarshal(r.IsActive, &n); err == nil {
		b = n != 0
		return &b, nil
	}
	return nil, errors.New("isActive must be a boolean")
}

// HandleCollection handles GET and POST /api/webhooks.
func (h *WebhooksHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_webhook"
	switch r.Method {
	case http.MethodGet:
		subs, err := h.deps.ListWebhooks(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)
	case http.MethodPost:
		var req webhookRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		url := ""
		if req.URL != nil {
			url = *req.URL
		}
		sub, err := h.deps.CreateWebhook(r.Context(), url)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	default:
		http.NotFound(w, r)
	}
}

// HandleItem handles PUT and DELETE /api/webhooks/{id}.
func (h *WebhooksHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.webhook"
	id, err := pathID(r.URL.Path, webhooksPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var req webhookRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		active, err := req.active()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		sub, err := h.deps.UpdateWebhook(r.Context(), id, req.URL, active)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	case http.MethodDelete:
		if err := h.deps.DeleteWebhook(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Webhook deleted successfully"})
	default:
		http.NotFound(w, r)
	}
}
