package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/auth"
	"copytrader/src/bus"
	"copytrader/src/model"
	"copytrader/src/security"
)

type webhookWriter interface {
	Create(ctx context.Context, webhook *model.Webhook) error
	FindByID(ctx context.Context, id uint) (*model.Webhook, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Webhook, error)
	Deactivate(ctx context.Context, id uint) error
}

type registerWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type registerWebhookResponse struct {
	ID     uint     `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`

	// Secret is returned here and never again.
	Secret string `json:"secret"`
}

var knownEventTypes = map[string]bool{
	bus.TopicTradeFilled.EventType():        true,
	bus.TopicCopyOrderQueued.EventType():    true,
	bus.TopicCopyOrderCancelled.EventType(): true,
	bus.TopicFollowerAdded.EventType():      true,
	bus.TopicSessionStarted.EventType():     true,
}

// RegisterWebhookHandler creates a webhook registration for the
// authenticated user. The HMAC secret is generated server-side and included
// in this response only.
func RegisterWebhookHandler(repo webhookWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req registerWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			http.Error(w, "invalid url", http.StatusBadRequest)
			return
		}

		if len(req.Events) == 0 {
			http.Error(w, "at least one event type required", http.StatusBadRequest)
			return
		}
		events := make([]string, 0, len(req.Events))
		for _, event := range req.Events {
			event = strings.ToUpper(strings.TrimSpace(event))
			if !knownEventTypes[event] {
				http.Error(w, "unknown event type: "+event, http.StatusBadRequest)
				return
			}
			events = append(events, event)
		}

		webhook := &model.Webhook{
			OwnerID: ownerID,
			URL:     req.URL,
			Events:  strings.Join(events, ","),
			Secret:  security.NewWebhookSecret(),
			Active:  true,
		}
		if err := repo.Create(r.Context(), webhook); err != nil {
			logger.WithError(err).Error("failed to register webhook")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(registerWebhookResponse{
			ID:     webhook.ID,
			URL:    webhook.URL,
			Events: events,
			Secret: webhook.Secret,
		}); err != nil {
			logger.WithError(err).Error("failed to encode webhook response")
		}
	}
}

// ListWebhooksHandler lists the authenticated user's registrations. Secrets
// are excluded by the model's JSON mapping.
func ListWebhooksHandler(repo webhookWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		webhooks, err := repo.ListByOwner(r.Context(), ownerID)
		if err != nil {
			logger.WithError(err).Error("failed to list webhooks")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(webhooks); err != nil {
			logger.WithError(err).Error("failed to encode webhook list")
		}
	}
}

// DeleteWebhookHandler deactivates a registration owned by the caller.
func DeleteWebhookHandler(repo webhookWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid webhook id", http.StatusBadRequest)
			return
		}

		webhook, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch webhook")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if webhook == nil || webhook.OwnerID != ownerID {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		if err := repo.Deactivate(r.Context(), webhook.ID); err != nil {
			logger.WithError(err).Error("failed to deactivate webhook")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
