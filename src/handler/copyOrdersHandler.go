package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/auth"
	"copytrader/src/model"
	"copytrader/src/orders"
	"copytrader/src/repository"
)

type copyOrderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.CopyOrder, error)
}

type copyOrderFinder interface {
	FindByID(ctx context.Context, id uint) (*model.CopyOrder, error)
}

type copyOrderCanceller interface {
	Cancel(ctx context.Context, id uint, reason string) error
}

// SearchCopyOrdersHandler lists the authenticated follower's copy orders.
// Supports pagination and filters (status, symbol).
func SearchCopyOrdersHandler(repo copyOrderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		followerID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			switch statusParam {
			case model.CopyOrderStatusQueued, model.CopyOrderStatusFilled,
				model.CopyOrderStatusCancelled, model.CopyOrderStatusFailed:
				status = &statusParam
			default:
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
		}

		var symbol *string
		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			symbol = &symbolParam
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		results, err := repo.Search(r.Context(), repository.OrderSearchOptions{
			FollowerID: followerID,
			Status:     status,
			Symbol:     symbol,
			Limit:      pageSize,
			Offset:     (page - 1) * pageSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search copy orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			logger.WithError(err).Error("failed to encode copy order search response")
		}
	}
}

type cancelCopyOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelCopyOrderHandler cancels a queued copy order through the lifecycle
// manager. Only queued orders can be cancelled.
func CancelCopyOrderHandler(manager copyOrderCanceller, repo copyOrderFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		followerID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		// Ownership check before the transition so another user's order id
		// yields 404, not 409.
		order, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch copy order")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if order == nil || order.FollowerID != followerID {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		var req cancelCopyOrderRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if req.Reason == "" {
			req.Reason = "cancelled by user"
		}

		err = manager.Cancel(r.Context(), uint(id), req.Reason)
		switch {
		case errors.Is(err, orders.ErrNotFound):
			http.Error(w, "Not Found", http.StatusNotFound)
		case errors.Is(err, orders.ErrIllegalTransition):
			http.Error(w, "order is not cancellable", http.StatusConflict)
		case err != nil:
			logger.WithError(err).Error("failed to cancel copy order")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
