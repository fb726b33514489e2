package orders

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"copytrader/src/bus"
	"copytrader/src/model"
)

var (
	ErrNotFound          = errors.New("copy order not found")
	ErrIllegalTransition = errors.New("illegal copy order transition")
)

type copyOrderStore interface {
	Create(ctx context.Context, order *model.CopyOrder) error
	FindByID(ctx context.Context, id uint) (*model.CopyOrder, error)
	TransitionStatus(ctx context.Context, id uint, fromStatus, toStatus string, filledAt *time.Time) (bool, error)
}

// Manager owns the CopyOrder lifecycle: queued -> filled | cancelled |
// failed. Cancellation is only legal from queued; the terminal states are
// set by the external execution collaborator through MarkFilled/MarkFailed
// so fills stay observable for analytics.
type Manager struct {
	store copyOrderStore
	bus   *bus.Bus
	now   func() time.Time
}

func NewManager(store copyOrderStore, eventBus *bus.Bus) *Manager {
	return &Manager{store: store, bus: eventBus, now: time.Now}
}

// Queue materializes a new copy order in queued status.
func (m *Manager) Queue(ctx context.Context, order *model.CopyOrder) error {
	order.Status = model.CopyOrderStatusQueued

	if err := m.store.Create(ctx, order); err != nil {
		return err
	}

	if m.bus != nil {
		m.bus.Publish(bus.TopicCopyOrderQueued, bus.CopyOrderQueued{CopyOrder: *order})
	}
	return nil
}

// Cancel moves a queued order to cancelled. The conditional transition in
// the store makes this race-safe against a concurrent fill.
func (m *Manager) Cancel(ctx context.Context, id uint, reason string) error {
	order, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}

	moved, err := m.store.TransitionStatus(ctx, id, model.CopyOrderStatusQueued, model.CopyOrderStatusCancelled, nil)
	if err != nil {
		return err
	}
	if !moved {
		return ErrIllegalTransition
	}

	order.Status = model.CopyOrderStatusCancelled

	logger.WithFields(map[string]interface{}{
		"component": "CopyOrderManager",
		"order_id":  id,
		"reason":    reason,
	}).Info("Copy order cancelled")

	if m.bus != nil {
		m.bus.Publish(bus.TopicCopyOrderCancelled, bus.CopyOrderCancelled{CopyOrder: *order, Reason: reason})
	}
	return nil
}

// MarkFilled records the terminal fill reported by the execution
// collaborator.
func (m *Manager) MarkFilled(ctx context.Context, id uint, filledAt time.Time) error {
	if filledAt.IsZero() {
		filledAt = m.now()
	}

	moved, err := m.store.TransitionStatus(ctx, id, model.CopyOrderStatusQueued, model.CopyOrderStatusFilled, &filledAt)
	if err != nil {
		return err
	}
	if !moved {
		return ErrIllegalTransition
	}

	logger.WithFields(map[string]interface{}{
		"component": "CopyOrderManager",
		"order_id":  id,
	}).Info("Copy order filled")

	return nil
}

// MarkFailed records a terminal execution failure.
func (m *Manager) MarkFailed(ctx context.Context, id uint) error {
	moved, err := m.store.TransitionStatus(ctx, id, model.CopyOrderStatusQueued, model.CopyOrderStatusFailed, nil)
	if err != nil {
		return err
	}
	if !moved {
		return ErrIllegalTransition
	}

	logger.WithFields(map[string]interface{}{
		"component": "CopyOrderManager",
		"order_id":  id,
	}).Warn("Copy order failed")

	return nil
}
