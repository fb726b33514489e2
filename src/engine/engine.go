package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrader/src/bus"
	"copytrader/src/model"
	"copytrader/src/sizing"
)

type followerStore interface {
	ListCopiers(ctx context.Context, leaderID uint) ([]model.FollowerRelationship, error)
}

type guardrailStore interface {
	FindApplicable(ctx context.Context, followerID uint, symbol string) (*model.Guardrail, error)
}

type rejectionStore interface {
	RecordRejection(ctx context.Context, rejection *model.CopyRejection) error
}

type orderQueuer interface {
	Queue(ctx context.Context, order *model.CopyOrder) error
}

// Engine derives copy orders from leader fills: for every auto-copy
// follower it computes a position size, validates it against the applicable
// guardrail and queues the resulting order. Guardrail violations are
// expected business outcomes (clamp or reject), never errors.
type Engine struct {
	cfg        Config
	followers  followerStore
	guardrails guardrailStore
	rejections rejectionStore
	orders     orderQueuer
	strategies *sizing.Factory
	logger     *logrus.Entry
}

func NewEngine(
	cfg Config,
	followers followerStore,
	guardrails guardrailStore,
	rejections rejectionStore,
	orders orderQueuer,
	strategies *sizing.Factory,
	log *logrus.Entry,
) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		cfg:        cfg,
		followers:  followers,
		guardrails: guardrails,
		rejections: rejections,
		orders:     orders,
		strategies: strategies,
		logger:     log,
	}
}

// Rejection is a follower for whom no copy order was created, with the
// retained reason.
type Rejection struct {
	FollowerID uint
	Reason     string
}

// EvaluationResult aggregates one leader fill's fan-out across followers.
type EvaluationResult struct {
	Created   []model.CopyOrder
	Adjusted  int
	Rejected  []Rejection
	Errors    []error
	Followers int
}

// Register subscribes the engine to leader fill events.
func (e *Engine) Register(eventBus *bus.Bus) {
	eventBus.Subscribe(bus.TopicTradeFilled, "guardrail-engine", func(event bus.Event) {
		payload, ok := event.Payload.(bus.TradeFilled)
		if !ok {
			e.logger.WithField("event_id", event.ID).Warn("unexpected payload on trade.filled")
			return
		}
		e.HandleTradeFilled(context.Background(), payload)
	})
}

// HandleTradeFilled evaluates every eligible follower of the leader.
// Followers are processed concurrently and independently: one follower's
// failure never blocks the others.
func (e *Engine) HandleTradeFilled(ctx context.Context, event bus.TradeFilled) EvaluationResult {
	result := EvaluationResult{}

	edges, err := e.followers.ListCopiers(ctx, event.UserID)
	if err != nil {
		e.logger.WithError(err).WithField("leader_id", event.UserID).Error("failed to list copiers")
		result.Errors = append(result.Errors, err)
		return result
	}
	result.Followers = len(edges)
	if len(edges) == 0 {
		return result
	}

	var mu sync.Mutex
	group := &errgroup.Group{}
	if e.cfg.FollowerConcurrency > 0 {
		group.SetLimit(e.cfg.FollowerConcurrency)
	}

	for i := range edges {
		edge := edges[i]
		group.Go(func() error {
			order, rejection, err := e.evaluateFollower(ctx, &edge, &event.Trade)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				e.logger.WithError(err).WithFields(logrus.Fields{
					"follower_id": edge.FollowerID,
					"trade_id":    event.Trade.ID,
				}).Error("follower evaluation failed")
				result.Errors = append(result.Errors, err)
			case rejection != nil:
				result.Rejected = append(result.Rejected, *rejection)
			case order != nil:
				result.Created = append(result.Created, *order)
				if order.Adjusted {
					result.Adjusted++
				}
			}
			// Always nil: sibling evaluations must not be cancelled.
			return nil
		})
	}
	_ = group.Wait()

	e.logger.WithFields(logrus.Fields{
		"trade_id":  event.Trade.ID,
		"leader_id": event.UserID,
		"followers": result.Followers,
		"created":   len(result.Created),
		"adjusted":  result.Adjusted,
		"rejected":  len(result.Rejected),
		"errors":    len(result.Errors),
	}).Info("guardrail evaluation complete")

	return result
}

func (e *Engine) evaluateFollower(ctx context.Context, edge *model.FollowerRelationship, trade *model.Trade) (*model.CopyOrder, *Rejection, error) {
	strategy := e.strategies.ForEdge(edge)

	size, err := strategy.Size(ctx, sizing.Inputs{
		LeaderID:         edge.LeaderID,
		FollowerID:       edge.FollowerID,
		Symbol:           trade.Symbol,
		Side:             trade.Side,
		LeaderQuantity:   trade.Quantity,
		FillPrice:        trade.FillPrice,
		AllocatedCapital: edge.AllocatedCapital,
		Ratio:            edge.SizingRatio,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sizing (%s): %w", strategy.Name(), err)
	}

	quantity := size.Quantity
	adjusted := false
	adjustReason := ""

	guardrail, err := e.guardrails.FindApplicable(ctx, edge.FollowerID, trade.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("guardrail lookup: %w", err)
	}

	if guardrail != nil {
		quantity, adjusted, adjustReason = e.applyGuardrail(guardrail, edge, trade, quantity)
	}

	if quantity.LessThanOrEqual(decimal.Zero) {
		reason := adjustReason
		if reason == "" {
			reason = fmt.Sprintf("%s strategy produced zero size", strategy.Name())
		}
		rejection := &Rejection{FollowerID: edge.FollowerID, Reason: reason}
		e.recordRejection(ctx, edge, trade, reason)
		return nil, rejection, nil
	}

	order := &model.CopyOrder{
		FollowerID:    edge.FollowerID,
		LeaderTradeID: trade.ID,
		Symbol:        trade.Symbol,
		Side:          trade.Side,
		Quantity:      quantity,
		Adjusted:      adjusted,
		AdjustReason:  adjustReason,
	}
	if err := e.orders.Queue(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("queue copy order: %w", err)
	}
	return order, nil, nil
}

// applyGuardrail clamps the quantity to the tighter of the percent-of-
// capital and absolute-size limits. When clamping is disabled, exceeding a
// limit zeroes the quantity so the caller rejects it.
func (e *Engine) applyGuardrail(guardrail *model.Guardrail, edge *model.FollowerRelationship, trade *model.Trade, quantity decimal.Decimal) (decimal.Decimal, bool, string) {
	adjusted := false
	reason := ""

	if guardrail.MaxPositionPct.GreaterThan(decimal.Zero) &&
		edge.AllocatedCapital.GreaterThan(decimal.Zero) &&
		trade.FillPrice.GreaterThan(decimal.Zero) {

		limitQty := guardrail.MaxPositionPct.
			Div(decimal.NewFromInt(100)).
			Mul(edge.AllocatedCapital).
			Div(trade.FillPrice)

		if quantity.GreaterThan(limitQty) {
			if !e.cfg.ClampToLimit {
				return decimal.Zero, false, fmt.Sprintf("size exceeds max position pct %s", guardrail.MaxPositionPct)
			}
			quantity = limitQty
			adjusted = true
			reason = fmt.Sprintf("clamped to max position pct %s", guardrail.MaxPositionPct)
		}
	}

	if guardrail.MaxPositionSize.GreaterThan(decimal.Zero) && quantity.GreaterThan(guardrail.MaxPositionSize) {
		if !e.cfg.ClampToLimit {
			return decimal.Zero, false, fmt.Sprintf("size exceeds max position size %s", guardrail.MaxPositionSize)
		}
		quantity = guardrail.MaxPositionSize
		adjusted = true
		reason = fmt.Sprintf("clamped to max position size %s", guardrail.MaxPositionSize)
	}

	return quantity, adjusted, reason
}

func (e *Engine) recordRejection(ctx context.Context, edge *model.FollowerRelationship, trade *model.Trade, reason string) {
	if e.rejections == nil {
		return
	}
	rejection := &model.CopyRejection{
		FollowerID:    edge.FollowerID,
		LeaderTradeID: trade.ID,
		Symbol:        trade.Symbol,
		Reason:        reason,
	}
	if err := e.rejections.RecordRejection(ctx, rejection); err != nil {
		e.logger.WithError(err).WithField("follower_id", edge.FollowerID).Error("failed to record rejection")
	}
}
