package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrader/src/bus"
	"copytrader/src/model"
)

type alertTargetStore interface {
	ListAlertTargets(ctx context.Context, leaderID uint) ([]model.FollowerRelationship, error)
}

type deviceTokenStore interface {
	ListActiveByUsers(ctx context.Context, userIDs []uint) (map[uint][]model.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
}

type broadcaster interface {
	Broadcast(message []byte)
}

// HandleResolver maps a user id to a public display handle for
// notification copy. Resolution failures fall back to an anonymous handle.
type HandleResolver func(ctx context.Context, userID uint) (string, error)

// Fanout subscribes to domain events and spreads each one across the
// delivery channels: push notifications to follower devices, signed
// webhooks and the live session hub. Channels settle independently; a
// failure on one never suppresses the others.
type Fanout struct {
	cfg       Config
	followers alertTargetStore
	devices   deviceTokenStore
	push      PushProvider
	webhooks  *WebhookDispatcher
	hub       broadcaster
	handles   HandleResolver
}

func NewFanout(
	cfg Config,
	followers alertTargetStore,
	devices deviceTokenStore,
	push PushProvider,
	webhooks *WebhookDispatcher,
	hub broadcaster,
	handles HandleResolver,
) *Fanout {
	if push == nil {
		push = NoopProvider{}
	}
	return &Fanout{
		cfg:       cfg,
		followers: followers,
		devices:   devices,
		push:      push,
		webhooks:  webhooks,
		hub:       hub,
		handles:   handles,
	}
}

// Register subscribes the fan-out to every externally visible topic.
func (f *Fanout) Register(eventBus *bus.Bus) {
	eventBus.Subscribe(bus.TopicTradeFilled, "delivery-fanout", func(event bus.Event) {
		if payload, ok := event.Payload.(bus.TradeFilled); ok {
			f.HandleTradeFilled(context.Background(), payload)
		}
	})
	eventBus.Subscribe(bus.TopicCopyOrderCancelled, "delivery-fanout", func(event bus.Event) {
		if payload, ok := event.Payload.(bus.CopyOrderCancelled); ok {
			f.HandleCopyOrderCancelled(context.Background(), payload)
		}
	})
	eventBus.Subscribe(bus.TopicFollowerAdded, "delivery-fanout", func(event bus.Event) {
		if payload, ok := event.Payload.(bus.FollowerAdded); ok {
			f.HandleFollowerAdded(context.Background(), payload)
		}
	})
	eventBus.Subscribe(bus.TopicSessionStarted, "delivery-fanout", func(event bus.Event) {
		if payload, ok := event.Payload.(bus.SessionStarted); ok {
			f.HandleSessionStarted(context.Background(), payload)
		}
	})
}

// FanoutReport aggregates one event's spread across the channels.
type FanoutReport struct {
	PushSent      int
	PushFailed    int
	TokensDropped int
	WebhooksSent  int
	WebhooksFail  int
}

// HandleTradeFilled notifies every alert-subscribed follower of a leader
// fill, posts the event to webhooks and streams it to session viewers.
func (f *Fanout) HandleTradeFilled(ctx context.Context, event bus.TradeFilled) FanoutReport {
	report := FanoutReport{}
	handle := f.resolveHandle(ctx, event.UserID)

	notification := Notification{
		Title: fmt.Sprintf("%s traded %s", handle, event.Trade.Symbol),
		Body: fmt.Sprintf("%s %s %s @ %s",
			event.Trade.Side, event.Trade.Quantity, event.Trade.Symbol, event.Trade.FillPrice),
		Data: map[string]string{
			"event":    bus.TopicTradeFilled.EventType(),
			"leader":   fmt.Sprintf("%d", event.UserID),
			"trade_id": fmt.Sprintf("%d", event.Trade.ID),
			"symbol":   event.Trade.Symbol,
			"side":     event.Trade.Side,
		},
	}

	targets, err := f.followers.ListAlertTargets(ctx, event.UserID)
	if err != nil {
		logger.WithError(err).WithField("leader_id", event.UserID).Error("Failed to resolve alert targets")
	} else {
		report = f.pushToFollowers(ctx, targets, notification, report)
	}

	report.WebhooksSent, report.WebhooksFail = f.dispatchWebhooks(ctx, bus.TopicTradeFilled, event)
	f.broadcast(bus.TopicTradeFilled, event)

	logger.WithFields(map[string]interface{}{
		"leader_id":      event.UserID,
		"trade_id":       event.Trade.ID,
		"push_sent":      report.PushSent,
		"push_failed":    report.PushFailed,
		"tokens_dropped": report.TokensDropped,
		"webhooks_sent":  report.WebhooksSent,
		"webhooks_fail":  report.WebhooksFail,
	}).Info("Trade fill fanned out")

	return report
}

// HandleCopyOrderCancelled notifies the affected follower and webhooks.
func (f *Fanout) HandleCopyOrderCancelled(ctx context.Context, event bus.CopyOrderCancelled) FanoutReport {
	report := FanoutReport{}

	notification := Notification{
		Title: fmt.Sprintf("Copy order for %s cancelled", event.CopyOrder.Symbol),
		Body:  event.Reason,
		Data: map[string]string{
			"event":    bus.TopicCopyOrderCancelled.EventType(),
			"order_id": fmt.Sprintf("%d", event.CopyOrder.ID),
			"symbol":   event.CopyOrder.Symbol,
		},
	}

	report = f.pushToUsers(ctx, []uint{event.CopyOrder.FollowerID}, notification, report)
	report.WebhooksSent, report.WebhooksFail = f.dispatchWebhooks(ctx, bus.TopicCopyOrderCancelled, event)
	f.broadcast(bus.TopicCopyOrderCancelled, event)
	return report
}

// HandleFollowerAdded notifies the leader that someone started following.
func (f *Fanout) HandleFollowerAdded(ctx context.Context, event bus.FollowerAdded) FanoutReport {
	report := FanoutReport{}
	handle := f.resolveHandle(ctx, event.FollowerID)

	notification := Notification{
		Title: "New follower",
		Body:  fmt.Sprintf("%s is now copying your trades", handle),
		Data: map[string]string{
			"event":    bus.TopicFollowerAdded.EventType(),
			"follower": fmt.Sprintf("%d", event.FollowerID),
		},
	}

	report = f.pushToUsers(ctx, []uint{event.LeaderID}, notification, report)
	report.WebhooksSent, report.WebhooksFail = f.dispatchWebhooks(ctx, bus.TopicFollowerAdded, event)
	return report
}

// HandleSessionStarted announces a live session to followers and viewers.
func (f *Fanout) HandleSessionStarted(ctx context.Context, event bus.SessionStarted) FanoutReport {
	report := FanoutReport{}
	handle := f.resolveHandle(ctx, event.LeaderID)

	notification := Notification{
		Title: fmt.Sprintf("%s is live", handle),
		Body:  "A trading session just started",
		Data: map[string]string{
			"event":  bus.TopicSessionStarted.EventType(),
			"leader": fmt.Sprintf("%d", event.LeaderID),
		},
	}

	targets, err := f.followers.ListAlertTargets(ctx, event.LeaderID)
	if err != nil {
		logger.WithError(err).WithField("leader_id", event.LeaderID).Error("Failed to resolve alert targets")
	} else {
		report = f.pushToFollowers(ctx, targets, notification, report)
	}

	report.WebhooksSent, report.WebhooksFail = f.dispatchWebhooks(ctx, bus.TopicSessionStarted, event)
	f.broadcast(bus.TopicSessionStarted, event)
	return report
}

func (f *Fanout) pushToFollowers(ctx context.Context, targets []model.FollowerRelationship, notification Notification, report FanoutReport) FanoutReport {
	userIDs := make([]uint, 0, len(targets))
	for i := range targets {
		userIDs = append(userIDs, targets[i].FollowerID)
	}
	return f.pushToUsers(ctx, userIDs, notification, report)
}

func (f *Fanout) pushToUsers(ctx context.Context, userIDs []uint, notification Notification, report FanoutReport) FanoutReport {
	if f.devices == nil || len(userIDs) == 0 {
		return report
	}

	tokensByUser, err := f.devices.ListActiveByUsers(ctx, userIDs)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve device tokens")
		return report
	}

	var tokens []string
	for _, userTokens := range tokensByUser {
		for i := range userTokens {
			tokens = append(tokens, userTokens[i].Token)
		}
	}
	if len(tokens) == 0 {
		return report
	}

	results, err := f.push.Send(ctx, tokens, notification)
	if err != nil {
		logger.WithError(err).WithField("tokens", len(tokens)).Error("Push send failed")
		report.PushFailed += len(tokens)
		return report
	}

	group := &errgroup.Group{}
	if f.cfg.FanoutConcurrency > 0 {
		group.SetLimit(f.cfg.FanoutConcurrency)
	}
	for i := range results {
		result := results[i]
		if result.Success {
			report.PushSent++
			continue
		}
		report.PushFailed++
		if result.Unregistered {
			report.TokensDropped++
			group.Go(func() error {
				if err := f.devices.Deactivate(ctx, result.Token); err != nil {
					logger.WithError(err).Warn("Failed to deactivate dead token")
				}
				return nil
			})
		}
	}
	_ = group.Wait()

	return report
}

func (f *Fanout) dispatchWebhooks(ctx context.Context, topic bus.Topic, payload interface{}) (int, int) {
	if f.webhooks == nil {
		return 0, 0
	}
	return f.webhooks.DispatchEvent(ctx, topic.EventType(), payload)
}

func (f *Fanout) broadcast(topic bus.Topic, payload interface{}) {
	if f.hub == nil {
		return
	}
	message, err := json.Marshal(map[string]interface{}{
		"event": topic.EventType(),
		"data":  payload,
	})
	if err != nil {
		logger.WithError(err).WithField("topic", topic).Warn("Failed to marshal hub message")
		return
	}
	f.hub.Broadcast(message)
}

func (f *Fanout) resolveHandle(ctx context.Context, userID uint) string {
	if f.handles != nil {
		if handle, err := f.handles(ctx, userID); err == nil && handle != "" {
			return handle
		}
	}
	return fmt.Sprintf("leader-%d", userID)
}
