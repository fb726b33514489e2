package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrader/src/brokers"
	"copytrader/src/bus"
	"copytrader/src/model"
)

type connectionStore interface {
	ListActive(ctx context.Context) ([]model.BrokerConnection, error)
	AdvanceWatermark(ctx context.Context, id uint, watermark time.Time) error
}

type tradeLedger interface {
	RecordFill(ctx context.Context, trade *model.Trade) (bool, error)
}

type authOpener interface {
	Open(sealed string) (string, error)
}

// Poller drives trade ingestion: on a fixed interval it fetches new
// activities for every active broker connection, records the fills in the
// ledger and publishes an event per newly recorded trade. Re-observing an
// already recorded fill is the normal case after a crash or watermark
// overlap; the ledger absorbs it silently.
type Poller struct {
	cfg      Config
	conns    connectionStore
	trades   tradeLedger
	registry *brokers.Registry
	sealer   authOpener
	bus      *bus.Bus
	now      func() time.Time

	// inFlight guards against overlapping polls of the same connection when
	// a fetch outlives the tick interval.
	mu       sync.Mutex
	inFlight map[uint]bool
}

func NewPoller(
	cfg Config,
	conns connectionStore,
	trades tradeLedger,
	registry *brokers.Registry,
	sealer authOpener,
	eventBus *bus.Bus,
) *Poller {
	return &Poller{
		cfg:      cfg,
		conns:    conns,
		trades:   trades,
		registry: registry,
		sealer:   sealer,
		bus:      eventBus,
		now:      time.Now,
		inFlight: make(map[uint]bool),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"interval":    p.cfg.PollInterval,
		"concurrency": p.cfg.PollConcurrency,
	}).Info("Trade poller started")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	// First tick immediately instead of waiting a full interval.
	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Trade poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// TickReport aggregates one polling tick.
type TickReport struct {
	Connections int
	NewTrades   int
	Duplicates  int
	Failures    int
}

// PollOnce polls every active connection once. Connections are handled
// concurrently and independently; one broker's failure never stops the
// others.
func (p *Poller) PollOnce(ctx context.Context) TickReport {
	report := TickReport{}

	connections, err := p.conns.ListActive(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list active connections")
		return report
	}
	report.Connections = len(connections)
	if len(connections) == 0 {
		return report
	}

	var mu sync.Mutex
	group := &errgroup.Group{}
	if p.cfg.PollConcurrency > 0 {
		group.SetLimit(p.cfg.PollConcurrency)
	}

	for i := range connections {
		connection := connections[i]
		group.Go(func() error {
			created, duplicates, err := p.pollConnection(ctx, &connection)

			mu.Lock()
			defer mu.Unlock()
			report.NewTrades += created
			report.Duplicates += duplicates
			if err != nil {
				report.Failures++
			}
			return nil
		})
	}
	_ = group.Wait()

	logger.WithFields(map[string]interface{}{
		"connections": report.Connections,
		"new_trades":  report.NewTrades,
		"duplicates":  report.Duplicates,
		"failures":    report.Failures,
	}).Info("Poll tick complete")

	return report
}

func (p *Poller) pollConnection(ctx context.Context, connection *model.BrokerConnection) (created, duplicates int, err error) {
	if !p.acquire(connection.ID) {
		logger.WithField("connection_id", connection.ID).Debug("Previous poll still running, skipping")
		return 0, 0, nil
	}
	defer p.release(connection.ID)

	log := logger.WithFields(map[string]interface{}{
		"connection_id": connection.ID,
		"broker":        connection.Broker,
		"user_id":       connection.UserID,
	})

	source, err := p.registry.For(connection.Broker)
	if err != nil {
		log.WithError(err).Error("No activity source for broker")
		return 0, 0, err
	}

	authHandle, err := p.sealer.Open(connection.AuthHandleSealed)
	if err != nil {
		log.WithError(err).Error("Failed to open sealed authorization handle")
		return 0, 0, err
	}

	// The watermark only advances after every fill of the window has been
	// recorded, so a mid-window crash re-observes rather than loses fills.
	tickStart := p.now().UTC()

	activities, err := source.FetchActivities(ctx, authHandle, connection.LastPollWatermark)
	if err != nil {
		log.WithError(err).Warn("Activity fetch failed")
		return 0, 0, err
	}

	for _, activity := range activities {
		fill, ok := activity.Fill()
		if !ok {
			continue
		}

		trade := &model.Trade{
			UserID:       connection.UserID,
			ConnectionID: connection.ID,
			Symbol:       fill.Symbol,
			Side:         fill.Side,
			Quantity:     fill.Quantity,
			FillPrice:    fill.Price,
			FilledAt:     fill.FilledAt,
		}

		isNew, err := p.trades.RecordFill(ctx, trade)
		if err != nil {
			log.WithError(err).Error("Failed to record fill, watermark held back")
			return created, duplicates, fmt.Errorf("record fill: %w", err)
		}
		if !isNew {
			duplicates++
			continue
		}

		created++
		if p.bus != nil {
			p.bus.Publish(bus.TopicTradeFilled, bus.TradeFilled{
				UserID:       connection.UserID,
				ConnectionID: connection.ID,
				Trade:        *trade,
			})
		}
	}

	if err := p.conns.AdvanceWatermark(ctx, connection.ID, tickStart); err != nil {
		log.WithError(err).Error("Failed to advance watermark")
		return created, duplicates, err
	}

	return created, duplicates, nil
}

func (p *Poller) acquire(connectionID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[connectionID] {
		return false
	}
	p.inFlight[connectionID] = true
	return true
}

func (p *Poller) release(connectionID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, connectionID)
}
