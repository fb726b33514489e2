package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"copytrader/src/brokers"
	"copytrader/src/bus"
	"copytrader/src/model"
)

type memoryConnections struct {
	connections []model.BrokerConnection

	mu         sync.Mutex
	watermarks []time.Time
}

func (s *memoryConnections) ListActive(context.Context) ([]model.BrokerConnection, error) {
	return s.connections, nil
}

func (s *memoryConnections) AdvanceWatermark(_ context.Context, _ uint, watermark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks = append(s.watermarks, watermark)
	return nil
}

// memoryLedger dedupes on the same composite key as the trade table.
type memoryLedger struct {
	mu     sync.Mutex
	seen   map[string]bool
	nextID uint
	errOn  string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{seen: make(map[string]bool), nextID: 1}
}

func (s *memoryLedger) RecordFill(_ context.Context, trade *model.Trade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%d|%d|%s|%s|%s|%d",
		trade.UserID, trade.ConnectionID, trade.Symbol, trade.Side,
		trade.Quantity, trade.FilledAt.UnixNano())

	if s.errOn != "" && trade.Symbol == s.errOn {
		return false, errors.New("ledger write failed")
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	trade.ID = s.nextID
	s.nextID++
	return true, nil
}

type plainOpener struct{}

func (plainOpener) Open(sealed string) (string, error) { return sealed, nil }

type stubSource struct {
	activities []brokers.Activity
	err        error
}

func (s *stubSource) FetchActivities(context.Context, string, *time.Time) ([]brokers.Activity, error) {
	return s.activities, s.err
}

func fillActivity(symbol string, qty, price int64, filledAt time.Time) brokers.Activity {
	return brokers.Activity{
		Type:      brokers.ActivityTypeFill,
		Timestamp: filledAt,
		Data: brokers.ActivityData{
			Symbol:   symbol,
			Side:     "buy",
			Quantity: decimal.NewFromInt(qty),
			Price:    decimal.NewFromInt(price),
			FilledAt: filledAt,
		},
	}
}

func testConnection() model.BrokerConnection {
	return model.BrokerConnection{
		ID:               9,
		UserID:           1,
		Broker:           "stub",
		AuthHandleSealed: "key:secret",
		Status:           model.ConnectionStatusActive,
	}
}

func newTestPoller(source brokers.ActivitySource, conns *memoryConnections, ledger *memoryLedger, eventBus *bus.Bus) *Poller {
	registry := brokers.NewRegistry()
	registry.Register("stub", source)

	return NewPoller(
		Config{PollInterval: time.Hour, PollConcurrency: 2},
		conns,
		ledger,
		registry,
		plainOpener{},
		eventBus,
	)
}

func TestPollOnceRecordsAndPublishesNewFills(t *testing.T) {
	filledAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSource{activities: []brokers.Activity{
		fillActivity("AAPL", 10, 150, filledAt),
		fillActivity("TSLA", 2, 400, filledAt.Add(time.Minute)),
		{Type: "DIVIDEND", Timestamp: filledAt}, // not a fill, skipped
	}}
	conns := &memoryConnections{connections: []model.BrokerConnection{testConnection()}}
	ledger := newMemoryLedger()

	eventBus := bus.New(16)
	var mu sync.Mutex
	var published []bus.TradeFilled
	eventBus.Subscribe(bus.TopicTradeFilled, "test", func(event bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, event.Payload.(bus.TradeFilled))
	})

	poller := newTestPoller(source, conns, ledger, eventBus)
	report := poller.PollOnce(context.Background())
	eventBus.Close()

	if report.NewTrades != 2 || report.Duplicates != 0 || report.Failures != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(published))
	}
	if published[0].UserID != 1 || published[0].ConnectionID != 9 {
		t.Fatalf("event lost connection attribution: %+v", published[0])
	}
	if len(conns.watermarks) != 1 {
		t.Fatalf("expected 1 watermark advance, got %d", len(conns.watermarks))
	}
}

func TestPollOnceIsIdempotentAcrossTicks(t *testing.T) {
	filledAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSource{activities: []brokers.Activity{
		fillActivity("AAPL", 10, 150, filledAt),
	}}
	conns := &memoryConnections{connections: []model.BrokerConnection{testConnection()}}
	ledger := newMemoryLedger()

	eventBus := bus.New(16)
	var mu sync.Mutex
	var count int
	eventBus.Subscribe(bus.TopicTradeFilled, "test", func(bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	poller := newTestPoller(source, conns, ledger, eventBus)

	first := poller.PollOnce(context.Background())
	second := poller.PollOnce(context.Background())
	eventBus.Close()

	if first.NewTrades != 1 {
		t.Fatalf("first tick should record the fill: %+v", first)
	}
	if second.NewTrades != 0 || second.Duplicates != 1 {
		t.Fatalf("second tick must absorb the duplicate: %+v", second)
	}
	if count != 1 {
		t.Fatalf("exactly one event must be published for one fill, got %d", count)
	}
}

func TestPollOnceHoldsWatermarkOnRecordFailure(t *testing.T) {
	filledAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSource{activities: []brokers.Activity{
		fillActivity("AAPL", 10, 150, filledAt),
		fillActivity("FAIL", 1, 10, filledAt.Add(time.Minute)),
	}}
	conns := &memoryConnections{connections: []model.BrokerConnection{testConnection()}}
	ledger := newMemoryLedger()
	ledger.errOn = "FAIL"

	poller := newTestPoller(source, conns, ledger, nil)
	report := poller.PollOnce(context.Background())

	if report.Failures != 1 {
		t.Fatalf("expected 1 failed connection: %+v", report)
	}
	if len(conns.watermarks) != 0 {
		t.Fatal("watermark must not advance when a fill was not recorded")
	}
}

func TestPollOnceSurvivesFetchFailure(t *testing.T) {
	source := &stubSource{err: errors.New("broker 502")}
	conns := &memoryConnections{connections: []model.BrokerConnection{testConnection()}}

	poller := newTestPoller(source, conns, newMemoryLedger(), nil)
	report := poller.PollOnce(context.Background())

	if report.Failures != 1 || report.NewTrades != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(conns.watermarks) != 0 {
		t.Fatal("watermark must not advance on fetch failure")
	}
}

func TestPollOnceUnknownBroker(t *testing.T) {
	connection := testConnection()
	connection.Broker = "unknown"
	conns := &memoryConnections{connections: []model.BrokerConnection{connection}}

	poller := newTestPoller(&stubSource{}, conns, newMemoryLedger(), nil)
	report := poller.PollOnce(context.Background())

	if report.Failures != 1 {
		t.Fatalf("expected a failure for unsupported broker: %+v", report)
	}
}
