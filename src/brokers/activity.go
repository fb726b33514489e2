package brokers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const ActivityTypeFill = "FILL"

// ActivityData carries the broker-reported details of one account activity.
type ActivityData struct {
	AccountNumber string          `json:"account_number"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	FilledAt      time.Time       `json:"filled_at"`
}

// Activity is one entry from a broker's activity feed. Only FILL entries
// with side, quantity and price present are actionable.
type Activity struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Data      ActivityData `json:"data"`
}

// Fill validates the activity and returns its fill details. The second
// return is false for anything that is not a complete, well-formed fill;
// such entries are skipped by the poller, never treated as errors.
func (a Activity) Fill() (ActivityData, bool) {
	if !strings.EqualFold(a.Type, ActivityTypeFill) {
		return ActivityData{}, false
	}

	d := a.Data
	side := strings.ToLower(strings.TrimSpace(d.Side))
	if side != "buy" && side != "sell" {
		return ActivityData{}, false
	}
	if d.Symbol == "" || d.FilledAt.IsZero() {
		return ActivityData{}, false
	}
	if d.Quantity.LessThanOrEqual(decimal.Zero) || d.Price.LessThanOrEqual(decimal.Zero) {
		return ActivityData{}, false
	}

	d.Side = side
	return d, true
}

// ActivitySource is the capability interface over a broker's activity feed.
// One implementation exists per supported broker; new brokers are added by
// implementing this interface, not by branching on a broker-type string in
// business logic.
type ActivitySource interface {
	// FetchActivities returns account activities after since. A nil since
	// means "from the beginning of the available window".
	FetchActivities(ctx context.Context, authHandle string, since *time.Time) ([]Activity, error)
}

// Registry maps broker identifiers to their activity source.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]ActivitySource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]ActivitySource)}
}

func (r *Registry) Register(broker string, source ActivitySource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[strings.ToLower(broker)] = source
}

func (r *Registry) For(broker string) (ActivitySource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[strings.ToLower(broker)]
	if !ok {
		return nil, fmt.Errorf("broker %q not supported", broker)
	}
	return source, nil
}

// SplitAuthHandle parses the opaque "key:secret" authorization handle used
// by the bundled sources.
func SplitAuthHandle(handle string) (key, secret string, err error) {
	parts := strings.SplitN(handle, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed authorization handle")
	}
	return parts[0], parts[1], nil
}
