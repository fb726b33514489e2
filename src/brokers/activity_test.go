package brokers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validFill() Activity {
	return Activity{
		Type:      ActivityTypeFill,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Data: ActivityData{
			Symbol:   "AAPL",
			Side:     "BUY",
			Quantity: decimal.NewFromInt(10),
			Price:    decimal.NewFromInt(150),
			FilledAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestActivityFillValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Activity)
		wantOK bool
	}{
		{"valid buy", func(*Activity) {}, true},
		{"side normalized to lowercase", func(a *Activity) { a.Data.Side = "SELL" }, true},
		{"lowercase type accepted", func(a *Activity) { a.Type = "fill" }, true},
		{"non fill type", func(a *Activity) { a.Type = "DIVIDEND" }, false},
		{"unknown side", func(a *Activity) { a.Data.Side = "hold" }, false},
		{"missing symbol", func(a *Activity) { a.Data.Symbol = "" }, false},
		{"zero quantity", func(a *Activity) { a.Data.Quantity = decimal.Zero }, false},
		{"negative quantity", func(a *Activity) { a.Data.Quantity = decimal.NewFromInt(-1) }, false},
		{"zero price", func(a *Activity) { a.Data.Price = decimal.Zero }, false},
		{"zero filled_at", func(a *Activity) { a.Data.FilledAt = time.Time{} }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			activity := validFill()
			tc.mutate(&activity)

			data, ok := activity.Fill()
			if ok != tc.wantOK {
				t.Fatalf("Fill() ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && data.Side != "buy" && data.Side != "sell" {
				t.Fatalf("side not normalized: %q", data.Side)
			}
		})
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()
	client := NewPaperClient("https://example.test")
	registry.Register("Paper", client)

	source, err := registry.For("paper")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != client {
		t.Fatal("wrong source returned")
	}

	if _, err := registry.For("missing"); err == nil {
		t.Fatal("expected error for unknown broker")
	}
}

func TestSplitAuthHandle(t *testing.T) {
	key, secret, err := SplitAuthHandle("my-key:my:secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "my-key" || secret != "my:secret" {
		t.Fatalf("unexpected split: %q / %q", key, secret)
	}

	for _, bad := range []string{"", "nosep", ":empty-key", "empty-secret:"} {
		if _, _, err := SplitAuthHandle(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
