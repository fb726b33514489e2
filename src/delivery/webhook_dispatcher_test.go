package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"copytrader/src/model"
)

type memoryWebhookStore struct {
	mu         sync.Mutex
	webhooks   []model.Webhook
	deliveries map[uint]*model.WebhookDelivery
	nextID     uint
	triggered  []uint
	failures   []uint
}

func newMemoryWebhookStore(webhooks ...model.Webhook) *memoryWebhookStore {
	return &memoryWebhookStore{
		webhooks:   webhooks,
		deliveries: make(map[uint]*model.WebhookDelivery),
		nextID:     1,
	}
}

func (s *memoryWebhookStore) ListActiveForEvent(_ context.Context, eventType string) ([]model.Webhook, error) {
	var matched []model.Webhook
	for i := range s.webhooks {
		if s.webhooks[i].Active && s.webhooks[i].SubscribesTo(eventType) {
			matched = append(matched, s.webhooks[i])
		}
	}
	return matched, nil
}

func (s *memoryWebhookStore) MarkTriggered(_ context.Context, id uint, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = append(s.triggered, id)
	return nil
}

func (s *memoryWebhookStore) IncrementFailures(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, id)
	return nil
}

func (s *memoryWebhookStore) CreateDelivery(_ context.Context, delivery *model.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery.ID = s.nextID
	s.nextID++
	copied := *delivery
	s.deliveries[delivery.ID] = &copied
	return nil
}

func (s *memoryWebhookStore) ResolveDelivery(_ context.Context, id uint, status string, responseCode *int, responseBody string, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery := s.deliveries[id]
	delivery.Status = status
	delivery.ResponseCode = responseCode
	delivery.ResponseBody = responseBody
	delivery.DeliveredAt = &deliveredAt
	return nil
}

func TestSignFixedVector(t *testing.T) {
	got := Sign("whsec_test", []byte(`{"event":"TRADE_FILLED"}`))
	want := "e2f2a0eb9c94eabd61302ce75c2efeea4f0441519c141be4e571e13553eff9c2"
	if got != want {
		t.Fatalf("Sign mismatch:\n got  %s\n want %s", got, want)
	}
}

func TestDispatchEventSignsAndResolvesSuccess(t *testing.T) {
	var gotBody []byte
	var gotSignature, gotEvent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotEvent = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemoryWebhookStore(model.Webhook{
		ID:     1,
		URL:    srv.URL,
		Events: "TRADE_FILLED",
		Secret: "whsec_abc",
		Active: true,
	})
	dispatcher := NewWebhookDispatcher(store, 5*time.Second, 4)

	delivered, failed := dispatcher.DispatchEvent(context.Background(), "TRADE_FILLED", map[string]string{"symbol": "AAPL"})
	if delivered != 1 || failed != 0 {
		t.Fatalf("expected 1 delivered, got delivered=%d failed=%d", delivered, failed)
	}

	// Receiver-side verification must reproduce the signature.
	if gotSignature != Sign("whsec_abc", gotBody) {
		t.Fatal("signature does not verify against the raw body")
	}
	if gotEvent != "TRADE_FILLED" {
		t.Fatalf("unexpected event header: %s", gotEvent)
	}

	var envelope Envelope
	if err := json.Unmarshal(gotBody, &envelope); err != nil {
		t.Fatalf("body is not a valid envelope: %v", err)
	}
	if envelope.Event != "TRADE_FILLED" || envelope.Timestamp.IsZero() {
		t.Fatalf("incomplete envelope: %+v", envelope)
	}

	delivery := store.deliveries[1]
	if delivery.Status != model.WebhookDeliverySuccess {
		t.Fatalf("expected success delivery, got %s", delivery.Status)
	}
	if delivery.ResponseCode == nil || *delivery.ResponseCode != http.StatusOK {
		t.Fatalf("expected recorded 200, got %v", delivery.ResponseCode)
	}
	if len(store.triggered) != 1 || store.triggered[0] != 1 {
		t.Fatalf("expected webhook 1 marked triggered, got %v", store.triggered)
	}
	if len(store.failures) != 0 {
		t.Fatalf("no failures expected, got %v", store.failures)
	}
}

func TestDispatchEventRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newMemoryWebhookStore(model.Webhook{
		ID:     1,
		URL:    srv.URL,
		Events: "TRADE_FILLED",
		Secret: "whsec_abc",
		Active: true,
	})
	dispatcher := NewWebhookDispatcher(store, 5*time.Second, 4)

	delivered, failed := dispatcher.DispatchEvent(context.Background(), "TRADE_FILLED", nil)
	if delivered != 0 || failed != 1 {
		t.Fatalf("expected 1 failed, got delivered=%d failed=%d", delivered, failed)
	}

	delivery := store.deliveries[1]
	if delivery.Status != model.WebhookDeliveryFailed {
		t.Fatalf("expected failed delivery, got %s", delivery.Status)
	}
	if delivery.ResponseCode == nil || *delivery.ResponseCode != http.StatusInternalServerError {
		t.Fatalf("expected recorded 500, got %v", delivery.ResponseCode)
	}
	if len(store.failures) != 1 {
		t.Fatalf("expected failure counter bump, got %v", store.failures)
	}
	if len(store.triggered) != 0 {
		t.Fatal("failed delivery must not mark the webhook triggered")
	}
}

func TestDispatchEventIsolatesEndpoints(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer bad.Close()

	store := newMemoryWebhookStore(
		model.Webhook{ID: 1, URL: good.URL, Events: "TRADE_FILLED", Secret: "s1", Active: true},
		model.Webhook{ID: 2, URL: bad.URL, Events: "TRADE_FILLED", Secret: "s2", Active: true},
	)
	dispatcher := NewWebhookDispatcher(store, 5*time.Second, 4)

	delivered, failed := dispatcher.DispatchEvent(context.Background(), "TRADE_FILLED", nil)
	if delivered != 1 || failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got delivered=%d failed=%d", delivered, failed)
	}

	// Both attempts must reach a terminal state.
	for id, delivery := range store.deliveries {
		if delivery.Status == model.WebhookDeliveryPending {
			t.Fatalf("delivery %d left pending", id)
		}
	}
}

func TestDispatchEventDeliversConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	bothArrived := make(chan struct{})

	// Each handler blocks until both requests are in flight. Serial
	// deliveries would leave the first request stuck alone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight == 2 {
			close(bothArrived)
		}
		mu.Unlock()

		select {
		case <-bothArrived:
		case <-time.After(3 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemoryWebhookStore(
		model.Webhook{ID: 1, URL: srv.URL, Events: "TRADE_FILLED", Secret: "s1", Active: true},
		model.Webhook{ID: 2, URL: srv.URL, Events: "TRADE_FILLED", Secret: "s2", Active: true},
	)
	dispatcher := NewWebhookDispatcher(store, 5*time.Second, 2)

	done := make(chan struct{})
	var delivered, failed int
	go func() {
		delivered, failed = dispatcher.DispatchEvent(context.Background(), "TRADE_FILLED", nil)
		close(done)
	}()

	select {
	case <-bothArrived:
	case <-time.After(2 * time.Second):
		t.Fatal("second delivery never started while the first was in flight")
	}
	<-done
	if delivered != 2 || failed != 0 {
		t.Fatalf("expected both delivered, got delivered=%d failed=%d", delivered, failed)
	}
}

func TestDispatchEventSkipsNonSubscribers(t *testing.T) {
	store := newMemoryWebhookStore(
		model.Webhook{ID: 1, URL: "http://localhost:1", Events: "SESSION_STARTED", Secret: "s", Active: true},
		model.Webhook{ID: 2, URL: "http://localhost:1", Events: "TRADE_FILLED", Secret: "s", Active: false},
	)
	dispatcher := NewWebhookDispatcher(store, time.Second, 4)

	delivered, failed := dispatcher.DispatchEvent(context.Background(), "TRADE_FILLED", nil)
	if delivered != 0 || failed != 0 {
		t.Fatalf("no deliveries expected, got delivered=%d failed=%d", delivered, failed)
	}
	if len(store.deliveries) != 0 {
		t.Fatalf("no delivery rows expected, got %d", len(store.deliveries))
	}
}
