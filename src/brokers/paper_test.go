package brokers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", value, err)
	}
	return d
}

func newStatusResponse(code int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: code}}
}

func TestPaperClientFetchActivities(t *testing.T) {
	var gotToken, gotSignature, gotExpiry, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/activities" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotToken = r.Header.Get("x-paper-access-token")
		gotSignature = r.Header.Get("x-paper-request-signature")
		gotExpiry = r.Header.Get("x-paper-request-expiry")
		gotQuery = r.URL.RawQuery

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": 0,
			"msg": "",
			"data": [
				{
					"type": "FILL",
					"timestamp": "2026-03-01T10:00:00Z",
					"data": {
						"account_number": "ACC-1",
						"symbol": "AAPL",
						"side": "buy",
						"quantity": "10",
						"price": "150.25",
						"filled_at": "2026-03-01T10:00:00Z"
					}
				},
				{
					"type": "FILL",
					"timestamp": "2026-03-01T11:00:00Z",
					"data": {
						"symbol": "TSLA",
						"side": "buy",
						"quantity": "not-a-number",
						"price": "400",
						"filled_at": "2026-03-01T11:00:00Z"
					}
				}
			]
		}`))
	}))
	defer srv.Close()

	client := NewPaperClient(srv.URL)
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	activities, err := client.FetchActivities(context.Background(), "key:secret", &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("expected 2 wire activities, got %d", len(activities))
	}

	if gotToken != "key" {
		t.Fatalf("unexpected access token header: %s", gotToken)
	}
	if gotSignature == "" || gotExpiry == "" {
		t.Fatal("request must be signed with an expiry")
	}
	if gotQuery == "" {
		t.Fatal("since cursor must be passed as a query parameter")
	}

	fill, ok := activities[0].Fill()
	if !ok {
		t.Fatal("first activity should be a valid fill")
	}
	if fill.Symbol != "AAPL" || fill.AccountNumber != "ACC-1" {
		t.Fatalf("unexpected fill: %+v", fill)
	}
	if !fill.Price.Equal(mustDecimal(t, "150.25")) {
		t.Fatalf("unexpected price: %s", fill.Price)
	}

	// The malformed quantity yields a zero value the validator rejects,
	// without failing the batch.
	if _, ok := activities[1].Fill(); ok {
		t.Fatal("activity with malformed quantity must not validate")
	}
}

func TestPaperClientRejectsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 401, "msg": "bad signature", "data": null}`))
	}))
	defer srv.Close()

	client := NewPaperClient(srv.URL)
	if _, err := client.FetchActivities(context.Background(), "key:secret", nil); err == nil {
		t.Fatal("expected error for non-zero API code")
	}
}

func TestPaperClientRejectsMalformedHandle(t *testing.T) {
	client := NewPaperClient("https://example.test")
	if _, err := client.FetchActivities(context.Background(), "no-separator", nil); err == nil {
		t.Fatal("expected error for malformed auth handle")
	}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		resp := newStatusResponse(tc.code)
		if got := isRetryableResp(resp, nil); got != tc.want {
			t.Fatalf("isRetryableResp(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
