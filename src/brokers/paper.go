// REST ACTIVITY SOURCE FOR THE PAPER BROKER
// RESTY ONLY + INTERNAL RETRY
package brokers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// APIResponse is the paper broker's response wrapper.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type wireActivity struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		AccountNumber string `json:"account_number"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Quantity      string `json:"quantity"`
		Price         string `json:"price"`
		FilledAt      string `json:"filled_at"`
	} `json:"data"`
}

// PaperClient talks to the in-house paper broker's signed REST API and
// implements ActivitySource.
type PaperClient struct {
	baseURL string
	http    *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewPaperClient(baseURL string) *PaperClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "https://paper.copytrader.local"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &PaperClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

func signRequest(path, query string, expiry int64, secret string) string {
	base := path
	if query != "" {
		base += query
	}
	base += fmt.Sprintf("%d", expiry)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

// FetchActivities pulls the account activity feed since the given cursor.
func (c *PaperClient) FetchActivities(ctx context.Context, authHandle string, since *time.Time) ([]Activity, error) {
	apiKey, apiSecret, err := SplitAuthHandle(authHandle)
	if err != nil {
		return nil, err
	}

	path := "/v1/activities"
	query := ""
	if since != nil {
		query = "?since=" + since.UTC().Format(time.RFC3339Nano)
	}

	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, query, expiry, apiSecret)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-paper-access-token", apiKey).
		SetHeader("x-paper-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-paper-request-signature", sig).
		Get(path + query)
	if err != nil {
		return nil, fmt.Errorf("fetch activities failed: %w", err)
	}
	if resp.StatusCode()/100 != 2 {
		return nil, fmt.Errorf("fetch activities non-2xx status: %d", resp.StatusCode())
	}

	var wrapper APIResponse
	if err := json.Unmarshal(resp.Body(), &wrapper); err != nil {
		return nil, fmt.Errorf("decode activities response: %w", err)
	}
	if wrapper.Code != 0 {
		return nil, fmt.Errorf("activities API error code=%d msg=%s", wrapper.Code, wrapper.Msg)
	}

	var wire []wireActivity
	if err := json.Unmarshal(wrapper.Data, &wire); err != nil {
		return nil, fmt.Errorf("decode activities payload: %w", err)
	}

	activities := make([]Activity, 0, len(wire))
	for i := range wire {
		activities = append(activities, parseWireActivity(wire[i]))
	}
	return activities, nil
}

// parseWireActivity converts one wire entry without failing the batch:
// unparseable fields produce a zero-value activity that Fill() rejects.
func parseWireActivity(w wireActivity) Activity {
	activity := Activity{Type: w.Type}

	if ts, err := time.Parse(time.RFC3339Nano, w.Timestamp); err == nil {
		activity.Timestamp = ts
	}
	if filledAt, err := time.Parse(time.RFC3339Nano, w.Data.FilledAt); err == nil {
		activity.Data.FilledAt = filledAt
	}

	activity.Data.AccountNumber = w.Data.AccountNumber
	activity.Data.Symbol = w.Data.Symbol
	activity.Data.Side = w.Data.Side

	if w.Data.Quantity != "" {
		if qty, err := decimal.NewFromString(w.Data.Quantity); err == nil {
			activity.Data.Quantity = qty
		}
	}
	if w.Data.Price != "" {
		if price, err := decimal.NewFromString(w.Data.Price); err == nil {
			activity.Data.Price = price
		}
	}
	return activity
}
