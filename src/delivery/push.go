package delivery

import (
	"context"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	logger "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Notification is a provider-agnostic push payload.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendResult reports the outcome for a single device token.
type SendResult struct {
	Token     string
	Success   bool
	MessageID string
	Err       error

	// Unregistered marks tokens the provider says are permanently dead, so
	// callers deactivate them instead of retrying.
	Unregistered bool
}

// PushProvider sends one notification to many device tokens and reports a
// per-token outcome. A partial failure is not an error: the returned slice
// always covers every token.
type PushProvider interface {
	Send(ctx context.Context, tokens []string, notification Notification) ([]SendResult, error)
}

// ----- FCM -----

type FCMProvider struct {
	client *messaging.Client
}

// NewFCMProvider initializes Firebase messaging from a service account
// file. A missing credentials file is a deployment choice, not an error:
// the caller gets a noop provider and the process keeps running.
func NewFCMProvider(ctx context.Context, credentialsFile string) PushProvider {
	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		logger.WithField("file", credentialsFile).Warn("FCM credentials not found, push delivery disabled")
		return NoopProvider{}
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize firebase app, push delivery disabled")
		return NoopProvider{}
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to get messaging client, push delivery disabled")
		return NoopProvider{}
	}

	logger.Info("FCM push provider initialized")
	return &FCMProvider{client: client}
}

func (p *FCMProvider) Send(ctx context.Context, tokens []string, notification Notification) ([]SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	}

	batch, err := p.client.SendMulticast(ctx, message)
	if err != nil {
		return nil, err
	}

	results := make([]SendResult, 0, len(tokens))
	for i, response := range batch.Responses {
		result := SendResult{
			Token:     tokens[i],
			Success:   response.Success,
			MessageID: response.MessageID,
			Err:       response.Error,
		}
		if response.Error != nil && messaging.IsRegistrationTokenNotRegistered(response.Error) {
			result.Unregistered = true
		}
		results = append(results, result)
	}
	return results, nil
}

// ----- noop -----

// NoopProvider reports success for every token without sending anything.
type NoopProvider struct{}

func (NoopProvider) Send(_ context.Context, tokens []string, _ Notification) ([]SendResult, error) {
	results := make([]SendResult, 0, len(tokens))
	for _, token := range tokens {
		results = append(results, SendResult{Token: token, Success: true})
	}
	return results, nil
}
