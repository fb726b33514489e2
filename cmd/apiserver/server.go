package apiserver

import (
	"context"

	"github.com/sirupsen/logrus"

	"copytrader/src/bus"
	"copytrader/src/database"
	"copytrader/src/delivery"
	"copytrader/src/hub"
	"copytrader/src/orders"
	"copytrader/src/repository"
	"copytrader/src/server"
)

type Server struct{}

// Start wires the HTTP surface: copy order listing and cancellation,
// webhook management and the live session hub. Cancellations raised through
// the API fan out to push, webhooks and session viewers.
func (s *Server) Start() error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	eventBus := bus.New(256)
	defer eventBus.Close()

	copyOrderRepo := repository.NewCopyOrderRepository()
	webhookRepo := repository.NewWebhookRepository()
	followerRepo := repository.NewFollowerRepository()
	deviceTokenRepo := repository.NewDeviceTokenRepository()

	sessionHub := hub.NewHub()

	deliveryConfig := delivery.GetConfig()
	dispatcher := delivery.NewWebhookDispatcher(webhookRepo, deliveryConfig.WebhookTimeout, deliveryConfig.FanoutConcurrency)
	push := delivery.NewFCMProvider(context.Background(), deliveryConfig.FCMCredentialsFile)
	fanout := delivery.NewFanout(deliveryConfig, followerRepo, deviceTokenRepo, push, dispatcher, sessionHub, nil)
	fanout.Register(eventBus)

	manager := orders.NewManager(copyOrderRepo, eventBus)

	server.StartServer(server.GetConfig(), server.Deps{
		Orders:     manager,
		CopyOrders: copyOrderRepo,
		Webhooks:   webhookRepo,
		Hub:        sessionHub,
	})

	return nil
}
