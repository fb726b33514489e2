package poller

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"copytrader/src/brokers"
	"copytrader/src/bus"
	"copytrader/src/database"
	"copytrader/src/delivery"
	"copytrader/src/engine"
	"copytrader/src/ingestion"
	"copytrader/src/orders"
	"copytrader/src/repository"
	"copytrader/src/security"
	"copytrader/src/sizing"
)

type Poller struct{}

// Start wires the full ingestion pipeline and polls until SIGINT/SIGTERM:
// broker sources -> trade ledger -> bus -> guardrail engine -> copy orders,
// with the delivery fan-out listening alongside.
func (p *Poller) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	sealer, err := security.NewSealerFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth handle sealer")
		return err
	}

	eventBus := bus.New(256)
	defer eventBus.Close()

	tradeRepo := repository.NewTradeRepository()
	connectionRepo := repository.NewConnectionRepository()
	followerRepo := repository.NewFollowerRepository()
	guardrailRepo := repository.NewGuardrailRepository()
	copyOrderRepo := repository.NewCopyOrderRepository()
	webhookRepo := repository.NewWebhookRepository()
	deviceTokenRepo := repository.NewDeviceTokenRepository()

	sizingConfig := sizing.DefaultConfig()
	stats := sizing.NewLedgerStats(tradeRepo, copyOrderRepo, sizingConfig.LookbackFills)
	strategies := sizing.NewFactory(sizingConfig, stats, stats, stats)

	manager := orders.NewManager(copyOrderRepo, eventBus)

	guardrailEngine := engine.NewEngine(
		engine.GetConfig(),
		followerRepo,
		guardrailRepo,
		copyOrderRepo,
		manager,
		strategies,
		logrus.WithField("component", "engine"),
	)
	guardrailEngine.Register(eventBus)

	deliveryConfig := delivery.GetConfig()
	dispatcher := delivery.NewWebhookDispatcher(webhookRepo, deliveryConfig.WebhookTimeout, deliveryConfig.FanoutConcurrency)
	push := delivery.NewFCMProvider(ctx, deliveryConfig.FCMCredentialsFile)
	// No hub here: session viewers connect to the API server process.
	fanout := delivery.NewFanout(deliveryConfig, followerRepo, deviceTokenRepo, push, dispatcher, nil, nil)
	fanout.Register(eventBus)

	tradePoller := ingestion.NewPoller(
		ingestion.GetConfig(),
		connectionRepo,
		tradeRepo,
		brokers.DefaultRegistry(),
		sealer,
		eventBus,
	)
	tradePoller.Run(ctx)

	return nil
}
