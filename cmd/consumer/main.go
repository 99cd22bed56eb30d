package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/audit"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/channel"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/common"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/dispatch"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/resource"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/state"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/subscriber"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("consumer")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort)
	defer metricsSrv.Shutdown(context.Background())

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL must be provided")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	manager := config.NewManager(cfg.ChannelConfigPath, logger)
	snap, err := manager.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load channel config")
	}
	go func() {
		if err := manager.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("channel config watcher stopped")
		}
	}()

	engine := &dispatch.Engine{
		Store:    state.NewPostgresStore(pool),
		Recorder: audit.NewPostgresRecorder(pool),
		Registry: buildRegistry(cfg, snap),
		Loader:   &resource.HTTPLoader{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken},
		Logger:   logger,
	}

	readerFactory := func() *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.ServiceName,
			GroupTopics: []string{cfg.SubscriptionTopic, cfg.RedeliveryTopic},
		})
	}

	redeliveryWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.RedeliveryTopic,
		Balancer: &kafka.Hash{},
	}
	defer redeliveryWriter.Close()

	dlqWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.DLQTopic,
		Balancer: &kafka.Hash{},
	}
	defer dlqWriter.Close()

	sub := subscriber.Subscriber{
		ReaderFactory:    readerFactory,
		RedeliveryWriter: redeliveryWriter,
		DLQWriter:        dlqWriter,
		Dispatcher:       engine,
		Snapshots:        manager,
		MaxRedeliveries:  cfg.MaxRedeliveries,
		Logger:           logger,
	}

	logger.Info().Str("topic", cfg.SubscriptionTopic).Msg("consumer started")
	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("consumer stopped")
	}
}

func buildRegistry(cfg *common.Config, snap *config.Snapshot) *channel.Registry {
	reg := channel.NewRegistry()
	client := &http.Client{Timeout: cfg.SendTimeout}

	for name, chCfg := range snap.Channels {
		var handler channel.Handler
		switch name {
		case "telegram":
			handler = channel.NewTelegramProvider()
		default:
			handler = &channel.GatewayProvider{Channel: name, Endpoint: cfg.GatewayURL, Client: client}
		}
		reg.Register(channel.Throttle(handler, chCfg.RatePerSecond))
	}
	return reg
}
