package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/audit"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/channel"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/common"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/dispatch"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/resource"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/server"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/state"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("connector")
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

	h := server.NewHandler(engine, manager, logger)
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: h.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("connector listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildRegistry wires one handler per configured channel. sms, whatsapp
// and email ride the messaging gateway; telegram talks to the Bot API
// directly. Rates come from the channel configuration.
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
