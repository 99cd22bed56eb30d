package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort          int
	MetricsPort       int
	DatabaseURL       string
	KafkaBrokers      []string
	SubscriptionTopic string
	RedeliveryTopic   string
	DLQTopic          string
	MaxRedeliveries   int
	ChannelConfigPath string
	GatewayURL        string
	APIBaseURL        string
	APIToken          string
	SendTimeout       time.Duration
	OTLPEndpoint      string
	ServiceName       string
}

func LoadConfig(service string) (*Config, error) {
	cfg := &Config{ServiceName: service}

	httpPort, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	metricsPort, err := getEnvInt("METRICS_PORT", httpPort+1000)
	if err != nil {
		return nil, err
	}
	cfg.MetricsPort = metricsPort

	maxRedeliveries, err := getEnvInt("MAX_REDELIVERIES", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxRedeliveries = maxRedeliveries

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	cfg.APIBaseURL = getEnv("CTP_API_URL", "https://api.commercetools.local")
	cfg.APIToken = os.Getenv("CTP_API_TOKEN")
	cfg.ChannelConfigPath = getEnv("CHANNEL_CONFIG_PATH", "channels.yaml")
	cfg.GatewayURL = getEnv("MESSAGING_GATEWAY_URL", "https://gateway.local")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	} else {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.SubscriptionTopic = getEnv("SUBSCRIPTION_TOPIC", "ctp.subscription.events")
	cfg.RedeliveryTopic = getEnv("REDELIVERY_TOPIC", "ctp.subscription.redelivery")
	cfg.DLQTopic = getEnv("DLQ_TOPIC", "dlq.ctp.subscription.events")

	sendTimeout, err := getEnvDuration("CHANNEL_SEND_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.SendTimeout = sendTimeout

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}
