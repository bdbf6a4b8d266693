package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fcm-relay/fcmclient"
	"github.com/tinywideclouds/go-fcm-relay/internal/transport"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// FCMConfig configures the upstream client.
type FCMConfig struct {
	Mode            fcmclient.Mode
	SendEndpoint    string
	IIDEndpoint     string
	MaxConcurrency  int
	CredentialsFile string // empty means Application Default Credentials
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	IdentityServiceURL     string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	FCM        FCMConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// ClientConfig derives the fcmclient configuration.
func (c *Config) ClientConfig() fcmclient.Config {
	cfg := fcmclient.DefaultConfig(c.ProjectID)
	cfg.Mode = c.FCM.Mode
	cfg.MaxConcurrency = c.FCM.MaxConcurrency
	if c.FCM.SendEndpoint != "" {
		cfg.SendEndpoint = c.FCM.SendEndpoint
	}
	if c.FCM.IIDEndpoint != "" {
		cfg.IIDEndpoint = c.FCM.IIDEndpoint
	}
	return cfg
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}

	// FCM Overrides
	if val := os.Getenv("FCM_TRANSPORT_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_TRANSPORT_MODE", "source", "env")
		cfg.FCM.Mode = fcmclient.Mode(val)
	}
	if val := os.Getenv("FCM_SEND_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_SEND_ENDPOINT", "source", "env")
		cfg.FCM.SendEndpoint = val
	}
	if val := os.Getenv("FCM_IID_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_IID_ENDPOINT", "source", "env")
		cfg.FCM.IIDEndpoint = val
	}
	if val := os.Getenv("FCM_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			logger.Debug("Overriding config value", "key", "FCM_MAX_CONCURRENCY", "source", "env")
			cfg.FCM.MaxConcurrency = n
		}
	}
	if val := os.Getenv("GOOGLE_CREDENTIALS_FILE"); val != "" {
		logger.Debug("Overriding config value", "key", "GOOGLE_CREDENTIALS_FILE", "source", "env")
		cfg.FCM.CredentialsFile = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		var cleanOrigins []string
		for _, o := range strings.Split(corsOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	mode, err := transport.ParseMode(string(cfg.FCM.Mode))
	if err != nil {
		return nil, fmt.Errorf("fcm.mode is invalid (set via YAML or FCM_TRANSPORT_MODE env var): %w", err)
	}
	cfg.FCM.Mode = mode
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.IdentityServiceURL == "" {
		cfg.IdentityServiceURL = "http://localhost:3000"
	}
	if err := cfg.ClientConfig().Validate(); err != nil {
		return nil, err
	}

	if cfg.PubsubConsumerConfig == nil {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
