package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"gavel/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	viper.BindEnv("webhook.verify_token", "WEBHOOK_VERIFY_TOKEN")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.admitted_topic", "BROKER_KAFKA_ADMITTED_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Webhook.MaxBodyBytes == 0 {
		cfg.Webhook.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if cfg.Webhook.MaxPayloadBytes == 0 {
		cfg.Webhook.MaxPayloadBytes = constants.DefaultMaxPayloadBytes
	}
	if cfg.Sanitizer.MaxTextLength == 0 {
		cfg.Sanitizer.MaxTextLength = constants.DefaultMaxTextLength
	}
	if cfg.Sanitizer.MaxJSONLeafLength == 0 {
		cfg.Sanitizer.MaxJSONLeafLength = constants.DefaultMaxJSONLeafLen
	}
	if cfg.RateLimit.IdentityPerMinute == 0 {
		cfg.RateLimit.IdentityPerMinute = constants.DefaultIdentityPerMinute
	}
	if cfg.RateLimit.IdentityPerHour == 0 {
		cfg.RateLimit.IdentityPerHour = constants.DefaultIdentityPerHour
	}
	if cfg.RateLimit.GlobalPerMinute == 0 {
		cfg.RateLimit.GlobalPerMinute = constants.DefaultGlobalPerMinute
	}
	if cfg.RateLimit.GlobalPerHour == 0 {
		cfg.RateLimit.GlobalPerHour = constants.DefaultGlobalPerHour
	}
	if cfg.RateLimit.AuditTimeout == 0 {
		cfg.RateLimit.AuditTimeout = constants.DefaultAuditTimeout
	}
	if cfg.Dedup.TTLSeconds == 0 {
		cfg.Dedup.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	if cfg.Broker.Kafka.AdmittedTopic == "" {
		cfg.Broker.Kafka.AdmittedTopic = constants.DefaultAdmittedTopic
	}
}
