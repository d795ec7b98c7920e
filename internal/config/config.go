/**
 * @description
 * This file is responsible for managing the configuration of the
 * onboarding-service. It uses the Viper library to read settings from
 * environment variables or a .env file, making the application
 * environment-agnostic.
 *
 * @notes
 * - Configuration is loaded into a `Config` struct for type-safe access
 *   throughout the application.
 * - It's configured to automatically read from environment variables, which
 *   is ideal for containerized production deployments.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	ProviderAPIBaseURL    string `mapstructure:"PROVIDER_API_BASE_URL"`
	ProviderAPIKey        string `mapstructure:"PROVIDER_API_KEY"`
	ProviderWebhookSecret string `mapstructure:"PROVIDER_WEBHOOK_SECRET"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	InternalAPISecret     string `mapstructure:"INTERNAL_API_SECRET"`
	ServerPort            string `mapstructure:"SERVER_PORT"`
	SyncSchedule          string `mapstructure:"SYNC_SCHEDULE"`
	SyncBatchSize         int    `mapstructure:"SYNC_BATCH_SIZE"`
	StatusCacheTTLSeconds int    `mapstructure:"STATUS_CACHE_TTL_SECONDS"`
	// Comma-separated currency codes for which resources are provisioned,
	// e.g. "USD,EUR".
	ProvisionCurrencies string `mapstructure:"PROVISION_CURRENCIES"`
}

// Currencies returns the configured provisioning currencies as a slice.
func (c *Config) Currencies() []string {
	var currencies []string
	for _, raw := range strings.Split(c.ProvisionCurrencies, ",") {
		if currency := strings.ToUpper(strings.TrimSpace(raw)); currency != "" {
			currencies = append(currencies, currency)
		}
	}
	return currencies
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("SYNC_SCHEDULE", "@every 5m")
	viper.SetDefault("SYNC_BATCH_SIZE", 100)
	viper.SetDefault("STATUS_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("PROVISION_CURRENCIES", "USD")

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("PROVIDER_API_BASE_URL")
	_ = viper.BindEnv("PROVIDER_API_KEY")
	_ = viper.BindEnv("PROVIDER_WEBHOOK_SECRET")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_SECRET")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("SYNC_SCHEDULE")
	_ = viper.BindEnv("SYNC_BATCH_SIZE")
	_ = viper.BindEnv("STATUS_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("PROVISION_CURRENCIES")

	if err := viper.ReadInConfig(); err != nil {
		// If the config file is not found, it's not a fatal error,
		// as we can rely on environment variables.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
