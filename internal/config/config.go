package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type IdentityConfig struct {
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	CollaboratorTimeout time.Duration `mapstructure:"collaborator_timeout"`
}

type ReferralConfig struct {
	MaxUses      int           `mapstructure:"max_uses"`
	TokenTTLDays int           `mapstructure:"token_ttl_days"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

type Config struct {
	DatabaseURL   string         `mapstructure:"database_url"`
	ServerPort    string         `mapstructure:"server_port"`
	JWTSecret     string         `mapstructure:"jwt_secret"`
	AllowedOrigin string         `mapstructure:"allowed_origin"`
	Identity      IdentityConfig `mapstructure:"identity"`
	Referral      ReferralConfig `mapstructure:"referral"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "http://localhost:3000"
	}

	if config.Identity.CacheTTL == 0 {
		config.Identity.CacheTTL = 5 * time.Minute
	}
	if config.Identity.CollaboratorTimeout == 0 {
		config.Identity.CollaboratorTimeout = 5 * time.Second
	}
	if config.Referral.TokenTTLDays == 0 {
		config.Referral.TokenTTLDays = 90
	}
	if config.Referral.StoreTimeout == 0 {
		config.Referral.StoreTimeout = 5 * time.Second
	}

	return &config
}
