// Package config provides a reusable loader for tenantledger node
// configuration files and environment variables.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"tenantledger/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified node configuration bundle: DB endpoint/credentials,
// two API ports, two API credential pairs, private-key path, payload
// ceiling, scheduler tick interval, RPC timeout/backoff bounds.
type Config struct {
	Node struct {
		ID          string `mapstructure:"id" json:"id"`
		KeyFile     string `mapstructure:"key_file" json:"key_file"`
		RosterFile  string `mapstructure:"roster_file" json:"roster_file"`
	} `mapstructure:"node" json:"node"`

	DB struct {
		URI                string `mapstructure:"uri" json:"uri"`
		Database           string `mapstructure:"database" json:"database"`
		PasswordEncryption bool   `mapstructure:"password_encryption" json:"password_encryption"`
		Password           string `mapstructure:"password" json:"password"`
	} `mapstructure:"db" json:"db"`

	UserAPI struct {
		Addr     string `mapstructure:"addr" json:"addr"`
		AuthMode string `mapstructure:"auth_mode" json:"auth_mode"` // "basic" or "bearer"
		Username string `mapstructure:"username" json:"username"`
		Password string `mapstructure:"password" json:"password"`
	} `mapstructure:"user_api" json:"user_api"`

	AdminAPI struct {
		Addr     string `mapstructure:"addr" json:"addr"`
		AuthMode string `mapstructure:"auth_mode" json:"auth_mode"`
		Username string `mapstructure:"username" json:"username"`
		Password string `mapstructure:"password" json:"password"`
	} `mapstructure:"admin_api" json:"admin_api"`

	Pool struct {
		MaxPayloadBytes    int `mapstructure:"max_payload_bytes" json:"max_payload_bytes"`
		SealRetries        int `mapstructure:"seal_retries" json:"seal_retries"`
		DeliveryStaleMs    int `mapstructure:"delivery_stale_ms" json:"delivery_stale_ms"`
	} `mapstructure:"pool" json:"pool"`

	Scheduler struct {
		TickIntervalMs int `mapstructure:"tick_interval_ms" json:"tick_interval_ms"`
	} `mapstructure:"scheduler" json:"scheduler"`

	RPC struct {
		TimeoutMs       int `mapstructure:"timeout_ms" json:"timeout_ms"`
		BackoffInitialMs int `mapstructure:"backoff_initial_ms" json:"backoff_initial_ms"`
		BackoffCapMs     int `mapstructure:"backoff_cap_ms" json:"backoff_cap_ms"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads cmd/config/default.yaml (and config/default.yaml as a
// fallback search path), merges an optional per-environment override file,
// then applies environment variable overrides via AutomaticEnv. The
// resulting configuration is stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LEDGER_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGER_ENV", ""))
}

// ResolvePassword returns the DB password in plaintext, decoding it first
// if db.password_encryption is set.
func (c *Config) ResolvePassword(env string) (string, error) {
	if !c.DB.PasswordEncryption {
		return c.DB.Password, nil
	}
	return decryptKeyed(c.DB.Password, fmt.Sprintf("config/%s.key", env))
}
