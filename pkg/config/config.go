package config

// Package config provides a reusable loader for Cashew node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"cashew/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a Cashew node. It mirrors
// the structure of the YAML files under cmd/cashew/config.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		EnableNAT      bool     `mapstructure:"enable_nat" json:"enable_nat"`
	} `mapstructure:"network" json:"network"`

	Issuance struct {
		PowWeight                    float64 `mapstructure:"pow_weight" json:"pow_weight"`
		PostakeWeight                float64 `mapstructure:"postake_weight" json:"postake_weight"`
		EpochCapPerNode              uint32  `mapstructure:"epoch_cap_per_node" json:"epoch_cap_per_node"`
		RateLimitSeconds             int64   `mapstructure:"rate_limit_seconds" json:"rate_limit_seconds"`
		PostakeContributionThreshold int32   `mapstructure:"postake_contribution_threshold" json:"postake_contribution_threshold"`
		HybridBonusMultiplier        float64 `mapstructure:"hybrid_bonus_multiplier" json:"hybrid_bonus_multiplier"`
	} `mapstructure:"issuance" json:"issuance"`

	Gateway struct {
		ListenAddr        string `mapstructure:"listen_addr" json:"listen_addr"`
		CORSOrigin        string `mapstructure:"cors_origin" json:"cors_origin"`
		SessionTTLSeconds int    `mapstructure:"session_ttl_seconds" json:"session_ttl_seconds"`
		RequestsPerMinute int    `mapstructure:"requests_per_minute" json:"requests_per_minute"`
		RequestsPerHour   int    `mapstructure:"requests_per_hour" json:"requests_per_hour"`
		MaxBodyBytes      int64  `mapstructure:"max_body_bytes" json:"max_body_bytes"`
	} `mapstructure:"gateway" json:"gateway"`

	Storage struct {
		LedgerPath   string `mapstructure:"ledger_path" json:"ledger_path"`
		ContentRoot  string `mapstructure:"content_root" json:"content_root"`
		IdentityPath string `mapstructure:"identity_path" json:"identity_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/cashew/config")
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

	viper.AutomaticEnv() // picks up matching process environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CASHEW_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CASHEW_ENV", ""))
}
