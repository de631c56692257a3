// Package config provides a reusable loader for the node/client
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"closegroup/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a storage node or client. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Node struct {
		ID               string `mapstructure:"id" json:"id"`
		ListenAddr       string `mapstructure:"listen_addr" json:"listen_addr"`
		CloseGroupSize   int    `mapstructure:"close_group_size" json:"close_group_size"`
		RecordStoreDir   string `mapstructure:"record_store_dir" json:"record_store_dir"`
		MaxHDDWriteFails int    `mapstructure:"max_hdd_write_fails" json:"max_hdd_write_fails"`
	} `mapstructure:"node" json:"node"`

	Payment struct {
		RoyaltyBasisPoints int    `mapstructure:"royalty_basis_points" json:"royalty_basis_points"`
		QuoteLifetime      string `mapstructure:"quote_lifetime" json:"quote_lifetime"`
		EVMVerifierAddr    string `mapstructure:"evm_verifier_addr" json:"evm_verifier_addr"`
	} `mapstructure:"payment" json:"payment"`

	Wallet struct {
		RootDir                 string `mapstructure:"root_dir" json:"root_dir"`
		MaxResendPendingTxTries int    `mapstructure:"max_resend_pending_tx_tries" json:"max_resend_pending_tx_tries"`
	} `mapstructure:"wallet" json:"wallet"`

	Upload struct {
		BatchSize                    int `mapstructure:"batch_size" json:"batch_size"`
		MaxSequentialNetworkErrors   int `mapstructure:"max_sequential_network_errors" json:"max_sequential_network_errors"`
		MaxSequentialPaymentFails    int `mapstructure:"max_sequential_payment_fails" json:"max_sequential_payment_fails"`
		FailuresBeforeDifferentPayee int `mapstructure:"failures_before_different_payee" json:"failures_before_different_payee"`
		MaxRepaymentsPerAddress      int `mapstructure:"max_repayments_per_address" json:"max_repayments_per_address"`
	} `mapstructure:"upload" json:"upload"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files on top of the default one. If env is empty, only the
// default configuration is loaded.
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

	viper.AutomaticEnv() // picks up .env overrides loaded by cmd/ via godotenv

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CLOSEGROUP_ENV environment
// variable to pick an overlay (e.g. "bootstrap", "dev").
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CLOSEGROUP_ENV", ""))
}
