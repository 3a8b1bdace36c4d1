package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App        `json:"app"        toml:"app"`
		Blockchain `json:"blockchain" toml:"blockchain"`
		Payments   `json:"payments"   toml:"payments"`
		HTTP       `json:"http"       toml:"http"`
		DB         `json:"db"         toml:"db"`
		Log        `json:"logger"     toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	Blockchain struct {
		RPCURL              string `json:"rpc_url"               toml:"rpc_url"               env:"ETH_RPC_URL"`
		QueryTimeoutSeconds int    `json:"query_timeout_seconds" toml:"query_timeout_seconds" env:"ETH_QUERY_TIMEOUT" env-default:"15"`
	}

	// Payments holds the membership payment identity. None of these values are
	// required at startup: the scanner returns empty results and the validator
	// rejects requests while they are missing.
	Payments struct {
		ReceivingAddress    string `json:"receiving_address"     toml:"receiving_address"     env:"MEMBERSHIP_WALLET_ADDRESS"`
		MembershipFeeWei    string `json:"membership_fee_wei"    toml:"membership_fee_wei"    env:"MEMBERSHIP_FEE_WEI" env-default:"2000000000000000"`
		ScanIntervalMinutes int    `json:"scan_interval_minutes" toml:"scan_interval_minutes" env:"ORPHAN_SCAN_INTERVAL" env-default:"10"`
		ScanBlockWindow     uint64 `json:"scan_block_window"     toml:"scan_block_window"     env:"ORPHAN_SCAN_BLOCK_WINDOW" env-default:"300"`
		AdminSecret         string `json:"admin_secret"          toml:"admin_secret"          env:"ADMIN_API_SECRET"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}

// PaymentsConfigured reports whether the chain endpoint and the receiving
// wallet are both known. Without them the reconciliation paths stay inert.
func (c *Config) PaymentsConfigured() bool {
	return c.Blockchain.RPCURL != "" && c.Payments.ReceivingAddress != ""
}

// FeeWei parses the configured membership fee as an integer wei amount.
func (c *Config) FeeWei() (*big.Int, bool) {
	if c.Payments.MembershipFeeWei == "" {
		return nil, false
	}
	return new(big.Int).SetString(c.Payments.MembershipFeeWei, 10)
}
