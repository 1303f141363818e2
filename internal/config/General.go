package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainID is the chain id of the target network.
	ChainID int64

	// HotWalletPrivateKey is the hex-encoded signing key for the hot wallet.
	HotWalletPrivateKey string

	// SyncModelKind selects the signing mode: "hot_wallet", "vault" or "noop".
	SyncModelKind string

	// DefaultGasLimit is the gas limit applied when a call carries no
	// explicit limit.
	DefaultGasLimit uint64

	// MaxSlippageFraction is the default slippage bound for swaps, e.g.
	// 0.005 for 0.5%.
	MaxSlippageFraction float64

	// VaultSlippageToleranceFraction shrinks expected incoming vault deltas,
	// e.g. 0.9999 keeps one basis point of headroom.
	VaultSlippageToleranceFraction float64

	// CycleIntervalSeconds is the pause between strategy cycles.
	CycleIntervalSeconds uint64

	// GasWarnBalanceWei is the native balance below which the engine warns
	// that the gas tank is running low.
	GasWarnBalanceWei uint64

	// LogLevel controls zerolog verbosity ("debug", "info", ...).
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set unless noted.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsInt64("ATE_CHAIN_ID")
	if err != nil {
		return err
	}

	SyncModelKind, err = getEnv("ATE_SYNC_MODEL")
	if err != nil {
		return err
	}
	switch SyncModelKind {
	case "hot_wallet", "vault", "noop":
	default:
		return errors.New("ATE_SYNC_MODEL must be one of hot_wallet, vault, noop, got: " + SyncModelKind)
	}

	if SyncModelKind != "noop" {
		HotWalletPrivateKey, err = getEnv("ATE_HOT_WALLET_PRIVATE_KEY")
		if err != nil {
			return err
		}
		HotWalletPrivateKey = strings.TrimPrefix(HotWalletPrivateKey, "0x")
	}

	DefaultGasLimit, err = getEnvAsUint64("ATE_GAS_DEFAULT_LIMIT")
	if err != nil {
		return err
	}

	MaxSlippageFraction, err = getEnvAsFloat64("ATE_MAX_SLIPPAGE_FRACTION")
	if err != nil {
		return err
	}
	if MaxSlippageFraction <= 0 || MaxSlippageFraction >= 1 {
		return errors.New("ATE_MAX_SLIPPAGE_FRACTION must be within (0, 1)")
	}

	VaultSlippageToleranceFraction, err = getEnvAsFloat64("ATE_VAULT_SLIPPAGE_TOLERANCE")
	if err != nil {
		return err
	}
	if VaultSlippageToleranceFraction <= 0 || VaultSlippageToleranceFraction > 1 {
		return errors.New("ATE_VAULT_SLIPPAGE_TOLERANCE must be within (0, 1]")
	}

	CycleIntervalSeconds, err = getEnvAsUint64("ATE_CYCLE_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	GasWarnBalanceWei, err = getEnvAsUint64("ATE_GAS_WARN_BALANCE_WEI")
	if err != nil {
		return err
	}

	LogLevel = os.Getenv("ATE_LOG_LEVEL")
	if LogLevel == "" {
		LogLevel = "info"
	}

	// Load endpoint and contract configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}
	if err := loadContractConfig(); err != nil {
		return err
	}

	log.Debug().
		Int64("ChainID", ChainID).
		Str("SyncModelKind", SyncModelKind).
		Uint64("DefaultGasLimit", DefaultGasLimit).
		Float64("MaxSlippageFraction", MaxSlippageFraction).
		Float64("VaultSlippageToleranceFraction", VaultSlippageToleranceFraction).
		Msg("Application configuration loaded successfully.")

	return nil
}

// getEnv retrieves an environment variable. Returns error if not set or empty.
func getEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", errors.New("required environment variable not set: " + key)
	}
	return value, nil
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}
