/*

This file contains the on-chain address configuration: venue contracts, the
reserve asset, the vault wiring and the intermediary pool whitelist.

The whitelist env format is comma-separated "quoteToken=pool" entries, e.g.

  ATE_INTERMEDIARY_WHITELIST=0xC02a...=0x8ad5...,0x2260...=0xCBCd...

keyed by the quote token address of the pair that needs the hop.

*/

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

var (
	// SwapRouterAddress is the venue's swap router contract.
	SwapRouterAddress common.Address
	// QuoterAddress is the venue's quoter contract used for live pricing.
	QuoterAddress common.Address

	// ReserveAssetAddress is the token the strategy holds cash in.
	ReserveAssetAddress common.Address
	// ReserveAssetSymbol is informational, used in logs and summaries.
	ReserveAssetSymbol string
	// ReserveAssetDecimals is the reserve token's decimal count.
	ReserveAssetDecimals uint8

	// VaultAddress is the managed fund contract. Required for the vault sync
	// model, empty otherwise.
	VaultAddress common.Address
	// VaultComptrollerAddress receives the callOnExtension envelope.
	VaultComptrollerAddress common.Address
	// VaultGenericAdapterAddress is the adapter the vault delegates venue
	// calls to. The vault transaction builder refuses to start without it.
	VaultGenericAdapterAddress common.Address
	// VaultIntegrationManagerAddress is the extension the envelope targets.
	VaultIntegrationManagerAddress common.Address

	// IntermediaryWhitelist maps a pair's quote token address to the only
	// pool allowed as the hop toward the reserve asset.
	IntermediaryWhitelist map[common.Address]common.Address

	// ReinitStartBlock optionally overrides the deployment block as the
	// starting point for a full resync. Zero means use the deployment block.
	ReinitStartBlock uint64
)

// loadContractConfig loads contract addresses from environment variables.
// This function is called by LoadConfig() in General.go.
func loadContractConfig() error {
	log.Info().Msg("Loading contract configuration from environment variables...")

	var err error

	SwapRouterAddress, err = getEnvAsAddress("ATE_SWAP_ROUTER_ADDRESS")
	if err != nil {
		return err
	}

	QuoterAddress, err = getEnvAsAddress("ATE_QUOTER_ADDRESS")
	if err != nil {
		return err
	}

	ReserveAssetAddress, err = getEnvAsAddress("ATE_RESERVE_ASSET_ADDRESS")
	if err != nil {
		return err
	}

	ReserveAssetSymbol, err = getEnv("ATE_RESERVE_ASSET_SYMBOL")
	if err != nil {
		return err
	}

	reserveDecimals, err := getEnvAsUint64("ATE_RESERVE_ASSET_DECIMALS")
	if err != nil {
		return err
	}
	if reserveDecimals > 36 {
		return errors.New("ATE_RESERVE_ASSET_DECIMALS is implausibly large")
	}
	ReserveAssetDecimals = uint8(reserveDecimals)

	if SyncModelKind == "vault" {
		VaultAddress, err = getEnvAsAddress("ATE_VAULT_ADDRESS")
		if err != nil {
			return err
		}
		VaultComptrollerAddress, err = getEnvAsAddress("ATE_VAULT_COMPTROLLER_ADDRESS")
		if err != nil {
			return err
		}
		VaultIntegrationManagerAddress, err = getEnvAsAddress("ATE_VAULT_INTEGRATION_MANAGER_ADDRESS")
		if err != nil {
			return err
		}
		// The generic adapter is deliberately allowed to be absent here; the
		// vault transaction builder reports the configuration error itself
		// so it surfaces at signing setup, not at config load.
		if raw := os.Getenv("ATE_VAULT_GENERIC_ADAPTER_ADDRESS"); raw != "" {
			if !common.IsHexAddress(raw) {
				return errors.New("ATE_VAULT_GENERIC_ADAPTER_ADDRESS must be a hex address, got: " + raw)
			}
			VaultGenericAdapterAddress = common.HexToAddress(raw)
		}
	}

	IntermediaryWhitelist, err = parseWhitelist(os.Getenv("ATE_INTERMEDIARY_WHITELIST"))
	if err != nil {
		return err
	}

	if raw := os.Getenv("ATE_REINIT_START_BLOCK"); raw != "" {
		ReinitStartBlock, err = getEnvAsUint64("ATE_REINIT_START_BLOCK")
		if err != nil {
			return err
		}
	}

	log.Debug().
		Str("SwapRouterAddress", SwapRouterAddress.Hex()).
		Str("ReserveAssetAddress", ReserveAssetAddress.Hex()).
		Int("IntermediaryWhitelistSize", len(IntermediaryWhitelist)).
		Msg("Contract configuration loaded successfully.")

	return nil
}

// getEnvAsAddress retrieves an environment variable as a checksummed address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

// parseWhitelist parses the comma-separated quoteToken=pool entries.
func parseWhitelist(raw string) (map[common.Address]common.Address, error) {
	whitelist := map[common.Address]common.Address{}
	if strings.TrimSpace(raw) == "" {
		return whitelist, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return nil, errors.New("malformed intermediary whitelist entry: " + entry)
		}
		whitelist[common.HexToAddress(parts[0])] = common.HexToAddress(parts[1])
	}
	return whitelist, nil
}
