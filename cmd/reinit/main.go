// reinit rebuilds the persisted strategy state with a full on-chain rescan
// from the deployment block. It refuses to run while positions are open and
// fails loudly when the rescan observes no deposits.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/config"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/state"
	"github.com/driftline/ate/internal/treasury"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Initialize(config.LogLevel)
	log.Info().Msg("State reinitialisation starting...")

	if err := state.InitDB(config.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	chainClient, err := chain.NewClient(ctx, config.NodeRPC, config.ChainID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain")
	}

	oldState, err := state.LoadState()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted state")
	}
	if oldState == nil {
		log.Fatal().Msg("No persisted state to reinitialize")
	}

	reserve := types.NewAssetIdentifier(
		config.ChainID,
		config.ReserveAssetAddress.Hex(),
		config.ReserveAssetSymbol,
		config.ReserveAssetDecimals,
	)

	holder := config.VaultAddress
	if config.SyncModelKind != "vault" {
		hotWallet, err := wallet.NewHotWallet(config.HotWalletPrivateKey, config.ChainID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load hot wallet")
		}
		holder = hotWallet.Address()
	}

	engine, err := treasury.NewEngine(config.ChainID, holder, []types.AssetIdentifier{reserve})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build treasury engine")
	}

	var pairUniverse *universe.PairUniverse
	if path := os.Getenv("ATE_UNIVERSE_FILE"); path != "" {
		pairUniverse, err = universe.LoadPairsFile(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load pair universe")
		}
	}

	backupID, err := state.BackupState("reinit")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to back up existing state")
	}
	log.Info().Int64("backup_id", backupID).Msg("Existing state backed up")

	fresh, err := engine.Reinit(ctx, chainClient, pairUniverse, oldState, config.ReinitStartBlock)
	if err != nil {
		log.Error().Err(err).Msg("Reinitialisation failed, persisted state left untouched")
		os.Exit(1)
	}

	if err := state.SaveState(fresh); err != nil {
		log.Fatal().Err(err).Msg("Failed to save reinitialized state")
	}
	log.Info().
		Int("events", len(fresh.Sync.Treasury.Refs)).
		Uint64("scanned_to", fresh.Sync.Treasury.LastBlockScanned).
		Msg("State reinitialized successfully")
}
