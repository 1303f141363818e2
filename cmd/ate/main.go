package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/driftline/ate/internal/chain"
	"github.com/driftline/ate/internal/config"
	"github.com/driftline/ate/internal/engine"
	"github.com/driftline/ate/internal/executor"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/portfolio"
	"github.com/driftline/ate/internal/routing"
	"github.com/driftline/ate/internal/state"
	"github.com/driftline/ate/internal/syncmodel"
	"github.com/driftline/ate/internal/types"
	"github.com/driftline/ate/internal/universe"
	"github.com/driftline/ate/internal/wallet"
	"github.com/driftline/ate/internal/web"
)

// main is the entry point for the trade execution engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Trade execution engine starting...")

	if err := state.InitDB(config.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 2. Chain and universe ---
	chainClient, err := chain.NewClient(ctx, config.NodeRPC, config.ChainID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain")
	}

	universePath := os.Getenv("ATE_UNIVERSE_FILE")
	if universePath == "" {
		log.Fatal().Msg("ATE_UNIVERSE_FILE must point at the pair universe document")
	}
	pairUniverse, err := universe.LoadPairsFile(universePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pair universe")
	}
	log.Info().Int("pairs", pairUniverse.Count()).Msg("Pair universe loaded")

	reserve := types.NewAssetIdentifier(
		config.ChainID,
		config.ReserveAssetAddress.Hex(),
		config.ReserveAssetSymbol,
		config.ReserveAssetDecimals,
	)

	// --- 3. Signing and sync model ---
	var hotWallet *wallet.HotWallet
	if config.SyncModelKind != "noop" {
		hotWallet, err = wallet.NewHotWallet(config.HotWalletPrivateKey, config.ChainID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load hot wallet")
		}
		log.Info().Str("address", hotWallet.Address().Hex()).Msg("Hot wallet loaded")
	}

	syncModel, err := buildSyncModel(hotWallet, chainClient, reserve)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build sync model")
	}

	// --- 4. Routing and execution ---
	pricing, err := universe.NewLivePricing(chainClient, config.QuoterAddress, sdkmath.LegacyNewDec(1))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pricing model")
	}

	router, err := routing.NewRouter(reserve, config.SwapRouterAddress, config.QuoterAddress, chainClient, config.IntermediaryWhitelist)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build router")
	}

	exec, err := executor.NewExecutor(router, chainClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build executor")
	}

	// --- 5. State ---
	strategyState, err := state.LoadState()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted state")
	}
	if strategyState == nil {
		log.Info().Msg("No persisted state found, starting fresh")
		strategyState = portfolio.NewState()
	}
	if err := syncModel.SyncInitial(ctx, strategyState); err != nil {
		log.Fatal().Err(err).Msg("Initial sync failed")
	}

	eng, err := engine.NewEngine(
		syncModel, exec, chainClient, pairUniverse, pricing,
		nil, // strategy decisions are supplied by an external collaborator
		hotWallet, strategyState,
		engine.Options{
			MaxSlippageFraction: config.MaxSlippageFraction,
			CycleInterval:       time.Duration(config.CycleIntervalSeconds) * time.Second,
			CheckBalances:       true,
			GasWarnBalanceWei:   config.GasWarnBalanceWei,
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble engine")
	}

	// --- 6. Web server ---
	if config.WebListenAddr != "" {
		webServer := web.NewWebServer(config.WebListenAddr, eng)
		go func() {
			if err := webServer.Start(); err != nil {
				log.Error().Err(err).Msg("Web server failed")
			}
		}()
	}

	// --- 7. Cycle loop ---
	if err := eng.RunLoop(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Engine loop failed")
	}
	log.Info().Msg("Shutdown complete")
}

// buildSyncModel selects the signing mode from configuration.
func buildSyncModel(hotWallet *wallet.HotWallet, chainClient *chain.Client, reserve types.AssetIdentifier) (syncmodel.SyncModel, error) {
	reserves := []types.AssetIdentifier{reserve}
	switch config.SyncModelKind {
	case "vault":
		return syncmodel.NewVaultSyncModel(hotWallet, chainClient, reserves, syncmodel.VaultConfig{
			Vault:                     config.VaultAddress,
			Comptroller:               config.VaultComptrollerAddress,
			IntegrationManager:        config.VaultIntegrationManagerAddress,
			GenericAdapter:            config.VaultGenericAdapterAddress,
			SlippageToleranceFraction: config.VaultSlippageToleranceFraction,
		}, config.DefaultGasLimit)
	case "hot_wallet":
		return syncmodel.NewHotWalletSyncModel(hotWallet, chainClient, reserves, config.DefaultGasLimit)
	default:
		return syncmodel.NewNoopSyncModel(), nil
	}
}
