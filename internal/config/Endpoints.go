package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeRPC is the JSON-RPC endpoint of the venue chain.
	NodeRPC string
	// DatabaseURL is the Postgres connection string for persisted state.
	DatabaseURL string
	// WebListenAddr is the bind address for the status web server. Optional;
	// empty disables the server.
	WebListenAddr string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	NodeRPC, err = getEnv("ATE_NODE_RPC")
	if err != nil {
		return err
	}

	DatabaseURL, err = getEnv("ATE_DATABASE_URL")
	if err != nil {
		return err
	}

	WebListenAddr = os.Getenv("ATE_WEB_LISTEN_ADDR")

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Str("WebListenAddr", WebListenAddr).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
