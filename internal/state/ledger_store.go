/*

This file persists the strategy state document. The document is stored as
one JSONB row; quantities serialize as exact decimal strings.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/driftline/ate/internal/portfolio"
)

// SaveState upserts the live state document.
func SaveState(state *portfolio.State) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	document, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state document: %w", err)
	}

	query := `
		INSERT INTO ledger_state (state_id, document, updated_at)
		VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (state_id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = CURRENT_TIMESTAMP;
	`
	if _, err := DB.Exec(query, document); err != nil {
		return fmt.Errorf("failed to save state document: %w", err)
	}
	log.Debug().Int("bytes", len(document)).Msg("State document saved")
	return nil
}

// LoadState loads the live state document. Returns nil with no error when
// no state has ever been saved.
func LoadState() (*portfolio.State, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var document []byte
	err := DB.QueryRow(`SELECT document FROM ledger_state WHERE state_id = 1;`).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state document: %w", err)
	}

	var state portfolio.State
	if err := json.Unmarshal(document, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state document: %w", err)
	}
	return &state, nil
}

// BackupState copies the live state row into the backup table and returns
// the backup id.
func BackupState(reason string) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO ledger_state_backups (document, reason)
		SELECT document, $1 FROM ledger_state WHERE state_id = 1
		RETURNING backup_id;
	`
	var backupID int64
	err := DB.QueryRow(query, reason).Scan(&backupID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no live state to back up")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to back up state document: %w", err)
	}
	log.Info().Int64("backup_id", backupID).Str("reason", reason).Msg("State document backed up")
	return backupID, nil
}
