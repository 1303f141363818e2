// ./internal/state/summary_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/driftline/ate/internal/executor"
)

// SaveCycleSummary saves one cycle report to the database.
func SaveCycleSummary(cycleNumber int, report *executor.CycleReport) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	skippedJSON, err := json.Marshal(report.Skipped)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal skipped trades: %w", err)
	}

	query := `
		INSERT INTO cycle_summaries (
			cycle_number, cycle_id, started_at, duration_ms,
			executed_trades, failed_trades, skipped_trades,
			transaction_hashes, balance_update_count, duplicate_event_count,
			unchecked_assets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING summary_id;
	`

	var summaryID int64
	err = DB.QueryRow(
		query,
		cycleNumber, report.CycleID, report.StartedAt, report.Duration.Milliseconds(),
		len(report.ExecutedTradeIDs), len(report.FailedTradeIDs), skippedJSON,
		pq.Array(report.TxHashes), report.BalanceUpdateCount, report.DuplicateEventCount,
		pq.Array(report.UncheckedAssets),
	).Scan(&summaryID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle summary: %w", err)
	}

	log.Info().
		Int64("summary_id", summaryID).
		Int("cycle_number", cycleNumber).
		Int("executed_trades", len(report.ExecutedTradeIDs)).
		Msg("Cycle summary saved to database")

	return summaryID, nil
}

// LatestCycleSummary loads the most recent cycle report, nil when none.
func LatestCycleSummary() (*executor.CycleReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT cycle_id, started_at, duration_ms, skipped_trades,
		       transaction_hashes, balance_update_count, duplicate_event_count,
		       unchecked_assets
		FROM cycle_summaries
		ORDER BY summary_id DESC
		LIMIT 1;
	`

	var report executor.CycleReport
	var durationMs int64
	var skippedJSON []byte
	err := DB.QueryRow(query).Scan(
		&report.CycleID, &report.StartedAt, &durationMs, &skippedJSON,
		pq.Array(&report.TxHashes), &report.BalanceUpdateCount, &report.DuplicateEventCount,
		pq.Array(&report.UncheckedAssets),
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest cycle summary: %w", err)
	}
	report.Duration = time.Duration(durationMs) * time.Millisecond
	if len(skippedJSON) > 0 {
		if err := json.Unmarshal(skippedJSON, &report.Skipped); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped trades: %w", err)
		}
	}
	return &report, nil
}
