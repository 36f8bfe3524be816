package trace

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

const decisionsSchema = `CREATE TABLE IF NOT EXISTS ledger_decisions (
	run_id        TEXT    NOT NULL,
	seq           INTEGER NOT NULL,
	node_id       TEXT    NOT NULL,
	property      TEXT    NOT NULL,
	granted       INTEGER NOT NULL,
	reason        TEXT    NOT NULL,
	epsilon       REAL    NOT NULL,
	delta         REAL    NOT NULL,
	spent_epsilon REAL    NOT NULL,
	spent_delta   REAL    NOT NULL,
	PRIMARY KEY (run_id, seq)
)`

// ExportSQLite writes the trace's records to the ledger_decisions table of
// the SQLite database at path, tagged with runID. The table is created on
// first use, so several runs can share one database.
func ExportSQLite(ctx context.Context, lt *LedgerTrace, runID, path string) (err error) {
	if runID == "" {
		return fmt.Errorf("exporting trace to %s: empty run id", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening trace database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, decisionsSchema); err != nil {
		return fmt.Errorf("creating ledger_decisions table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning trace export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_decisions
		(run_id, seq, node_id, property, granted, reason, epsilon, delta, spent_epsilon, spent_delta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing trace insert: %w", err)
	}
	defer stmt.Close()

	if lt != nil {
		for _, q := range lt.Queries {
			if _, err = stmt.ExecContext(ctx, runID, q.Seq, q.NodeID, q.Property, q.Granted,
				q.Reason, q.Epsilon, q.Delta, q.SpentEpsilon, q.SpentDelta); err != nil {
				return fmt.Errorf("inserting decision %d: %w", q.Seq, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing trace export: %w", err)
	}
	return nil
}

// LoadSQLite reads back the records ExportSQLite stored for runID, in
// sequence order.
func LoadSQLite(ctx context.Context, path, runID string) ([]QueryRecord, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT seq, node_id, property, granted, reason,
		epsilon, delta, spent_epsilon, spent_delta
		FROM ledger_decisions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying ledger_decisions: %w", err)
	}
	defer rows.Close()

	var records []QueryRecord
	for rows.Next() {
		var q QueryRecord
		if err := rows.Scan(&q.Seq, &q.NodeID, &q.Property, &q.Granted, &q.Reason,
			&q.Epsilon, &q.Delta, &q.SpentEpsilon, &q.SpentDelta); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		records = append(records, q)
	}
	return records, rows.Err()
}
