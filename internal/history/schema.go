package history

import (
	"database/sql"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS runs (
	       run_id      TEXT PRIMARY KEY,
	       scenario    TEXT NOT NULL,
	       patient_id  TEXT NOT NULL,
	       device_id   TEXT NOT NULL,
	       started_at  INTEGER NOT NULL,
	       ended_at    INTEGER NOT NULL,
	       ticks       INTEGER NOT NULL CHECK (ticks >= 0),
	       sent        INTEGER NOT NULL CHECK (sent >= 0),
	       failed      INTEGER NOT NULL CHECK (failed >= 0)
	   );
	   CREATE TABLE IF NOT EXISTS delivery_failures (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id      TEXT NOT NULL,
	       occurred_at INTEGER NOT NULL,
	       elapsed     REAL NOT NULL,
	       code        TEXT NOT NULL,
	       status      INTEGER NOT NULL,
	       message     TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_delivery_failures_run ON delivery_failures(run_id);`

	insertFailureSQL = `
    INSERT INTO delivery_failures (
        run_id, occurred_at, elapsed, code, status, message
    ) VALUES (?, ?, ?, ?, ?, ?)`

	upsertRunSQL = `
    INSERT INTO runs (
        run_id, scenario, patient_id, device_id,
        started_at, ended_at, ticks, sent, failed
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(run_id) DO UPDATE SET
        ended_at = excluded.ended_at,
        ticks = excluded.ticks,
        sent = excluded.sent,
        failed = excluded.failed`

	selectRunsSQL = `
    SELECT run_id, scenario, patient_id, device_id, started_at, ended_at, ticks, sent, failed
    FROM runs
    ORDER BY started_at DESC
    LIMIT ?`

	insertVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	selectVersionSQL = `SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`

	tableExistsSQL = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`

	selectFailuresSQL = `
    SELECT run_id, occurred_at, elapsed, code, status, message
    FROM delivery_failures
    WHERE run_id = ?
    ORDER BY id`
)

// InitSchema creates the history tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	err := inTx(db, ErrSchemaInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return failedAt(ErrSchemaInitFailed, "create_tables", "", err)
		}
		if _, err := tx.Exec(insertVersionSQL, SchemaVersion); err != nil {
			return failedAt(ErrSchemaInitFailed, "record_version", "", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("History schema created")

	return nil
}

// GetSchemaVersion returns the recorded schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	err = db.QueryRow(selectVersionSQL).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, failedAt(ErrSchemaValidationFailed, "read_version", "schema_versions", err)
	}

	return version, nil
}

func TableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	if err := db.QueryRow(tableExistsSQL, table).Scan(&exists); err != nil {
		return false, failedAt(ErrSchemaValidationFailed, "table_exists", table, err)
	}
	return exists, nil
}
