package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/logger"
)

// historyTables lists the tables in drop order.
var historyTables = []string{"delivery_failures", "runs", "schema_versions"}

// stageFailure describes which step of schema handling failed.
type stageFailure struct {
	Stage  string
	Target string `json:",omitempty"`
	Error  string
}

func failedAt(code errors.ErrorCode, stage, target string, err error) errors.Error {
	return errors.New().WithData(code, stageFailure{Stage: stage, Target: target, Error: err.Error()})
}

// inTx runs fn in a transaction, rolling back unless fn and the commit succeed.
func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(code, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(code, err)
	}

	return nil
}

// backupDatabase copies the database next to itself before an incompatible
// schema is dropped.
func backupDatabase(db *sql.DB, dbPath string, version int, log logger.Logger) (string, error) {
	dir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", failedAt(ErrSchemaMigrationFailed, "create_backup_dir", dir, err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(dir, fmt.Sprintf("history_v%d_%s.db", version, stamp))

	// Must run outside a transaction.
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return "", failedAt(ErrSchemaMigrationFailed, "vacuum_into", path, err)
	}

	log.Info().
		Str("path", path).
		Int("version", version).
		Msg("History database backed up before schema reset")

	return path, nil
}

// ValidateAndUpdateSchema brings the database to SchemaVersion. History is
// an audit aid, so an outdated schema is backed up and recreated rather than
// migrated in place.
func ValidateAndUpdateSchema(db *sql.DB, dbPath string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return errors.New().Wrap(ErrSchemaValidationFailed, err)
	}

	switch {
	case version == SchemaVersion:
		log.Debug().Int("version", version).Msg("History schema up to date")
		return nil
	case version != 0:
		log.Warn().
			Int("found", version).
			Int("expected", SchemaVersion).
			Msg("History schema version mismatch")
		if _, err := backupDatabase(db, dbPath, version, log); err != nil {
			return err
		}
	}

	err = inTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range historyTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return failedAt(ErrSchemaMigrationFailed, "drop_table", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return InitSchema(db, log)
}
