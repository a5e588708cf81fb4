package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*FailureRecord
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, failedAt(ErrStorageInit, "create_directory", cfg.DBPath, err)
	}

	// WAL journal, incremental auto-vacuum, 5s busy timeout
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, failedAt(ErrStorageInit, "open_database", cfg.DBPath, err)
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*FailureRecord, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Without batching every failure is written immediately.
	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) StoreFailure(failure *FailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, failure)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// StoreRun flushes pending failures so that a stored run is complete.
func (r *repository) StoreRun(run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flush(); err != nil {
		return err
	}

	_, err := r.db.Exec(upsertRunSQL,
		run.RunID,
		run.Scenario,
		run.PatientID,
		run.DeviceID,
		run.StartedAt.UnixMilli(),
		run.EndedAt.UnixMilli(),
		run.Ticks,
		run.Sent,
		run.Failed,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *repository) Runs(limit int) ([]RunRecord, error) {
	errFactory := errors.New()

	rows, err := r.db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var started, ended int64
		if err := rows.Scan(&run.RunID, &run.Scenario, &run.PatientID, &run.DeviceID,
			&started, &ended, &run.Ticks, &run.Sent, &run.Failed); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		run.EndedAt = time.UnixMilli(ended).UTC()
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return runs, nil
}

func (r *repository) Failures(runID string) ([]FailureRecord, error) {
	errFactory := errors.New()

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectFailuresSQL, runID)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var failures []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var occurred int64
		if err := rows.Scan(&f.RunID, &occurred, &f.Elapsed, &f.Code, &f.Status, &f.Message); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		f.Time = time.UnixMilli(occurred).UTC()
		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return failures, nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		r.mu.Lock()
		if err := r.flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush history on close")
		}
		r.mu.Unlock()

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = failedAt(ErrStorageClose, "checkpoint_wal", r.cfg.DBPath, err)
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = failedAt(ErrStorageClose, "close_database", r.cfg.DBPath, err)
			return
		}

		r.logger.Info().Msg("History repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes buffered failures in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	err := inTx(r.db, ErrTransactionFailed, r.logger, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertFailureSQL)
		if err != nil {
			return errors.New().Wrap(ErrTransactionFailed, err)
		}
		defer stmt.Close()

		for _, f := range r.buffer {
			if _, err := stmt.Exec(f.RunID, f.Time.UnixMilli(), f.Elapsed, f.Code, f.Status, f.Message); err != nil {
				return errors.New().Wrap(ErrTransactionFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error().Err(err).Int("records", len(r.buffer)).Msg("Failed to flush delivery failures")
		return err
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed delivery failures to database")
	r.buffer = r.buffer[:0]

	return nil
}
