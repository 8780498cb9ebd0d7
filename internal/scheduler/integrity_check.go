package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/internal/database"
)

// IntegrityCheckJob verifies SQLite health for the trade mirror.
// Runs every 6 hours; corruption is reported, never auto-repaired.
type IntegrityCheckJob struct {
	log zerolog.Logger
	db  *database.DB
	mu  sync.Mutex
}

// IntegrityCheckConfig holds configuration for the integrity check job
type IntegrityCheckConfig struct {
	Log zerolog.Logger
	DB  *database.DB
}

// NewIntegrityCheckJob creates a new integrity check job
func NewIntegrityCheckJob(cfg IntegrityCheckConfig) *IntegrityCheckJob {
	return &IntegrityCheckJob{
		log: cfg.Log.With().Str("job", "integrity_check").Logger(),
		db:  cfg.DB,
	}
}

// Name returns the job name
func (j *IntegrityCheckJob) Name() string {
	return "integrity_check"
}

// Run executes the integrity check
func (j *IntegrityCheckJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("Integrity check already running, skipping")
		return nil
	}
	defer j.mu.Unlock()

	j.log.Info().Msg("Starting database integrity check")
	startTime := time.Now()

	var result string
	if err := j.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}

	j.checkpointWAL()

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Integrity check completed")
	return nil
}

// checkpointWAL runs a passive WAL checkpoint and warns when the log has
// grown large.
func (j *IntegrityCheckJob) checkpointWAL() {
	var busy, logFrames, checkpointed int
	err := j.db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint")
		return
	}

	if logFrames > 1000 {
		j.log.Warn().
			Int("wal_frames", logFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().
			Int("wal_frames", logFrames).
			Msg("WAL checkpoint status OK")
	}
}
