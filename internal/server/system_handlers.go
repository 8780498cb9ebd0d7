package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/topsignal/trader-go/internal/database"
	"github.com/topsignal/trader-go/internal/events"
	"github.com/topsignal/trader-go/internal/modules/trades"
	"github.com/topsignal/trader-go/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	trades    *trades.Service
	bus       *events.Manager
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	tradesService *trades.Service,
	bus *events.Manager,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		db:        db,
		trades:    tradesService,
		bus:       bus,
		scheduler: sched,
		startedAt: time.Now().UTC(),
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	TradeEvents   int                    `json:"trade_events"`
	DaySyncs      map[string]int         `json:"day_syncs"`
	EventCounts   map[string]int         `json:"event_counts"`
	LastTradeSync *events.Event          `json:"last_trade_sync,omitempty"`
	Memory        map[string]interface{} `json:"memory"`
	Goroutines    int                    `json:"goroutines"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	SizeMB      float64 `json:"size_mb"`
	TradeEvents int     `json:"trade_events"`
	LastChecked string  `json:"last_checked"`
}

// HandleSystemStatus returns comprehensive system status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	eventCount, err := h.trades.EventCount()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count trade events")
	}

	daySyncs, err := h.trades.DaySyncCounts()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count day sync markers")
		daySyncs = map[string]int{}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := SystemStatusResponse{
		Status:        "running",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		TradeEvents:   eventCount,
		DaySyncs:      daySyncs,
		EventCounts:   h.bus.Counts(),
		Goroutines:    runtime.NumGoroutine(),
		Memory: map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
	}

	if last, ok := h.bus.Last(events.TradesSynced); ok {
		response.LastTradeSync = &last
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns database statistics
// GET /api/system/db
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	eventCount, err := h.trades.EventCount()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count trade events")
	}

	response := DatabaseStatsResponse{
		SizeMB:      float64(h.db.SizeBytes()) / 1024 / 1024,
		TradeEvents: eventCount,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleListJobs lists registered scheduler jobs
// GET /api/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"jobs": h.scheduler.JobNames(),
	})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/jobs/{jobName}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")

	job, ok := h.scheduler.Job(jobName)
	if !ok {
		http.Error(w, "Unknown job: "+jobName, http.StatusNotFound)
		return
	}

	h.log.Info().Str("job", jobName).Msg("Manual job trigger")

	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", jobName).Msg("Job failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Job " + jobName + " completed",
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
