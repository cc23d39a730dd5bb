package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/autopilot/internal/database"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/modules/market_hours"
)

// DatabaseStats reports database file statistics
type DatabaseStats interface {
	GetStats() (*database.Stats, error)
}

// SessionSource reports the current market session
type SessionSource interface {
	Session() market_hours.Session
}

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          DatabaseStats
	broker      BrokerStatus
	hub         *events.Hub
	clock       SessionSource

	// sampleCPU is replaceable in tests
	sampleCPU func() (float64, float64)
}

// SystemStatsResponse is the host and process snapshot
type SystemStatsResponse struct {
	CPUPercent      float64         `json:"cpu_percent"`
	MemoryPercent   float64         `json:"memory_percent"`
	Goroutines      int             `json:"goroutines"`
	UptimeSeconds   int64           `json:"uptime_seconds"`
	BrokerConnected bool            `json:"broker_connected"`
	Subscribers     int             `json:"subscribers"`
	MarketSession   string          `json:"market_session"`
	Database        *database.Stats `json:"database,omitempty"`
	DataDirMB       float64         `json:"data_dir_mb"`
	Timestamp       string          `json:"timestamp"`
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, db DatabaseStats, broker BrokerStatus, hub *events.Hub, clock SessionSource) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
		broker:      broker,
		hub:         hub,
		clock:       clock,
	}
	h.sampleCPU = h.getSystemStats
	return h
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/stats", h.HandleSystemStats)
		r.Get("/database", h.HandleDatabaseStats)
	})
}

// HandleSystemStats returns CPU, memory and service state
// GET /api/system/stats
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.sampleCPU()

	response := SystemStatsResponse{
		CPUPercent:      cpuPercent,
		MemoryPercent:   memPercent,
		Goroutines:      runtime.NumGoroutine(),
		UptimeSeconds:   int64(time.Since(h.startupTime).Seconds()),
		BrokerConnected: h.broker.IsConnected(),
		DataDirMB:       h.getDirSize(h.dataDir),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if h.hub != nil {
		response.Subscribers = h.hub.Count()
	}
	if h.clock != nil {
		response.MarketSession = string(h.clock.Session())
	}
	if h.db != nil {
		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
		} else {
			response.Database = stats
		}
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// HandleDatabaseStats returns database statistics
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(h.log, w, http.StatusServiceUnavailable, map[string]string{"detail": "Database not available"})
		return
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		writeJSON(h.log, w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(h.log, w, http.StatusOK, stats)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
