package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/isdelr/chirper-be/internal/api/respond"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status     string  `json:"status"`
	Store      string  `json:"store"`
	Uptime     string  `json:"uptime"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	MemoryUsed float64 `json:"systemMemoryUsedPercent,omitempty"`
}

// HealthHandler reports store reachability and process resource usage.
type HealthHandler struct {
	store   Pinger
	started time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store, started: time.Now()}
}

// Check answers 200 when the store responds and 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := HealthStatus{
		Status:     "ok",
		Store:      "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: store unreachable")
		status.Status, status.Store = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			status.RSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemoryUsed = vm.UsedPercent
	}

	respond.JSON(w, code, status)
}
