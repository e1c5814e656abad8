// Package status serves a read-only JSON view of a running worker pool
// next to the interactive session.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
	"github.com/jzx17/photobatch/pkg/worker"
)

// Source is the part of a worker pool the status view reads
type Source interface {
	Size() int
	Submitted() uint64
	QueueLengths() []int
	Stats() worker.StatsSnapshot
	GetWorkerStats() []worker.WorkerStats
}

// WorkerView is one worker in a Snapshot
type WorkerView struct {
	ID         int        `json:"id"`
	State      string     `json:"state"`
	Processed  int64      `json:"processed"`
	Failed     int64      `json:"failed"`
	Queued     int        `json:"queued"`
	LastTaskAt *time.Time `json:"last_task_at,omitempty"`
}

// Snapshot is the /stats document
type Snapshot struct {
	Timestamp      time.Time    `json:"timestamp"`
	Workers        int          `json:"workers"`
	Busy           int          `json:"busy"`
	Idle           int          `json:"idle"`
	Submitted      uint64       `json:"submitted"`
	Processed      int64        `json:"processed"`
	TotalSeconds   float64      `json:"total_seconds"`
	AverageSeconds float64      `json:"average_seconds"`
	PerWorker      []WorkerView `json:"per_worker"`
}

// Build reads src into a Snapshot stamped with now
func Build(src Source, now time.Time) Snapshot {
	stats := src.Stats()
	workers := src.GetWorkerStats()
	snap := Snapshot{
		Timestamp:    now,
		Workers:      src.Size(),
		Submitted:    src.Submitted(),
		Processed:    stats.Count,
		TotalSeconds: stats.Total.Seconds(),
		PerWorker:    workerViews(workers, src.QueueLengths()),
	}
	for _, ws := range workers {
		switch {
		case ws.IsActive():
			snap.Busy++
		case ws.IsIdle():
			snap.Idle++
		}
	}
	if avg, ok := stats.Average(); ok {
		snap.AverageSeconds = avg.Seconds()
	}
	return snap
}

func workerViews(stats []worker.WorkerStats, queues []int) []WorkerView {
	epoch := time.Unix(0, 0)

	views := make([]WorkerView, len(stats))
	for i, ws := range stats {
		views[i] = WorkerView{
			ID:        ws.ID,
			State:     ws.State.String(),
			Processed: ws.TotalProcessed,
			Failed:    ws.TotalFailed,
		}
		if ws.ID >= 0 && ws.ID < len(queues) {
			views[i].Queued = queues[ws.ID]
		}
		if !ws.LastTaskTime.Equal(epoch) {
			at := ws.LastTaskTime
			views[i].LastTaskAt = &at
		}
	}
	return views
}

// Server exposes GET /healthz, /stats and /workers
type Server struct {
	engine *gin.Engine
	http   *http.Server
	clock  types.Clock
	logger *log.Entry
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(addr string, src Source, clock types.Clock, logger *log.Entry) *Server {
	if clock == nil {
		clock = types.NewRealClock()
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	s := &Server{
		engine: r,
		http:   &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second},
		clock:  clock,
		logger: logger,
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, Build(src, s.clock.Now()))
	})
	r.GET("/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, workerViews(src.GetWorkerStats(), src.QueueLengths()))
	})

	return s
}

// Engine returns the router, for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and serves in the background.
// It returns the bound address, which differs from the configured one for
// port 0.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, fmt.Errorf("status listen %s: %w", s.http.Addr, err)
	}
	s.logger.WithField("addr", ln.Addr().String()).Info("status server listening")

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("status server stopped")
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		}).Debug("request")
	}
}
