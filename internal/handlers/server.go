package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"stem420/internal/blob"
	"stem420/internal/job"
	"stem420/internal/lifecycle"
	"stem420/internal/storage"
	"stem420/internal/version"
)

// Server holds the HTTP surface's dependencies and the health counter.
type Server struct {
	manager   *job.Manager
	tracker   *lifecycle.Tracker
	runs      *storage.RunRepository
	startTime time.Time

	mu          sync.Mutex
	healthCount int
}

// NewServer creates the HTTP handler set. runs may be nil; the run-history
// routes then report that no store is configured.
func NewServer(manager *job.Manager, tracker *lifecycle.Tracker, runs *storage.RunRepository) *Server {
	return &Server{
		manager:   manager,
		tracker:   tracker,
		runs:      runs,
		startTime: time.Now(),
	}
}

// Register attaches all routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.Root)
	e.GET("/health", s.Health)
	e.GET("/start_time", s.StartTime)
	e.GET("/status", s.Status)
	e.POST("/run_job", s.RunJob)
	e.GET("/jobs", s.ListRuns)
	e.GET("/jobs/stats", s.RunStats)
	e.GET("/jobs/:id", s.GetRun)
}

func (s *Server) statusBody() map[string]any {
	s.mu.Lock()
	healthCount := s.healthCount
	s.mu.Unlock()
	aliveAge := time.Since(s.startTime).Seconds()
	return map[string]any{
		"health_count": healthCount,
		"alive_age_s":  aliveAge,
		"alive_age_h":  aliveAge / 3600,
		"status_code":  http.StatusOK,
		"sha":          version.Commit,
	}
}

// Root returns process uptime and the build identifier.
func (s *Server) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, s.statusBody())
}

// Health increments the health counter and returns the same body as Root.
func (s *Server) Health(c echo.Context) error {
	s.mu.Lock()
	s.healthCount++
	s.mu.Unlock()
	body := s.statusBody()
	s.tracker.Log(fmt.Sprintf("server.health %v", body))
	return c.JSON(http.StatusOK, body)
}

// StartTime returns the process start time as unix seconds.
func (s *Server) StartTime(c echo.Context) error {
	return c.String(http.StatusOK, fmt.Sprint(s.startTime.Unix()))
}

// Status returns a snapshot of the lifecycle tracker.
func (s *Server) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.Snapshot())
}

// RunJob validates the request's locators and submits it through the
// worker pool. The acknowledgment does not wait for the pipeline.
func (s *Server) RunJob(c echo.Context) error {
	var req job.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"err": err.Error()})
	}
	if _, _, err := blob.ParseLocator(req.SourceLocator); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"err": err.Error()})
	}
	if _, _, err := blob.ParseLocator(req.DestinationLocator); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"err": err.Error()})
	}

	s.tracker.Log("server.receive")
	resp, err := s.manager.Run(req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"err": fmt.Sprintf("%+v", err)})
	}
	s.tracker.Log("server.respond")
	return c.JSON(http.StatusOK, resp)
}

// ListRuns returns recent run records.
func (s *Server) ListRuns(c echo.Context) error {
	if s.runs == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"err": "run store not configured"})
	}
	runs, err := s.runs.ListRecent(c.Request().Context(), 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns one run record.
func (s *Server) GetRun(c echo.Context) error {
	if s.runs == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"err": "run store not configured"})
	}
	run, err := s.runs.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"err": err.Error()})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"err": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}

// RunStats returns run counts per status.
func (s *Server) RunStats(c echo.Context) error {
	if s.runs == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"err": "run store not configured"})
	}
	counts, err := s.runs.CountByStatus(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, counts)
}
