// Package api exposes the project pipeline and enrichment operations over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/enrich"
	"transcript-studio/internal/jobs"
	"transcript-studio/internal/store"
	"transcript-studio/internal/telemetry"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "transcript-studio"

// Pipeline is the orchestrator surface the API drives.
type Pipeline interface {
	Intake(ctx context.Context, sourceRef string) (domain.Project, error)
	IntakeUpload(ctx context.Context, fileName string, r io.Reader) (domain.Project, error)
	Remove(ctx context.Context, projectID string) (domain.Project, error)
	Running(projectID string) bool
	Events() *jobs.EventBus
}

// Deps are the components the HTTP handlers call into.
type Deps struct {
	Store       store.Store
	Pipeline    Pipeline
	Enrich      *enrich.Dispatcher
	Telemetry   *telemetry.Recorder
	Diagnostics func(context.Context) domain.DiagnosticReport
	Models      func() []domain.WhisperModelOption
	// StoreStats reports connection pool usage when the store has a pool.
	StoreStats func() map[string]int32
	Logger     *slog.Logger
	// MaxUpload limits request bodies, e.g. "2G". Empty means unlimited.
	MaxUpload string
}

// Server holds the HTTP handlers.
type Server struct {
	store       store.Store
	pipeline    Pipeline
	enrich      *enrich.Dispatcher
	telemetry   *telemetry.Recorder
	diagnostics func(context.Context) domain.DiagnosticReport
	models      func() []domain.WhisperModelOption
	storeStats  func() map[string]int32
	log         *slog.Logger
	started     time.Time
}

// New builds the echo instance with every route registered.
func New(deps Deps) (*echo.Echo, error) {
	if deps.Store == nil || deps.Pipeline == nil || deps.Enrich == nil {
		return nil, errors.New("api: store, pipeline and enrich are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		store:       deps.Store,
		pipeline:    deps.Pipeline,
		enrich:      deps.Enrich,
		telemetry:   deps.Telemetry,
		diagnostics: deps.Diagnostics,
		models:      deps.Models,
		storeStats:  deps.StoreStats,
		log:         deps.Logger.With("component", "api"),
		started:     time.Now(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.log.Log(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	if deps.MaxUpload != "" {
		e.Use(middleware.BodyLimit(deps.MaxUpload))
	}

	s.routes(e)
	return e, nil
}

func (s *Server) routes(e *echo.Echo) {
	e.GET("/", s.root)
	e.GET("/health", s.health)
	e.GET("/models", s.listModels)
	e.GET("/voices", s.listVoices)
	e.GET("/events", s.listEvents)
	e.GET("/search", s.search)

	projects := e.Group("/projects")
	projects.POST("", s.createProject)
	projects.POST("/upload", s.uploadProject)
	projects.GET("", s.listProjects)
	projects.GET("/:id", s.getProject)
	projects.DELETE("/:id", s.deleteProject)
	projects.GET("/:id/events", s.projectEvents)

	projects.GET("/:id/transcript", s.getTranscript)
	projects.GET("/:id/export", s.exportTranscript)
	projects.POST("/:id/translate", s.translate)
	projects.POST("/:id/diarize", s.diarize)
	projects.POST("/:id/dub", s.dub)
	projects.GET("/:id/dub", s.downloadDub)
	projects.POST("/:id/summarize", s.summarize)
	projects.POST("/:id/key-points", s.keyPoints)
	projects.POST("/:id/social", s.social)
	projects.POST("/:id/blog", s.blog)
	projects.GET("/:id/highlights", s.highlights)
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": ServiceName,
		"status":  "running",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// HealthResponse combines environment diagnostics and pipeline counters.
type HealthResponse struct {
	Status      string                   `json:"status"`
	Diagnostics *domain.DiagnosticReport `json:"diagnostics,omitempty"`
	Telemetry   telemetry.Snapshot       `json:"telemetry"`
	Store       map[string]int32         `json:"store,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	resp := HealthResponse{Status: "healthy"}
	if s.diagnostics != nil {
		report := s.diagnostics(c.Request().Context())
		resp.Diagnostics = &report
		if report.HasFailures {
			resp.Status = "degraded"
		}
	}
	if s.telemetry != nil {
		resp.Telemetry = s.telemetry.Snapshot()
	}
	if s.storeStats != nil {
		resp.Store = s.storeStats()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listModels(c echo.Context) error {
	models := []domain.WhisperModelOption{}
	if s.models != nil {
		models = s.models()
	}
	return c.JSON(http.StatusOK, map[string]any{"models": models})
}

func (s *Server) listVoices(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"voices": s.enrich.Voices()})
}
