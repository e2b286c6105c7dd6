package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/jobs"
)

// ProjectResponse is a project record plus whether an execution is active.
type ProjectResponse struct {
	domain.Project
	Running bool `json:"running"`
}

// EventsResponse is one page of polled events. Next is the cursor for the
// following poll. Missed is set when older events were evicted before the
// client read them.
type EventsResponse struct {
	Events []jobs.Event `json:"events"`
	Next   int64        `json:"next"`
	Missed bool         `json:"missed,omitempty"`
}

type createProjectRequest struct {
	URL string `json:"url"`
}

func (s *Server) view(p domain.Project) ProjectResponse {
	return ProjectResponse{Project: p, Running: s.pipeline.Running(p.ID)}
}

func (s *Server) createProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}

	project, err := s.pipeline.Intake(c.Request().Context(), req.URL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, s.view(project))
}

func (s *Server) uploadProject(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}
	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	project, err := s.pipeline.IntakeUpload(c.Request().Context(), header.Filename, src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, s.view(project))
}

func (s *Server) listProjects(c echo.Context) error {
	projects, err := s.store.List(c.Request().Context())
	if err != nil {
		return err
	}

	status := strings.TrimSpace(c.QueryParam("status"))
	var want domain.ProjectStatus
	if status != "" {
		if want, err = domain.ParseProjectStatus(status); err != nil {
			return err
		}
	}

	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		if want != "" && p.Status != want {
			continue
		}
		out = append(out, s.view(p))
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) getProject(c echo.Context) error {
	project, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.view(project))
}

func (s *Server) deleteProject(c echo.Context) error {
	if _, err := s.pipeline.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) projectEvents(c echo.Context) error {
	since, err := cursor(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if _, err := s.store.Get(c.Request().Context(), id); err != nil {
		return err
	}
	bus := s.pipeline.Events()
	return c.JSON(http.StatusOK, page(bus.ForProject(id, since), since, bus.Missed(since)))
}

func (s *Server) listEvents(c echo.Context) error {
	since, err := cursor(c)
	if err != nil {
		return err
	}
	bus := s.pipeline.Events()
	return c.JSON(http.StatusOK, page(bus.Since(since), since, bus.Missed(since)))
}

func cursor(c echo.Context) (int64, error) {
	raw := strings.TrimSpace(c.QueryParam("since"))
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, fmt.Errorf("%w: since must be a non-negative integer", domain.ErrInvalidInput)
	}
	return since, nil
}

func page(events []jobs.Event, since int64, missed bool) EventsResponse {
	if events == nil {
		events = []jobs.Event{}
	}
	next := since
	if n := len(events); n > 0 {
		next = events[n-1].Seq
	}
	return EventsResponse{Events: events, Next: next, Missed: missed}
}

// intParam reads an optional non-negative integer query parameter.
func intParam(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}
