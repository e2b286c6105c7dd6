package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"transcript-studio/internal/domain"
	"transcript-studio/internal/enrich"
	"transcript-studio/internal/export"
	"transcript-studio/internal/generate"
)

type translateRequest struct {
	TargetLanguage string `json:"target_language"`
}

type dubRequest struct {
	Language   string `json:"language"`
	Gender     string `json:"gender"`
	PerSegment bool   `json:"per_segment"`
}

type summarizeRequest struct {
	Style string `json:"style"`
}

type keyPointsRequest struct {
	Count int `json:"count"`
}

type socialRequest struct {
	Platform string `json:"platform"`
}

func (s *Server) getTranscript(c echo.Context) error {
	transcript, err := s.enrich.Transcript(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transcript)
}

func (s *Server) exportTranscript(c echo.Context) error {
	format := c.QueryParam("format")
	if strings.TrimSpace(format) == "" {
		format = string(export.FormatSRT)
	}

	doc, err := s.enrich.Export(c.Request().Context(), c.Param("id"), export.Format(format))
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.FileName))
	return c.Blob(http.StatusOK, doc.Format.ContentType(), []byte(doc.Content))
}

func (s *Server) translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = c.QueryParam("target_language")
	}

	transcript, err := s.enrich.Translate(c.Request().Context(), c.Param("id"), req.TargetLanguage)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transcript)
}

func (s *Server) diarize(c echo.Context) error {
	transcript, err := s.enrich.Diarize(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transcript)
}

func (s *Server) dub(c echo.Context) error {
	var req dubRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	result, err := s.enrich.Dub(c.Request().Context(), c.Param("id"), enrich.DubRequest{
		Language:   req.Language,
		Gender:     req.Gender,
		PerSegment: req.PerSegment,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) downloadDub(c echo.Context) error {
	path, err := s.enrich.DubFile(c.Request().Context(), c.Param("id"), c.QueryParam("language"), c.QueryParam("gender"))
	if err != nil {
		return err
	}
	return c.Attachment(path, filepath.Base(path))
}

func (s *Server) summarize(c echo.Context) error {
	var req summarizeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	style := generate.ParseStyle(req.Style)

	summary, err := s.enrich.Summarize(c.Request().Context(), c.Param("id"), style)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"style": style, "summary": summary})
}

func (s *Server) keyPoints(c echo.Context) error {
	var req keyPointsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", domain.ErrInvalidInput)
	}

	points, err := s.enrich.KeyPoints(c.Request().Context(), c.Param("id"), req.Count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"keyPoints": points})
}

func (s *Server) social(c echo.Context) error {
	var req socialRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	platform := generate.ParsePlatform(req.Platform)

	content, err := s.enrich.Social(c.Request().Context(), c.Param("id"), platform)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"platform": platform, "content": content})
}

func (s *Server) blog(c echo.Context) error {
	post, err := s.enrich.Blog(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"blogPost": post})
}

func (s *Server) highlights(c echo.Context) error {
	count, err := intParam(c, "count")
	if err != nil {
		return err
	}

	moments, err := s.enrich.Highlights(c.Request().Context(), c.Param("id"), count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"highlights": moments})
}

func (s *Server) search(c echo.Context) error {
	topK, err := intParam(c, "top_k")
	if err != nil {
		return err
	}

	hits, err := s.enrich.Search(c.Request().Context(), c.QueryParam("q"), topK)
	if err != nil {
		return err
	}
	if hits == nil {
		hits = []enrich.SearchHit{}
	}
	return c.JSON(http.StatusOK, map[string]any{"query": c.QueryParam("q"), "results": hits})
}
