package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/geo"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/listing"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/service"
	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

type Handler struct {
	svc         *service.Service
	logger      zerolog.Logger
	loc         *time.Location
	defaultMode listing.Mode
}

func NewHandler(svc *service.Service, logger zerolog.Logger, loc *time.Location, defaultMode listing.Mode) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, logger: logger, loc: loc, defaultMode: defaultMode}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", h.CreateSession)
		v1.DELETE("/sessions/:id", h.EndSession)
		v1.POST("/sessions/:id/unload", h.Unload)
		v1.DELETE("/sessions/:id/position", h.ForgetPosition)
		v1.GET("/sessions/:id/festivals", h.Festivals)
		v1.POST("/sessions/:id/festivals/more", h.More)
		v1.GET("/sessions/:id/dashboard", h.Dashboard)
		v1.GET("/sessions/:id/calendar", h.Calendar)
		v1.GET("/sessions/:id/facets", h.Facets)
		v1.GET("/sessions/:id/events", h.Events)
	}
}

// NewRouter builds the gin engine with request logging and panic recovery.
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), Recovery(logger))
	RegisterRoutes(r, h)
	return r
}

// Health: GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateSession: POST /v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	id := h.svc.CreateSession()
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// EndSession: DELETE /v1/sessions/:id
// Clears every cached snapshot of the session.
func (h *Handler) EndSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.EndSession(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "ended": true})
}

// Unload: POST /v1/sessions/:id/unload
// Sent by the page on teardown; only the events snapshot is cleared.
func (h *Handler) Unload(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Unload(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "unloaded": true})
}

// ForgetPosition: DELETE /v1/sessions/:id/position
// The user stopped sharing a location.
func (h *Handler) ForgetPosition(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.ForgetPosition(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "position": nil})
}

// Festivals: GET /v1/sessions/:id/festivals?mode=distance&lat=38.0&lng=138.4&q=...&category=...
// Returns the first page and resets "load more".
func (h *Handler) Festivals(c *gin.Context) {
	q, err := h.parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, err := h.svc.Browse(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

// More: POST /v1/sessions/:id/festivals/more
func (h *Handler) More(c *gin.Context) {
	page, err := h.svc.More(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

// Dashboard: GET /v1/sessions/:id/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	page, err := h.svc.Dashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

// Calendar: GET /v1/sessions/:id/calendar?date=2025-08-01
func (h *Handler) Calendar(c *gin.Context) {
	raw := c.Query("date")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing date parameter"})
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}
	page, err := h.svc.Calendar(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := pageResponse(page)
	resp["meta"].(gin.H)["date"] = raw
	c.JSON(http.StatusOK, resp)
}

// Facets: GET /v1/sessions/:id/facets?sort=count
// Values come in first-seen order unless sort=count.
func (h *Handler) Facets(c *gin.Context) {
	order := c.DefaultQuery("sort", "feed")
	if order != "feed" && order != "count" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sort parameter, want feed or count"})
		return
	}
	facets, err := h.svc.Facets(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if order == "count" {
		listing.SortFacetsByCount(facets.Categories)
		listing.SortFacetsByCount(facets.Areas)
		listing.SortFacetsByCount(facets.Statuses)
	}
	c.JSON(http.StatusOK, gin.H{"meta": gin.H{"sort": order}, "data": facets})
}

// Events: GET /v1/sessions/:id/events
func (h *Handler) Events(c *gin.Context) {
	page, err := h.svc.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

func pageResponse[T any](p service.Page[T]) gin.H {
	meta := gin.H{
		"count":        len(p.Items),
		"total":        p.Total,
		"has_more":     p.HasMore,
		"mode":         p.Mode,
		"distance":     p.Distance,
		"stale":        p.Stale,
		"from_cache":   p.FromCache,
		"revalidating": p.Revalidating,
		"generation":   p.Generation,
		"state":        p.State.String(),
	}
	if p.Error != "" {
		meta["error"] = p.Error
	}
	return gin.H{"meta": meta, "data": p.Items}
}

// fail maps service errors to status codes. Hard failures (nothing ever
// loaded) are 502; a stale snapshot is never an error.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNoData):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) parseQuery(c *gin.Context) (service.Query, error) {
	var q service.Query

	mode, err := listing.ParseMode(c.Query("mode"), h.defaultMode)
	if err != nil {
		return q, err
	}
	q.Mode = mode

	lat, lng := c.Query("lat"), c.Query("lng")
	if lat != "" || lng != "" {
		shared, err := parsePoint(lat, lng)
		if err != nil {
			return q, err
		}
		q.Shared = &shared
	}

	openNow, err := parseBool(c.Query("open_now"))
	if err != nil {
		return q, errors.New("invalid open_now parameter")
	}
	parking, err := parseBool(c.Query("parking"))
	if err != nil {
		return q, errors.New("invalid parking parameter")
	}

	q.Filter = listing.Filter{
		Query:      c.Query("q"),
		Category:   c.Query("category"),
		Area:       c.Query("area"),
		Status:     c.Query("status"),
		OpenNow:    openNow,
		HasParking: parking,
	}
	return q, nil
}

// parsePoint validates a client supplied location.
func parsePoint(lat, lng string) (models.Coordinate, error) {
	la, latErr := strconv.ParseFloat(lat, 64)
	lo, lngErr := strconv.ParseFloat(lng, 64)
	if latErr != nil || lngErr != nil {
		return models.Coordinate{}, errors.New("invalid or missing lat/lng parameters")
	}
	c := models.Coordinate{Latitude: la, Longitude: lo}
	if !geo.ValidPoint(c) {
		return models.Coordinate{}, errors.New("invalid lat/lng values")
	}
	return c, nil
}

// parseBool treats an empty value as false.
func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
