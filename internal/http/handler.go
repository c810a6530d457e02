package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"compliance-analytics/internal/aggregator"
	"compliance-analytics/internal/http/middleware"
	"compliance-analytics/internal/model"
	"compliance-analytics/internal/service"
)

const sensorTimeLayout = "2006-01-02T15:04:05"

type AnalyticsService interface {
	LocationMetrics(ctx context.Context, principal model.Principal, sel model.DateSelection, filter model.EntityFilter, internal bool) (*model.DatedResponse[*aggregator.Hierarchy], error)
	ScanDetails(ctx context.Context, principal model.Principal, sel model.DateSelection, internal bool) (*model.DatedResponse[[]service.ScanDetail], error)
	DeviceStatuses(ctx context.Context, principal model.Principal, internal bool) ([]service.DeviceStatusView, error)
	VendorMetrics(ctx context.Context, principal model.Principal, sel *model.DateSelection, vendorIDs []string) ([]service.VendorLocationMetrics, error)
	SensorCheck(ctx context.Context, principal model.Principal, req service.SensorCheckRequest) ([]aggregator.CheckReading, error)
	SensorMetrics(ctx context.Context, principal model.Principal, locationID int64) (aggregator.SensorMetrics, error)
}

type Handler struct {
	analytics    AnalyticsService
	log          zerolog.Logger
	maxRangeDays int
	now          func() time.Time
}

func NewHandler(analytics AnalyticsService, maxRangeDays int, log zerolog.Logger) *Handler {
	return &Handler{analytics: analytics, log: log, maxRangeDays: maxRangeDays, now: time.Now}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := r.Group("/api")
	protected.Use(authMiddleware)

	protected.GET("/location_metrics", h.getLocationMetrics)
	protected.GET("/scan_details", h.getScanDetails)
	protected.GET("/device_status", h.getDeviceStatus)
	protected.GET("/vendor_metrics", h.getVendorMetrics)
	protected.GET("/sensor_check", h.getSensorCheck)
	protected.GET("/sensor_metrics", h.getSensorMetrics)
}

func (h *Handler) getLocationMetrics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	sel, err := h.parseDates(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	filter, err := parseEntityFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	metrics, err := h.analytics.LocationMetrics(c.Request.Context(), principal, sel, filter, parseInternal(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(metrics))
}

func (h *Handler) getScanDetails(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	sel, err := h.parseDates(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	details, err := h.analytics.ScanDetails(c.Request.Context(), principal, sel, parseInternal(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(details))
}

func (h *Handler) getDeviceStatus(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	statuses, err := h.analytics.DeviceStatuses(c.Request.Context(), principal, parseInternal(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(statuses))
}

func (h *Handler) getVendorMetrics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	// No date params means the service's default day.
	var sel *model.DateSelection
	if c.Query("date") != "" || c.Query("start_date") != "" || c.Query("end_date") != "" {
		parsed, err := h.parseDates(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		sel = &parsed
	}

	metrics, err := h.analytics.VendorMetrics(c.Request.Context(), principal, sel, splitQuery(c.Query("location_ids")))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(metrics))
}

func (h *Handler) getSensorCheck(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	req, err := parseSensorCheck(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	readings, err := h.analytics.SensorCheck(c.Request.Context(), principal, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(readings))
}

func (h *Handler) getSensorMetrics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	locationID, err := requiredID(c, "location_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	metrics, err := h.analytics.SensorMetrics(c.Request.Context(), principal, locationID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(metrics))
}

func (h *Handler) parseDates(c *gin.Context) (model.DateSelection, error) {
	return model.ParseDateSelection(c.Query("date"), c.Query("start_date"), c.Query("end_date"), h.now().UTC(), h.maxRangeDays)
}

func parseEntityFilter(c *gin.Context) (model.EntityFilter, error) {
	var filter model.EntityFilter
	var err error
	if filter.LocationID, err = optionalID(c, "location_id"); err != nil {
		return model.EntityFilter{}, err
	}
	if filter.DepartmentID, err = optionalID(c, "department_id"); err != nil {
		return model.EntityFilter{}, err
	}
	return filter, nil
}

func parseSensorCheck(c *gin.Context) (service.SensorCheckRequest, error) {
	var req service.SensorCheckRequest

	var err error
	if req.LocationID, err = requiredID(c, "location_id"); err != nil {
		return req, err
	}

	for _, raw := range splitQuery(c.Query("department_ids")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, errors.New("invalid department_ids")
		}
		req.DepartmentIDs = append(req.DepartmentIDs, id)
	}

	if req.Start, err = time.Parse(sensorTimeLayout, strings.TrimSpace(c.Query("start"))); err != nil {
		return req, errors.New("invalid start, use YYYY-MM-DDTHH:MM:SS")
	}
	if req.End, err = time.Parse(sensorTimeLayout, strings.TrimSpace(c.Query("end"))); err != nil {
		return req, errors.New("invalid end, use YYYY-MM-DDTHH:MM:SS")
	}

	if raw := strings.TrimSpace(c.Query("check_id")); raw != "" {
		if req.CheckID, err = strconv.Atoi(raw); err != nil {
			return req, errors.New("invalid check_id")
		}
	}
	return req, nil
}

func optionalID(c *gin.Context, key string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &id, nil
}

func requiredID(c *gin.Context, key string) (int64, error) {
	id, err := optionalID(c, key)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, errors.New(key + " is required")
	}
	return *id, nil
}

func parseInternal(c *gin.Context) bool {
	internal, _ := strconv.ParseBool(c.Query("internal"))
	return internal
}

func splitQuery(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{"data": data}
}

func errorResponse(message string) gin.H {
	return gin.H{"error": message}
}
