package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkgate-service/internal/barrier"
	"parkgate-service/internal/domain/access"
	"parkgate-service/internal/payments"
	"parkgate-service/internal/service"
)

type Handler struct {
	accessService *service.AccessService
	sessions      *service.SessionManager
	barrier       *barrier.Controller
	log           zerolog.Logger
}

func NewHandler(
	accessService *service.AccessService,
	sessions *service.SessionManager,
	barrierCtl *barrier.Controller,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		accessService: accessService,
		sessions:      sessions,
		barrier:       barrierCtl,
		log:           log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	// Public endpoints: camera collaborators push detections here.
	public := r.Group("/api/v1")
	{
		public.POST("/anpr/events", h.createDetection)
	}

	// Operator endpoints.
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/events", h.listEvents)
		protected.GET("/sessions", h.listSessions)
		protected.GET("/sessions/:id", h.getSession)
		protected.POST("/sessions/:id/settle", h.settleSession)
		protected.POST("/sessions/:id/cancel", h.cancelSession)
		protected.POST("/payments/notify", h.paymentNotify)
		protected.GET("/barrier", h.barrierState)
		protected.POST("/barrier/reset", h.barrierReset)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createDetection(c *gin.Context) {
	var payload access.DetectionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if payload.EventTime.IsZero() {
		payload.EventTime = time.Now()
	}

	result, err := h.accessService.ProcessDetection(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Msg("failed to process detection")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	resp := gin.H{
		"status":   "ok",
		"admitted": result.Admitted,
		"plate":    result.Detection.NormalizedPlate,
	}
	if result.Decision != nil {
		resp["decision"] = result.Decision
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listEvents(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	events, err := h.accessService.FindEvents(c.Request.Context(), plateQuery, from, to, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.handleError(c, err, "failed to find events")
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listSessions(c *gin.Context) {
	var plateQuery, status *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status = &s
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), plateQuery, status, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.handleError(c, err, "failed to list sessions")
		return
	}
	c.JSON(http.StatusOK, successResponse(sessions))
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err, "failed to load session")
		return
	}
	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) settleSession(c *gin.Context) {
	session, err := h.sessions.SettleManual(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err, "failed to settle session")
		return
	}
	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) cancelSession(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "operator_cancelled"
	}

	session, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		h.handleError(c, err, "failed to cancel session")
		return
	}
	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) paymentNotify(c *gin.Context) {
	var n payments.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if n.TransactionID == "" && n.SessionID == "" {
		c.JSON(http.StatusBadRequest, errorResponse("transaction_id or session_id is required"))
		return
	}

	if err := h.sessions.HandlePaymentNotification(c.Request.Context(), n); err != nil {
		h.handleError(c, err, "failed to handle payment notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) barrierState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.barrier.State()})
}

func (h *Handler) barrierReset(c *gin.Context) {
	if err := h.barrier.Reset(); err != nil {
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.barrier.State()})
}

func (h *Handler) handleError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
