package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-image-editor/internal/config"
	"go-image-editor/internal/editor"
	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/logger"
	"go-image-editor/internal/service"
	"go-image-editor/pkg/models"
)

// MetricsSource exposes aggregated editor counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

// sessionOp runs one operation against a live session
type sessionOp func(ctx context.Context, c *gin.Context, s *editor.Session) (models.SessionSnapshot, error)

type handler struct {
	svc     service.EditorService
	metrics MetricsSource
	cfg     *config.Config
}

// NewHandler builds the HTTP API
func NewHandler(svc service.EditorService, metrics MetricsSource, cfg *config.Config) http.Handler {
	h := &handler{svc: svc, metrics: metrics, cfg: cfg}
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}

	// Add middleware
	r.Use(
		cors.New(corsConfig),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", h.getMetrics)

	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.withSession(getSnapshot))
		sessions.DELETE("/:id", h.deleteSession)
		sessions.POST("/:id/image", h.withSession(loadImage))
		sessions.POST("/:id/image-state", h.withSession(setImageState))

		sessions.POST("/:id/enhance", h.withSession(enhance))
		sessions.POST("/:id/remove-background", h.withSession(removeBackground))
		sessions.POST("/:id/rotate", h.withSession(rotate))
		sessions.POST("/:id/flip", h.withSession(flip))
		sessions.POST("/:id/crop", h.withSession(crop))
		sessions.POST("/:id/quality", h.withSession(quality))
		sessions.POST("/:id/format", h.withSession(format))

		sessions.POST("/:id/undo", h.withSession(undo))
		sessions.POST("/:id/redo", h.withSession(redo))
		sessions.POST("/:id/reset", h.withSession(reset))

		sessions.POST("/:id/save", h.save)
		sessions.GET("/:id/download", h.download)
		sessions.GET("/:id/notifications", h.notifications)
	}

	return r
}

func (h *handler) createSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"ip":         c.ClientIP(),
	}).Info("Creating editing session")

	var (
		snap models.SessionSnapshot
		err  error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		snap, err = h.createFromUpload(ctx, c)
	} else {
		var req models.CreateSessionRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", bindErr)
			return
		}
		snap, err = h.svc.CreateSession(ctx, req)
	}
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to create session", err)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

func (h *handler) createFromUpload(ctx context.Context, c *gin.Context) (models.SessionSnapshot, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return models.SessionSnapshot{}, apperrors.NewValidationError("multipart field \"file\" is required", err)
	}
	file, err := header.Open()
	if err != nil {
		return models.SessionSnapshot{}, apperrors.NewValidationError("failed to open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.SessionSnapshot{}, apperrors.NewValidationError("failed to read uploaded file", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return models.SessionSnapshot{}, apperrors.NewValidationError(
			fmt.Sprintf("uploaded file is not an image (%s)", contentType), nil)
	}

	return h.svc.CreateSessionFromUpload(ctx, path.Base(header.Filename), contentType, data)
}

func (h *handler) deleteSession(c *gin.Context) {
	if err := h.svc.CloseSession(c.Param("id")); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to close session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// withSession resolves :id and renders the resulting snapshot. Remote calls are
// bounded by the processing client's own timeouts, so the request context is
// passed through unchanged.
func (h *handler) withSession(op sessionOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		session, err := h.svc.GetSession(c.Param("id"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "session lookup failed", err)
			return
		}

		snap, err := op(c.Request.Context(), c, session)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "operation failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_id":         session.ID(),
			"path":               c.FullPath(),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Debug("Session request completed")

		c.JSON(http.StatusOK, snap)
	}
}

func (h *handler) save(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	session, err := h.svc.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "session lookup failed", err)
		return
	}

	var req models.SaveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := session.Save(ctx, req.Metadata)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to save image", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) download(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	session, err := h.svc.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "session lookup failed", err)
		return
	}

	img, err := session.Download(ctx)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to download image", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(session.ID(), img.ContentType)))
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

func (h *handler) notifications(c *gin.Context) {
	msgs, err := h.svc.Notifications(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to read notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": msgs})
}

func (h *handler) getMetrics(c *gin.Context) {
	out := gin.H{"active_sessions": h.svc.ActiveSessions()}
	if h.metrics != nil {
		for k, v := range h.metrics.GetMetrics() {
			out[k] = v
		}
	}
	c.JSON(http.StatusOK, out)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func downloadName(sessionID, contentType string) string {
	ext := ".img"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	case "image/avif":
		ext = ".avif"
	}
	return "edited-" + sessionID + ext
}

// bindOptionalJSON binds the body when one was sent
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && err != io.EOF {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return false
	}
	return true
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, apperrors.GetStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
