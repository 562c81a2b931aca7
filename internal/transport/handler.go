package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go-aid-analyzer/internal/config"
	apperrors "go-aid-analyzer/internal/errors"
	"go-aid-analyzer/internal/logger"
	"go-aid-analyzer/internal/service"
	"go-aid-analyzer/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	version         = "1.0.0"
)

// NewHandler builds the HTTP surface. metrics may be nil.
func NewHandler(analysis service.AnalysisService, cfg *config.Config, generatorName string, metrics http.Handler) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		requestID(),
		requestLogger(),
		gin.CustomRecovery(recoverPanic),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(generatorName))
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.POST("/api/analyze", analyzeImage(analysis, cfg))

	if cfg.StaticDir != "" {
		r.NoRoute(staticFiles(cfg.StaticDir))
	}

	return r
}

func analyzeImage(analysis service.AnalysisService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxBytesErr):
				_ = c.Error(&apperrors.AppError{
					Type:       apperrors.ErrorTypeValidation,
					Message:    apperrors.MessageBodyTooLarge,
					StatusCode: http.StatusRequestEntityTooLarge,
					Cause:      err,
				})
				return
			case errors.Is(err, io.EOF):
				// An empty body carries no image; fall through to the
				// analysis so it reports the missing field.
			default:
				_ = c.Error(apperrors.NewValidationError(apperrors.MessageInvalidBody, err))
				return
			}
		}

		text, err := analysis.Analyze(ctx, req)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(text))
	}
}

func healthCheck(generatorName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "available",
			Version:   version,
			Generator: generatorName,
			Time:      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// staticFiles serves GET/HEAD requests that matched no API route.
func staticFiles(dir string) gin.HandlerFunc {
	fileServer := http.FileServer(gin.Dir(dir, false))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.String(http.StatusNotFound, "Not Found")
			return
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.Request.URL.Path,
			"status":             c.Writer.Status(),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"user_agent":         c.Request.UserAgent(),
			"ip":                 c.ClientIP(),
			"request_id":         c.GetString(requestIDKey),
		}).Info("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func recoverPanic(c *gin.Context, recovered any) {
	logger.WithFields(logrus.Fields{
		"panic":      recovered,
		"path":       c.Request.URL.Path,
		"request_id": c.GetString(requestIDKey),
	}).Error("Recovered from panic")
	c.Abort()
	c.String(http.StatusInternalServerError, apperrors.MessageInternal)
}

// errorHandler is the single place errors become HTTP responses.
func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	body := apperrors.PublicMessage(err)

	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     body,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
		"request_id":  c.GetString(requestIDKey),
	}).Error("Request failed")

	c.Abort()
	c.String(code, body)
}
