package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-vision-atlas/internal/config"
	apperrors "go-vision-atlas/internal/errors"
	"go-vision-atlas/internal/logger"
	"go-vision-atlas/internal/observer"
	"go-vision-atlas/internal/service"
	"go-vision-atlas/pkg/models"
	"go-vision-atlas/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewHandler configures the HTTP surface of the engine
func NewHandler(orchestrator *service.Orchestrator, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.Default()

	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck(metrics))
	r.POST("/analyze", analyzeImages(orchestrator, cfg))

	return r
}

func analyzeImages(orchestrator *service.Orchestrator, cfg *config.Config) gin.HandlerFunc {
	urlValidator := validation.NewURLValidator()

	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing analysis request")

		var req models.AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"ip": c.ClientIP(),
			}).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		// URL-sourced images must pass the validator before any fetch
		for _, img := range req.Images {
			if img.URL == "" {
				continue
			}
			if err := urlValidator.ValidateImageURL(img.URL); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"image_id": img.ID,
					"ip":       c.ClientIP(),
				}).Error("Invalid image URL")
				respondError(c, apperrors.GetStatusCode(err), fmt.Sprintf("invalid URL for image %q", img.ID), err)
				return
			}
		}

		response, err := orchestrator.Process(ctx, req)
		if err != nil {
			statusCode := determineStatusCode(err)
			logger.WithError(err).WithFields(logrus.Fields{
				"image_count": len(req.Images),
				"ip":          c.ClientIP(),
			}).Error("Analysis request failed")
			respondError(c, statusCode, "analysis failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":         response.Metadata.RequestID,
			"image_count":        len(req.Images),
			"atlas_used":         response.Optimization.AtlasUsed,
			"cache_hit":          response.Optimization.CacheHit,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Analysis request completed")

		c.JSON(http.StatusOK, response)
	}
}

func healthCheck(metrics *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "available",
			"version": "1.0.0",
			"time":    time.Now().UTC().Format(time.RFC3339),
		}
		if metrics != nil {
			body["metrics"] = metrics.GetMetrics()
		}
		c.JSON(http.StatusOK, body)
	}
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

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
