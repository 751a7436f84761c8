package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "go-eyewear-vision/internal/errors"
	"go-eyewear-vision/internal/logger"
	"go-eyewear-vision/internal/pipeline"
	"go-eyewear-vision/pkg/models"
)

type AnalyzeRequest struct {
	ProductID string   `json:"product_id" binding:"required"`
	ImageURLs []string `json:"image_urls" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ServerConfig is the subset of configuration the transport layer needs.
type ServerConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	GeminiConfigured   bool

	// Metrics, when set, contributes pipeline counters to /health.
	Metrics func() map[string]interface{}
}

func NewHandler(processor *pipeline.ProductProcessor, cfg ServerConfig) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(cfg))
	r.POST("/analyze", analyzeProduct(processor, cfg))
	r.POST("/analyze-batch", analyzeBatch(processor, cfg))

	return r
}

func analyzeProduct(processor *pipeline.ProductProcessor, cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		}).Info("Processing measurement request")

		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.WithError(err).WithField("ip", c.ClientIP()).Error("Invalid request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		if len(req.ImageURLs) == 0 {
			err := apperrors.NewValidationError("At least one image URL is required", nil)
			respondError(c, err.StatusCode, "invalid request", err)
			return
		}

		measurement := processor.ProcessProduct(ctx, models.ProductInput{
			ProductID: req.ProductID,
			ImageURLs: req.ImageURLs,
		})

		c.JSON(http.StatusOK, measurement)
	}
}

// analyzeBatch processes products strictly in order. One product's failure
// never aborts the batch: the processor already encodes failures as
// schema-valid measurements.
func analyzeBatch(processor *pipeline.ProductProcessor, cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var reqs []AnalyzeRequest
		if err := c.ShouldBindJSON(&reqs); err != nil {
			logger.WithError(err).WithField("ip", c.ClientIP()).Error("Invalid batch request format")
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		if len(reqs) == 0 {
			err := apperrors.NewValidationError("At least one product is required", nil)
			respondError(c, err.StatusCode, "invalid request", err)
			return
		}

		results := make([]*models.ProductMeasurement, 0, len(reqs))
		for i, req := range reqs {
			start := time.Now()

			if len(req.ImageURLs) == 0 {
				results = append(results, processor.ClassifyFailure(
					req.ProductID, 0, time.Since(start),
					errors.New("no image URLs provided")))
				continue
			}

			measurement := processor.ProcessProduct(c.Request.Context(), models.ProductInput{
				ProductID: req.ProductID,
				ImageURLs: req.ImageURLs,
			})
			results = append(results, measurement)

			logger.WithFields(logrus.Fields{
				"progress":   fmt.Sprintf("%d/%d", i+1, len(reqs)),
				"product_id": req.ProductID,
				"time_ms":    measurement.ProcessingTimeMs,
			}).Info("Batch progress")
		}

		logger.WithField("products", len(results)).Info("Batch complete")
		c.JSON(http.StatusOK, results)
	}
}

func healthCheck(cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":    "healthy",
			"version":   models.APIVersion,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"components": gin.H{
				"api":               "operational",
				"vision_configured": cfg.GeminiConfigured,
			},
		}
		if cfg.Metrics != nil {
			body["pipeline_metrics"] = cfg.Metrics()
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
	if appErr, ok := err.(*apperrors.AppError); ok {
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

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
