package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"go-eyewear-vision/internal/aggregator"
	"go-eyewear-vision/internal/config"
	apperrors "go-eyewear-vision/internal/errors"
	"go-eyewear-vision/internal/logger"
	"go-eyewear-vision/internal/observer"
	"go-eyewear-vision/internal/parser"
	"go-eyewear-vision/internal/storage"
	"go-eyewear-vision/internal/vision"
	"go-eyewear-vision/pkg/models"
)

// URLValidator partitions candidate URLs into usable and rejected sets.
type URLValidator interface {
	ValidateAll(ctx context.Context, urls []string) ([]string, models.ImageValidation)
}

// ProductProcessor drives the per-product pipeline: pacing, URL validation,
// capping, concurrent fetch, sequential paced vision calls, parsing with
// quality filtering, aggregation, and instrumentation. Every path returns a
// fully-formed measurement; failures are encoded in the error taxonomy, not
// raised.
type ProductProcessor struct {
	validator  URLValidator
	fetcher    storage.ImageFetcher
	vision     vision.VisionAnalyzer
	parser     *parser.ResponseParser
	aggregator *aggregator.Aggregator
	cfg        *config.Config
	events     observer.Subject

	// Pacing cursor shared across products. Guarded by mu so concurrent
	// callers still respect the minimum inter-product spacing.
	mu        sync.Mutex
	lastStart time.Time
}

func NewProductProcessor(
	validator URLValidator,
	fetcher storage.ImageFetcher,
	visionClient vision.VisionAnalyzer,
	responseParser *parser.ResponseParser,
	agg *aggregator.Aggregator,
	cfg *config.Config,
) *ProductProcessor {
	return &ProductProcessor{
		validator:  validator,
		fetcher:    fetcher,
		vision:     visionClient,
		parser:     responseParser,
		aggregator: agg,
		cfg:        cfg,
	}
}

// WithEvents attaches an event publisher notified on product start and
// completion. Returns the processor for chaining during wiring.
func (p *ProductProcessor) WithEvents(events observer.Subject) *ProductProcessor {
	p.events = events
	return p
}

type fetchedImage struct {
	url  string
	data []byte
}

// ProcessProduct runs the full pipeline for one product. It never returns
// an error: every failure terminates in a schema-valid failed measurement
// so batch callers can keep going.
func (p *ProductProcessor) ProcessProduct(ctx context.Context, product models.ProductInput) *models.ProductMeasurement {
	p.emit(ctx, observer.MeasurementEvent{
		EventType: observer.MeasurementStarted,
		Timestamp: time.Now(),
		ProductID: product.ProductID,
	})

	measurement := p.processProduct(ctx, product)

	event := observer.MeasurementEvent{
		EventType:      observer.MeasurementCompleted,
		Timestamp:      time.Now(),
		ProductID:      product.ProductID,
		ProcessingTime: time.Duration(measurement.ProcessingTimeMs) * time.Millisecond,
		Success:        measurement.ProcessingStatus == models.StatusSuccess,
	}
	if measurement.ProcessingStatus == models.StatusFailed {
		event.EventType = observer.MeasurementFailed
		event.ErrorType = measurement.ErrorType
	}
	p.emit(ctx, event)

	return measurement
}

func (p *ProductProcessor) emit(ctx context.Context, event observer.MeasurementEvent) {
	if p.events != nil {
		p.events.NotifyObservers(ctx, event)
	}
}

func (p *ProductProcessor) processProduct(ctx context.Context, product models.ProductInput) *models.ProductMeasurement {
	start := time.Now()

	p.applyProductPacing(ctx)

	timing := &models.TimingBreakdown{}

	log := logger.WithProduct(product.ProductID)
	log.WithField("url_count", len(product.ImageURLs)).Info("Request received")

	// Stage: URL validation
	validationStart := time.Now()
	validURLs, validation := p.validator.ValidateAll(ctx, product.ImageURLs)
	timing.URLValidationMs = time.Since(validationStart).Milliseconds()

	log.WithFields(logrus.Fields{
		"valid":   validation.ValidCount,
		"invalid": validation.InvalidCount,
		"time_ms": timing.URLValidationMs,
	}).Info("URL validation complete")

	totalProvided := len(product.ImageURLs)

	if len(validURLs) == 0 {
		log.Warn("All URLs invalid")
		return p.failedMeasurement(failureContext{
			productID:   product.ProductID,
			errorType:   apperrors.ErrorTypeAllURLsInvalid,
			totalImages: totalProvided,
			elapsed:     time.Since(start),
			validation:  &validation,
			timing:      timing,
		})
	}

	// Stage: image-count capping
	cappedURLs := validURLs
	imagesCapped := len(validURLs) > p.cfg.MaxImagesPerProduct
	if imagesCapped {
		cappedURLs = validURLs[:p.cfg.MaxImagesPerProduct]
		log.WithFields(logrus.Fields{
			"valid": len(validURLs),
			"cap":   p.cfg.MaxImagesPerProduct,
		}).Warn("Capped image count")
	}

	// Stage: concurrent fetch
	fetchStart := time.Now()
	images, err := p.fetchImages(ctx, cappedURLs)
	timing.ImageFetchMs = time.Since(fetchStart).Milliseconds()

	if err != nil {
		log.WithError(err).Error("Image download failed")
		return p.failedMeasurement(failureContext{
			productID:    product.ProductID,
			errorType:    apperrors.ErrorTypeImageDownloadFailed,
			totalImages:  totalProvided,
			imagesCapped: imagesCapped,
			elapsed:      time.Since(start),
			validation:   &validation,
			timing:       timing,
		})
	}

	log.WithFields(logrus.Fields{
		"images":  len(images),
		"time_ms": timing.ImageFetchMs,
	}).Info("Image fetch complete")

	if len(images) == 0 {
		return p.failedMeasurement(failureContext{
			productID:    product.ProductID,
			errorType:    apperrors.ErrorTypeInvalidImageFormat,
			totalImages:  totalProvided,
			imagesCapped: imagesCapped,
			elapsed:      time.Since(start),
			validation:   &validation,
			timing:       timing,
		})
	}

	// Stage: sequential paced vision calls
	visionStart := time.Now()
	rawResponses, perImageTimes, visionErrType, visionErr := p.analyzeImages(ctx, images)
	timing.VisionAPIMs = time.Since(visionStart).Milliseconds()

	if visionErrType != "" {
		log.WithError(visionErr).WithField("time_ms", timing.VisionAPIMs).Error("Vision analysis failed")
		return p.failedMeasurement(failureContext{
			productID:     product.ProductID,
			errorType:     visionErrType,
			cause:         visionErr,
			totalImages:   totalProvided,
			imagesCapped:  imagesCapped,
			elapsed:       time.Since(start),
			validation:    &validation,
			timing:        timing,
			perImageTimes: perImageTimes,
		})
	}

	log.WithFields(logrus.Fields{
		"responses": len(rawResponses),
		"time_ms":   timing.VisionAPIMs,
	}).Info("Vision API complete")

	// Stage: parse + quality filter
	parsed, perImage := p.parseAndFilter(product.ProductID, images, rawResponses, perImageTimes)

	if len(parsed) == 0 {
		log.Error("No valid results after parsing and quality filtering")
		return p.failedMeasurement(failureContext{
			productID:     product.ProductID,
			errorType:     apperrors.ErrorTypeParse,
			totalImages:   totalProvided,
			imagesCapped:  imagesCapped,
			elapsed:       time.Since(start),
			validation:    &validation,
			timing:        timing,
			perImageTimes: perImageTimes,
		})
	}

	// Stage: aggregation
	aggregationStart := time.Now()
	measurement := p.aggregator.Aggregate(product.ProductID, parsed)
	timing.AggregationMs = time.Since(aggregationStart).Milliseconds()

	variance := p.computeVarianceMetrics(parsed)
	measurement.QualityFlags = p.computeFinalQualityFlags(measurement.AggregateConfidence, parsed, totalProvided)
	measurement.QualityScore = qualityScore(measurement.AggregateConfidence, variance.Max(), p.cfg.HighVarianceThreshold)

	timing.TotalMs = time.Since(start).Milliseconds()

	measurement.ImagesCapped = imagesCapped
	measurement.TotalImagesProvided = totalProvided
	measurement.ImagesSuccessfullyAnalyzed = len(parsed)
	measurement.ProcessingTimeMs = timing.TotalMs
	measurement.PerImageTimeMs = perImageTimes
	measurement.ImageValidation = &validation
	measurement.PerImageAnalysis = perImage
	measurement.VarianceMetrics = &variance
	measurement.TimingBreakdown = timing
	measurement.ModelUsed = p.vision.CurrentModel()

	log.WithFields(logrus.Fields{
		"status":        measurement.ProcessingStatus,
		"total_time_ms": timing.TotalMs,
		"images":        fmt.Sprintf("%d/%d", len(parsed), totalProvided),
		"quality_score": measurement.QualityScore,
	}).Info("Request complete")

	return measurement
}

// applyProductPacing blocks until the configured delay has elapsed since
// the previous product's start, then records this product's start.
func (p *ProductProcessor) applyProductPacing(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastStart.IsZero() {
		if elapsed := time.Since(p.lastStart); elapsed < p.cfg.APICallDelay {
			sleepCtx(ctx, p.cfg.APICallDelay-elapsed)
		}
	}
	p.lastStart = time.Now()
}

// fetchImages downloads all capped URLs concurrently. A transport failure
// on any URL aborts the whole batch; absent images (dead URLs) are simply
// dropped.
func (p *ProductProcessor) fetchImages(ctx context.Context, urls []string) ([]fetchedImage, error) {
	results := make([][]byte, len(urls))

	g, fetchCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			data, err := p.fetcher.FetchImage(fetchCtx, url)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	images := make([]fetchedImage, 0, len(urls))
	for i, data := range results {
		if data != nil {
			images = append(images, fetchedImage{url: urls[i], data: data})
		}
	}
	return images, nil
}

// analyzeImages calls the vision service once per image, strictly in order,
// sleeping the configured delay between calls. The serialization respects
// the upstream rate limit and must not be parallelized. A rate-limit error
// abandons the remaining images; timings collected so far are kept.
func (p *ProductProcessor) analyzeImages(ctx context.Context, images []fetchedImage) ([]string, []int64, apperrors.ErrorType, error) {
	responses := make([]string, 0, len(images))
	timings := make([]int64, 0, len(images))

	for i, img := range images {
		if i > 0 {
			sleepCtx(ctx, p.cfg.APICallDelay)
		}

		callStart := time.Now()
		response, err := p.vision.AnalyzeImageWithFallback(ctx, img.data)
		if err != nil {
			if apperrors.IsRateLimitShaped(err) {
				return responses, timings, apperrors.ErrorTypeRateLimited, err
			}
			return responses, timings, apperrors.ErrorTypeVisionModel, err
		}
		responses = append(responses, response)
		timings = append(timings, time.Since(callStart).Milliseconds())
	}

	return responses, timings, "", nil
}

// parseAndFilter parses each raw response and drops results below the
// minimum confidence threshold. Drops are counted, never fatal here.
func (p *ProductProcessor) parseAndFilter(productID string, images []fetchedImage, rawResponses []string, perImageTimes []int64) ([]*models.ParsedImageAnalysis, []models.PerImageAnalysis) {
	parsed := make([]*models.ParsedImageAnalysis, 0, len(rawResponses))
	perImage := make([]models.PerImageAnalysis, 0, len(rawResponses))
	rejectedLowConfidence := 0
	parseFailures := 0

	for i, raw := range rawResponses {
		analysis := p.parser.Parse(raw)
		if analysis == nil {
			parseFailures++
			logger.WithProduct(productID).WithField("image_index", i).Error("Parse error for image response")
			continue
		}

		meanConfidence := analysis.MeanConfidence()
		if meanConfidence < p.cfg.MinConfidenceThreshold {
			rejectedLowConfidence++
			logger.WithProduct(productID).WithFields(logrus.Fields{
				"image_index": i,
				"confidence":  meanConfidence,
				"threshold":   p.cfg.MinConfidenceThreshold,
			}).Warn("Rejected image due to low confidence")
			continue
		}

		parsed = append(parsed, analysis)

		imageTime := int64(0)
		if i < len(perImageTimes) {
			imageTime = perImageTimes[i]
		}
		perImage = append(perImage, models.PerImageAnalysis{
			ImageURL:         images[i].url,
			VisualDimensions: analysis.VisualDimensions,
			ProcessingTimeMs: imageTime,
		})
	}

	if rejectedLowConfidence > 0 || parseFailures > 0 {
		logger.WithProduct(productID).WithFields(logrus.Fields{
			"rejected_low_confidence": rejectedLowConfidence,
			"parse_failures":          parseFailures,
		}).Warn("Dropped image results during quality filtering")
	}

	return parsed, perImage
}

// computeVarianceMetrics returns the per-dimension population standard
// deviation of scores across images; all zero below two images.
func (p *ProductProcessor) computeVarianceMetrics(parsed []*models.ParsedImageAnalysis) models.VarianceMetrics {
	if len(parsed) < 2 {
		return models.VarianceMetrics{}
	}

	stdev := func(name string) float64 {
		scores := make([]float64, 0, len(parsed))
		for _, analysis := range parsed {
			scores = append(scores, analysis.VisualDimensions.Get(name).Score)
		}
		return stat.PopStdDev(scores, nil)
	}

	return models.VarianceMetrics{
		GenderExpression:  stdev("gender_expression"),
		VisualWeight:      stdev("visual_weight"),
		Embellishment:     stdev("embellishment"),
		Unconventionality: stdev("unconventionality"),
		Formality:         stdev("formality"),
	}
}

// computeFinalQualityFlags is the authoritative pass: it sees the original
// URL count, so it can set partial_analysis, and its high_variance check
// pools scores across all dimensions rather than per axis.
func (p *ProductProcessor) computeFinalQualityFlags(aggregateConfidence float64, parsed []*models.ParsedImageAnalysis, totalProvided int) models.QualityFlags {
	highVariance := false
	if len(parsed) > 1 {
		minScore := math.Inf(1)
		maxScore := math.Inf(-1)
		for _, analysis := range parsed {
			for _, score := range analysis.VisualDimensions.Scores() {
				minScore = math.Min(minScore, score)
				maxScore = math.Max(maxScore, score)
			}
		}
		highVariance = maxScore-minScore > 2.0
	}

	return models.QualityFlags{
		LowConfidence:   aggregateConfidence < 0.5,
		HighVariance:    highVariance,
		SingleImageOnly: len(parsed) == 1,
		PartialAnalysis: len(parsed) < totalProvided,
	}
}

// qualityScore applies a variance penalty of at most 30% to the aggregate
// confidence, scaled by how close the worst-dimension stdev comes to the
// configured threshold.
func qualityScore(aggregateConfidence, maxStdev, threshold float64) float64 {
	penalty := math.Min(maxStdev/threshold, 1.0)
	return aggregateConfidence * (1.0 - 0.3*penalty)
}

type failureContext struct {
	productID     string
	errorType     apperrors.ErrorType
	cause         error
	totalImages   int
	imagesCapped  bool
	elapsed       time.Duration
	validation    *models.ImageValidation
	timing        *models.TimingBreakdown
	perImageTimes []int64
}

// failedMeasurement builds the terminal failed measurement for one
// product, preserving whatever instrumentation was computed before the
// failing stage. Rate-limit failures additionally carry retry guidance
// extracted from the error text.
func (p *ProductProcessor) failedMeasurement(fc failureContext) *models.ProductMeasurement {
	m := aggregator.FailedMeasurement(fc.productID)

	m.ErrorType = string(fc.errorType)
	m.TotalImagesProvided = fc.totalImages
	m.ImagesCapped = fc.imagesCapped
	m.ProcessingTimeMs = fc.elapsed.Milliseconds()
	m.ImageValidation = fc.validation
	m.QualityFlags.PartialAnalysis = fc.totalImages > 0
	if fc.perImageTimes != nil {
		m.PerImageTimeMs = fc.perImageTimes
	}
	if fc.timing != nil {
		fc.timing.TotalMs = fc.elapsed.Milliseconds()
		m.TimingBreakdown = fc.timing
	}

	if fc.cause != nil {
		m.ErrorMessage = fc.cause.Error()
	}

	if fc.errorType == apperrors.ErrorTypeRateLimited {
		retrySeconds := 60
		if fc.cause != nil {
			retrySeconds = apperrors.ParseRetryDelay(fc.cause.Error())
		}
		m.ErrorMessage = fmt.Sprintf("API quota exceeded. Please retry in %d seconds or use a fresh API key.", retrySeconds)
		m.RetryAfterSeconds = retrySeconds
		m.RateLimitInfo = &models.RateLimitInfo{
			Limit:     "20 requests/day (free tier)",
			ResetTime: "Daily at midnight UTC",
			Suggestions: []string{
				"Wait for the specified retry delay",
				"Create a new Gemini API key for fresh quota",
				"Upgrade to paid tier for higher limits (1500 RPM)",
			},
		}
	}

	return m
}

// ClassifyFailure maps an arbitrary error from outside the staged pipeline
// (batch drivers, transport) onto the taxonomy: rate-limit-shaped text
// becomes rate_limited with retry guidance, everything else unknown_error.
func (p *ProductProcessor) ClassifyFailure(productID string, totalImages int, elapsed time.Duration, err error) *models.ProductMeasurement {
	errorType := apperrors.ErrorTypeUnknown
	if apperrors.IsRateLimitShaped(err) {
		errorType = apperrors.ErrorTypeRateLimited
	}
	m := p.failedMeasurement(failureContext{
		productID:   productID,
		errorType:   errorType,
		cause:       err,
		totalImages: totalImages,
		elapsed:     elapsed,
	})
	if errorType == apperrors.ErrorTypeUnknown {
		m.ErrorMessage = fmt.Sprintf("Processing failed: %v", err)
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
