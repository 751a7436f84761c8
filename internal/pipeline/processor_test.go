package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go-eyewear-vision/internal/aggregator"
	"go-eyewear-vision/internal/config"
	"go-eyewear-vision/internal/parser"
	"go-eyewear-vision/pkg/models"
)

type fakeValidator struct {
	valid   []string
	invalid []models.InvalidURL
}

func (f *fakeValidator) ValidateAll(ctx context.Context, urls []string) ([]string, models.ImageValidation) {
	return f.valid, models.ImageValidation{
		TotalProvided: len(urls),
		ValidCount:    len(f.valid),
		InvalidCount:  len(f.invalid),
		InvalidURLs:   f.invalid,
	}
}

type fakeFetcher struct {
	data map[string][]byte
	err  error
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[url], nil
}

type fakeVision struct {
	responses []string
	errs      []error
	calls     int
	model     string
}

func (f *fakeVision) AnalyzeImage(ctx context.Context, imageData []byte) (string, error) {
	return f.AnalyzeImageWithFallback(ctx, imageData)
}

func (f *fakeVision) AnalyzeImageWithFallback(ctx context.Context, imageData []byte) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (f *fakeVision) CurrentModel() string {
	if f.model == "" {
		return "gemini-2.5-flash"
	}
	return f.model
}

func testConfig() *config.Config {
	return &config.Config{
		APICallDelay:             time.Millisecond,
		URLValidationTimeout:     time.Second,
		VisionTimeout:            time.Second,
		MinConfidenceThreshold:   0.5,
		HighVarianceThreshold:    1.5,
		MaxImagesPerProduct:      3,
		MaxConcurrentValidations: 5,
	}
}

func responseWithConfidence(score, confidence float64) string {
	dims := ""
	for i, name := range models.DimensionNames {
		if i > 0 {
			dims += ","
		}
		dims += fmt.Sprintf(`"%s": {"score": %g, "confidence": %g}`, name, score, confidence)
	}
	return "{" + dims + `,
	  "wirecore_visible": false,
	  "frame_geometry": "rectangular",
	  "transparency": "opaque",
	  "dominant_colors": [{"color": "black", "hex_approximation": "#000000", "coverage_percentage": 90.0}],
	  "surface_texture": "matte",
	  "suitable_for_kids": false,
	  "frame_material_apparent": "plastic",
	  "lens_tint": "clear",
	  "has_nose_pads": true,
	  "temple_style": "standard"
	}`
}

func newTestProcessor(v *fakeValidator, f *fakeFetcher, vis *fakeVision, cfg *config.Config) *ProductProcessor {
	return NewProductProcessor(v, f, vis, parser.NewResponseParser(), aggregator.NewAggregator(), cfg)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestProcessProductEndToEnd(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg", "https://cdn.example.com/images/b.jpg", "https://cdn.example.com/images/c.jpg"}
	validator := &fakeValidator{valid: urls}
	fetcher := &fakeFetcher{data: map[string][]byte{
		urls[0]: []byte("img-a"), urls[1]: []byte("img-b"), urls[2]: []byte("img-c"),
	}}
	vis := &fakeVision{responses: []string{
		responseWithConfidence(1.0, 0.9),
		responseWithConfidence(2.0, 0.8),
		responseWithConfidence(3.0, 0.7),
	}}

	p := newTestProcessor(validator, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.ProcessingStatus != models.StatusSuccess {
		t.Fatalf("Expected success, got %s (%s: %s)", m.ProcessingStatus, m.ErrorType, m.ErrorMessage)
	}
	wantScore := (1.0*0.9 + 2.0*0.8 + 3.0*0.7) / (0.9 + 0.8 + 0.7)
	if !almostEqual(m.VisualDimensions.GenderExpression.Score, wantScore) {
		t.Errorf("Expected weighted score %g, got %g", wantScore, m.VisualDimensions.GenderExpression.Score)
	}
	if !almostEqual(m.VisualDimensions.GenderExpression.Confidence, 0.8) {
		t.Errorf("Expected mean confidence 0.8, got %g", m.VisualDimensions.GenderExpression.Confidence)
	}
	if m.ImagesSuccessfullyAnalyzed != 3 || m.TotalImagesProvided != 3 {
		t.Errorf("Expected 3/3 images, got %d/%d", m.ImagesSuccessfullyAnalyzed, m.TotalImagesProvided)
	}
	if m.QualityFlags.PartialAnalysis {
		t.Error("All images analyzed, partial_analysis should be false")
	}
	if len(m.PerImageAnalysis) != 3 {
		t.Errorf("Expected 3 per-image entries, got %d", len(m.PerImageAnalysis))
	}
	if m.VarianceMetrics == nil {
		t.Fatal("Expected variance metrics")
	}
	if m.ModelUsed != "gemini-2.5-flash" {
		t.Errorf("Expected model recorded, got %q", m.ModelUsed)
	}
	if m.TimingBreakdown == nil || m.TimingBreakdown.TotalMs < 0 {
		t.Error("Expected a timing breakdown")
	}
	if m.SchemaVersion != models.SchemaVersion || m.AggregationMethod != models.AggregationMethod {
		t.Error("Expected schema and aggregation tags attached")
	}
}

func TestProcessProductAllURLsInvalid(t *testing.T) {
	validator := &fakeValidator{invalid: []models.InvalidURL{
		{URL: "bad", ErrorType: "invalid_format", ErrorMessage: "URL is empty"},
	}}
	p := newTestProcessor(validator, &fakeFetcher{}, &fakeVision{}, testConfig())

	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: []string{"bad"}})
	if m.ProcessingStatus != models.StatusFailed {
		t.Fatalf("Expected failed status, got %s", m.ProcessingStatus)
	}
	if m.ErrorType != "all_urls_invalid" {
		t.Errorf("Expected all_urls_invalid, got %s", m.ErrorType)
	}
	if m.ImageValidation == nil || m.ImageValidation.InvalidCount != 1 {
		t.Error("Expected validation detail preserved on failure")
	}
	if !m.QualityFlags.LowConfidence {
		t.Error("Failed measurement should carry low_confidence")
	}
}

func TestProcessProductDownloadFailure(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg"}
	p := newTestProcessor(
		&fakeValidator{valid: urls},
		&fakeFetcher{err: errors.New("connection reset")},
		&fakeVision{},
		testConfig(),
	)

	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})
	if m.ErrorType != "image_download_failed" {
		t.Errorf("Expected image_download_failed, got %s", m.ErrorType)
	}
}

func TestProcessProductAllImagesAbsent(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg", "https://cdn.example.com/images/b.jpg"}
	p := newTestProcessor(
		&fakeValidator{valid: urls},
		&fakeFetcher{data: map[string][]byte{}}, // every fetch returns nil, nil
		&fakeVision{},
		testConfig(),
	)

	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})
	if m.ErrorType != "invalid_image_format" {
		t.Errorf("Expected invalid_image_format, got %s", m.ErrorType)
	}
}

func TestProcessProductRateLimited(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg", "https://cdn.example.com/images/b.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a"), urls[1]: []byte("b")}}
	vis := &fakeVision{
		responses: []string{responseWithConfidence(1.0, 0.9)},
		errs:      []error{nil, errors.New("429 quota exceeded. Please retry in 37.5s")},
	}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.ErrorType != "rate_limited" {
		t.Fatalf("Expected rate_limited, got %s", m.ErrorType)
	}
	if m.RetryAfterSeconds != 37 {
		t.Errorf("Expected retry delay 37 parsed from message, got %d", m.RetryAfterSeconds)
	}
	if m.RateLimitInfo == nil || len(m.RateLimitInfo.Suggestions) == 0 {
		t.Error("Expected static rate limit guidance")
	}
	// Timing collected before the failure is retained
	if len(m.PerImageTimeMs) != 1 {
		t.Errorf("Expected 1 retained per-image timing, got %d", len(m.PerImageTimeMs))
	}
}

func TestProcessProductVisionModelError(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a")}}
	vis := &fakeVision{errs: []error{errors.New("model exploded")}}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.ErrorType != "vision_model_error" {
		t.Errorf("Expected vision_model_error, got %s", m.ErrorType)
	}
}

func TestProcessProductParseError(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a")}}
	vis := &fakeVision{responses: []string{"I refuse to answer in JSON."}}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.ErrorType != "parse_error" {
		t.Errorf("Expected parse_error, got %s", m.ErrorType)
	}
}

func TestProcessProductQualityFilterDropsLowConfidence(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg", "https://cdn.example.com/images/b.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a"), urls[1]: []byte("b")}}
	vis := &fakeVision{responses: []string{
		responseWithConfidence(1.0, 0.2), // below MIN_CONFIDENCE 0.5, dropped
		responseWithConfidence(2.0, 0.9),
	}}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.ProcessingStatus != models.StatusSuccess {
		t.Fatalf("Expected success from the surviving image, got %s", m.ProcessingStatus)
	}
	if m.ImagesSuccessfullyAnalyzed != 1 {
		t.Errorf("Expected 1 surviving image, got %d", m.ImagesSuccessfullyAnalyzed)
	}
	if !m.QualityFlags.PartialAnalysis {
		t.Error("Expected partial_analysis when an image was dropped")
	}
	if !m.QualityFlags.SingleImageOnly {
		t.Error("Expected single_image_only with one survivor")
	}
	if !almostEqual(m.VisualDimensions.GenderExpression.Score, 2.0) {
		t.Errorf("Expected score from surviving image, got %g", m.VisualDimensions.GenderExpression.Score)
	}
}

func TestProcessProductCapsImages(t *testing.T) {
	urls := []string{
		"https://cdn.example.com/images/a.jpg",
		"https://cdn.example.com/images/b.jpg",
		"https://cdn.example.com/images/c.jpg",
		"https://cdn.example.com/images/d.jpg",
	}
	fetcher := &fakeFetcher{data: map[string][]byte{
		urls[0]: []byte("a"), urls[1]: []byte("b"), urls[2]: []byte("c"), urls[3]: []byte("d"),
	}}
	vis := &fakeVision{responses: []string{
		responseWithConfidence(1.0, 0.9),
		responseWithConfidence(1.0, 0.9),
		responseWithConfidence(1.0, 0.9),
	}}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if !m.ImagesCapped {
		t.Error("Expected images_capped with 4 valid URLs and cap 3")
	}
	if m.ImagesSuccessfullyAnalyzed != 3 {
		t.Errorf("Expected 3 analyzed after capping, got %d", m.ImagesSuccessfullyAnalyzed)
	}
	if vis.calls != 3 {
		t.Errorf("Expected exactly 3 vision calls, got %d", vis.calls)
	}
}

func TestProcessProductVarianceAndQualityScore(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg", "https://cdn.example.com/images/b.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a"), urls[1]: []byte("b")}}
	vis := &fakeVision{responses: []string{
		responseWithConfidence(1.0, 0.8),
		responseWithConfidence(5.0, 0.8),
	}}

	cfg := testConfig()
	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, cfg)
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	// Population stdev of [1, 5] is 2
	if !almostEqual(m.VarianceMetrics.GenderExpression, 2.0) {
		t.Errorf("Expected population stdev 2.0, got %g", m.VarianceMetrics.GenderExpression)
	}
	if !m.QualityFlags.HighVariance {
		t.Error("Score range 4.0 should set high_variance")
	}
	// Max stdev 2.0 exceeds threshold 1.5, so the full 30% penalty applies
	wantScore := 0.8 * (1.0 - 0.3)
	if !almostEqual(m.QualityScore, wantScore) {
		t.Errorf("Expected quality score %g, got %g", wantScore, m.QualityScore)
	}
}

func TestProcessProductSingleImageVarianceIsZero(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a")}}
	vis := &fakeVision{responses: []string{responseWithConfidence(3.0, 0.9)}}

	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, testConfig())
	m := p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})

	if m.VarianceMetrics == nil {
		t.Fatal("Expected variance metrics")
	}
	if m.VarianceMetrics.Max() != 0.0 {
		t.Errorf("Expected zero variance for a single image, got %g", m.VarianceMetrics.Max())
	}
	// No variance penalty: quality score equals aggregate confidence
	if !almostEqual(m.QualityScore, m.AggregateConfidence) {
		t.Errorf("Expected quality score %g, got %g", m.AggregateConfidence, m.QualityScore)
	}
}

func TestInterProductPacing(t *testing.T) {
	urls := []string{"https://cdn.example.com/images/a.jpg"}
	fetcher := &fakeFetcher{data: map[string][]byte{urls[0]: []byte("a")}}
	vis := &fakeVision{responses: []string{
		responseWithConfidence(1.0, 0.9),
		responseWithConfidence(1.0, 0.9),
	}}

	cfg := testConfig()
	cfg.APICallDelay = 80 * time.Millisecond
	p := newTestProcessor(&fakeValidator{valid: urls}, fetcher, vis, cfg)

	start := time.Now()
	p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-001", ImageURLs: urls})
	p.ProcessProduct(context.Background(), models.ProductInput{ProductID: "prod-002", ImageURLs: urls})
	elapsed := time.Since(start)

	if elapsed < cfg.APICallDelay {
		t.Errorf("Second product started after %s, expected at least %s spacing", elapsed, cfg.APICallDelay)
	}
}

func TestClassifyFailure(t *testing.T) {
	p := newTestProcessor(&fakeValidator{}, &fakeFetcher{}, &fakeVision{}, testConfig())

	m := p.ClassifyFailure("prod-001", 2, time.Second, errors.New("429 rate limit, retry in 15"))
	if m.ErrorType != "rate_limited" {
		t.Errorf("Expected rate_limited, got %s", m.ErrorType)
	}
	if m.RetryAfterSeconds != 15 {
		t.Errorf("Expected retry after 15, got %d", m.RetryAfterSeconds)
	}

	m = p.ClassifyFailure("prod-001", 2, time.Second, errors.New("disk on fire"))
	if m.ErrorType != "unknown_error" {
		t.Errorf("Expected unknown_error, got %s", m.ErrorType)
	}
	if m.ErrorMessage != "Processing failed: disk on fire" {
		t.Errorf("Unexpected message %q", m.ErrorMessage)
	}
}
