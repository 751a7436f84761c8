package models

// Schema and API version tags attached to every measurement.
const (
	SchemaVersion = "1.0"
	APIVersion    = "1.0"

	// AggregationMethod identifies how per-image results were fused.
	AggregationMethod = "confidence_weighted_average"
)

// QualityFlags are boolean reliability signals derived from an aggregation
// pass. They are never set independently; they are recomputed whenever the
// set of contributing images changes.
type QualityFlags struct {
	LowConfidence   bool `json:"low_confidence"`
	HighVariance    bool `json:"high_variance"`
	SingleImageOnly bool `json:"single_image_only"`
	PartialAnalysis bool `json:"partial_analysis"`
}

// InvalidURL carries the error detail for one rejected image URL.
type InvalidURL struct {
	URL          string `json:"url"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// ImageValidation summarizes URL validation for one product.
type ImageValidation struct {
	TotalProvided int          `json:"total_provided"`
	ValidCount    int          `json:"valid_count"`
	InvalidCount  int          `json:"invalid_count"`
	InvalidURLs   []InvalidURL `json:"invalid_urls"`
}

// PerImageAnalysis is one image's result before aggregation.
type PerImageAnalysis struct {
	ImageURL         string           `json:"image_url"`
	VisualDimensions VisualDimensions `json:"visual_dimensions"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// VarianceMetrics holds the per-dimension standard deviation of scores
// across the contributing images. All zero when fewer than two images
// contributed.
type VarianceMetrics struct {
	GenderExpression  float64 `json:"gender_expression"`
	VisualWeight      float64 `json:"visual_weight"`
	Embellishment     float64 `json:"embellishment"`
	Unconventionality float64 `json:"unconventionality"`
	Formality         float64 `json:"formality"`
}

// Max returns the largest per-dimension standard deviation.
func (m VarianceMetrics) Max() float64 {
	max := m.GenderExpression
	for _, v := range []float64{m.VisualWeight, m.Embellishment, m.Unconventionality, m.Formality} {
		if v > max {
			max = v
		}
	}
	return max
}

// TimingBreakdown records per-stage processing time in milliseconds.
type TimingBreakdown struct {
	URLValidationMs int64 `json:"url_validation_ms"`
	ImageFetchMs    int64 `json:"image_fetch_ms"`
	VisionAPIMs     int64 `json:"vision_api_ms"`
	AggregationMs   int64 `json:"aggregation_ms"`
	TotalMs         int64 `json:"total_ms"`
}

// RateLimitInfo carries static guidance attached to rate-limited failures.
type RateLimitInfo struct {
	Limit       string   `json:"limit"`
	ResetTime   string   `json:"reset_time"`
	Suggestions []string `json:"suggestions"`
}

// ProductInput identifies one product and its candidate image URLs.
type ProductInput struct {
	ProductID string   `json:"product_id"`
	ImageURLs []string `json:"image_urls"`
}

// ProductMeasurement is the terminal aggregate artifact for one product.
// It is constructed exactly once per product, by the aggregator on the
// success path or by the pipeline on a failure path; after construction
// only the pipeline attaches metadata fields.
type ProductMeasurement struct {
	// Core identifiers
	ProductID        string           `json:"product_id"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`

	// Analysis results
	VisualDimensions     VisualDimensions     `json:"visual_dimensions"`
	ObservableAttributes ObservableAttributes `json:"observable_attributes"`
	VisualMetadata       VisualMetadata       `json:"visual_metadata"`
	AggregateConfidence  float64              `json:"aggregate_confidence"`

	// Versioning
	SchemaVersion string `json:"schema_version"`
	APIVersion    string `json:"api_version"`

	// Error details when ProcessingStatus is failed
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Rate limit information (when ErrorType is "rate_limited")
	RetryAfterSeconds int            `json:"retry_after_seconds,omitempty"`
	RateLimitInfo     *RateLimitInfo `json:"rate_limit_info,omitempty"`

	// Image processing metadata
	ImagesCapped              bool `json:"images_capped"`
	TotalImagesProvided       int  `json:"total_images_provided"`
	ImagesSuccessfullyAnalyzed int `json:"images_successfully_analyzed"`

	// Performance metrics
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	PerImageTimeMs   []int64 `json:"per_image_time_ms"`

	// Quality indicators
	QualityFlags QualityFlags `json:"quality_flags"`

	// URL validation results
	ImageValidation *ImageValidation `json:"image_validation,omitempty"`

	// Per-image traceability and cross-image dispersion
	PerImageAnalysis  []PerImageAnalysis `json:"per_image_analysis,omitempty"`
	VarianceMetrics   *VarianceMetrics   `json:"variance_metrics,omitempty"`
	AggregationMethod string             `json:"aggregation_method"`

	// Enhanced performance tracking
	TimingBreakdown *TimingBreakdown `json:"timing_breakdown,omitempty"`
	QualityScore    float64          `json:"quality_score"`
	RetryCount      int              `json:"retry_count"`

	// Model fallback tracking
	ModelUsed string `json:"model_used,omitempty"`
}

// DefaultVisualDimensions returns the zeroed dimension block used by every
// failure path. All scores and confidences are 0.
func DefaultVisualDimensions() VisualDimensions {
	return VisualDimensions{}
}

// DefaultObservableAttributes returns the attribute block with every field
// at its documented default and no colors.
func DefaultObservableAttributes() ObservableAttributes {
	return ObservableAttributes{
		WirecoreVisible: false,
		FrameGeometry:   FrameGeometryUnknown,
		Transparency:    TransparencyOpaque,
		DominantColors:  []DominantColor{},
		SurfaceTexture:  SurfaceTextureSmooth,
		SuitableForKids: false,
	}
}

// DefaultVisualMetadata returns the metadata block with every field at its
// documented default.
func DefaultVisualMetadata() VisualMetadata {
	return VisualMetadata{
		FrameMaterialApparent: MaterialIndeterminate,
		LensTint:              LensTintIndeterminate,
		HasNosePads:           false,
		TempleStyle:           TempleStyleIndeterminate,
	}
}
