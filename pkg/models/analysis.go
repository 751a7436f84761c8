package models

// Score and confidence bounds for a visual dimension.
const (
	MinScore      = -5.0
	MaxScore      = 5.0
	MaxColors     = 3
	MaxCoverage   = 100.0
	MinConfidence = 0.0
	MaxConfidence = 1.0
)

// DimensionNames lists the five continuous visual-style axes in canonical
// order. Aggregation iterates them in this order.
var DimensionNames = []string{
	"gender_expression",
	"visual_weight",
	"embellishment",
	"unconventionality",
	"formality",
}

// VisualDimension is one scored axis with an independent confidence.
// Score is clamped to [-5,5], confidence to [0,1] at parse time.
type VisualDimension struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// VisualDimensions holds the five named axes of one analysis.
type VisualDimensions struct {
	GenderExpression  VisualDimension `json:"gender_expression"`
	VisualWeight      VisualDimension `json:"visual_weight"`
	Embellishment     VisualDimension `json:"embellishment"`
	Unconventionality VisualDimension `json:"unconventionality"`
	Formality         VisualDimension `json:"formality"`
}

// Get returns a pointer to the named dimension, or nil for an unknown name.
func (v *VisualDimensions) Get(name string) *VisualDimension {
	switch name {
	case "gender_expression":
		return &v.GenderExpression
	case "visual_weight":
		return &v.VisualWeight
	case "embellishment":
		return &v.Embellishment
	case "unconventionality":
		return &v.Unconventionality
	case "formality":
		return &v.Formality
	}
	return nil
}

// Confidences returns the five dimension confidences in canonical order.
func (v *VisualDimensions) Confidences() []float64 {
	out := make([]float64, 0, len(DimensionNames))
	for _, name := range DimensionNames {
		out = append(out, v.Get(name).Confidence)
	}
	return out
}

// Scores returns the five dimension scores in canonical order.
func (v *VisualDimensions) Scores() []float64 {
	out := make([]float64, 0, len(DimensionNames))
	for _, name := range DimensionNames {
		out = append(out, v.Get(name).Score)
	}
	return out
}

// DominantColor is one named color with an approximate hex value and the
// fraction of the product it covers.
type DominantColor struct {
	Color              string  `json:"color"`
	HexApproximation   string  `json:"hex_approximation"`
	CoveragePercentage float64 `json:"coverage_percentage"`
}

// ObservableAttributes are the categorical attributes visible in one image.
type ObservableAttributes struct {
	WirecoreVisible bool            `json:"wirecore_visible"`
	FrameGeometry   string          `json:"frame_geometry"`
	Transparency    string          `json:"transparency"`
	DominantColors  []DominantColor `json:"dominant_colors"`
	SurfaceTexture  string          `json:"surface_texture"`
	SuitableForKids bool            `json:"suitable_for_kids"`
}

// VisualMetadata are secondary apparent properties of the frame.
type VisualMetadata struct {
	FrameMaterialApparent string `json:"frame_material_apparent"`
	LensTint              string `json:"lens_tint"`
	HasNosePads           bool   `json:"has_nose_pads"`
	TempleStyle           string `json:"temple_style"`
}

// ParsedImageAnalysis is the validated result of one model response.
// It is immutable after creation: the parser builds it, the aggregator and
// the pipeline only read it.
type ParsedImageAnalysis struct {
	VisualDimensions     VisualDimensions
	ObservableAttributes ObservableAttributes
	VisualMetadata       VisualMetadata

	// DefaultedFields counts how many fields fell back to a documented
	// default during parsing, as a data-quality signal.
	DefaultedFields int
}

// MeanConfidence returns the arithmetic mean confidence across the five
// dimensions, used by the pipeline's quality filter.
func (p *ParsedImageAnalysis) MeanConfidence() float64 {
	sum := 0.0
	for _, c := range p.VisualDimensions.Confidences() {
		sum += c
	}
	return sum / float64(len(DimensionNames))
}
