package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"go-eyewear-vision/internal/logger"
	"go-eyewear-vision/pkg/models"
)

var (
	// Fenced block first, then the widest brace span in the text.
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	braceSpanPattern  = regexp.MustCompile(`(?s)\{.*\}`)

	// Degraded-mode recovery for dimension blocks inside broken JSON.
	dimensionBlockPattern = regexp.MustCompile(
		`"(gender_expression|visual_weight|embellishment|unconventionality|formality)"` +
			`\s*:\s*\{[^{}]*?"score"\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)[^{}]*?"confidence"\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
)

// Default dimension values substituted when a block is missing or malformed.
const (
	defaultScore      = 0.0
	defaultConfidence = 0.5
)

// ResponseParser turns one raw model response into a validated
// ParsedImageAnalysis. Every field is extracted independently: a missing or
// malformed field substitutes its documented default instead of failing the
// whole parse.
type ResponseParser struct{}

func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// Parse extracts and validates one analysis from raw response text.
// Returns nil when no JSON object can be located and regex recovery finds
// no dimension blocks either; the caller counts that as a parse failure.
func (p *ResponseParser) Parse(rawText string) *models.ParsedImageAnalysis {
	cleaned, ok := extractJSON(rawText)
	if ok && gjson.Valid(cleaned) {
		return p.parseFields(gjson.Parse(cleaned))
	}
	return p.recoverFromBrokenJSON(rawText)
}

// extractJSON locates the JSON object within the raw text: a fenced
// ```json block wins, otherwise the widest {...} span.
func extractJSON(rawText string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(rawText); m != nil {
		return m[1], true
	}
	if m := braceSpanPattern.FindString(rawText); m != "" {
		return m, true
	}
	return "", false
}

func (p *ResponseParser) parseFields(root gjson.Result) *models.ParsedImageAnalysis {
	analysis := &models.ParsedImageAnalysis{}

	for _, name := range models.DimensionNames {
		dim, defaulted := decodeDimension(root.Get(name))
		if defaulted {
			logger.WithField("field", name).Warn("Dimension missing or malformed, using default")
			analysis.DefaultedFields++
		}
		*analysis.VisualDimensions.Get(name) = dim
	}

	analysis.ObservableAttributes = models.ObservableAttributes{
		WirecoreVisible: p.decodeBool(analysis, root.Get("wirecore_visible"), "detected", "wirecore_visible"),
		FrameGeometry:   p.decodeEnum(analysis, root.Get("frame_geometry"), "frame_geometry", models.NormalizeFrameGeometry),
		Transparency:    p.decodeEnum(analysis, root.Get("transparency"), "transparency", models.NormalizeTransparency),
		DominantColors:  p.decodeColors(analysis, root.Get("dominant_colors")),
		SurfaceTexture:  p.decodeEnum(analysis, root.Get("surface_texture"), "surface_texture", models.NormalizeSurfaceTexture),
		SuitableForKids: p.decodeBool(analysis, root.Get("suitable_for_kids"), "assessment", "suitable_for_kids"),
	}

	analysis.VisualMetadata = models.VisualMetadata{
		FrameMaterialApparent: p.decodeEnum(analysis, root.Get("frame_material_apparent"), "frame_material_apparent", models.NormalizeFrameMaterial),
		LensTint:              p.decodeEnum(analysis, root.Get("lens_tint"), "lens_tint", models.NormalizeLensTint),
		HasNosePads:           p.decodeBool(analysis, root.Get("has_nose_pads"), "detected", "has_nose_pads"),
		TempleStyle:           p.decodeEnum(analysis, root.Get("temple_style"), "temple_style", models.NormalizeTempleStyle),
	}

	return analysis
}

// decodeDimension accepts {"score": x, "confidence": y} and clamps both
// values. Anything else yields the default block.
func decodeDimension(field gjson.Result) (models.VisualDimension, bool) {
	if !field.Exists() || !field.IsObject() {
		return models.VisualDimension{Score: defaultScore, Confidence: defaultConfidence}, true
	}
	score := field.Get("score")
	confidence := field.Get("confidence")
	if score.Type != gjson.Number || confidence.Type != gjson.Number {
		return models.VisualDimension{Score: defaultScore, Confidence: defaultConfidence}, true
	}
	return models.VisualDimension{
		Score:      clamp(score.Float(), models.MinScore, models.MaxScore),
		Confidence: clamp(confidence.Float(), models.MinConfidence, models.MaxConfidence),
	}, false
}

// decodeBool accepts a bare boolean or an object wrapper keyed by
// wrapperKey ({"detected": bool} or {"assessment": bool}).
func (p *ResponseParser) decodeBool(analysis *models.ParsedImageAnalysis, field gjson.Result, wrapperKey, fieldName string) bool {
	if field.IsObject() {
		field = field.Get(wrapperKey)
	}
	if field.IsBool() {
		return field.Bool()
	}
	logger.WithField("field", fieldName).Warn("Boolean field missing or malformed, using default")
	analysis.DefaultedFields++
	return false
}

// decodeEnum accepts a bare string or a {"value": string} wrapper, then
// validates against the field's closed set via normalize.
func (p *ResponseParser) decodeEnum(analysis *models.ParsedImageAnalysis, field gjson.Result, fieldName string, normalize func(string) string) string {
	if field.IsObject() {
		field = field.Get("value")
	}
	if field.Type == gjson.String {
		raw := strings.ToLower(strings.TrimSpace(field.String()))
		normalized := normalize(raw)
		if normalized != raw {
			logger.WithFields(logrus.Fields{
				"field": fieldName,
				"value": raw,
			}).Warn("Enum value outside closed set, using default")
			analysis.DefaultedFields++
		}
		return normalized
	}
	logger.WithField("field", fieldName).Warn("Enum field missing or malformed, using default")
	analysis.DefaultedFields++
	return normalize("")
}

// decodeColors keeps at most MaxColors well-formed entries; a malformed
// entry is skipped, an empty result substitutes one synthetic gray entry.
func (p *ResponseParser) decodeColors(analysis *models.ParsedImageAnalysis, field gjson.Result) []models.DominantColor {
	colors := []models.DominantColor{}
	if field.IsArray() {
		for _, entry := range field.Array() {
			if len(colors) >= models.MaxColors {
				break
			}
			name := entry.Get("color")
			hex := entry.Get("hex_approximation")
			coverage := entry.Get("coverage_percentage")
			if name.Type != gjson.String || hex.Type != gjson.String || coverage.Type != gjson.Number {
				logger.Warn("Skipping malformed dominant color entry")
				continue
			}
			colors = append(colors, models.DominantColor{
				Color:              name.String(),
				HexApproximation:   hex.String(),
				CoveragePercentage: clamp(coverage.Float(), 0, models.MaxCoverage),
			})
		}
	}
	if len(colors) == 0 {
		logger.Warn("No usable dominant colors, substituting synthetic entry")
		analysis.DefaultedFields++
		colors = append(colors, models.DominantColor{
			Color:              "unknown",
			HexApproximation:   "#808080",
			CoveragePercentage: 100.0,
		})
	}
	return colors
}

// recoverFromBrokenJSON reconstructs whatever dimension blocks still match
// a recognizable pattern inside undecodable text. Everything else takes its
// default. Returns nil when not a single block matches.
func (p *ResponseParser) recoverFromBrokenJSON(rawText string) *models.ParsedImageAnalysis {
	matches := dimensionBlockPattern.FindAllStringSubmatch(rawText, -1)
	if len(matches) == 0 {
		logger.Warn("Failed to parse vision response: no JSON object and no recoverable dimensions")
		return nil
	}

	analysis := &models.ParsedImageAnalysis{}
	recovered := map[string]models.VisualDimension{}
	for _, m := range matches {
		name := m[1]
		if _, seen := recovered[name]; seen {
			continue
		}
		score, errS := strconv.ParseFloat(m[2], 64)
		confidence, errC := strconv.ParseFloat(m[3], 64)
		if errS != nil || errC != nil {
			continue
		}
		recovered[name] = models.VisualDimension{
			Score:      clamp(score, models.MinScore, models.MaxScore),
			Confidence: clamp(confidence, models.MinConfidence, models.MaxConfidence),
		}
	}
	if len(recovered) == 0 {
		return nil
	}

	logger.WithField("recovered_dimensions", len(recovered)).Warn("Recovered partial analysis from malformed JSON")

	for _, name := range models.DimensionNames {
		if dim, ok := recovered[name]; ok {
			*analysis.VisualDimensions.Get(name) = dim
		} else {
			*analysis.VisualDimensions.Get(name) = models.VisualDimension{Score: defaultScore, Confidence: defaultConfidence}
			analysis.DefaultedFields++
		}
	}

	analysis.ObservableAttributes = models.DefaultObservableAttributes()
	analysis.ObservableAttributes.DominantColors = []models.DominantColor{
		{Color: "unknown", HexApproximation: "#808080", CoveragePercentage: 100.0},
	}
	analysis.VisualMetadata = models.DefaultVisualMetadata()
	analysis.DefaultedFields += 10 // every non-dimension field defaulted

	return analysis
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
