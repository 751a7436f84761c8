package aggregator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"go-eyewear-vision/pkg/models"
)

// Clustering and flag thresholds.
const (
	// Colors whose hex values sit within this RGB Euclidean distance of a
	// cluster's first member merge into that cluster.
	colorMergeDistance = 50.0

	// A per-dimension score range above this across contributing images
	// marks the measurement as high variance.
	highVarianceRange = 2.0

	lowConfidenceThreshold = 0.5
)

// Aggregator fuses per-image analyses into one product measurement using
// confidence-weighted averaging for scores and majority voting for
// categorical fields. It holds no state and is safe for concurrent use.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// FailedMeasurement builds the zeroed sentinel measurement shared by the
// empty-input path and the pipeline's failure paths. All scores and
// confidences are 0, every enum sits at its default, and only the
// low_confidence flag is set.
func FailedMeasurement(productID string) *models.ProductMeasurement {
	return &models.ProductMeasurement{
		ProductID:            productID,
		ProcessingStatus:     models.StatusFailed,
		VisualDimensions:     models.DefaultVisualDimensions(),
		ObservableAttributes: models.DefaultObservableAttributes(),
		VisualMetadata:       models.DefaultVisualMetadata(),
		AggregateConfidence:  0.0,
		SchemaVersion:        models.SchemaVersion,
		APIVersion:           models.APIVersion,
		AggregationMethod:    models.AggregationMethod,
		QualityFlags: models.QualityFlags{
			LowConfidence: true,
		},
		PerImageTimeMs: []int64{},
	}
}

// Aggregate combines the per-image analyses for one product. An empty
// input yields the failed sentinel measurement.
func (a *Aggregator) Aggregate(productID string, results []*models.ParsedImageAnalysis) *models.ProductMeasurement {
	if len(results) == 0 {
		return FailedMeasurement(productID)
	}

	dimensions := a.aggregateDimensions(results)
	attributes := a.aggregateObservableAttributes(results)
	metadata := a.aggregateVisualMetadata(results)

	aggregateConfidence := stat.Mean(dimensions.Confidences(), nil)

	return &models.ProductMeasurement{
		ProductID:            productID,
		ProcessingStatus:     models.StatusSuccess,
		VisualDimensions:     dimensions,
		ObservableAttributes: attributes,
		VisualMetadata:       metadata,
		AggregateConfidence:  aggregateConfidence,
		SchemaVersion:        models.SchemaVersion,
		APIVersion:           models.APIVersion,
		AggregationMethod:    models.AggregationMethod,
		QualityFlags:         a.computeQualityFlags(results, aggregateConfidence),
		PerImageTimeMs:       []int64{},
	}
}

// aggregateDimensions fuses each of the five axes independently:
// score = Σ(score·confidence)/Σ(confidence), confidence = unweighted mean.
func (a *Aggregator) aggregateDimensions(results []*models.ParsedImageAnalysis) models.VisualDimensions {
	var fused models.VisualDimensions
	for _, name := range models.DimensionNames {
		weightedSum := 0.0
		confidenceSum := 0.0
		confidences := make([]float64, 0, len(results))
		for _, result := range results {
			dim := result.VisualDimensions.Get(name)
			weightedSum += dim.Score * dim.Confidence
			confidenceSum += dim.Confidence
			confidences = append(confidences, dim.Confidence)
		}

		weightedScore := 0.0
		if confidenceSum > 0 {
			weightedScore = weightedSum / confidenceSum
		}

		*fused.Get(name) = models.VisualDimension{
			Score:      weightedScore,
			Confidence: stat.Mean(confidences, nil),
		}
	}
	return fused
}

func (a *Aggregator) aggregateObservableAttributes(results []*models.ParsedImageAnalysis) models.ObservableAttributes {
	allColors := []models.DominantColor{}
	for _, result := range results {
		allColors = append(allColors, result.ObservableAttributes.DominantColors...)
	}

	return models.ObservableAttributes{
		WirecoreVisible: voteBool(results, func(r *models.ParsedImageAnalysis) bool {
			return r.ObservableAttributes.WirecoreVisible
		}),
		FrameGeometry: voteString(results, models.FrameGeometryUnknown, func(r *models.ParsedImageAnalysis) string {
			return r.ObservableAttributes.FrameGeometry
		}),
		Transparency: voteString(results, models.TransparencyOpaque, func(r *models.ParsedImageAnalysis) string {
			return r.ObservableAttributes.Transparency
		}),
		DominantColors: a.mergeColors(allColors),
		SurfaceTexture: voteString(results, models.SurfaceTextureSmooth, func(r *models.ParsedImageAnalysis) string {
			return r.ObservableAttributes.SurfaceTexture
		}),
		SuitableForKids: voteBool(results, func(r *models.ParsedImageAnalysis) bool {
			return r.ObservableAttributes.SuitableForKids
		}),
	}
}

func (a *Aggregator) aggregateVisualMetadata(results []*models.ParsedImageAnalysis) models.VisualMetadata {
	return models.VisualMetadata{
		FrameMaterialApparent: voteString(results, models.MaterialIndeterminate, func(r *models.ParsedImageAnalysis) string {
			return r.VisualMetadata.FrameMaterialApparent
		}),
		LensTint: voteString(results, models.LensTintIndeterminate, func(r *models.ParsedImageAnalysis) string {
			return r.VisualMetadata.LensTint
		}),
		HasNosePads: voteBool(results, func(r *models.ParsedImageAnalysis) bool {
			return r.VisualMetadata.HasNosePads
		}),
		TempleStyle: voteString(results, models.TempleStyleIndeterminate, func(r *models.ParsedImageAnalysis) string {
			return r.VisualMetadata.TempleStyle
		}),
	}
}

// tally is an insertion-ordered vote count. Ties resolve to the value seen
// first while scanning images in input order; this tie-break is part of
// the contract and keeps aggregation deterministic.
type tally struct {
	values []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: map[string]int{}}
}

func (t *tally) add(value string) {
	if _, seen := t.counts[value]; !seen {
		t.values = append(t.values, value)
	}
	t.counts[value]++
}

func (t *tally) winner() (string, bool) {
	if len(t.values) == 0 {
		return "", false
	}
	best := t.values[0]
	for _, v := range t.values[1:] {
		if t.counts[v] > t.counts[best] {
			best = v
		}
	}
	return best, true
}

func voteString(results []*models.ParsedImageAnalysis, defaultValue string, pick func(*models.ParsedImageAnalysis) string) string {
	t := newTally()
	for _, result := range results {
		t.add(pick(result))
	}
	if winner, ok := t.winner(); ok {
		return winner
	}
	return defaultValue
}

func voteBool(results []*models.ParsedImageAnalysis, pick func(*models.ParsedImageAnalysis) bool) bool {
	t := newTally()
	for _, result := range results {
		t.add(strconv.FormatBool(pick(result)))
	}
	if winner, ok := t.winner(); ok {
		return winner == "true"
	}
	return false
}

// mergeColors clusters similar colors across images and keeps the top 3
// merged clusters by coverage. Colors join the first cluster whose
// representative matches by case-insensitive name or sits within
// colorMergeDistance in RGB space; hex parse failures skip only the
// distance check.
func (a *Aggregator) mergeColors(allColors []models.DominantColor) []models.DominantColor {
	if len(allColors) == 0 {
		return []models.DominantColor{}
	}

	var clusters [][]models.DominantColor
	for _, color := range allColors {
		merged := false
		for i, cluster := range clusters {
			if strings.EqualFold(color.Color, cluster[0].Color) {
				clusters[i] = append(cluster, color)
				merged = true
				break
			}
			colorRGB, err1 := hexToRGB(color.HexApproximation)
			clusterRGB, err2 := hexToRGB(cluster[0].HexApproximation)
			if err1 == nil && err2 == nil && rgbDistance(colorRGB, clusterRGB) < colorMergeDistance {
				clusters[i] = append(cluster, color)
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, []models.DominantColor{color})
		}
	}

	merged := make([]models.DominantColor, 0, len(clusters))
	for _, cluster := range clusters {
		best := cluster[0]
		coverageSum := 0.0
		for _, c := range cluster {
			if c.CoveragePercentage > best.CoveragePercentage {
				best = c
			}
			coverageSum += c.CoveragePercentage
		}
		merged = append(merged, models.DominantColor{
			Color:              best.Color,
			HexApproximation:   averageHex(cluster),
			CoveragePercentage: math.Min(models.MaxCoverage, coverageSum),
		})
	}

	// Stable sort by coverage descending, then top 3
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].CoveragePercentage > merged[j-1].CoveragePercentage; j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	if len(merged) > models.MaxColors {
		merged = merged[:models.MaxColors]
	}
	return merged
}

type rgb struct {
	r, g, b int
}

func hexToRGB(hex string) (rgb, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(trimmed) != 6 {
		return rgb{}, fmt.Errorf("invalid hex color %q", hex)
	}
	r, err := strconv.ParseInt(trimmed[0:2], 16, 0)
	if err != nil {
		return rgb{}, err
	}
	g, err := strconv.ParseInt(trimmed[2:4], 16, 0)
	if err != nil {
		return rgb{}, err
	}
	b, err := strconv.ParseInt(trimmed[4:6], 16, 0)
	if err != nil {
		return rgb{}, err
	}
	return rgb{int(r), int(g), int(b)}, nil
}

func rgbDistance(a, b rgb) float64 {
	dr := float64(a.r - b.r)
	dg := float64(a.g - b.g)
	db := float64(a.b - b.b)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// averageHex averages each RGB component independently across the cluster,
// truncating to int. Unparseable members are excluded; if none parse, the
// first member's hex is kept as-is.
func averageHex(cluster []models.DominantColor) string {
	sumR, sumG, sumB, n := 0, 0, 0, 0
	for _, c := range cluster {
		parsed, err := hexToRGB(c.HexApproximation)
		if err != nil {
			continue
		}
		sumR += parsed.r
		sumG += parsed.g
		sumB += parsed.b
		n++
	}
	if n == 0 {
		return cluster[0].HexApproximation
	}
	return fmt.Sprintf("#%02X%02X%02X", sumR/n, sumG/n, sumB/n)
}

func (a *Aggregator) computeQualityFlags(results []*models.ParsedImageAnalysis, aggregateConfidence float64) models.QualityFlags {
	highVariance := false
	if len(results) > 1 {
		for _, name := range models.DimensionNames {
			minScore := math.Inf(1)
			maxScore := math.Inf(-1)
			for _, result := range results {
				score := result.VisualDimensions.Get(name).Score
				minScore = math.Min(minScore, score)
				maxScore = math.Max(maxScore, score)
			}
			if maxScore-minScore > highVarianceRange {
				highVariance = true
				break
			}
		}
	}

	return models.QualityFlags{
		LowConfidence:   aggregateConfidence < lowConfidenceThreshold,
		HighVariance:    highVariance,
		SingleImageOnly: len(results) == 1,
		PartialAnalysis: false,
	}
}
