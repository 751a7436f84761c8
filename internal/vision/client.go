package vision

import "context"

// VisionAnalyzer produces one raw model response per product image. The
// response is untrusted text; parsing and validation happen downstream.
type VisionAnalyzer interface {
	// AnalyzeImage sends the image to the current model and returns the
	// raw response text.
	AnalyzeImage(ctx context.Context, imageData []byte) (string, error)

	// AnalyzeImageWithFallback tries the configured model chain in order,
	// advancing past rate-limited models. Non-rate-limit failures abort
	// immediately.
	AnalyzeImageWithFallback(ctx context.Context, imageData []byte) (string, error)

	// CurrentModel reports which model served the most recent call.
	CurrentModel() string
}
