package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	apperrors "go-eyewear-vision/internal/errors"
	"go-eyewear-vision/internal/logger"
)

const maxOutputTokens = 1500

// GeminiVisionClient implements VisionAnalyzer against the Gemini API with
// a rate-limit fallback chain.
type GeminiVisionClient struct {
	client         *genai.Client
	fallbackModels []string
	currentModel   string
	timeout        time.Duration
}

// NewGeminiVisionClient creates a client for the given model chain. The
// first model in fallbackModels is the primary.
func NewGeminiVisionClient(ctx context.Context, apiKey string, fallbackModels []string, timeout time.Duration) (*GeminiVisionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if len(fallbackModels) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"primary_model":   fallbackModels[0],
		"fallback_models": strings.Join(fallbackModels[1:], ", "),
	}).Info("Initialized Gemini vision client")

	return &GeminiVisionClient{
		client:         client,
		fallbackModels: fallbackModels,
		currentModel:   fallbackModels[0],
		timeout:        timeout,
	}, nil
}

// CurrentModel reports which model served the most recent call.
func (g *GeminiVisionClient) CurrentModel() string {
	return g.currentModel
}

// AnalyzeImage sends the image to the current model with the canonical
// prompt and returns the raw response text.
func (g *GeminiVisionClient) AnalyzeImage(ctx context.Context, imageData []byte) (string, error) {
	return g.analyzeWithModel(ctx, g.currentModel, imageData)
}

// AnalyzeImageWithFallback walks the model chain until one model responds.
// Rate-limited models are skipped; any other failure aborts immediately.
func (g *GeminiVisionClient) AnalyzeImageWithFallback(ctx context.Context, imageData []byte) (string, error) {
	var lastErr error

	for _, modelName := range g.fallbackModels {
		if modelName != g.currentModel {
			logger.WithField("model", modelName).Info("Switching to fallback model")
			g.currentModel = modelName
		}

		logger.WithField("model", modelName).Info("Attempting image analysis")
		result, err := g.analyzeWithModel(ctx, modelName, imageData)
		if err == nil {
			logger.WithField("model", modelName).Info("Analysis successful")
			return result, nil
		}

		if !apperrors.IsRateLimitShaped(err) {
			logger.WithError(err).WithField("model", modelName).Error("Model failed with non-rate-limit error")
			return "", err
		}

		logger.WithError(err).WithField("model", modelName).Warn("Model is rate limited, trying next")
		lastErr = err
	}

	logger.Error("All vision models are rate limited")
	return "", apperrors.NewRateLimitError(
		fmt.Sprintf("All models rate limited. Last error: %v", lastErr), lastErr)
}

func (g *GeminiVisionClient) analyzeWithModel(ctx context.Context, modelName string, imageData []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt()),
		{
			InlineData: &genai.Blob{
				MIMEType: "image/jpeg",
				Data:     imageData,
			},
		},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(callCtx, modelName, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewTimeoutError(
				fmt.Sprintf("Vision API call exceeded timeout of %s", g.timeout), err)
		}
		return "", fmt.Errorf("vision API request failed: %w", err)
	}

	return resp.Text(), nil
}
