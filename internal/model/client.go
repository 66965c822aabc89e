package model

import (
	"context"
	"errors"
	"fmt"

	"go-vision-atlas/internal/strategy"

	"google.golang.org/genai"
)

// ImagePayload is one image attachment for a model call
type ImagePayload struct {
	Data     []byte
	MimeType string
}

// Usage contains token accounting for one model call
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// RawResponse is the unparsed model output plus its usage accounting
type RawResponse struct {
	Text  string
	Model string
	Usage Usage
}

// VisionModel abstracts a vision-capable language model endpoint
type VisionModel interface {
	Generate(ctx context.Context, prompt string, payload ImagePayload, detail strategy.DetailLevel) (*RawResponse, error)
}

// GeminiVisionModel implements VisionModel against the Gemini API
type GeminiVisionModel struct {
	client *genai.Client
	model  string
}

// NewGeminiVisionModel creates a Gemini-backed vision model client
func NewGeminiVisionModel(ctx context.Context, apiKey, modelName string) (*GeminiVisionModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiVisionModel{
		client: client,
		model:  modelName,
	}, nil
}

// Generate sends the prompt and image attachment to the model and returns
// the raw text response
func (m *GeminiVisionModel) Generate(ctx context.Context, prompt string, payload ImagePayload, detail strategy.DetailLevel) (*RawResponse, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(payload.Data, payload.MimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		MediaResolution: mediaResolution(detail),
	}

	result, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}

	resp := &RawResponse{
		Text:  result.Text(),
		Model: m.model,
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int64(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

// Name returns the configured model identifier
func (m *GeminiVisionModel) Name() string {
	return m.model
}

func mediaResolution(detail strategy.DetailLevel) genai.MediaResolution {
	if detail == strategy.DetailLow {
		return genai.MediaResolutionLow
	}
	return genai.MediaResolutionHigh
}

// RejectionError marks a request the endpoint rejected as malformed.
// Callers must not retry it.
type RejectionError struct {
	Cause error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("model rejected request: %v", e.Cause)
}

func (e *RejectionError) Unwrap() error {
	return e.Cause
}

// classifyError separates permanent client-side rejections from transient
// endpoint failures. 429 stays retryable.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
			return &RejectionError{Cause: err}
		}
	}
	return err
}
