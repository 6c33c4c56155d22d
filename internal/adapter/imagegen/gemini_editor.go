// Package imagegen edits product images with a Gemini image model.
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/rl1809/storeflow/internal/logger"
)

const DefaultModel = "gemini-2.5-flash-image"

var ErrNoImageInResponse = errors.New("model returned no image")

type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the public one.
	BaseURL string
}

// GeminiEditor sends one image plus an instruction per call and returns the
// first inline image of the reply.
type GeminiEditor struct {
	client *genai.Client
	model  string
}

func NewGeminiEditor(ctx context.Context, cfg GeminiConfig) (*GeminiEditor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger.Logger.Info().Str("model", cfg.Model).Msg("image editor initialized")
	return &GeminiEditor{client: client, model: cfg.Model}, nil
}

func (g *GeminiEditor) EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, ErrNoImageInResponse
}
