package usecase

import (
	"context"
	"fmt"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"google.golang.org/genai"
)

// GeminiUsecase calls the Gemini API directly with an API key.
type GeminiUsecase struct {
	cfg    config.Generation
	client *genai.Client
}

func NewGeminiUsecase(ctx context.Context, cfg config.Generation, apiKey string) (*GeminiUsecase, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiUsecase{
		cfg:    cfg,
		client: client,
	}, nil
}

func (g *GeminiUsecase) Generate(ctx context.Context, req BackendRequest) (string, error) {
	res, err := g.client.Models.GenerateContent(
		ctx,
		g.cfg.Model,
		buildGeminiContents(req),
		&genai.GenerateContentConfig{
			MaxOutputTokens: int32(req.MaxOutputTokens),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", model.ErrEmptyResponse
	}
	return text, nil
}

func buildGeminiContents(req BackendRequest) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.ImageJPEG != nil {
		parts = append(parts, genai.NewPartFromBytes(req.ImageJPEG, imageMIMEJPEG))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
