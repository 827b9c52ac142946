package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	openai_tools "github.com/iamvkosarev/vision-chat-bot/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

// OpenAIUsecase talks to any OpenAI-compatible chat completion endpoint.
type OpenAIUsecase struct {
	cfg    config.Generation
	client *openai.Client
}

func NewOpenAIUsecase(cfg config.Generation, apiKey string) *OpenAIUsecase {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIUsecase{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (o *OpenAIUsecase) Generate(ctx context.Context, req BackendRequest) (string, error) {
	message := buildOpenAIMessage(req)
	messages := []openai.ChatCompletionMessage{message}

	logger := observability.LoggerFromContext(ctx)
	if logger.Enabled(ctx, slog.LevelDebug) {
		tokenCount, err := openai_tools.CountToken(messages, o.cfg.Model)
		if err != nil {
			logger.Debug("count token error", "error", err)
		} else {
			logger.Debug("prompt tokens", "count", tokenCount, "model", o.cfg.Model)
		}
	}

	resp, err := o.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:     o.cfg.Model,
			MaxTokens: req.MaxOutputTokens,
			N:         1,
			Messages:  messages,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", model.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func buildOpenAIMessage(req BackendRequest) openai.ChatCompletionMessage {
	if req.ImageJPEG == nil {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + imageMIMEJPEG + ";base64," + base64.StdEncoding.EncodeToString(req.ImageJPEG),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
}
