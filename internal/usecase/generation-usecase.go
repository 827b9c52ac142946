package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
)

const (
	emphasisMarker     = "**"
	inlineImageDivider = "\n\nImage: "
	imageMIMEJPEG      = "image/jpeg"
)

// BackendRequest is a single generation call. ImageJPEG is nil for text-only
// prompts.
type BackendRequest struct {
	Prompt          string
	ImageJPEG       []byte
	MaxOutputTokens int
}

// GenerationBackend sends exactly one request per call. A successful call
// without text returns model.ErrEmptyResponse.
type GenerationBackend interface {
	Generate(ctx context.Context, req BackendRequest) (string, error)
}

type GenerationRequest struct {
	Prompt string
	Image  *model.ImagePayload
}

type GenerationUsecaseDeps struct {
	Backend GenerationBackend
}

type GenerationUsecase struct {
	GenerationUsecaseDeps
	cfg      config.Generation
	language local.Language
}

func NewGenerationUsecase(deps GenerationUsecaseDeps, cfg config.Generation, language local.Language) *GenerationUsecase {
	return &GenerationUsecase{
		GenerationUsecaseDeps: deps,
		cfg:                   cfg,
		language:              language,
	}
}

// Generate never fails: transport problems, empty answers and bad images are
// turned into text that can be shown as an assistant message.
func (g *GenerationUsecase) Generate(ctx context.Context, req GenerationRequest) model.GenerationResult {
	logger := observability.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Prompt) == "" {
		return model.GenerationResult{
			Text:    local.EmptyPrompt.Text(g.language),
			Failure: &model.GenerationError{Kind: model.GenerationFailureEmptyPrompt, Err: model.ErrEmptyPrompt},
		}
	}

	backendReq := BackendRequest{
		Prompt:          req.Prompt,
		MaxOutputTokens: g.cfg.MaxOutputTokens,
	}
	if req.Image != nil {
		jpegData, err := encodeImageJPEG(req.Image.Data)
		if err != nil {
			logger.Warn("failed to prepare image for generation", "error", err)
			return model.GenerationResult{
				Text: local.ImageProcessingFailed.Text(g.language),
				Failure: &model.GenerationError{
					Kind: model.GenerationFailureImageUnprocessable,
					Err:  fmt.Errorf("%w: %w", model.ErrImageUnprocessable, err),
				},
			}
		}
		if g.cfg.InlineImagePrompt {
			backendReq.Prompt = InlineImagePrompt(req.Prompt, jpegData)
		} else {
			backendReq.ImageJPEG = jpegData
		}
	}

	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}

	started := time.Now()
	text, err := g.Backend.Generate(ctx, backendReq)
	if err != nil && !errors.Is(err, model.ErrEmptyResponse) {
		logger.Error("generation failed", "error", err, "duration", time.Since(started))
		return model.GenerationResult{
			Text: local.GenerationFailedFormat.Format(g.language, err),
			Failure: &model.GenerationError{
				Kind: model.GenerationFailureTransport,
				Err:  fmt.Errorf("%w: %w", model.ErrGenerationFailed, err),
			},
		}
	}
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Warn("generation returned no text", "duration", time.Since(started))
		return model.GenerationResult{
			Text:    local.NoResponseText.Text(g.language),
			Failure: &model.GenerationError{Kind: model.GenerationFailureEmptyResponse, Err: model.ErrEmptyResponse},
		}
	}

	logger.Info("generation finished", "duration", time.Since(started), "image", req.Image != nil)
	return model.GenerationResult{Text: StripEmphasis(text)}
}

// StripEmphasis removes every "**" from text.
func StripEmphasis(text string) string {
	return strings.ReplaceAll(text, emphasisMarker, "")
}

// InlineImagePrompt embeds a base64 image into the prompt text for backends
// that only accept text.
func InlineImagePrompt(prompt string, jpegData []byte) string {
	return prompt + inlineImageDivider + base64.StdEncoding.EncodeToString(jpegData)
}

func encodeImageJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: imageJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
