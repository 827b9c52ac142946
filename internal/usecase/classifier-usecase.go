package usecase

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
)

type VisionModel interface {
	Load(ctx context.Context) error
	Classify(ctx context.Context, img image.Image) ([]model.Observation, error)
}

type LabelCache interface {
	GetLabel(ctx context.Context, digest string) (string, bool, error)
	SetLabel(ctx context.Context, digest, label string) error
}

type ClassifierUsecaseDeps struct {
	Model VisionModel
	// optional
	Cache LabelCache
}

type ClassifierUsecase struct {
	ClassifierUsecaseDeps
	language local.Language
	timeout  time.Duration
}

func NewClassifierUsecase(deps ClassifierUsecaseDeps, language local.Language, timeout time.Duration) *ClassifierUsecase {
	return &ClassifierUsecase{
		ClassifierUsecaseDeps: deps,
		language:              language,
		timeout:               timeout,
	}
}

// Classify returns the top-ranked label of the image or a typed failure.
// It never returns an error; every failure carries a displayable message.
func (c *ClassifierUsecase) Classify(ctx context.Context, payload model.ImagePayload) model.ClassifyResult {
	logger := observability.LoggerFromContext(ctx)

	if err := c.Model.Load(ctx); err != nil {
		logger.Error("vision model unavailable", "error", err)
		return c.failure(model.ClassifyFailureModelUnavailable, local.ModelUnavailable.Text(c.language), err)
	}

	img, format, err := image.Decode(bytes.NewReader(payload.Data))
	if err != nil {
		logger.Warn("failed to decode image", "error", err, "mime", payload.MIMEType)
		return c.failure(model.ClassifyFailureImageUndecodable, local.ImageUndecodable.Text(c.language), err)
	}

	digest := payload.Digest()
	if c.Cache != nil {
		label, ok, err := c.Cache.GetLabel(ctx, digest)
		if err != nil {
			logger.Warn("failed to read label cache", "error", err)
		} else if ok {
			logger.Debug("label cache hit", "label", label)
			return model.ClassifyResult{Label: label}
		}
	}

	inferCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	started := time.Now()
	observations, err := c.Model.Classify(inferCtx, img)
	if err != nil {
		logger.Error("classification failed", "error", err)
		return c.failure(
			model.ClassifyFailureInferenceFailed,
			local.ClassificationFailedFormat.Format(c.language, err),
			err,
		)
	}
	if len(observations) == 0 || strings.TrimSpace(observations[0].Label) == "" {
		return c.failure(model.ClassifyFailureInferenceFailed, local.NoClassification.Text(c.language), nil)
	}

	top := observations[0]
	logger.Info(
		"image classified",
		"label", top.Label,
		"confidence", top.Confidence,
		"format", format,
		"source", payload.Source,
		"duration", time.Since(started),
	)

	if c.Cache != nil {
		if err = c.Cache.SetLabel(ctx, digest, top.Label); err != nil {
			logger.Warn("failed to write label cache", "error", err)
		}
	}
	return model.ClassifyResult{Label: top.Label}
}

func (c *ClassifierUsecase) failure(kind model.ClassifyFailureKind, message string, err error) model.ClassifyResult {
	return model.ClassifyResult{
		Failure: &model.ClassifyError{
			Kind:    kind,
			Message: message,
			Err:     err,
		},
	}
}
