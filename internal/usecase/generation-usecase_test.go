package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
	"github.com/stretchr/testify/require"
)

func newTestGeneration(backend GenerationBackend, inline bool) *GenerationUsecase {
	return NewGenerationUsecase(
		GenerationUsecaseDeps{Backend: backend},
		config.Generation{MaxOutputTokens: 900, InlineImagePrompt: inline},
		local.Eng,
	)
}

func TestGenerate_StripsEmphasis(t *testing.T) {
	backend := &fakeBackend{text: "**Golden retriever** is a **dog** breed."}
	result := newTestGeneration(backend, false).Generate(context.Background(), GenerationRequest{Prompt: "What is a dog?"})

	require.Nil(t, result.Failure)
	require.Equal(t, "Golden retriever is a dog breed.", result.Text)
	require.Len(t, backend.requests, 1)
	require.Equal(t, 900, backend.requests[0].MaxOutputTokens)
	require.Nil(t, backend.requests[0].ImageJPEG)
}

func TestStripEmphasis_Idempotent(t *testing.T) {
	for _, text := range []string{"", "plain", "**a**", "***b***", "a****b", "* * **", "**"} {
		once := StripEmphasis(text)
		require.NotContains(t, once, "**")
		require.Equal(t, once, StripEmphasis(once), text)
	}
}

func TestGenerate_TransportFailureBecomesText(t *testing.T) {
	backend := &fakeBackend{err: errors.New("quota exceeded")}
	result := newTestGeneration(backend, false).Generate(context.Background(), GenerationRequest{Prompt: "hi"})

	require.NotNil(t, result.Failure)
	require.Equal(t, model.GenerationFailureTransport, result.Failure.Kind)
	require.ErrorIs(t, result.Failure, model.ErrGenerationFailed)
	require.True(t, strings.HasPrefix(result.Text, "Failed to get response: "))
	require.Contains(t, result.Text, "quota exceeded")
	require.Len(t, backend.requests, 1)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	for _, backend := range []*fakeBackend{
		{err: model.ErrEmptyResponse},
		{text: "   "},
	} {
		result := newTestGeneration(backend, false).Generate(context.Background(), GenerationRequest{Prompt: "hi"})
		require.Equal(t, "No response text available.", result.Text)
		require.Equal(t, model.GenerationFailureEmptyResponse, result.Failure.Kind)
		require.Len(t, backend.requests, 1)
	}
}

func TestGenerate_EmptyPromptSkipsBackend(t *testing.T) {
	backend := &fakeBackend{text: "x"}
	result := newTestGeneration(backend, false).Generate(context.Background(), GenerationRequest{Prompt: "  \n"})

	require.Equal(t, model.GenerationFailureEmptyPrompt, result.Failure.Kind)
	require.Empty(t, backend.requests)
}

func TestGenerate_StructuredImage(t *testing.T) {
	backend := &fakeBackend{text: "a gradient"}
	payload := testPayload(t)
	result := newTestGeneration(backend, false).Generate(
		context.Background(), GenerationRequest{Prompt: "What is this?", Image: &payload},
	)

	require.Nil(t, result.Failure)
	require.Len(t, backend.requests, 1)
	require.Equal(t, "What is this?", backend.requests[0].Prompt)
	_, err := jpeg.Decode(bytes.NewReader(backend.requests[0].ImageJPEG))
	require.NoError(t, err)
}

func TestGenerate_InlineImagePrompt(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	payload := testPayload(t)
	newTestGeneration(backend, true).Generate(
		context.Background(), GenerationRequest{Prompt: "What is this?", Image: &payload},
	)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	require.Nil(t, req.ImageJPEG)
	prompt, encoded, ok := strings.Cut(req.Prompt, "\n\nImage: ")
	require.True(t, ok)
	require.Equal(t, "What is this?", prompt)
	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func TestGenerate_UnprocessableImage(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	payload := model.ImagePayload{Data: []byte("not an image")}
	result := newTestGeneration(backend, false).Generate(
		context.Background(), GenerationRequest{Prompt: "What is this?", Image: &payload},
	)

	require.Equal(t, "Failed to process image", result.Text)
	require.ErrorIs(t, result.Failure, model.ErrImageUnprocessable)
	require.Empty(t, backend.requests)
}
