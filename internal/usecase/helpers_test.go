package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func testPayload(t *testing.T) model.ImagePayload {
	return model.ImagePayload{Data: testPNG(t), MIMEType: "image/png", Source: model.ImageSourceGallery}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// fakeGenerator answers "answer: <prompt>". Prompts listed in gates block
// until their channel is closed.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	images  []*model.ImagePayload
	gates   map[string]chan struct{}
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{gates: make(map[string]chan struct{})}
}

func (f *fakeGenerator) gate(prompt string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[prompt] = gate
	return gate
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerationRequest) model.GenerationResult {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.images = append(f.images, req.Image)
	gate := f.gates[req.Prompt]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return model.GenerationResult{Text: "answer: " + req.Prompt}
}

func (f *fakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// fakeClassifier returns labels in submission order. An entry in gates
// blocks the matching call.
type fakeClassifier struct {
	mu      sync.Mutex
	calls   int
	results []model.ClassifyResult
	gates   map[int]chan struct{}
}

func newFakeClassifier(results ...model.ClassifyResult) *fakeClassifier {
	return &fakeClassifier{results: results, gates: make(map[int]chan struct{})}
}

func (f *fakeClassifier) gate(call int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[call] = gate
	return gate
}

func (f *fakeClassifier) Classify(_ context.Context, _ model.ImagePayload) model.ClassifyResult {
	f.mu.Lock()
	call := f.calls
	f.calls++
	gate := f.gates[call]
	result := f.results[call%len(f.results)]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return result
}

type fakeVisionModel struct {
	loadErr      error
	observations []model.Observation
	classifyErr  error
	calls        int
}

func (f *fakeVisionModel) Load(_ context.Context) error {
	return f.loadErr
}

func (f *fakeVisionModel) Classify(_ context.Context, _ image.Image) ([]model.Observation, error) {
	f.calls++
	return f.observations, f.classifyErr
}

type fakeBackend struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []BackendRequest
}

func (f *fakeBackend) Generate(_ context.Context, req BackendRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.text, f.err
}
