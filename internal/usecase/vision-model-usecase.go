package usecase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
)

const imageJPEGQuality = 80

var (
	ErrModelFileMissing    = errors.New("model file missing")
	ErrModelCommandMissing = errors.New("model command missing")
)

// ExecVisionModel runs a local classifier binary. The binary receives
// --model, --image and --top-k and prints "<confidence> <label>" lines,
// best match first.
type ExecVisionModel struct {
	cfg config.Classifier

	// only one inference at a time, the model is too heavy to share
	mu sync.Mutex
}

func NewExecVisionModel(cfg config.Classifier) *ExecVisionModel {
	return &ExecVisionModel{cfg: cfg}
}

func (v *ExecVisionModel) Load(_ context.Context) error {
	if _, err := os.Stat(v.cfg.ModelPath); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelFileMissing, v.cfg.ModelPath, err)
	}
	if _, err := exec.LookPath(v.cfg.Command); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelCommandMissing, v.cfg.Command, err)
	}
	return nil
}

func (v *ExecVisionModel) Classify(ctx context.Context, img image.Image) ([]model.Observation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	imagePath, err := writeTempJPEG(img)
	if err != nil {
		return nil, err
	}
	defer os.Remove(imagePath)

	cmd := exec.CommandContext(
		ctx,
		v.cfg.Command,
		"--model", v.cfg.ModelPath,
		"--image", imagePath,
		"--top-k", strconv.Itoa(v.cfg.TopK),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err = cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("failed to run classifier: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("failed to run classifier: %w", err)
	}
	return parseObservations(stdout.String())
}

func writeTempJPEG(img image.Image) (string, error) {
	file, err := os.CreateTemp("", "vision-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer file.Close()
	if err = jpeg.Encode(file, img, &jpeg.Options{Quality: imageJPEGQuality}); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to encode temp image: %w", err)
	}
	return file.Name(), nil
}

// parseObservations keeps the order the model printed. Blank lines are
// skipped, a label may contain spaces.
func parseObservations(output string) ([]model.Observation, error) {
	observations := make([]model.Observation, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		confidenceStr, label, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed classifier line %q", line)
		}
		confidence, err := strconv.ParseFloat(confidenceStr, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed confidence in line %q: %w", line, err)
		}
		observations = append(
			observations, model.Observation{
				Label:      strings.TrimSpace(label),
				Confidence: confidence,
			},
		)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classifier output: %w", err)
	}
	return observations, nil
}
