package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
)

const maxImageSize = 20 << 20

var (
	ErrNotAnImage          = errors.New("not an image")
	ErrImageTooLarge       = errors.New("image too large")
	ErrCameraNotConfigured = errors.New("camera command is not configured")
)

// ImageSource yields a single image. Acquisition errors never reach the
// session state.
type ImageSource interface {
	Kind() model.ImageSourceKind
	Acquire(ctx context.Context) (model.ImagePayload, error)
}

// GallerySource reads an image file picked by the user.
type GallerySource struct {
	Path string
}

func NewGallerySource(path string) *GallerySource {
	return &GallerySource{Path: path}
}

func (g *GallerySource) Kind() model.ImageSourceKind {
	return model.ImageSourceGallery
}

func (g *GallerySource) Acquire(_ context.Context) (model.ImagePayload, error) {
	file, err := os.Open(g.Path)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to open image %s: %w", g.Path, err)
	}
	defer file.Close()
	data, err := readImage(file)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to read image %s: %w", g.Path, err)
	}
	return newImagePayload(data, g.Kind())
}

// CameraSource runs a capture command that writes a single frame to stdout.
type CameraSource struct {
	cfg config.Camera
}

func NewCameraSource(cfg config.Camera) *CameraSource {
	return &CameraSource{cfg: cfg}
}

func (c *CameraSource) Kind() model.ImageSourceKind {
	return model.ImageSourceCamera
}

func (c *CameraSource) Acquire(ctx context.Context) (model.ImagePayload, error) {
	if c.cfg.Command == "" {
		return model.ImagePayload{}, ErrCameraNotConfigured
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return model.ImagePayload{}, fmt.Errorf(
			"failed to capture image: %w: %s", err, strings.TrimSpace(stderr.String()),
		)
	}
	data, err := readImage(&stdout)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to read captured image: %w", err)
	}
	return newImagePayload(data, c.Kind())
}

type FileURLResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramPhotoSource downloads a photo uploaded to a chat.
type TelegramPhotoSource struct {
	files      FileURLResolver
	fileID     string
	httpClient *http.Client
}

func NewTelegramPhotoSource(files FileURLResolver, fileID string, httpClient *http.Client) *TelegramPhotoSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TelegramPhotoSource{
		files:      files,
		fileID:     fileID,
		httpClient: httpClient,
	}
}

func (t *TelegramPhotoSource) Kind() model.ImageSourceKind {
	return model.ImageSourceUpload
}

func (t *TelegramPhotoSource) Acquire(ctx context.Context) (model.ImagePayload, error) {
	fileURL, err := t.files.GetFileDirectURL(t.fileID)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to get file url %s: %w", t.fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to create file request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to download file %s: %w", t.fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.ImagePayload{}, fmt.Errorf("failed to download file %s: status %d", t.fileID, resp.StatusCode)
	}
	data, err := readImage(resp.Body)
	if err != nil {
		return model.ImagePayload{}, fmt.Errorf("failed to read file %s: %w", t.fileID, err)
	}
	return newImagePayload(data, t.Kind())
}

func readImage(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageSize {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

func newImagePayload(data []byte, source model.ImageSourceKind) (model.ImagePayload, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return model.ImagePayload{}, fmt.Errorf("%w: %s", ErrNotAnImage, mimeType)
	}
	return model.ImagePayload{
		Data:     data,
		MIMEType: mimeType,
		Source:   source,
	}, nil
}
