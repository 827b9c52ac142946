package usecase

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/stretchr/testify/require"
)

func TestGallerySource_Acquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	data := testPNG(t)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	source := NewGallerySource(path)
	payload, err := source.Acquire(testContext(t))
	require.NoError(t, err)
	require.Equal(t, model.ImageSourceGallery, source.Kind())
	require.Equal(t, model.ImageSourceGallery, payload.Source)
	require.Equal(t, "image/png", payload.MIMEType)
	require.Equal(t, data, payload.Data)
}

func TestGallerySource_RejectsNonImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("shopping list"), 0o600))

	_, err := NewGallerySource(path).Acquire(testContext(t))
	require.ErrorIs(t, err, ErrNotAnImage)

	_, err = NewGallerySource(filepath.Join(t.TempDir(), "missing.jpg")).Acquire(testContext(t))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCameraSource_Acquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(path, testJPEG(t), 0o600))

	source := NewCameraSource(config.Camera{Command: "cat", Args: []string{path}})
	payload, err := source.Acquire(testContext(t))
	require.NoError(t, err)
	require.Equal(t, model.ImageSourceCamera, payload.Source)
	require.Equal(t, "image/jpeg", payload.MIMEType)

	_, err = NewCameraSource(config.Camera{}).Acquire(testContext(t))
	require.ErrorIs(t, err, ErrCameraNotConfigured)
}

type fakeFileResolver struct {
	url string
	err error
}

func (f fakeFileResolver) GetFileDirectURL(_ string) (string, error) {
	return f.url, f.err
}

func TestTelegramPhotoSource_Acquire(t *testing.T) {
	data := testJPEG(t)
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/file/photo.jpg" {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write(data)
			},
		),
	)
	defer srv.Close()

	source := NewTelegramPhotoSource(fakeFileResolver{url: srv.URL + "/file/photo.jpg"}, "file-1", srv.Client())
	payload, err := source.Acquire(testContext(t))
	require.NoError(t, err)
	require.Equal(t, model.ImageSourceUpload, payload.Source)
	require.Equal(t, data, payload.Data)

	source = NewTelegramPhotoSource(fakeFileResolver{url: srv.URL + "/file/other.jpg"}, "file-2", srv.Client())
	_, err = source.Acquire(testContext(t))
	require.ErrorContains(t, err, "status 404")

	source = NewTelegramPhotoSource(fakeFileResolver{err: errors.New("bad file id")}, "file-3", nil)
	_, err = source.Acquire(testContext(t))
	require.ErrorContains(t, err, "bad file id")
}
