package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uho/internal/config"
	"uho/internal/models"
	"uho/internal/upload"
)

func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	// Paint red so we can verify grayscale output has equal channels.
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageHandler_LocalResizeAndGrayscale(t *testing.T) {
	data := redPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	cfg := config.Config{
		ImageTimeout:  2 * time.Second,
		ImageMaxBytes: 2 * 1024 * 1024,
		ImageWidth:    5,
	}
	handler := NewImageHandler(cfg, upload.NewRouter(upload.NewLocal(tempDir), nil), nil)

	action, err := Action(ActionImageResize, map[string]any{
		"source_url": srv.URL,
		"grayscale":  true,
		"output_key": "thumbs/test.png",
	})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), models.Job{ID: 1, Action: action}))

	out, err := os.ReadFile(filepath.Join(tempDir, "thumbs", "test.png"))
	require.NoError(t, err, "output not written")

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.True(t, r == g && g == b, "expected grayscale pixel, got r=%d g=%d b=%d", r, g, b)
}

func TestImageHandler_DefaultKey(t *testing.T) {
	data := redPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	handler := NewImageHandler(config.Config{}, upload.NewRouter(upload.NewLocal(tempDir), nil), nil)

	action, err := Action(ActionImageResize, map[string]any{"source_url": srv.URL, "width": 4})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), models.Job{ID: 42, Action: action}))

	_, err = os.Stat(filepath.Join(tempDir, "images", "42.png"))
	assert.NoError(t, err)
}

func TestImageHandler_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	handler := NewImageHandler(config.Config{}, upload.NewRouter(upload.NewLocal(t.TempDir()), nil), nil)
	ctx := context.Background()

	action, _ := Action(ActionImageResize, map[string]any{})
	assert.Error(t, handler.Handle(ctx, models.Job{Action: action}))

	action, _ = Action(ActionImageResize, map[string]any{"source_url": srv.URL})
	assert.Error(t, handler.Handle(ctx, models.Job{Action: action}))

	action, _ = Action(ActionImageResize, map[string]any{"source_url": srv.URL, "destination": "s3"})
	assert.Error(t, handler.Handle(ctx, models.Job{Action: action}))
}
