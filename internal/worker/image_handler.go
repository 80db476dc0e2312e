package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uho/internal/config"
	"uho/internal/models"
	"uho/internal/upload"
)

// ActionImageResize downloads an image, scales it and stores the result.
const ActionImageResize = "image:resize"

type imageResizePayload struct {
	SourceURL   string `json:"source_url"`
	OutputKey   string `json:"output_key"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Grayscale   bool   `json:"grayscale"`
	Destination string `json:"destination"`
}

// ImageHandler processes image:resize jobs.
type ImageHandler struct {
	httpClient *http.Client
	uploads    *upload.Router
	width      int
	height     int
	maxBytes   int64
	logger     *zap.Logger
}

// NewImageHandler builds the handler from the image settings in cfg.
func NewImageHandler(cfg config.Config, uploads *upload.Router, logger *zap.Logger) *ImageHandler {
	timeout := cfg.ImageTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.ImageMaxBytes
	if maxBytes == 0 {
		maxBytes = 25 * 1024 * 1024
	}
	width, height := cfg.ImageWidth, cfg.ImageHeight
	if width == 0 && height == 0 {
		width = 320
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageHandler{
		httpClient: &http.Client{Timeout: timeout},
		uploads:    uploads,
		width:      width,
		height:     height,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Handle downloads, transforms, and uploads a single image.
func (h *ImageHandler) Handle(ctx context.Context, job models.Job) error {
	var p imageResizePayload
	if err := json.Unmarshal([]byte(job.Action), &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.SourceURL == "" {
		return errors.New("source_url is required")
	}
	if p.Width == 0 && p.Height == 0 {
		p.Width, p.Height = h.width, h.height
	}

	data, err := h.download(ctx, p.SourceURL)
	if err != nil {
		return err
	}

	out, err := upload.Resize(data, upload.ResizeOptions{
		Width:     p.Width,
		Height:    p.Height,
		Grayscale: p.Grayscale,
		Key:       p.OutputKey,
	})
	if err != nil {
		return err
	}

	key := p.OutputKey
	if key == "" {
		key = fmt.Sprintf("images/%d.%s", job.ID, out.Extension)
	}

	uploader, err := h.uploads.Pick(p.Destination)
	if err != nil {
		return err
	}
	location, err := uploader.Upload(ctx, key, out.Data, out.ContentType)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	h.logger.Info("image stored",
		zap.Int64("job_id", job.ID),
		zap.String("location", location),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
	)
	return nil
}

func (h *ImageHandler) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > h.maxBytes {
		return nil, fmt.Errorf("image too large (>%d bytes)", h.maxBytes)
	}
	return body, nil
}
