package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
)

// ResizeOptions controls Resize. A zero Width or Height keeps the aspect ratio.
type ResizeOptions struct {
	Width     int
	Height    int
	Grayscale bool
	// Key is the destination key; its extension picks the output format.
	Key string
}

// Resized is an encoded image ready for upload.
type Resized struct {
	Data        []byte
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// Resize decodes data, scales it and re-encodes it.
func Resize(data []byte, opts ResizeOptions) (Resized, error) {
	if opts.Width <= 0 && opts.Height <= 0 {
		return Resized{}, errors.New("width or height is required")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Resized{}, fmt.Errorf("decode image: %w", err)
	}
	if opts.Grayscale {
		img = imaging.Grayscale(img)
	}
	img = imaging.Resize(img, max(opts.Width, 0), max(opts.Height, 0), imaging.Lanczos)

	out := chooseFormat(opts.Key, format)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, out, imaging.JPEGQuality(85)); err != nil {
		return Resized{}, fmt.Errorf("encode image: %w", err)
	}
	return Resized{
		Data:        buf.Bytes(),
		ContentType: mimeForFormat(out),
		Extension:   formatExtension(out),
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}, nil
}

func chooseFormat(key, decoded string) imaging.Format {
	if f, err := imaging.FormatFromFilename(key); err == nil && key != "" {
		return f
	}
	switch strings.ToLower(decoded) {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	}
	return imaging.JPEG
}

func formatExtension(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "png"
	case imaging.GIF:
		return "gif"
	case imaging.TIFF:
		return "tiff"
	case imaging.BMP:
		return "bmp"
	default:
		return "jpg"
	}
}

func mimeForFormat(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	case imaging.BMP:
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
