// ABOUTME: Image format sniffing, decoding and PNG re-encoding
// ABOUTME: Normalises variation sources to square PNGs and builds gallery thumbnails

package imageconv

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

// ErrUnsupported is returned for bytes that are not a PNG, JPEG, GIF or WEBP image.
var ErrUnsupported = errors.New("unsupported image format")

// Format names returned by Sniff.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatWEBP = "webp"
)

// Sniff returns the image format of data from its magic bytes, or "" if unknown.
func Sniff(data []byte) string {
	switch {
	case isPNG(data):
		return FormatPNG
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return FormatJPEG
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return FormatGIF
	case isWEBP(data):
		return FormatWEBP
	default:
		return ""
	}
}

// Decode decodes any supported format.
func Decode(data []byte) (image.Image, error) {
	if Sniff(data) == "" {
		return nil, ErrUnsupported
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("decoding image: empty bounds")
	}
	return img, nil
}

// Validate reports whether data decodes as a supported image.
func Validate(data []byte) error {
	_, err := Decode(data)
	return err
}

// ToPNG re-encodes data as PNG.
func ToPNG(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

// SquarePNG center-crops data to a square, scales it down so a side is at
// most maxSide (0 means no limit) and encodes it as PNG.
func SquarePNG(data []byte, maxSide int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2

	square := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(square, square.Bounds(), img, image.Pt(x0, y0), draw.Src)

	var out image.Image = square
	if maxSide > 0 && side > maxSide {
		out = resizeNearest(square, maxSide, maxSide)
	}
	return encodePNG(out)
}

// Thumbnail scales data so its longest side is at most maxSide, keeping the
// aspect ratio, and returns the PNG bytes with the resulting dimensions.
// Images already within maxSide are only re-encoded.
func Thumbnail(data []byte, maxSide int) ([]byte, int, int, error) {
	if maxSide <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid thumbnail size %d", maxSide)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxSide || h > maxSide {
		if w >= h {
			h = max(1, h*maxSide/w)
			w = maxSide
		} else {
			w = max(1, w*maxSide/h)
			h = maxSide
		}
		img = resizeNearest(img, w, h)
	}

	out, err := encodePNG(img)
	if err != nil {
		return nil, 0, 0, err
	}
	return out, w, h, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return out.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	if isWEBP(data) {
		return webp.Decode(bytes.NewReader(data), &decoder.Options{})
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func isPNG(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
}

func resizeNearest(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	b := src.Bounds()
	srcW := b.Dx()
	srcH := b.Dy()
	if srcW <= 0 || srcH <= 0 {
		return dst
	}

	for y := 0; y < height; y++ {
		srcY := b.Min.Y + (y*srcH)/height
		for x := 0; x < width; x++ {
			srcX := b.Min.X + (x*srcW)/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
