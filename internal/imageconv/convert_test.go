package imageconv

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solid returns a w x h image whose left half is red and right half is blue.
func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodedBounds(t *testing.T, data []byte) image.Rectangle {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds()
}

func TestSniff(t *testing.T) {
	var jpg, gf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(4, 4), nil))
	require.NoError(t, gif.Encode(&gf, solid(4, 4), nil))

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngBytes(t, solid(2, 2)), FormatPNG},
		{"jpeg", jpg.Bytes(), FormatJPEG},
		{"gif", gf.Bytes(), FormatGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWEBP},
		{"text", []byte("hello world"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.data))
		})
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecode_TruncatedPNG(t *testing.T) {
	data := pngBytes(t, solid(8, 8))
	_, err := Decode(data[:20])
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestDecode_WEBP(t *testing.T) {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, 85)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, solid(16, 8), opts))

	assert.Equal(t, FormatWEBP, Sniff(buf.Bytes()))
	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestSquarePNG_CropsCenter(t *testing.T) {
	out, err := SquarePNG(pngBytes(t, solid(40, 20)), 0)
	require.NoError(t, err)

	b := decodedBounds(t, out)
	assert.Equal(t, 20, b.Dx())
	assert.Equal(t, 20, b.Dy())

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 10).RGBA()
	_, _, bl, _ := img.At(19, 10).RGBA()
	assert.NotZero(t, r, "left edge of the crop comes from the red half")
	assert.NotZero(t, bl, "right edge of the crop comes from the blue half")
}

func TestSquarePNG_DownscalesToMaxSide(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(300, 200), nil))

	out, err := SquarePNG(jpg.Bytes(), 64)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, Sniff(out))

	b := decodedBounds(t, out)
	assert.Equal(t, 64, b.Dx())
	assert.Equal(t, 64, b.Dy())
}

func TestThumbnail(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 300, 150, 128, 128, 64},
		{"portrait", 100, 400, 100, 25, 100},
		{"already small", 50, 30, 128, 50, 30},
		{"extreme aspect", 1000, 2, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, w, h, err := Thumbnail(pngBytes(t, solid(tt.w, tt.h)), tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)

			b := decodedBounds(t, out)
			assert.Equal(t, tt.wantW, b.Dx())
			assert.Equal(t, tt.wantH, b.Dy())
		})
	}
}

func TestThumbnail_InvalidSize(t *testing.T) {
	_, _, _, err := Thumbnail(pngBytes(t, solid(4, 4)), 0)
	assert.Error(t, err)
}

func TestToPNG_FromGIF(t *testing.T) {
	var gf bytes.Buffer
	require.NoError(t, gif.Encode(&gf, solid(10, 6), nil))

	out, err := ToPNG(gf.Bytes())
	require.NoError(t, err)
	b := decodedBounds(t, out)
	assert.Equal(t, 10, b.Dx())
	assert.Equal(t, 6, b.Dy())
}
