package media

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"
)

func pngBytes(t *testing.T, w, h int, fill color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifBytes(t *testing.T, frames int) []byte {
	t.Helper()
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.Plan9)
		frame.SetColorIndex(i, i, uint8(10*i+1))
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func sniff(data []byte) Format {
	f, _ := Detect(data)
	return f
}

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{"png", pngBytes(t, 4, 4, color.NRGBA{R: 255, A: 255}), StillRaster},
		{"jpeg", jpegBytes(t), StillRaster},
		{"gif", gifBytes(t, 3), Animated},
		{"text", []byte("definitely not an image, just some words\n"), Unrecognized},
		{"empty", nil, Unrecognized},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), Unrecognized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sniff(tc.data))
			// classification is a pure function of the bytes
			assert.Equal(t, sniff(tc.data), sniff(append([]byte(nil), tc.data...)))
		})
	}
}

func TestDetectReportsMIMEType(t *testing.T) {
	f, mime := Detect([]byte("plain words, nothing else\n"))
	assert.Equal(t, Unrecognized, f)
	assert.Contains(t, mime, "text/plain")

	f, mime = Detect(gifBytes(t, 2))
	assert.Equal(t, Animated, f)
	assert.Equal(t, "image/gif", mime)
}

func TestTranscodeAnimatedPassthrough(t *testing.T) {
	in := gifBytes(t, 3)
	out, err := NewTranscoder(80).Transcode(in, Animated)
	require.NoError(t, err)

	assert.Equal(t, in, out.Data)
	assert.Equal(t, "image/gif", out.ContentType)
	assert.Equal(t, "gif", out.Ext)
}

func TestTranscodeStillToWebP(t *testing.T) {
	in := pngBytes(t, 10, 10, color.NRGBA{R: 200, G: 30, B: 90, A: 255})
	out, err := NewTranscoder(80).Transcode(in, StillRaster)
	require.NoError(t, err)

	assert.Equal(t, "image/webp", out.ContentType)
	assert.Equal(t, "webp", out.Ext)
	assert.Equal(t, StillRaster, sniff(out.Data))

	img, err := xwebp.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), img.Bounds())
}

func TestTranscodeKeepsAlpha(t *testing.T) {
	in := pngBytes(t, 12, 12, color.NRGBA{R: 10, G: 200, B: 10, A: 0})
	out, err := NewTranscoder(75).Transcode(in, StillRaster)
	require.NoError(t, err)

	img, err := xwebp.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	_, _, _, a := img.At(5, 5).RGBA()
	assert.Less(t, a>>8, uint32(16))
}

func TestTranscodeStableLength(t *testing.T) {
	in := pngBytes(t, 32, 32, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	tr := NewTranscoder(60)

	first, err := tr.Transcode(in, StillRaster)
	require.NoError(t, err)
	second, err := tr.Transcode(in, StillRaster)
	require.NoError(t, err)

	assert.Equal(t, len(first.Data), len(second.Data))
}

func TestTranscodeRejects(t *testing.T) {
	tr := NewTranscoder(80)

	_, err := tr.Transcode([]byte("hello"), Unrecognized)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	full := pngBytes(t, 10, 10, color.NRGBA{A: 255})
	truncated := full[:40]
	require.Equal(t, StillRaster, sniff(truncated))
	_, err = tr.Transcode(truncated, StillRaster)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = tr.WithMaxPixels(50).Transcode(full, StillRaster)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestTranscodeRejectsBrokenAnimated(t *testing.T) {
	tr := NewTranscoder(80)

	junk := append([]byte("GIF89a"), 0x01, 0x02)
	require.Equal(t, Animated, sniff(junk))
	_, err := tr.Transcode(junk, Animated)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	// gifBytes frames are 8x8
	_, err = tr.WithMaxPixels(32).Transcode(gifBytes(t, 2), Animated)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
