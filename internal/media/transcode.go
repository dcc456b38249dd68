package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the webp decoder for image.DecodeConfig
)

// ErrInvalidFormat is returned for payloads that are not a supported image or
// that fail to decode despite a plausible header.
var ErrInvalidFormat = errors.New("invalid media format")

// DefaultMaxPixels bounds decoded raster size (width*height).
const DefaultMaxPixels = 50_000_000

// Encoded is the byte payload that will be placed in the object store.
type Encoded struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Transcoder re-encodes still rasters as lossy WebP and passes animated
// formats through untouched. It holds no mutable state and is safe for
// concurrent use.
type Transcoder struct {
	quality   float32
	maxPixels int
}

// NewTranscoder returns a Transcoder encoding at quality, which the caller
// has already clamped to [0, 100].
func NewTranscoder(quality float32) *Transcoder {
	return &Transcoder{quality: quality, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels overrides the decoded pixel budget.
func (t *Transcoder) WithMaxPixels(n int) *Transcoder {
	cp := *t
	cp.maxPixels = n
	return &cp
}

// Transcode converts data according to its sniffed format.
func (t *Transcoder) Transcode(data []byte, f Format) (*Encoded, error) {
	switch f {
	case Animated:
		c, ok := animatedContainer(data)
		if !ok {
			return nil, fmt.Errorf("%w: animated payload changed type", ErrInvalidFormat)
		}
		// Only the header is read; the stored bytes are the uploaded bytes.
		if err := t.checkHeader(data); err != nil {
			return nil, err
		}
		return &Encoded{Data: data, ContentType: c.contentType, Ext: c.ext}, nil
	case StillRaster:
		return t.encodeStill(data)
	default:
		return nil, ErrInvalidFormat
	}
}

// checkHeader parses the image header and enforces the pixel budget.
func (t *Transcoder) checkHeader(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: read header: %w", ErrInvalidFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > t.maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds pixel budget", ErrInvalidFormat, cfg.Width, cfg.Height)
	}
	return nil
}

func (t *Transcoder) encodeStill(data []byte) (*Encoded, error) {
	if err := t.checkHeader(data); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidFormat, err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, imaging.Clone(img), &webp.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("%w: encode webp: %w", ErrInvalidFormat, err)
	}
	return &Encoded{Data: buf.Bytes(), ContentType: "image/webp", Ext: "webp"}, nil
}
