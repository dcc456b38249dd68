// Package media classifies uploaded image bytes and re-encodes them for storage.
package media

import "github.com/gabriel-vasile/mimetype"

// Format is the encoded format class of a payload, derived from its bytes.
type Format int

const (
	Unrecognized Format = iota
	StillRaster
	Animated
)

func (f Format) String() string {
	switch f {
	case StillRaster:
		return "still"
	case Animated:
		return "animated"
	default:
		return "unrecognized"
	}
}

// container describes how an animated format is stored untouched.
type container struct {
	contentType string
	ext         string
}

// animated formats are passed through byte for byte. APNG is detected as its
// own type (a PNG with an acTL chunk), so plain PNGs stay still rasters.
var animated = map[string]container{
	"image/gif":              {contentType: "image/gif", ext: "gif"},
	"image/vnd.mozilla.apng": {contentType: "image/apng", ext: "png"},
}

var stillTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// Detect classifies data by its magic numbers and also returns the detected
// MIME type. Client-declared content types and file names are never
// consulted.
func Detect(data []byte) (Format, string) {
	if len(data) == 0 {
		return Unrecognized, ""
	}
	mt := mimetype.Detect(data)
	for name := range animated {
		if mt.Is(name) {
			return Animated, mt.String()
		}
	}
	for _, name := range stillTypes {
		if mt.Is(name) {
			return StillRaster, mt.String()
		}
	}
	return Unrecognized, mt.String()
}

func animatedContainer(data []byte) (container, bool) {
	mt := mimetype.Detect(data)
	for name, c := range animated {
		if mt.Is(name) {
			return c, true
		}
	}
	return container{}, false
}
