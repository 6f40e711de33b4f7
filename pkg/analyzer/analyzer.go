// Package analyzer decodes and normalizes uploaded photographs into
// pixel buffers the rest of the pipeline can work on.
package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/evanoberholster/imagemeta"
	_ "golang.org/x/image/webp"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// ErrImageUnreadable is returned when an input cannot be decoded as an
// image. Callers exclude the input and continue with the rest.
var ErrImageUnreadable = errors.New("image unreadable")

// Config holds decode constraints.
type Config struct {
	// MinEdge is the smallest acceptable width or height in pixels.
	MinEdge int
	// MaxEdge caps the longest side; larger images are downscaled to
	// keep detection cost bounded. Zero disables the cap.
	MaxEdge int
}

// DefaultConfig returns the decode constraints used by the server.
func DefaultConfig() Config {
	return Config{MinEdge: 64, MaxEdge: 4096}
}

// Analyzer turns raw upload bytes into normalized source images.
type Analyzer struct {
	config Config
}

// New creates an Analyzer with default configuration.
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates an Analyzer with custom constraints.
func NewWithConfig(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Decode parses raw bytes into an orientation-corrected NRGBA buffer.
// The returned SourceImage carries the caller-provided id and name.
func (a *Analyzer) Decode(id int, name string, data []byte) (*types.SourceImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", ErrImageUnreadable, name)
	}

	img, err := decodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, name, err)
	}

	img = applyOrientation(img, readOrientation(data))

	b := img.Bounds()
	if b.Dx() < a.config.MinEdge || b.Dy() < a.config.MinEdge {
		return nil, fmt.Errorf("%w: %s: %dx%d below minimum edge %d",
			ErrImageUnreadable, name, b.Dx(), b.Dy(), a.config.MinEdge)
	}

	nrgba := imaging.Clone(img)
	if a.config.MaxEdge > 0 {
		w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
		if w > a.config.MaxEdge || h > a.config.MaxEdge {
			if w >= h {
				nrgba = imaging.Resize(nrgba, a.config.MaxEdge, 0, imaging.Lanczos)
			} else {
				nrgba = imaging.Resize(nrgba, 0, a.config.MaxEdge, imaging.Lanczos)
			}
		}
	}

	return &types.SourceImage{
		ID:     id,
		Name:   name,
		Pixels: nrgba,
		Width:  nrgba.Bounds().Dx(),
		Height: nrgba.Bounds().Dy(),
	}, nil
}

// decodeBytes tries the registered stdlib/x-image decoders first and
// falls back to an explicit WebP decode, which accepts some encoder
// variants the x/image decoder rejects.
func decodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unknown or unsupported image format")
}

// readOrientation extracts the EXIF orientation tag (1..8). Missing or
// unreadable metadata maps to 1, the identity orientation. PNG and most
// WebP uploads have no EXIF block; that is not an error.
func readOrientation(data []byte) int {
	ex, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	o := int(ex.Orientation)
	if o < 1 || o > 8 {
		return 1
	}
	return o
}

// applyOrientation maps the EXIF orientation tag to the imaging
// transform that restores display orientation. imaging rotations are
// counter-clockwise.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
