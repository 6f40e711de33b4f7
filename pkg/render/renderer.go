// Package render produces the final 512x512 captioned PNG stickers.
// Everything here is deterministic: identical inputs reproduce
// byte-identical output.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// ErrRenderFailure covers unrecoverable renderer errors. Upstream
// invariants make it unreachable in practice; if it fires, the run is
// aborted as an internal error.
var ErrRenderFailure = errors.New("render failure")

// Config holds caption layout parameters.
type Config struct {
	MarginX    int // horizontal text margin in pixels
	BottomPad  int // gap between text block and the bottom edge
	MaxLines   int
	MaxFontPt  float64
	MinFontPt  float64
	LineGap    float64 // extra pixels between lines
	OutlinePx  float64 // caption outline thickness
	BandAlpha  float64 // darkness of the strip behind the caption
}

// DefaultConfig returns the sticker caption layout.
func DefaultConfig() Config {
	return Config{
		MarginX:   26,
		BottomPad: 14,
		MaxLines:  3,
		MaxFontPt: 64,
		MinFontPt: 24,
		LineGap:   6,
		OutlinePx: 3,
		BandAlpha: 0.47,
	}
}

var captionFont *opentype.Font

func init() {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		panic(fmt.Sprintf("render: parse embedded font: %v", err))
	}
	captionFont = f
}

// Renderer crops, scales and captions stickers.
type Renderer struct {
	config Config
}

// New creates a Renderer with default configuration.
func New() *Renderer {
	return &Renderer{config: DefaultConfig()}
}

// NewWithConfig creates a Renderer with custom caption layout.
func NewWithConfig(config Config) *Renderer {
	return &Renderer{config: config}
}

// Crop512 resolves a normalized box against the source, clamps it,
// squares it and resamples to exactly 512x512 with Lanczos.
func (r *Renderer) Crop512(src *types.SourceImage, box types.Box) (*image.NRGBA, error) {
	if src == nil || src.Pixels == nil {
		return nil, fmt.Errorf("%w: nil source buffer", ErrRenderFailure)
	}
	rect := resolveRect(box, src.Width, src.Height)
	crop := imaging.Crop(src.Pixels, rect)
	return imaging.Fill(crop, types.OutputSize, types.OutputSize, imaging.Center, imaging.Lanczos), nil
}

// Caption burns the caption onto a 512x512 crop and encodes PNG.
func (r *Renderer) Caption(crop *image.NRGBA, caption string) ([]byte, error) {
	if crop == nil {
		return nil, fmt.Errorf("%w: nil crop", ErrRenderFailure)
	}
	out := r.drawCaption(crop, caption)
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

// Render is the single-shot form: crop, scale, caption, encode.
func (r *Renderer) Render(src *types.SourceImage, box types.Box, caption string) ([]byte, error) {
	crop, err := r.Crop512(src, box)
	if err != nil {
		return nil, err
	}
	return r.Caption(crop, caption)
}

// resolveRect maps a normalized box to clamped pixel coordinates,
// expanding degenerate boxes symmetrically to a centered square.
func resolveRect(box types.Box, w, h int) image.Rectangle {
	b := box.Clamp()
	x0 := int(b.X*float64(w) + 0.5)
	y0 := int(b.Y*float64(h) + 0.5)
	x1 := int((b.X+b.W)*float64(w) + 0.5)
	y1 := int((b.Y+b.H)*float64(h) + 0.5)

	rect := image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, w, h))
	if rect.Dx() >= 2 && rect.Dy() >= 2 {
		return rect
	}

	// Degenerate box: center a square of half the short side.
	side := w
	if h < side {
		side = h
	}
	side /= 2
	if side < 2 {
		side = 2
	}
	return image.Rect((w-side)/2, (h-side)/2, (w+side)/2, (h+side)/2)
}

// drawCaption lays the caption over the bottom of the crop: a
// translucent band, then each line with a dark outline under white
// fill so it stays legible against any background.
func (r *Renderer) drawCaption(crop *image.NRGBA, caption string) image.Image {
	dc := gg.NewContextForImage(crop)
	text := strings.TrimSpace(caption)
	if text == "" {
		return dc.Image()
	}

	maxWidth := float64(types.OutputSize - 2*r.config.MarginX)
	lines, face, lineH := r.layout(dc, text, maxWidth)
	defer face.Close()
	dc.SetFontFace(face)

	blockH := float64(len(lines))*lineH + float64(len(lines)-1)*r.config.LineGap
	top := float64(types.OutputSize) - float64(r.config.BottomPad) - blockH
	if top < 12 {
		top = 12
	}

	dc.SetRGBA(0, 0, 0, r.config.BandAlpha)
	dc.DrawRectangle(0, top-12, float64(types.OutputSize), float64(types.OutputSize)-(top-12))
	dc.Fill()

	o := r.config.OutlinePx
	offsets := [][2]float64{
		{-o, -o}, {0, -o}, {o, -o},
		{-o, 0}, {o, 0},
		{-o, o}, {0, o}, {o, o},
	}
	for i, line := range lines {
		y := top + float64(i)*(lineH+r.config.LineGap) + lineH*0.5
		x := float64(types.OutputSize) / 2
		dc.SetRGB(0, 0, 0)
		for _, off := range offsets {
			dc.DrawStringAnchored(line, x+off[0], y+off[1], 0.5, 0.5)
		}
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(line, x, y, 0.5, 0.5)
	}
	return dc.Image()
}

// layout finds the largest font size at which the caption wraps into
// at most MaxLines lines within maxWidth, falling back to the minimum
// size. Returns the wrapped lines, the chosen face and its line height.
func (r *Renderer) layout(dc *gg.Context, text string, maxWidth float64) ([]string, font.Face, float64) {
	for size := r.config.MaxFontPt; size >= r.config.MinFontPt; size -= 2 {
		face := newFace(size)
		dc.SetFontFace(face)
		lines := wrap(dc, text, maxWidth)
		if len(lines) <= r.config.MaxLines {
			return lines, face, size * 1.2
		}
		face.Close()
	}
	face := newFace(r.config.MinFontPt)
	dc.SetFontFace(face)
	lines := wrap(dc, text, maxWidth)
	if len(lines) > r.config.MaxLines {
		lines = lines[:r.config.MaxLines]
	}
	return lines, face, r.config.MinFontPt * 1.2
}

func newFace(size float64) font.Face {
	face, err := opentype.NewFace(captionFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// The embedded font parsed at init; face creation cannot fail
		// for sane sizes.
		panic(fmt.Sprintf("render: new face: %v", err))
	}
	return face
}

// wrap breaks text on whitespace to fit maxWidth, hard-breaking any
// single run that is wider than a full line on its own.
func wrap(dc *gg.Context, text string, maxWidth float64) []string {
	fits := func(s string) bool {
		w, _ := dc.MeasureString(s)
		return w <= maxWidth
	}

	var lines []string
	current := ""
	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		for !fits(word) {
			// Unbreakable run longer than the line: hard rune break.
			runes := []rune(word)
			cut := len(runes)
			for cut > 1 && !fits(current+spacer(current)+string(runes[:cut])) {
				cut--
			}
			if cut <= 1 && current != "" {
				lines = append(lines, current)
				current = ""
				continue
			}
			head := current + spacer(current) + string(runes[:cut])
			lines = append(lines, head)
			current = ""
			word = string(runes[cut:])
			if word == "" {
				break
			}
		}
		if word == "" {
			continue
		}
		candidate := current + spacer(current) + word
		if fits(candidate) {
			current = candidate
		} else {
			if current != "" {
				lines = append(lines, current)
			}
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		lines = []string{text}
	}
	return lines
}

func spacer(current string) string {
	if current == "" {
		return ""
	}
	return " "
}
