package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// Montage composites up to five 512x512 crops into a 3x2 grid: slots
// one to three on the top row, four and five on the bottom, the last
// cell left dark. The alignment pass sends this single image to the
// planner instead of five separate uploads.
func Montage(crops []*image.NRGBA) *image.NRGBA {
	canvas := imaging.New(types.OutputSize*3, types.OutputSize*2, color.NRGBA{R: 20, G: 24, B: 32, A: 255})
	for i, crop := range crops {
		if i >= types.SlotCount || crop == nil {
			break
		}
		col := i % 3
		row := i / 3
		canvas = imaging.Paste(canvas, crop, image.Pt(col*types.OutputSize, row*types.OutputSize))
	}
	return canvas
}

// EncodeJPEG encodes an image for transport to the planner.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode montage: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes the debug copy of the montage. WebP keeps the
// dump small without the JPEG transport artifacts.
func EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode montage webp: %w", err)
	}
	return buf.Bytes(), nil
}

// cardPalette backs text-only stickers. Indexed by slot so output stays
// deterministic.
var cardPalette = [types.SlotCount]color.NRGBA{
	{R: 248, G: 250, B: 252, A: 255},
	{R: 255, G: 247, B: 237, A: 255},
	{R: 240, G: 253, B: 250, A: 255},
	{R: 245, G: 243, B: 255, A: 255},
	{R: 254, G: 242, B: 242, A: 255},
}

// TextCard renders a caption-only 512x512 sticker on a soft background.
// It is the per-slot fallback when caption drawing fails on a crop, so
// a run always ships five stickers.
func (r *Renderer) TextCard(slot int, caption string) ([]byte, error) {
	bg := cardPalette[((slot%types.SlotCount)+types.SlotCount)%types.SlotCount]
	card := imaging.New(types.OutputSize, types.OutputSize, bg)
	return r.Caption(card, caption)
}
