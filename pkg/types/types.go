package types

import "image"

// Box is a normalized bounding box with coordinates in the [0,1] range.
// It is resolution independent and can be re-applied to any buffer
// derived from the same source image.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Valid reports whether the box lies fully inside [0,1]x[0,1] and has
// positive area.
func (b Box) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.W > 0 && b.H > 0 &&
		b.X+b.W <= 1.0+1e-9 && b.Y+b.H <= 1.0+1e-9
}

// Area returns the normalized area of the box.
func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Clamp returns the box constrained to [0,1]x[0,1].
func (b Box) Clamp() Box {
	x := clamp01(b.X)
	y := clamp01(b.Y)
	w := clamp01(b.W)
	h := clamp01(b.H)
	if x+w > 1 {
		w = 1 - x
	}
	if y+h > 1 {
		h = 1 - y
	}
	return Box{X: x, Y: y, W: w, H: h}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RegionKind classifies a candidate crop region.
type RegionKind string

const (
	RegionFace  RegionKind = "face"
	RegionMouth RegionKind = "mouth"
)

// SourceImage is a decoded, orientation-corrected input image. It is
// owned by a single pipeline run and discarded after all crops are
// extracted from it.
type SourceImage struct {
	ID     int
	Name   string
	Pixels *image.NRGBA
	Width  int
	Height int
}

// Candidate is a scored crop region proposal belonging to one source
// image. Boxes are always normalized and validated before scoring.
type Candidate struct {
	ID      string     `json:"id"`
	ImageID int        `json:"image_id"`
	Kind    RegionKind `json:"kind"`
	Box     Box        `json:"box"`
	Score   float64    `json:"score"`
}

// Slot is one of the five ordered positions in the final sticker set.
// Synthetic reports that no usable candidate existed and the slot was
// filled with a whole-image center crop.
type Slot struct {
	Index     int        `json:"index"`
	ImageID   int        `json:"image_id"`
	Candidate string     `json:"candidate_id"`
	Kind      RegionKind `json:"kind"`
	Box       Box        `json:"box"`
	Score     float64    `json:"score"`
	Synthetic bool       `json:"synthetic"`
}

// Plan is the per-slot output of the planning stage: a semantic
// expression label, an optional crop refinement and a draft caption.
type Plan struct {
	Label    string `json:"label"`
	Box      Box    `json:"box"`
	Caption  string `json:"caption"`
	Fallback bool   `json:"fallback"`
}

// CaptionSource records which stage produced the captions burned into
// the final stickers.
type CaptionSource string

const (
	// CaptionsAICrops means the alignment pass regenerated captions
	// against the final rendered crops.
	CaptionsAICrops CaptionSource = "ai_crops"
	// CaptionsAIOriginal means the first planning call produced the
	// captions and the alignment pass did not improve on them.
	CaptionsAIOriginal CaptionSource = "ai_original"
	// CaptionsMouthFallback means the mouth-closeup pool was used.
	CaptionsMouthFallback CaptionSource = "mouth_fallback"
	// CaptionsFallback means the default pool was used.
	CaptionsFallback CaptionSource = "fallback"
)

// RenderResult is one final sticker artifact. Immutable once created.
type RenderResult struct {
	Filename string     `json:"filename"`
	Caption  string     `json:"caption"`
	ImageID  int        `json:"image_id"`
	Kind     RegionKind `json:"kind"`
	Score    float64    `json:"score"`
	PNG      []byte     `json:"-"`
}

// SlotCount is the fixed number of output stickers per request.
const SlotCount = 5

// OutputSize is the edge length in pixels of every rendered sticker.
const OutputSize = 512
