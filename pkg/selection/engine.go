// Package selection turns scored candidates from any number of images
// into exactly five ordered slots. It is deterministic: identical
// inputs always produce the identical slot list.
package selection

import (
	"errors"
	"sort"

	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/types"
)

// ErrNoUsableImages is returned only when every input image failed
// decoding. Any other shortage is padded, never an error.
var ErrNoUsableImages = errors.New("no usable images")

// Config holds the selection policy knobs.
type Config struct {
	// MouthCap is the most mouth-kind slots allowed unless the style
	// directive requests mouth-only output.
	MouthCap int
	// MinDiversityScore is the weakest candidate that still counts as
	// "worth picking from an unused image" during the diversity rounds.
	MinDiversityScore float64
}

// DefaultConfig returns the default selection policy.
func DefaultConfig() Config {
	return Config{MouthCap: 2, MinDiversityScore: 0.15}
}

// syntheticOffsets nudge the centers of padded whole-image slots so
// five fallback crops of the same photo do not come out identical.
var syntheticOffsets = [types.SlotCount][2]float64{
	{0, 0}, {-0.05, 0}, {0.05, 0}, {0, -0.05}, {0, 0.05},
}

// Select chooses exactly five slots from the per-image candidate lists.
// sources and byImage are parallel; entries for unreadable inputs are
// nil. The only failure mode is every source being nil.
func Select(sources []*types.SourceImage, byImage [][]types.Candidate, directive captions.Directive, cfg Config) ([]types.Slot, error) {
	usable := make([]*types.SourceImage, 0, len(sources))
	var all []types.Candidate
	for i, src := range sources {
		if src == nil {
			continue
		}
		usable = append(usable, src)
		if i < len(byImage) {
			for _, c := range byImage[i] {
				if c.Box.Valid() {
					all = append(all, c)
				}
			}
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoUsableImages
	}

	ranked := make([]types.Candidate, len(all))
	copy(ranked, all)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Box.Area() > ranked[j].Box.Area()
	})

	var picked []types.Candidate
	if directive.MouthOnly {
		picked = pickMouthOnly(ranked)
	} else {
		picked = pickDiverse(ranked, cfg)
	}

	slots := make([]types.Slot, 0, types.SlotCount)
	for i, c := range picked {
		slots = append(slots, types.Slot{
			Index:     i,
			ImageID:   c.ImageID,
			Candidate: c.ID,
			Kind:      c.Kind,
			Box:       c.Box,
			Score:     c.Score,
		})
	}

	// Pad with whole-image center crops on the best available image.
	// The engine never returns fewer than five slots.
	best := bestSource(usable, ranked)
	for len(slots) < types.SlotCount {
		i := len(slots)
		slots = append(slots, types.Slot{
			Index:     i,
			ImageID:   best.ID,
			Kind:      types.RegionFace,
			Box:       centerSquare(best, syntheticOffsets[i]),
			Synthetic: true,
		})
	}
	return slots, nil
}

// pickMouthOnly ranks mouth candidates first and pads with faces when
// fewer than five mouths exist anywhere.
func pickMouthOnly(ranked []types.Candidate) []types.Candidate {
	var out []types.Candidate
	for _, kind := range []types.RegionKind{types.RegionMouth, types.RegionFace} {
		for _, c := range ranked {
			if len(out) == types.SlotCount {
				return out
			}
			if c.Kind == kind {
				out = append(out, c)
			}
		}
	}
	return out
}

// pickDiverse fills slots in rounds of increasing per-image allowance,
// so no image is reused while an unused image still has a worthwhile
// candidate, with mouth-kind slots capped.
func pickDiverse(ranked []types.Candidate, cfg Config) []types.Candidate {
	var out []types.Candidate
	taken := map[string]bool{}
	perImage := map[int]int{}
	mouths := 0

	for _, allowance := range []int{1, 2, 3, types.SlotCount} {
		for _, c := range ranked {
			if len(out) == types.SlotCount {
				return out
			}
			if taken[c.ID] || perImage[c.ImageID] >= allowance {
				continue
			}
			if c.Kind == types.RegionMouth && mouths >= cfg.MouthCap {
				continue
			}
			if allowance == 1 && c.Score < cfg.MinDiversityScore {
				// Too weak to justify claiming an image's only pick in
				// the diversity round; later rounds may still take it.
				continue
			}
			taken[c.ID] = true
			perImage[c.ImageID]++
			if c.Kind == types.RegionMouth {
				mouths++
			}
			out = append(out, c)
		}
	}
	return out
}

// bestSource returns the usable image whose top candidate scores
// highest, falling back to the first usable image.
func bestSource(usable []*types.SourceImage, ranked []types.Candidate) *types.SourceImage {
	for _, c := range ranked {
		for _, src := range usable {
			if src.ID == c.ImageID {
				return src
			}
		}
	}
	return usable[0]
}

// centerSquare builds a normalized centered-square box over the whole
// image, shifted by a small offset fraction.
func centerSquare(src *types.SourceImage, offset [2]float64) types.Box {
	w, h := float64(src.Width), float64(src.Height)
	side := w
	if h < side {
		side = h
	}
	x := (w-side)/2 + offset[0]*side
	y := (h-side)/2 + offset[1]*side
	if x < 0 {
		x = 0
	}
	if x > w-side {
		x = w - side
	}
	if y < 0 {
		y = 0
	}
	if y > h-side {
		y = h - side
	}
	return types.Box{X: x / w, Y: y / h, W: side / w, H: side / h}.Clamp()
}
