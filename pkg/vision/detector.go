// Package vision locates face and mouth crop candidates in normalized
// images using coarse pixel heuristics. No face-detection model is
// assumed to exist: face regions are approximated by skin-toned,
// edge-dense windows and mouth regions by lip-redness centroids.
package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// Config holds the empirically tuned detector parameters. The defaults
// were chosen against a labeled sample set; treat them as configuration
// rather than constants.
type Config struct {
	// ProbeMaxEdge is the longest side of the downscaled analysis copy.
	ProbeMaxEdge int
	// WindowScales are face-window edge lengths as fractions of the
	// probe's shorter side, searched in order.
	WindowScales []float64
	// FaceTopFraction restricts face-window centers to the upper part
	// of the frame (faces in portrait photos rarely sit lower).
	FaceTopFraction float64
	// MouthFloorFraction excludes the bottom of a face box from mouth
	// search so bibs and collars cannot win over lips.
	MouthFloorFraction float64
	// MouthMinSignal is the weakest lip-redness peak accepted as a
	// mouth. Probes below it yield no mouth candidate for that face.
	MouthMinSignal float64
	// MaxFaceCandidates bounds the face candidates kept per image.
	MaxFaceCandidates int
	// Weights feed the quality score of every candidate crop.
	Weights ScoreWeights
}

// DefaultConfig returns the tuned detector parameters.
func DefaultConfig() Config {
	return Config{
		ProbeMaxEdge:       320,
		WindowScales:       []float64{0.45, 0.60, 0.78},
		FaceTopFraction:    2.0 / 3.0,
		MouthFloorFraction: 0.64,
		MouthMinSignal:     14.0 / 255.0,
		MaxFaceCandidates:  3,
		Weights:            DefaultScoreWeights(),
	}
}

// Detector finds scored face and mouth candidates.
type Detector struct {
	config Config
}

// New creates a Detector with default configuration.
func New() *Detector {
	return &Detector{config: DefaultConfig()}
}

// NewWithConfig creates a Detector with custom parameters.
func NewWithConfig(config Config) *Detector {
	return &Detector{config: config}
}

// Detect returns the scored candidates for one source image, best
// first. The ordering is fully deterministic: score descending, larger
// area on ties, then discovery order. A nil or degenerate image yields
// no candidates.
func (d *Detector) Detect(src *types.SourceImage) []types.Candidate {
	if src == nil || src.Pixels == nil || src.Width < 8 || src.Height < 8 {
		return nil
	}

	probe := d.probeFor(src.Pixels)
	faces := d.findFaceBoxes(probe)

	seq := 0
	var out []types.Candidate
	for _, box := range faces {
		if !box.Valid() {
			continue
		}
		crop := cropNormalized(src.Pixels, box)
		out = append(out, types.Candidate{
			ID:      fmt.Sprintf("img%d-face-%d", src.ID, seq),
			ImageID: src.ID,
			Kind:    types.RegionFace,
			Box:     box,
			Score:   Score(crop, d.config.Weights),
		})
		seq++

		mouth, ok := d.findMouthBox(probe, box)
		if !ok || !mouth.Valid() {
			continue
		}
		mcrop := cropNormalized(src.Pixels, mouth)
		base := Score(mcrop, d.config.Weights)
		lip := lipScore(mcrop)
		combined := base*0.55 + lip*0.45
		if lip < 0.10 {
			// Weak lip signal usually means the heuristic latched onto
			// clothing. Keep the candidate but demote it.
			combined *= 0.65
		}
		out = append(out, types.Candidate{
			ID:      fmt.Sprintf("img%d-mouth-%d", src.ID, seq),
			ImageID: src.ID,
			Kind:    types.RegionMouth,
			Box:     mouth,
			Score:   clampScore(combined),
		})
		seq++
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Box.Area() > out[j].Box.Area()
	})
	return out
}

func (d *Detector) probeFor(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if max := d.config.ProbeMaxEdge; max > 0 && (w > max || h > max) {
		if w >= h {
			return imaging.Resize(img, max, 0, imaging.Lanczos)
		}
		return imaging.Resize(img, 0, max, imaging.Lanczos)
	}
	return img
}

// findFaceBoxes slides square windows over the probe and keeps the best
// window per scale, ranked by skin coverage times edge density with a
// mild centering bonus. Returned boxes are normalized.
func (d *Detector) findFaceBoxes(probe *image.NRGBA) []types.Box {
	w, h := probe.Bounds().Dx(), probe.Bounds().Dy()
	if w < 16 || h < 16 {
		return []types.Box{{X: 0, Y: 0, W: 1, H: 1}}
	}

	skin, edges := buildMaps(probe)
	minSide := w
	if h < minSide {
		minSide = h
	}

	type window struct {
		x, y, side int
		score      float64
	}

	var best []window
	for _, scale := range d.config.WindowScales {
		side := int(float64(minSide) * scale)
		if side < 24 {
			continue
		}
		step := side / 8
		if step < 4 {
			step = 4
		}
		maxCenterY := int(float64(h) * d.config.FaceTopFraction)

		bw := window{score: -1}
		for y := 0; y+side <= h; y += step {
			if y+side/2 > maxCenterY {
				break
			}
			for x := 0; x+side <= w; x += step {
				skinFrac := rectMean(skin, w, x, y, side)
				edgeFrac := rectMean(edges, w, x, y, side)
				dx := float64(x+side/2)/float64(w) - 0.5
				centering := 1.0 - 0.22*math.Min(1, math.Abs(dx)*2)
				s := skinFrac * (0.4 + edgeFrac) * centering
				if s > bw.score {
					bw = window{x: x, y: y, side: side, score: s}
				}
			}
		}
		if bw.score > 0 {
			best = append(best, bw)
		}
	}

	if len(best) == 0 {
		// Nothing skin-like anywhere; fall back to a centered square in
		// the upper frame so downstream stages still have a candidate.
		side := float64(minSide) * 0.7
		return []types.Box{{
			X: (float64(w) - side) / 2 / float64(w),
			Y: 0.05,
			W: side / float64(w),
			H: side / float64(h),
		}}
	}

	sort.SliceStable(best, func(i, j int) bool { return best[i].score > best[j].score })
	if len(best) > d.config.MaxFaceCandidates {
		best = best[:d.config.MaxFaceCandidates]
	}

	boxes := make([]types.Box, 0, len(best))
	for _, bw := range best {
		boxes = append(boxes, types.Box{
			X: float64(bw.x) / float64(w),
			Y: float64(bw.y) / float64(h),
			W: float64(bw.side) / float64(w),
			H: float64(bw.side) / float64(h),
		}.Clamp())
	}
	return boxes
}

// findMouthBox locates a lip-redness centroid inside the face box,
// ignoring everything below MouthFloorFraction of the face height, and
// wraps it in a square sized relative to the face.
func (d *Detector) findMouthBox(probe *image.NRGBA, face types.Box) (types.Box, bool) {
	w, h := probe.Bounds().Dx(), probe.Bounds().Dy()
	fx0 := int(face.X * float64(w))
	fy0 := int(face.Y * float64(h))
	fx1 := int((face.X + face.W) * float64(w))
	fy1 := int((face.Y + face.H) * float64(h))
	if fx1-fx0 < 16 || fy1-fy0 < 16 {
		return types.Box{}, false
	}

	// Search band: lower-middle of the face, floor excluded.
	floor := fy0 + int(float64(fy1-fy0)*d.config.MouthFloorFraction)
	y0 := fy0 + (fy1-fy0)*3/10
	x0 := fx0 + (fx1-fx0)/8
	x1 := fx1 - (fx1-fx0)/8
	if floor <= y0+4 || x1 <= x0+4 {
		return types.Box{}, false
	}

	var sumW, sumX, sumY, peak float64
	for y := y0; y < floor; y++ {
		row := probe.Pix[y*probe.Stride:]
		for x := x0; x < x1; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			// Lip score favors redder pixels; white/gray clothing
			// scores near zero.
			s := (r - 0.55*g - 0.45*b) / 255.0
			if s <= 6.0/255.0 {
				continue
			}
			sat := (maxRGB(r, g, b) - minRGB(r, g, b)) / 255.0
			wgt := s * (0.6 + sat)
			sumW += wgt
			sumX += wgt * float64(x)
			sumY += wgt * float64(y)
			if s > peak {
				peak = s
			}
		}
	}
	if sumW <= 1e-9 || peak < d.config.MouthMinSignal {
		return types.Box{}, false
	}

	cx := sumX / sumW
	cy := sumY / sumW
	faceMin := math.Min(float64(fx1-fx0), float64(fy1-fy0))
	side := faceMin * 0.52
	side = math.Max(faceMin*0.38, math.Min(faceMin*0.70, side))

	// Keep the mouth slightly above box center so the chin survives.
	cy += 0.06 * side
	if limit := float64(fy0) + float64(fy1-fy0)*d.config.MouthFloorFraction; cy > limit {
		cy = limit
	}

	bx := clampF(cx-side/2, 0, float64(w)-side)
	by := clampF(cy-side/2, 0, float64(h)-side)
	return types.Box{
		X: bx / float64(w),
		Y: by / float64(h),
		W: side / float64(w),
		H: side / float64(h),
	}.Clamp(), true
}

// buildMaps computes per-pixel skin likelihood and edge maps, both in
// [0,1], flattened row-major.
func buildMaps(probe *image.NRGBA) (skin, edges []float64) {
	w, h := probe.Bounds().Dx(), probe.Bounds().Dy()
	skin = make([]float64, w*h)
	edges = make([]float64, w*h)

	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := probe.Pix[y*probe.Stride:]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			luma[y*w+x] = (0.299*r + 0.587*g + 0.114*b) / 255.0
			if isSkinTone(r, g, b) {
				skin[y*w+x] = 1
			}
		}
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := luma[y*w+x+1] - luma[y*w+x-1]
			gy := luma[(y+1)*w+x] - luma[(y-1)*w+x]
			m := math.Sqrt(gx*gx+gy*gy) * 2
			if m > 1 {
				m = 1
			}
			edges[y*w+x] = m
		}
	}
	return skin, edges
}

// isSkinTone is the classic RGB skin rule. It over-matches on warm
// backgrounds, which the edge-density factor compensates for.
func isSkinTone(r, g, b float64) bool {
	return r > 95 && g > 40 && b > 20 &&
		maxRGB(r, g, b)-minRGB(r, g, b) > 15 &&
		math.Abs(r-g) > 15 && r > g && r > b
}

func rectMean(m []float64, width, x, y, side int) float64 {
	var sum float64
	for ry := y; ry < y+side; ry++ {
		for rx := x; rx < x+side; rx++ {
			sum += m[ry*width+rx]
		}
	}
	return sum / float64(side*side)
}

// cropNormalized extracts the pixels under a normalized box.
func cropNormalized(img *image.NRGBA, box types.Box) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rect := image.Rect(
		int(box.X*float64(w)+0.5),
		int(box.Y*float64(h)+0.5),
		int((box.X+box.W)*float64(w)+0.5),
		int((box.Y+box.H)*float64(h)+0.5),
	).Intersect(img.Bounds())
	return imaging.Crop(img, rect)
}

// lipScore estimates mouth-likeness of a crop from lip-redness density,
// mirroring the mouth locator's pixel weighting.
func lipScore(crop *image.NRGBA) float64 {
	w, h := crop.Bounds().Dx(), crop.Bounds().Dy()
	if w < 8 || h < 8 {
		return 0
	}
	x0, x1 := w*14/100, w*86/100
	y0, y1 := h*32/100, h*84/100

	hit, total := 0, 0
	var intensity float64
	step := 1 + w/128
	for y := y0; y < y1; y += step {
		row := crop.Pix[y*crop.Stride:]
		for x := x0; x < x1; x += step {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			s := r - 0.55*g - 0.45*b
			if s > 12.0 {
				hit++
				intensity += math.Min(255, s) / 255.0
			}
			total++
		}
	}
	if total == 0 || hit == 0 {
		return 0
	}
	density := math.Min(1, float64(hit)/float64(total)*10)
	return clampScore(density * (0.55 + 0.45*intensity/float64(hit)))
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxRGB(r, g, b float64) float64 {
	m := r
	if g > m {
		m = g
	}
	if b > m {
		m = b
	}
	return m
}

func minRGB(r, g, b float64) float64 {
	m := r
	if g < m {
		m = g
	}
	if b < m {
		m = b
	}
	return m
}
