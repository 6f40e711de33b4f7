package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ScoreWeights are the fixed weights of the quality score. Sharpness
// dominates because blurry crops make the worst stickers; exposure and
// contrast mostly break ties between similar regions.
type ScoreWeights struct {
	Sharpness float64
	Exposure  float64
	Contrast  float64
}

// DefaultScoreWeights returns the documented scoring weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Sharpness: 0.52, Exposure: 0.28, Contrast: 0.20}
}

// scoreProbeSize is the edge length of the downscaled grayscale probe
// used for scoring. Small enough to keep scoring cheap, large enough to
// preserve sharpness signal.
const scoreProbeSize = 128

// Score rates a pixel buffer in [0,1], higher is better. It is a pure
// function of the pixels: a weighted sum of a Laplacian-variance
// sharpness proxy, closeness of the mean luma to midtone, and contrast.
func Score(img image.Image, w ScoreWeights) float64 {
	if img == nil {
		return 0
	}
	probe := imaging.Resize(imaging.Grayscale(img), scoreProbeSize, scoreProbeSize, imaging.Linear)
	b := probe.Bounds()
	width, height := b.Dx(), b.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	luma := func(x, y int) float64 {
		return float64(probe.Pix[y*probe.Stride+x*4]) / 255.0
	}

	var sum, sumSq float64
	n := float64(width * height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := luma(x, y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	// 4-neighbor Laplacian magnitude, averaged over the interior.
	var lapSum float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			l := 4*luma(x, y) - luma(x-1, y) - luma(x+1, y) - luma(x, y-1) - luma(x, y+1)
			if l < 0 {
				l = -l
			}
			lapSum += l
		}
	}
	lapMean := lapSum / float64((width-2)*(height-2))

	exposure := 1.0 - min1(abs(mean-0.55)/0.55)
	contrast := min1(math.Sqrt(variance) * 2.2)
	sharpness := min1(lapMean * 2.6)

	score := w.Sharpness*sharpness + w.Exposure*exposure + w.Contrast*contrast
	if score < 0 {
		return 0
	}
	return min1(score)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
