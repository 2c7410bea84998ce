package kyc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Resolution floors by role class. Face-bearing roles need more pixels for a
// usable crop; document-only roles can be smaller.
const (
	faceMinDim = 480
	faceGoodDim = 1100
	docMinDim  = 320
	docGoodDim = 900
)

// blurNormVariance is the variance-of-Laplacian at which an image is treated
// as fully sharp. Values above it clamp to 1.0.
const blurNormVariance = 900.0

// ScoreQuality derives a scalar in [0,1] from resolution, blur and exposure.
// Pure over the given bytes: identical input produces identical scores.
func ScoreQuality(data []byte, role DocumentRole) (QualityResult, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return QualityResult{Reason: ReasonUnreadableDocument}, fmt.Errorf("decode image: %w", err)
	}
	var q QualityResult
	q.Resolution = resolutionScore(img.Bounds(), role)

	// Blur and exposure are measured on a fixed-width grayscale downsample so
	// the scores do not depend on source dimensions.
	gray := imaging.Grayscale(img)
	if gray.Bounds().Dx() > 256 {
		gray = imaging.Resize(gray, 256, 0, imaging.Lanczos)
	}
	q.Blur = blurScore(gray)
	q.Exposure = exposureScore(gray)

	q.Score = 0.4*q.Resolution + 0.4*q.Blur + 0.2*q.Exposure
	if q.Score < role.MinQuality() {
		// Attribute the failure to the weakest component.
		if q.Resolution <= q.Blur {
			q.Reason = ReasonResolutionTooLow
		} else {
			q.Reason = ReasonImageTooBlurry
		}
	}
	return q, nil
}

// resolutionScore is piecewise-linear in the image's shorter dimension:
// 0 at half the role floor, 1 at the "good" dimension.
func resolutionScore(b image.Rectangle, role DocumentRole) float64 {
	minDim, goodDim := docMinDim, docGoodDim
	if role.NeedsFace() {
		minDim, goodDim = faceMinDim, faceGoodDim
	}
	short := b.Dx()
	if b.Dy() < short {
		short = b.Dy()
	}
	lo := float64(minDim) / 2
	if float64(short) <= lo {
		return 0
	}
	if short >= goodDim {
		return 1
	}
	return (float64(short) - lo) / (float64(goodDim) - lo)
}

// blurScore normalizes the variance of a 4-neighbor Laplacian.
func blurScore(img *image.NRGBA) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}
	lum := func(x, y int) float64 {
		i := y*img.Stride + x*4
		return float64(img.Pix[i]) // grayscale: R==G==B
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*lum(x, y) - lum(x-1, y) - lum(x+1, y) - lum(x, y-1) - lum(x, y+1)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	s := variance / blurNormVariance
	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

// exposureScore is the mean-brightness distance from mid-gray, normalized so
// a perfectly mid-gray image scores 1 and pure black/white scores 0.
func exposureScore(img *image.NRGBA) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += float64(img.Pix[y*img.Stride+x*4])
		}
	}
	mean := sum / float64(w*h)
	d := mean - 128
	if d < 0 {
		d = -d
	}
	return 1 - d/128
}
