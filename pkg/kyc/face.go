package kyc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"runtime"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"golang.org/x/sync/semaphore"
)

// detection quality floor below which pigo clusters are treated as noise.
const faceQualityFloor = 5.0

// minFaceAreaRatio rejects faces whose bounding box covers less than 8% of
// the image area.
const minFaceAreaRatio = 0.08

// descriptorDim is the side of the grayscale patch used as the face
// descriptor (descriptorDim² values, unit-normalized).
const descriptorDim = 16

// FaceDetector runs the pigo cascade over raw image bytes. The classifier is
// immutable after Unpack; inference is still serialized behind a weighted
// semaphore sized to the CPU count.
type FaceDetector struct {
	classifier *pigo.Pigo
	sem        *semaphore.Weighted
}

// NewFaceDetector unpacks a pigo cascade (the binary facefinder model).
func NewFaceDetector(cascade []byte) (*FaceDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &FaceDetector{
		classifier: classifier,
		sem:        semaphore.NewWeighted(int64(runtime.NumCPU())),
	}, nil
}

// Detect analyses the image for faces. expectFaces is the hint for the
// document role: 1 for ID fronts and selfies, 0 for permit-type documents.
// Decode failures and face-count violations are reported through the result's
// Reason; the error return is only for context cancellation.
func (d *FaceDetector) Detect(ctx context.Context, data []byte, expectFaces int) (FaceResult, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return FaceResult{}, err
	}
	defer d.sem.Release(1)

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return FaceResult{Reason: ReasonUnreadableDocument}, nil
	}
	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols := src.Bounds().Dx()
	rows := src.Bounds().Dy()

	maxSize := cols
	if rows < maxSize {
		maxSize = rows
	}
	params := pigo.CascadeParams{
		MinSize:     40,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{Pixels: pixels, Rows: rows, Cols: cols, Dim: cols},
	}
	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var best pigo.Detection
	count := 0
	for _, det := range dets {
		if det.Q < faceQualityFloor {
			continue
		}
		count++
		if det.Q > best.Q {
			best = det
		}
	}

	res := FaceResult{FaceCount: count}
	if count > 0 {
		res.FaceConfidence = normalizeFaceQ(best.Q)
	}
	switch {
	case expectFaces == 1 && count == 0:
		res.Reason = ReasonNoFaceDetected
		return res, nil
	case expectFaces == 1 && count > 1:
		res.Reason = ReasonMultipleFaces
		return res, nil
	case count == 0:
		return res, nil
	}

	area := float64(best.Scale) * float64(best.Scale)
	if expectFaces == 1 && area/float64(cols*rows) < minFaceAreaRatio {
		res.Reason = ReasonFaceTooSmall
		return res, nil
	}

	res.Descriptor = faceDescriptor(img, best)
	return res, nil
}

// normalizeFaceQ maps pigo's open-ended quality score into [0,1].
func normalizeFaceQ(q float32) float64 {
	c := float64(q) / 40.0
	if c > 1 {
		c = 1
	}
	return c
}

// faceDescriptor crops the detected face, downsamples it to a fixed grayscale
// patch and unit-normalizes the intensities. Deterministic per input bytes,
// suitable for cosine similarity.
func faceDescriptor(img image.Image, det pigo.Detection) []float32 {
	half := det.Scale / 2
	rect := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half)
	crop := imaging.Crop(img, rect)
	patch := imaging.Resize(imaging.Grayscale(crop), descriptorDim, descriptorDim, imaging.Lanczos)

	vec := make([]float32, descriptorDim*descriptorDim)
	var norm float64
	for y := 0; y < descriptorDim; y++ {
		for x := 0; x < descriptorDim; x++ {
			v := float64(patch.Pix[y*patch.Stride+x*4])
			vec[y*descriptorDim+x] = float32(v)
			norm += v * v
		}
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
