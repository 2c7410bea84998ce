package kyc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// checkerboard renders a high-contrast block pattern, sharp enough to max out
// the blur score at any reasonable size.
func checkerboard(w, h, block int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/block+y/block)%2 == 0 {
				v = 255
			}
			img.Set(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.Set(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestScoreQualityGoodImagePasses(t *testing.T) {
	data := encodePNG(t, checkerboard(1200, 1200, 32))
	q, err := ScoreQuality(data, RoleSelfie)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	if q.Score < RoleSelfie.MinQuality() {
		t.Errorf("score = %v (res %v blur %v exp %v)", q.Score, q.Resolution, q.Blur, q.Exposure)
	}
	if q.Reason != ReasonNone {
		t.Errorf("reason = %s", q.Reason)
	}
	if q.Resolution != 1 {
		t.Errorf("resolution = %v, want 1 at 1200px", q.Resolution)
	}
}

func TestScoreQualityLowResolution(t *testing.T) {
	data := encodePNG(t, gradient(100, 100))
	q, err := ScoreQuality(data, RoleSelfie)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	if q.Score >= RoleSelfie.MinQuality() {
		t.Errorf("score = %v, want below the face floor at 100px", q.Score)
	}
	if q.Reason == ReasonNone {
		t.Error("expected a failure reason on a sub-floor score")
	}
	if q.Resolution != 0 {
		t.Errorf("resolution = %v, want 0 below half the floor", q.Resolution)
	}
}

func TestScoreQualityDeterministic(t *testing.T) {
	data := encodePNG(t, checkerboard(800, 600, 16))
	q1, err := ScoreQuality(data, RoleIDFront)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	q2, err := ScoreQuality(data, RoleIDFront)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	if q1 != q2 {
		t.Errorf("scores differ across runs: %+v vs %+v", q1, q2)
	}
}

func TestScoreQualityUndecodable(t *testing.T) {
	_, err := ScoreQuality([]byte("not an image"), RoleIDFront)
	if err == nil {
		t.Fatal("expected decode error")
	}
	q, _ := ScoreQuality(nil, RoleIDFront)
	if q.Reason != ReasonUnreadableDocument {
		t.Errorf("reason = %s, want UNREADABLE_DOCUMENT", q.Reason)
	}
}

func TestScoreQualityDocFloorLooser(t *testing.T) {
	// The same mid-size image clears the document floor but scores lower on
	// resolution for a face role.
	data := encodePNG(t, checkerboard(900, 900, 24))
	doc, err := ScoreQuality(data, RoleAddressProof)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	face, err := ScoreQuality(data, RoleSelfie)
	if err != nil {
		t.Fatalf("ScoreQuality: %v", err)
	}
	if doc.Resolution != 1 {
		t.Errorf("doc resolution = %v, want 1 at 900px", doc.Resolution)
	}
	if face.Resolution >= 1 {
		t.Errorf("face resolution = %v, want below 1 at 900px", face.Resolution)
	}
}
