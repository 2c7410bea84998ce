package kyc

import "math"

// MatchFaces returns the cosine similarity of two face descriptors mapped to
// [0,1]. Descriptors are unit-normalized at extraction; the same metric backs
// the calibrated thresholds, so it must not change independently of them.
// Returns nil when either descriptor is absent: the match is then SKIPPED and
// can never contribute to an auto-approval.
func MatchFaces(a, b []float32) *float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return nil
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Descriptors are non-negative intensities, so cos lands in [0,1]
	// already; clamp against float drift.
	if cos < 0 {
		cos = 0
	}
	if cos > 1 {
		cos = 1
	}
	return &cos
}
