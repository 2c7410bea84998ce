package kyc

import (
	"fmt"
	"time"
)

// Aggregation weights by role; roles not listed share the residual weight.
// SKIPPED documents are excluded from the denominator entirely.
var confidenceWeights = map[DocumentRole]float64{
	RoleIDFront:    0.30,
	RoleRepIDFront: 0.30,
	RoleSelfie:     0.30,
	RoleRepSelfie:  0.30,
	RoleIDBack:     0.15,
	RoleRepIDBack:  0.15,
	RoleClearance:  0.15,
}

const defaultConfidenceWeight = 0.10

// DecisionInput is everything the engine needs, snapshotted: the engine is a
// pure function and holds no state between submissions.
type DecisionInput struct {
	Kind            string // INDIVIDUAL or AGENCY
	Analyses        []Analysis
	FieldsConfirmed bool
	FaceMatch       *float64 // nil when no usable descriptor pair existed
	TimedOut        bool     // submission deadline overflowed
	Policy          Policy
}

// Decision is the aggregate outcome.
type Decision struct {
	Outcome           Outcome
	OverallConfidence float64
	FaceMatch         *float64
	Reasons           []string // audit reason list
	Message           string   // user-facing, set on rejection
}

// Decide aggregates per-document verdicts, the face match and the policy
// snapshot into the final outcome. Threshold comparisons treat exact equality
// as passing.
func Decide(in DecisionInput) Decision {
	d := Decision{FaceMatch: in.FaceMatch}
	pol := in.Policy

	// 1. Completeness.
	present := map[DocumentRole]bool{}
	for _, a := range in.Analyses {
		present[a.Role] = true
	}
	for _, role := range RequiredRoles(in.Kind) {
		if !present[role] {
			d.Outcome = OutcomeRejected
			d.Message = "Your submission is missing required documents. Please upload the complete set."
			d.Reasons = append(d.Reasons, fmt.Sprintf("incomplete documents: missing %s", role))
			return d
		}
	}

	// 2. Hard failures.
	for _, a := range in.Analyses {
		if a.Verdict == VerdictFailed && a.Reason.Hard() {
			d.Outcome = OutcomeRejected
			d.Message = a.Message
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s failed: %s", a.Role, a.Reason))
			return d
		}
	}

	// 3. Overall confidence, SKIPPED documents excluded.
	var sum, weight float64
	warnings := 0
	failed := 0
	for _, a := range in.Analyses {
		if a.Verdict == VerdictSkipped {
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s skipped", a.Role))
			continue
		}
		if a.Verdict == VerdictWarning {
			warnings++
		}
		if a.Verdict == VerdictFailed {
			failed++
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s failed: %s", a.Role, a.Reason))
		}
		w, ok := confidenceWeights[a.Role]
		if !ok {
			w = defaultConfidenceWeight
		}
		sum += w * a.Confidence
		weight += w
	}
	if weight > 0 {
		d.OverallConfidence = sum / weight
	}

	// Face mismatch below threshold is a rejection in its own right.
	if in.FaceMatch != nil && *in.FaceMatch < pol.FaceMatchMinSimilarity {
		d.Outcome = OutcomeRejected
		d.Message = "The selfie does not match the photo on your ID. Please retake your selfie."
		d.Reasons = append(d.Reasons, fmt.Sprintf("face mismatch: similarity %.2f below %.2f", *in.FaceMatch, pol.FaceMatchMinSimilarity))
		return d
	}

	if in.TimedOut {
		d.Outcome = OutcomeReview
		d.Reasons = append(d.Reasons, "analysis timeout")
		return d
	}

	// 4. Auto-approval gate.
	review := func(reason string) Decision {
		d.Outcome = OutcomeReview
		d.Reasons = append(d.Reasons, reason)
		return d
	}
	if in.FaceMatch == nil {
		return review("face match unavailable")
	}
	// Similarity just above the threshold sits in the drift band and goes to
	// a human even when everything else passes.
	if *in.FaceMatch > pol.FaceMatchMinSimilarity && *in.FaceMatch < pol.FaceMatchMinSimilarity+pol.SimilarityDriftBand {
		return review(fmt.Sprintf("similarity %.2f in drift band", *in.FaceMatch))
	}
	if d.OverallConfidence < pol.AutoApproveMinConfidence {
		return review(fmt.Sprintf("overall confidence %.2f below %.2f", d.OverallConfidence, pol.AutoApproveMinConfidence))
	}
	// Soft failures (sub-floor quality on a face role and similar) are not
	// grounds for auto-rejection, but they never auto-approve either.
	if failed > 0 {
		return review(fmt.Sprintf("%d document failures", failed))
	}
	if warnings > 0 {
		return review(fmt.Sprintf("%d document warnings", warnings))
	}
	if pol.RequireUserConfirmation && !in.FieldsConfirmed {
		return review("extracted fields not confirmed by user")
	}

	d.Outcome = OutcomeApproved
	d.Reasons = append(d.Reasons, fmt.Sprintf("auto-approved: confidence %.2f, similarity %.2f", d.OverallConfidence, *in.FaceMatch))
	return d
}

// DriftBandEnd returns the upper bound of the review band for a policy, used
// by admin tooling to explain borderline outcomes.
func DriftBandEnd(p Policy) float64 { return p.FaceMatchMinSimilarity + p.SimilarityDriftBand }

// CooldownUntil computes when a rejected owner may retry.
func CooldownUntil(p Policy, now time.Time) time.Time { return now.Add(p.RetryCooldown) }
