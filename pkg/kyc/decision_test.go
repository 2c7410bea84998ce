package kyc

import (
	"strings"
	"testing"
)

func individualAnalyses(conf float64) []Analysis {
	return []Analysis{
		{Role: RoleIDFront, Verdict: VerdictPassed, Confidence: conf},
		{Role: RoleIDBack, Verdict: VerdictPassed, Confidence: conf},
		{Role: RoleSelfie, Verdict: VerdictPassed, Confidence: conf},
	}
}

func fptr(v float64) *float64 { return &v }

func TestDecideAutoApprove(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.95),
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}
	if d.OverallConfidence < 0.94 || d.OverallConfidence > 0.96 {
		t.Errorf("overall confidence = %v", d.OverallConfidence)
	}
}

func TestDecideEqualityAtThresholdsPasses(t *testing.T) {
	// Confidence exactly at the floor and similarity exactly at the minimum
	// both pass; similarity at the minimum is below the drift band, not in it.
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.90),
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.85),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}
}

func TestDecideDriftBandGoesToReview(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.95),
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.87),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s, want review for similarity 0.87", d.Outcome)
	}
}

func TestDecideDriftBandUpperEdgeApproves(t *testing.T) {
	// min + band is the first similarity past the review band.
	pol := DefaultPolicy()
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.95),
		FieldsConfirmed: true,
		FaceMatch:       fptr(pol.FaceMatchMinSimilarity + pol.SimilarityDriftBand),
		Policy:          pol,
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}
}

func TestDecideFaceMismatchRejects(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:      "INDIVIDUAL",
		Analyses:  individualAnalyses(0.95),
		FaceMatch: fptr(0.62),
		Policy:    DefaultPolicy(),
	})
	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	if d.Message == "" {
		t.Error("expected user-facing mismatch message")
	}
}

func TestDecideIncompleteRejects(t *testing.T) {
	d := Decide(DecisionInput{
		Kind: "INDIVIDUAL",
		Analyses: []Analysis{
			{Role: RoleIDFront, Verdict: VerdictPassed, Confidence: 0.95},
			{Role: RoleSelfie, Verdict: VerdictPassed, Confidence: 0.95},
		},
		FaceMatch: fptr(0.95),
		Policy:    DefaultPolicy(),
	})
	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], string(RoleIDBack)) {
		t.Errorf("reasons = %v, want missing ID_BACK", d.Reasons)
	}
}

func TestDecideHardFailureRejects(t *testing.T) {
	analyses := individualAnalyses(0.95)
	analyses[2] = Analysis{
		Role:    RoleSelfie,
		Verdict: VerdictFailed,
		Reason:  ReasonNoFaceDetected,
		Message: ReasonNoFaceDetected.Message(),
	}
	d := Decide(DecisionInput{
		Kind:      "INDIVIDUAL",
		Analyses:  analyses,
		FaceMatch: fptr(0.95),
		Policy:    DefaultPolicy(),
	})
	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	if d.Message != ReasonNoFaceDetected.Message() {
		t.Errorf("message = %q, want the document's own message", d.Message)
	}
}

func TestDecideSoftFailureGoesToReview(t *testing.T) {
	// A blurry front fails its own check without a hard reason; the
	// submission goes to a reviewer, never straight to approval.
	analyses := individualAnalyses(0.95)
	analyses[0] = Analysis{
		Role:       RoleIDFront,
		Verdict:    VerdictFailed,
		Reason:     ReasonImageTooBlurry,
		Message:    ReasonImageTooBlurry.Message(),
		Confidence: 0.95,
	}
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        analyses,
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}
	found := false
	for _, r := range d.Reasons {
		if strings.Contains(r, string(ReasonImageTooBlurry)) {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want the blurry front recorded", d.Reasons)
	}
}

func TestDecideSkippedExcludedFromConfidence(t *testing.T) {
	// A skipped back scan drops out of the weighted average instead of
	// dragging the confidence down.
	analyses := individualAnalyses(0.95)
	analyses[1] = Analysis{Role: RoleIDBack, Verdict: VerdictSkipped}
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        analyses,
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}
	if d.OverallConfidence < 0.94 {
		t.Errorf("overall confidence = %v, skipped doc should not dilute it", d.OverallConfidence)
	}
}

func TestDecideTimeoutGoesToReview(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.95),
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		TimedOut:        true,
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s", d.Outcome)
	}
}

func TestDecideNoFaceMatchGoesToReview(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.95),
		FieldsConfirmed: true,
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s", d.Outcome)
	}
}

func TestDecideLowConfidenceGoesToReview(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        individualAnalyses(0.70),
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s", d.Outcome)
	}
}

func TestDecideWarningsGoToReview(t *testing.T) {
	analyses := individualAnalyses(0.95)
	analyses[0].Verdict = VerdictWarning
	analyses[0].Warnings = []string{"low ocr confidence"}
	d := Decide(DecisionInput{
		Kind:            "INDIVIDUAL",
		Analyses:        analyses,
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s", d.Outcome)
	}
}

func TestDecideUnconfirmedFieldsGoToReview(t *testing.T) {
	d := Decide(DecisionInput{
		Kind:      "INDIVIDUAL",
		Analyses:  individualAnalyses(0.95),
		FaceMatch: fptr(0.95),
		Policy:    DefaultPolicy(),
	})
	if d.Outcome != OutcomeReview {
		t.Fatalf("outcome = %s", d.Outcome)
	}

	pol := DefaultPolicy()
	pol.RequireUserConfirmation = false
	d = Decide(DecisionInput{
		Kind:      "INDIVIDUAL",
		Analyses:  individualAnalyses(0.95),
		FaceMatch: fptr(0.95),
		Policy:    pol,
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s with confirmation not required, reasons = %v", d.Outcome, d.Reasons)
	}
}

func TestDecideAgencyCompleteness(t *testing.T) {
	var analyses []Analysis
	for _, role := range RequiredRoles("AGENCY") {
		analyses = append(analyses, Analysis{Role: role, Verdict: VerdictPassed, Confidence: 0.95})
	}
	d := Decide(DecisionInput{
		Kind:            "AGENCY",
		Analyses:        analyses,
		FieldsConfirmed: true,
		FaceMatch:       fptr(0.95),
		Policy:          DefaultPolicy(),
	})
	if d.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s, reasons = %v", d.Outcome, d.Reasons)
	}

	d = Decide(DecisionInput{
		Kind:      "AGENCY",
		Analyses:  analyses[:len(analyses)-1],
		FaceMatch: fptr(0.95),
		Policy:    DefaultPolicy(),
	})
	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s for incomplete agency set", d.Outcome)
	}
}
