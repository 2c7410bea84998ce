package kyc

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func passingFace() *FaceResult {
	return &FaceResult{FaceCount: 1, FaceConfidence: 0.9, Descriptor: make([]float32, 256)}
}

func passingOCR(text string) *OCRResult {
	return &OCRResult{Text: text, MeanConfidence: 0.8}
}

func passingQuality(score float64) *QualityResult {
	return &QualityResult{Score: score, Resolution: score, Blur: score, Exposure: score}
}

func TestVerifyIDFrontPasses(t *testing.T) {
	a := VerifyDocument(RoleIDFront, passingFace(), passingOCR("SURNAME: CRUZ GIVEN NAMES: ANA"), passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictPassed {
		t.Fatalf("verdict = %s, warnings = %v", a.Verdict, a.Warnings)
	}
	if a.Confidence <= 0 {
		t.Errorf("confidence = %v", a.Confidence)
	}
}

func TestVerifyQualityExactlyAtFloorPasses(t *testing.T) {
	// Exactly-equal-to-threshold is a pass, the gate is strictly-below.
	a := VerifyDocument(RoleSelfie, passingFace(), nil, passingQuality(0.55), nil, testNow)
	if a.Verdict != VerdictPassed {
		t.Fatalf("verdict = %s at quality 0.55 (floor), want PASSED", a.Verdict)
	}
}

func TestVerifyFaceRoleQualityBelowFloorFails(t *testing.T) {
	q := passingQuality(0.54)
	q.Reason = ReasonImageTooBlurry
	a := VerifyDocument(RoleSelfie, passingFace(), nil, q, nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonImageTooBlurry {
		t.Fatalf("verdict = %s reason = %s", a.Verdict, a.Reason)
	}
	if a.Message == "" {
		t.Error("expected user-facing message")
	}
}

func TestVerifyDocRoleQualityBelowFloorWarns(t *testing.T) {
	q := passingQuality(0.35)
	q.Reason = ReasonResolutionTooLow
	a := VerifyDocument(RoleAddressProof, nil, passingOCR("MERALCO BILL 123 SAMPLE ST"), q, nil, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("verdict = %s, want WARNING for document-only role", a.Verdict)
	}
}

func TestVerifyNoFace(t *testing.T) {
	face := &FaceResult{FaceCount: 0, Reason: ReasonNoFaceDetected}
	a := VerifyDocument(RoleIDFront, face, passingOCR("SURNAME: CRUZ"), passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonNoFaceDetected {
		t.Fatalf("verdict = %s reason = %s", a.Verdict, a.Reason)
	}
}

func TestVerifyMultipleFaces(t *testing.T) {
	face := &FaceResult{FaceCount: 2, FaceConfidence: 0.8, Reason: ReasonMultipleFaces}
	a := VerifyDocument(RoleSelfie, face, nil, passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonMultipleFaces {
		t.Fatalf("verdict = %s reason = %s", a.Verdict, a.Reason)
	}
}

func TestVerifyFaceTooSmallWarns(t *testing.T) {
	face := passingFace()
	face.Reason = ReasonFaceTooSmall
	a := VerifyDocument(RoleSelfie, face, nil, passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("verdict = %s, want WARNING for small face", a.Verdict)
	}
}

func TestVerifyMissingRequiredText(t *testing.T) {
	a := VerifyDocument(RoleIDFront, passingFace(), passingOCR("   "), passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonMissingRequiredText {
		t.Fatalf("verdict = %s reason = %s", a.Verdict, a.Reason)
	}
}

func TestVerifyOCRSkippedWarnsOnly(t *testing.T) {
	// An unavailable OCR install degrades to a warning, never a rejection.
	a := VerifyDocument(RoleIDFront, passingFace(), &OCRResult{Skipped: true}, passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("verdict = %s, want WARNING when OCR skipped", a.Verdict)
	}
}

func TestVerifyBusinessPermitKeyword(t *testing.T) {
	a := VerifyDocument(RoleBusinessPermit, nil, passingOCR("MAYOR'S PERMIT CITY OF MAKATI 2026"), passingQuality(0.7), nil, testNow)
	if a.Verdict != VerdictPassed {
		t.Fatalf("verdict = %s, warnings = %v", a.Verdict, a.Warnings)
	}
	a = VerifyDocument(RoleBusinessPermit, nil, passingOCR("some unrelated paper"), passingQuality(0.7), nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonMissingRequiredText {
		t.Fatalf("verdict = %s reason = %s for permit without keyword", a.Verdict, a.Reason)
	}
}

func TestVerifyClearanceExpiry(t *testing.T) {
	clearText := "NBI CLEARANCE NO: A1234567"

	// Expired yesterday: rejection with the expiry message.
	past := testNow.Add(-24 * time.Hour)
	a := VerifyDocument(RoleClearance, nil, passingOCR(clearText), passingQuality(0.7), &past, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonMissingRequiredText {
		t.Fatalf("expired clearance: verdict = %s reason = %s", a.Verdict, a.Reason)
	}

	// Expiring in 29 days: warning.
	soon := testNow.Add(29 * 24 * time.Hour)
	a = VerifyDocument(RoleClearance, nil, passingOCR(clearText), passingQuality(0.7), &soon, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("29-day clearance: verdict = %s", a.Verdict)
	}

	// Exactly 30 days out is still fine.
	edge := testNow.Add(30 * 24 * time.Hour)
	a = VerifyDocument(RoleClearance, nil, passingOCR(clearText), passingQuality(0.7), &edge, testNow)
	if a.Verdict != VerdictPassed {
		t.Fatalf("30-day clearance: verdict = %s, warnings = %v", a.Verdict, a.Warnings)
	}

	// No date extracted: warning, reviewer decides.
	a = VerifyDocument(RoleClearance, nil, passingOCR(clearText), passingQuality(0.7), nil, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("dateless clearance: verdict = %s", a.Verdict)
	}
}

func TestVerifyLowOCRConfidenceWarns(t *testing.T) {
	ocr := &OCRResult{Text: "SURNAME: CRUZ", MeanConfidence: 0.3}
	a := VerifyDocument(RoleIDFront, passingFace(), ocr, passingQuality(0.8), nil, testNow)
	if a.Verdict != VerdictWarning {
		t.Fatalf("verdict = %s, want WARNING at ocr confidence 0.3", a.Verdict)
	}
}

func TestVerifyUnreadableFaceRole(t *testing.T) {
	face := &FaceResult{Reason: ReasonUnreadableDocument}
	a := VerifyDocument(RoleIDFront, face, nil, nil, nil, testNow)
	if a.Verdict != VerdictFailed || a.Reason != ReasonUnreadableDocument {
		t.Fatalf("verdict = %s reason = %s", a.Verdict, a.Reason)
	}
}
