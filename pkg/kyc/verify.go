package kyc

import (
	"fmt"
	"strings"
	"time"
)

// businessPermitKeywords: a permit must carry at least one of these.
var businessPermitKeywords = []string{
	"BUSINESS PERMIT", "MAYOR'S PERMIT", "MAYORS PERMIT", "PERMIT TO OPERATE",
	"DTI", "SEC REGISTRATION", "BIR",
}

// clearanceWarningWindow: a clearance expiring within this window is still
// acceptable but flagged for the reviewer.
const clearanceWarningWindow = 30 * 24 * time.Hour

// lowOCRConfidence marks an OCR read weak enough to warn on even when text
// was produced.
const lowOCRConfidence = 0.5

// roleCheck drives the per-role verification table. Special clearance and
// permit behavior hangs off the keyword fields.
type roleCheck struct {
	needsFace      bool
	requireOCRText bool
	anyKeyword     []string
	checkValidity  bool // clearance expiry handling
}

var verifyTable = map[DocumentRole]roleCheck{
	RoleIDFront:       {needsFace: true, requireOCRText: true},
	RoleRepIDFront:    {needsFace: true, requireOCRText: true},
	RoleIDBack:        {},
	RoleRepIDBack:     {},
	RoleSelfie:        {needsFace: true},
	RoleRepSelfie:     {needsFace: true},
	RoleClearance:     {requireOCRText: true, anyKeyword: []string{"NBI", "POLICE"}, checkValidity: true},
	RoleAddressProof:  {requireOCRText: true},
	RoleBusinessPermit: {requireOCRText: true, anyKeyword: businessPermitKeywords},
	RoleAuthLetter:    {},
}

// VerifyDocument synthesizes the verdict for one document from its analyzer
// outputs. validityDate is the parsed clearance expiry (nil when not a
// clearance or not extracted); now anchors the expiry checks.
func VerifyDocument(role DocumentRole, face *FaceResult, ocr *OCRResult, quality *QualityResult, validityDate *time.Time, now time.Time) Analysis {
	a := Analysis{Role: role, Face: face, OCR: ocr, Quality: quality, VerifiedAt: now}
	check := verifyTable[role]

	fail := func(reason RejectionReason, msg string) Analysis {
		a.Verdict = VerdictFailed
		a.Reason = reason
		if msg == "" {
			msg = reason.Message()
		}
		a.Message = msg
		a.Confidence = documentConfidence(check, face, ocr, quality)
		return a
	}

	// Hard face checks first: these reasons are terminal for face roles.
	if check.needsFace {
		if face == nil || face.Reason == ReasonUnreadableDocument {
			return fail(ReasonUnreadableDocument, "")
		}
		switch face.Reason {
		case ReasonNoFaceDetected:
			return fail(ReasonNoFaceDetected, "")
		case ReasonMultipleFaces:
			return fail(ReasonMultipleFaces, "")
		case ReasonFaceTooSmall:
			a.Warnings = append(a.Warnings, "face too small")
		}
		a.Warnings = append(a.Warnings, face.Warnings...)
	}

	// Quality gates. Face-bearing roles treat a sub-floor score as a hard
	// failure; document-only roles degrade to a warning.
	if quality != nil {
		if quality.Score < role.MinQuality() {
			if check.needsFace {
				return fail(quality.Reason, "")
			}
			a.Warnings = append(a.Warnings, "low image quality")
		}
	}

	// OCR text requirements.
	ocrSkipped := ocr == nil || ocr.Skipped
	if check.requireOCRText {
		if ocrSkipped {
			a.Warnings = append(a.Warnings, "ocr unavailable")
		} else {
			text := strings.ToUpper(ocr.Text)
			if strings.TrimSpace(text) == "" {
				return fail(ReasonMissingRequiredText, "")
			}
			if len(check.anyKeyword) > 0 && !containsAny(text, check.anyKeyword) {
				return fail(ReasonMissingRequiredText, "")
			}
			if ocr.MeanConfidence < lowOCRConfidence {
				a.Warnings = append(a.Warnings, "low ocr confidence")
			}
		}
	}

	// Clearance validity. Expired is a rejection; the warning window flags
	// documents about to lapse.
	if check.checkValidity && !ocrSkipped {
		switch {
		case validityDate == nil:
			a.Warnings = append(a.Warnings, "validity date not found")
		case !validityDate.After(now):
			return fail(ReasonMissingRequiredText, "Your clearance has expired. Please submit a current NBI or police clearance.")
		case validityDate.Sub(now) < clearanceWarningWindow:
			a.Warnings = append(a.Warnings, fmt.Sprintf("clearance expires %s", validityDate.Format("2006-01-02")))
		}
	}

	a.Confidence = documentConfidence(check, face, ocr, quality)
	if len(a.Warnings) > 0 {
		a.Verdict = VerdictWarning
	} else {
		a.Verdict = VerdictPassed
	}
	return a
}

// documentConfidence combines the available analyzer signals into the
// per-document AI confidence.
func documentConfidence(check roleCheck, face *FaceResult, ocr *OCRResult, quality *QualityResult) float64 {
	var sum, weight float64
	if quality != nil {
		sum += 0.4 * quality.Score
		weight += 0.4
	}
	if check.needsFace && face != nil {
		sum += 0.4 * face.FaceConfidence
		weight += 0.4
	}
	if ocr != nil && !ocr.Skipped {
		sum += 0.2 * ocr.MeanConfidence
		weight += 0.2
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
