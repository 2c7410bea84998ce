package kyc

import "time"

// DocumentRole is the semantic purpose of an uploaded file, not its MIME type.
type DocumentRole string

const (
	RoleIDFront       DocumentRole = "ID_FRONT"
	RoleIDBack        DocumentRole = "ID_BACK"
	RoleSelfie        DocumentRole = "SELFIE"
	RoleClearance     DocumentRole = "CLEARANCE"
	RoleAddressProof  DocumentRole = "ADDRESS_PROOF"
	RoleBusinessPermit DocumentRole = "BUSINESS_PERMIT"
	RoleRepIDFront    DocumentRole = "REP_ID_FRONT"
	RoleRepIDBack     DocumentRole = "REP_ID_BACK"
	RoleRepSelfie     DocumentRole = "REP_SELFIE"
	RoleAuthLetter    DocumentRole = "AUTH_LETTER"
)

// NeedsFace reports whether the role is expected to contain exactly one face.
func (r DocumentRole) NeedsFace() bool {
	switch r {
	case RoleIDFront, RoleSelfie, RoleRepIDFront, RoleRepSelfie:
		return true
	}
	return false
}

// MinQuality is the minimum acceptable quality score for the role.
// Face-bearing roles use the stricter floor.
func (r DocumentRole) MinQuality() float64 {
	if r.NeedsFace() {
		return 0.55
	}
	return 0.40
}

// RequiredRoles lists the documents a submission kind must include.
func RequiredRoles(kind string) []DocumentRole {
	if kind == "AGENCY" {
		return []DocumentRole{RoleBusinessPermit, RoleRepIDFront, RoleRepIDBack, RoleRepSelfie, RoleAddressProof, RoleAuthLetter}
	}
	return []DocumentRole{RoleIDFront, RoleIDBack, RoleSelfie}
}

// Verdict of a single document analysis.
type Verdict string

const (
	VerdictPending Verdict = "PENDING"
	VerdictPassed  Verdict = "PASSED"
	VerdictWarning Verdict = "WARNING"
	VerdictFailed  Verdict = "FAILED"
	VerdictSkipped Verdict = "SKIPPED"
)

// Outcome of the whole submission.
type Outcome string

const (
	OutcomeApproved Outcome = "AUTO_APPROVED"
	OutcomeRejected Outcome = "AUTO_REJECTED"
	OutcomeReview   Outcome = "PENDING_HUMAN_REVIEW"
)

// maxOCRTextLen bounds OCR text before persistence. Text exactly at the
// limit is stored untouched.
const maxOCRTextLen = 8192

// FaceResult is the face detector output for one image.
type FaceResult struct {
	FaceCount      int
	FaceConfidence float64 // best cluster confidence normalized to [0,1]
	Descriptor     []float32
	Reason         RejectionReason
	Warnings       []string
}

// OCRResult is the OCR engine output for one image.
type OCRResult struct {
	Text           string
	MeanConfidence float64
	Skipped        bool // tesseract missing/misconfigured; never fails the submission
	Warnings       []string
}

// QualityResult decomposes the scalar quality score so verifier and admin
// tooling can show why an image scored low.
type QualityResult struct {
	Score      float64
	Resolution float64
	Blur       float64
	Exposure   float64
	Reason     RejectionReason // set when Score is below the role minimum
}

// Analysis is the in-memory analyzer aggregate for one document, produced by
// the fan-out and consumed by the verifier and decision engine.
type Analysis struct {
	Role       DocumentRole
	Verdict    Verdict
	Face       *FaceResult
	OCR        *OCRResult
	Quality    *QualityResult
	Confidence float64
	Reason     RejectionReason
	Message    string
	Warnings   []string
	VerifiedAt time.Time
}

// TruncateOCRText enforces the persistence bound on raw OCR text.
func TruncateOCRText(s string) string {
	if len(s) <= maxOCRTextLen {
		return s
	}
	return s[:maxOCRTextLen]
}
