package kyc

import "errors"

// RejectionReason is the closed set of machine-readable causes a document or
// submission can be refused for. User-visible failures always map to one of
// these plus a human-readable message; internal errors never leak out.
type RejectionReason string

const (
	ReasonNone                RejectionReason = ""
	ReasonNoFaceDetected      RejectionReason = "NO_FACE_DETECTED"
	ReasonMultipleFaces       RejectionReason = "MULTIPLE_FACES"
	ReasonFaceTooSmall        RejectionReason = "FACE_TOO_SMALL"
	ReasonMissingRequiredText RejectionReason = "MISSING_REQUIRED_TEXT"
	ReasonImageTooBlurry      RejectionReason = "IMAGE_TOO_BLURRY"
	ReasonResolutionTooLow    RejectionReason = "RESOLUTION_TOO_LOW"
	ReasonInvalidOrientation  RejectionReason = "INVALID_ORIENTATION"
	ReasonUnreadableDocument  RejectionReason = "UNREADABLE_DOCUMENT"
)

// rejectionMessages maps each closed reason to its user-facing message.
var rejectionMessages = map[RejectionReason]string{
	ReasonNoFaceDetected:      "We could not find a face in your photo. Please retake it with your face clearly visible.",
	ReasonMultipleFaces:       "More than one face was detected. Please upload a photo with only your face.",
	ReasonFaceTooSmall:        "Your face appears too small in the photo. Please move closer to the camera.",
	ReasonMissingRequiredText: "We could not read the required information on this document. Please upload a clearer copy.",
	ReasonImageTooBlurry:      "The image is too blurry. Please retake the photo in good light and hold steady.",
	ReasonResolutionTooLow:    "The image resolution is too low. Please upload a higher quality photo.",
	ReasonInvalidOrientation:  "The document appears rotated or upside down. Please upload it upright.",
	ReasonUnreadableDocument:  "We could not read this file. Please upload a clear JPG or PNG image.",
}

// Message returns the user-facing text for a reason (empty for ReasonNone).
func (r RejectionReason) Message() string { return rejectionMessages[r] }

// Hard reports whether the reason alone forces AUTO_REJECTED when it appears
// on a required identity document.
func (r RejectionReason) Hard() bool {
	switch r {
	case ReasonNoFaceDetected, ReasonMultipleFaces, ReasonUnreadableDocument, ReasonMissingRequiredText:
		return true
	}
	return false
}

// ErrSubmissionPending is returned when an owner already has a non-terminal
// submission in flight.
var ErrSubmissionPending = errors.New("submission already pending for this owner")

// ErrIncompleteSubmission is returned when a required document role is
// missing from the request; the submission is not created.
var ErrIncompleteSubmission = errors.New("incomplete documents")

// ErrRetryCooldown is returned when an owner retries before the cooldown from
// their last rejection has elapsed.
var ErrRetryCooldown = errors.New("retry cooldown has not elapsed")
