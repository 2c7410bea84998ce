package models

import "time"

// AI verification statuses for a single document analysis.
const (
	AnalysisStatusPending = "PENDING"
	AnalysisStatusPassed  = "PASSED"
	AnalysisStatusWarning = "WARNING"
	AnalysisStatusFailed  = "FAILED"
	AnalysisStatusSkipped = "SKIPPED"
)

// DocumentAnalysis is the immutable analyzer output for one document.
type DocumentAnalysis struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DocumentID uint   `gorm:"uniqueIndex;not null"` // one analysis per document
	Status     string `gorm:"size:16;default:'PENDING';not null;index"`
	// FaceDetected is nullable: nil means face detection did not apply or
	// was skipped for this role.
	FaceDetected   *bool
	FaceCount      int
	FaceConfidence float64
	// OCRText is truncated to the bounded persistence length before writing.
	OCRText       string  `gorm:"type:text"`
	OCRConfidence float64 // mean word confidence in [0,1]
	QualityScore  float64
	AIConfidence  float64 // overall per-document confidence in [0,1]
	// RejectionReason is one of the closed kyc reason codes; empty when the
	// document passed.
	RejectionReason  string `gorm:"size:40;index"`
	RejectionMessage string `gorm:"size:255"` // user-facing
	Warnings         string `gorm:"type:text"` // newline-joined warning list
	Details          string `gorm:"type:text"` // bounded free-form JSON
	VerifiedAt       time.Time
}
