package models

import "time"

// Notification kinds emitted by the KYC pipeline.
const (
	NotifyKycApproved       = "KYC_APPROVED"
	NotifyKycRejected       = "KYC_REJECTED"
	NotifyAgencyKycApproved = "AGENCY_KYC_APPROVED"
	NotifyAgencyKycRejected = "AGENCY_KYC_REJECTED"
)

// Notification is an outbox row consumed by the delivery layer. Delivery is
// at-least-once; DedupeKey (submission id + outcome) is unique so a re-run of
// the pipeline cannot enqueue the same notification twice.
type Notification struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	OwnerKind string `gorm:"size:16;not null"`
	OwnerID   uint   `gorm:"not null;index"`
	Kind      string `gorm:"size:32;not null;index"`
	// SubmissionRef is the external submission identifier.
	SubmissionRef string `gorm:"size:64;not null"`
	Message       string `gorm:"size:512"`
	RetryEligibleAt *time.Time
	DedupeKey     string `gorm:"size:128;not null;uniqueIndex"`
	SentAt        *time.Time `gorm:"index"`
}
