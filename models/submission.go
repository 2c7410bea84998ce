package models

import "time"

// Submission lifecycle states.
const (
	SubmissionStatusPending     = "PENDING"
	SubmissionStatusUnderReview = "UNDER_REVIEW"
	SubmissionStatusApproved    = "APPROVED"
	SubmissionStatusRejected    = "REJECTED"
)

// Submission kinds (who is being verified).
const (
	SubmissionKindIndividual = "INDIVIDUAL"
	SubmissionKindAgency     = "AGENCY"
)

// KycSubmission is one verification attempt by one owner. At most one
// non-terminal submission may exist per owner; the partial unique index on
// (owner_kind, owner_id) enforced in initDB backs that invariant.
type KycSubmission struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
	// SubmissionID is the external identifier; also the idempotency key for
	// re-submits and notifications.
	SubmissionID string `gorm:"size:64;not null;uniqueIndex"`
	OwnerKind    string `gorm:"size:16;not null;index:idx_kyc_owner"` // INDIVIDUAL or AGENCY
	OwnerID      uint   `gorm:"not null;index:idx_kyc_owner"`
	// DeclaredIDType e.g. NATIONAL_ID, DRIVERS_LICENSE, PHILSYS_ID, PASSPORT, BUSINESS_PERMIT
	DeclaredIDType string `gorm:"size:32;not null"`
	Status         string `gorm:"size:20;default:'PENDING';not null;index"`
	// Review bookkeeping (set for human decisions only)
	ReviewedByID  *uint `gorm:"index"`
	ReviewedBy    *User `gorm:"foreignKey:ReviewedByID;references:ID"`
	ReviewedAt    *time.Time
	ReviewerNotes string `gorm:"type:text"`
	DecidedAt     *time.Time
	// RetryEligibleAt gates re-submission after a rejection.
	RetryEligibleAt *time.Time

	Documents []KycDocument    `gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Fields    *ExtractedFields `gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Decision  *DecisionRecord  `gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Terminal reports whether the submission has reached a final status.
func (s *KycSubmission) Terminal() bool {
	return s.Status == SubmissionStatusApproved || s.Status == SubmissionStatusRejected
}
