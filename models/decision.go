package models

import "time"

// Decision outcomes.
const (
	OutcomeAutoApproved       = "AUTO_APPROVED"
	OutcomeAutoRejected       = "AUTO_REJECTED"
	OutcomePendingHumanReview = "PENDING_HUMAN_REVIEW"
)

// DecisionRecord is the aggregate outcome for a submission; written exactly
// once, inside the same transaction that flips the owner's verified flag.
type DecisionRecord struct {
	ID                uint `gorm:"primaryKey"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SubmissionID      uint    `gorm:"uniqueIndex;not null"` // at most one decision per submission
	Outcome           string  `gorm:"size:24;not null;index"`
	OverallConfidence float64
	// FaceMatchSimilarity is nil when no usable descriptor pair existed.
	FaceMatchSimilarity *float64
	// ThresholdsJSON snapshots the policy applied to this decision.
	ThresholdsJSON string `gorm:"type:text"`
	Reasons        string `gorm:"type:text"` // newline-joined audit reason list
	DecidedAt      time.Time `gorm:"not null"`
}
