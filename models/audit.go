package models

import "time"

// AuditEntry is an append-only record of a KYC decision. Rows are never
// updated or deleted.
type AuditEntry struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"index"`
	SubmissionID uint      `gorm:"index;not null"`
	OwnerKind    string    `gorm:"size:16;not null"`
	OwnerID      uint      `gorm:"not null;index"`
	Outcome      string    `gorm:"size:24;not null"`
	// Actor is "pipeline" for automatic decisions or the reviewer username.
	Actor  string `gorm:"size:255;not null"`
	Detail string `gorm:"type:text"`
}
