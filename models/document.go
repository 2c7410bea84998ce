package models

import "time"

// KycDocument is a single uploaded artifact within a submission. Created once
// and never mutated; its Analysis row is written exactly once by the pipeline.
type KycDocument struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SubmissionID uint   `gorm:"index;not null;uniqueIndex:idx_kyc_doc_role"`
	Role         string `gorm:"size:32;not null;uniqueIndex:idx_kyc_doc_role"` // ID_FRONT, SELFIE, ...
	Bucket       string `gorm:"size:64;not null"`
	StorePath    string `gorm:"column:store_path;size:512;not null"`
	ContentType  string `gorm:"size:128"`
	SizeBytes    int64
	UploadedAt   time.Time `gorm:"not null"`

	Analysis *DocumentAnalysis `gorm:"foreignKey:DocumentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
