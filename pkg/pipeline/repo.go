// Package pipeline runs KYC submissions end to end: fetch bytes, fan out
// analyzers, extract fields, decide, persist and notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Banyel3/iayos-sub003/models"
)

// Repo is the persistence seam for the orchestrator. The gorm implementation
// is the production one; tests use the in-memory variant.
type Repo interface {
	// ActiveSubmission returns the owner's current non-terminal submission,
	// or nil when none exists.
	ActiveSubmission(ctx context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error)
	// LatestRejected returns the owner's most recent rejected submission, or
	// nil when there is none (used for the retry cooldown gate).
	LatestRejected(ctx context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error)
	CreateSubmission(ctx context.Context, sub *models.KycSubmission, docs []models.KycDocument) error
	SubmissionByRef(ctx context.Context, ref string) (*models.KycSubmission, error)
	MarkUnderReview(ctx context.Context, submissionID uint) error
	// SaveAnalysis writes the immutable analysis row for one document; a
	// second write for the same document is a silent no-op.
	SaveAnalysis(ctx context.Context, a *models.DocumentAnalysis) error
	SaveFields(ctx context.Context, f *models.ExtractedFields) error
	// FinalizeDecision persists the decision record, the submission status,
	// the owner verified flag and the audit entry in one transaction. A
	// stored terminal decision is returned untouched; a stored review
	// decision is superseded by the new one.
	FinalizeDecision(ctx context.Context, fin Finalization) (*models.DecisionRecord, bool, error)
	// StalledSubmissions returns submissions created before cutoff that never
	// reached a decision record: PENDING ones, and UNDER_REVIEW ones whose
	// processing died before the engine ran (used by the sweeper).
	StalledSubmissions(ctx context.Context, cutoff time.Time, limit int) ([]models.KycSubmission, error)
}

// Finalization bundles everything FinalizeDecision writes atomically.
type Finalization struct {
	Submission *models.KycSubmission
	Decision   models.DecisionRecord
	Status     string // terminal or UNDER_REVIEW
	// SetVerified is nil when the owner flag must not change.
	SetVerified     *bool
	RetryEligibleAt *time.Time
	Audit           models.AuditEntry
}

// GormRepo is the postgres-backed implementation.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

func (r *GormRepo) ActiveSubmission(ctx context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error) {
	var sub models.KycSubmission
	err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ? AND status IN ?", ownerKind, ownerID,
			[]string{models.SubmissionStatusPending, models.SubmissionStatusUnderReview}).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormRepo) LatestRejected(ctx context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error) {
	var sub models.KycSubmission
	err := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ? AND status = ?", ownerKind, ownerID, models.SubmissionStatusRejected).
		Order("id desc").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormRepo) CreateSubmission(ctx context.Context, sub *models.KycSubmission, docs []models.KycDocument) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		for i := range docs {
			docs[i].SubmissionID = sub.ID
			if err := tx.Create(&docs[i]).Error; err != nil {
				return err
			}
		}
		sub.Documents = docs
		return nil
	})
}

func (r *GormRepo) SubmissionByRef(ctx context.Context, ref string) (*models.KycSubmission, error) {
	var sub models.KycSubmission
	err := r.db.WithContext(ctx).
		Preload("Documents").Preload("Documents.Analysis").
		Preload("Fields").Preload("Decision").
		Where("submission_id = ?", ref).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSubmission
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormRepo) MarkUnderReview(ctx context.Context, submissionID uint) error {
	return r.db.WithContext(ctx).Model(&models.KycSubmission{}).
		Where("id = ? AND status = ?", submissionID, models.SubmissionStatusPending).
		Update("status", models.SubmissionStatusUnderReview).Error
}

func (r *GormRepo) SaveAnalysis(ctx context.Context, a *models.DocumentAnalysis) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if err != nil && isUniqueConstraintError(err) {
		return nil // analysis already written for this document
	}
	return err
}

func (r *GormRepo) SaveFields(ctx context.Context, f *models.ExtractedFields) error {
	err := r.db.WithContext(ctx).Create(f).Error
	if err != nil && isUniqueConstraintError(err) {
		return nil
	}
	return err
}

func (r *GormRepo) FinalizeDecision(ctx context.Context, fin Finalization) (*models.DecisionRecord, bool, error) {
	// Idempotence: a prior terminal decision wins, whoever wrote it. A
	// review-outcome record is provisional and is superseded in place when
	// the engine runs again.
	var existing models.DecisionRecord
	err := r.db.WithContext(ctx).Where("submission_id = ?", fin.Submission.ID).First(&existing).Error
	if err == nil && existing.Outcome != models.OutcomePendingHumanReview {
		return &existing, false, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	supersede := err == nil

	dec := fin.Decision
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if supersede {
			dec.ID = existing.ID
			dec.CreatedAt = existing.CreatedAt
			if err := tx.Model(&models.DecisionRecord{}).Where("id = ?", existing.ID).Updates(map[string]any{
				"outcome":               dec.Outcome,
				"overall_confidence":    dec.OverallConfidence,
				"face_match_similarity": dec.FaceMatchSimilarity,
				"thresholds_json":       dec.ThresholdsJSON,
				"reasons":               dec.Reasons,
				"decided_at":            dec.DecidedAt,
			}).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&dec).Error; err != nil {
			if isUniqueConstraintError(err) {
				return tx.Where("submission_id = ?", fin.Submission.ID).First(&dec).Error
			}
			return err
		}
		updates := map[string]any{"status": fin.Status, "decided_at": dec.DecidedAt}
		if fin.RetryEligibleAt != nil {
			updates["retry_eligible_at"] = *fin.RetryEligibleAt
		}
		if err := tx.Model(&models.KycSubmission{}).Where("id = ?", fin.Submission.ID).Updates(updates).Error; err != nil {
			return err
		}
		if fin.SetVerified != nil {
			if err := setOwnerVerified(tx, fin.Submission.OwnerKind, fin.Submission.OwnerID, *fin.SetVerified); err != nil {
				return err
			}
		}
		return tx.Create(&fin.Audit).Error
	})
	if txErr != nil {
		return nil, false, fmt.Errorf("finalize decision: %w", txErr)
	}
	return &dec, true, nil
}

// setOwnerVerified flips the verified flag inside the decision transaction.
func setOwnerVerified(tx *gorm.DB, ownerKind string, ownerID uint, v bool) error {
	switch ownerKind {
	case models.SubmissionKindAgency:
		return tx.Model(&models.Agency{}).Where("id = ?", ownerID).Update("verified", v).Error
	default:
		return tx.Model(&models.User{}).Where("id = ?", ownerID).Update("verified", v).Error
	}
}

func (r *GormRepo) StalledSubmissions(ctx context.Context, cutoff time.Time, limit int) ([]models.KycSubmission, error) {
	var subs []models.KycSubmission
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN decision_records ON decision_records.submission_id = kyc_submissions.id").
		Where("kyc_submissions.status IN ? AND kyc_submissions.created_at < ? AND decision_records.id IS NULL",
			[]string{models.SubmissionStatusPending, models.SubmissionStatusUnderReview}, cutoff).
		Order("kyc_submissions.id asc").Limit(limit).Find(&subs).Error
	return subs, err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
