package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Banyel3/iayos-sub003/models"
	"github.com/Banyel3/iayos-sub003/pkg/kyc"
	"github.com/Banyel3/iayos-sub003/pkg/storage"
)

// IntakeDocument is one uploaded artifact in an intake request. The bytes
// have already been written to the store; intake records the reference.
type IntakeDocument struct {
	Role        kyc.DocumentRole
	Bucket      string
	StorePath   string
	ContentType string
	SizeBytes   int64
}

// IntakeRequest creates one submission for one owner.
type IntakeRequest struct {
	OwnerKind      string // INDIVIDUAL or AGENCY
	OwnerID        uint
	DeclaredIDType string
	// SubmissionRef is the caller-supplied idempotency key; generated when
	// empty. Re-sending the same ref returns the existing submission.
	SubmissionRef string
	Documents     []IntakeDocument
}

// Intake validates and persists a new submission. Enforced here, before any
// analysis runs: at most one non-terminal submission per owner, the retry
// cooldown after a rejection, and role-set completeness for the owner kind.
func (o *Orchestrator) Intake(ctx context.Context, req IntakeRequest) (*models.KycSubmission, error) {
	if req.SubmissionRef != "" {
		if existing, err := o.repo.SubmissionByRef(ctx, req.SubmissionRef); err == nil {
			return existing, nil
		}
	}

	active, err := o.repo.ActiveSubmission(ctx, req.OwnerKind, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, kyc.ErrSubmissionPending
	}

	last, err := o.repo.LatestRejected(ctx, req.OwnerKind, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.RetryEligibleAt != nil && o.now().Before(*last.RetryEligibleAt) {
		return nil, kyc.ErrRetryCooldown
	}

	present := map[kyc.DocumentRole]bool{}
	for _, d := range req.Documents {
		present[d.Role] = true
	}
	for _, role := range kyc.RequiredRoles(req.OwnerKind) {
		if !present[role] {
			return nil, fmt.Errorf("%w: missing %s", kyc.ErrIncompleteSubmission, role)
		}
	}

	ref := req.SubmissionRef
	if ref == "" {
		ref = uuid.NewString()
	}
	now := o.now()
	sub := &models.KycSubmission{
		SubmissionID:   ref,
		OwnerKind:      req.OwnerKind,
		OwnerID:        req.OwnerID,
		DeclaredIDType: req.DeclaredIDType,
		Status:         models.SubmissionStatusPending,
	}
	docs := make([]models.KycDocument, 0, len(req.Documents))
	for _, d := range req.Documents {
		bucket := d.Bucket
		if bucket == "" {
			bucket = storage.BucketKycDocs
			if req.OwnerKind == models.SubmissionKindAgency {
				bucket = storage.BucketAgency
			}
		}
		docs = append(docs, models.KycDocument{
			Role:        string(d.Role),
			Bucket:      bucket,
			StorePath:   d.StorePath,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			UploadedAt:  now,
		})
	}
	if err := o.repo.CreateSubmission(ctx, sub, docs); err != nil {
		return nil, err
	}
	return sub, nil
}

// RetryEligible reports whether an owner may submit again and, when not, when
// the cooldown lapses.
func (o *Orchestrator) RetryEligible(ctx context.Context, ownerKind string, ownerID uint) (bool, *time.Time, error) {
	last, err := o.repo.LatestRejected(ctx, ownerKind, ownerID)
	if err != nil {
		return false, nil, err
	}
	if last == nil || last.RetryEligibleAt == nil || !o.now().Before(*last.RetryEligibleAt) {
		return true, nil, nil
	}
	return false, last.RetryEligibleAt, nil
}
