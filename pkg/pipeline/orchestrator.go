package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Banyel3/iayos-sub003/models"
	"github.com/Banyel3/iayos-sub003/pkg/kyc"
	"github.com/Banyel3/iayos-sub003/pkg/notify"
	"github.com/Banyel3/iayos-sub003/pkg/storage"
)

// ErrNoSubmission is returned when a submission reference does not exist.
var ErrNoSubmission = errors.New("submission not found")

// Analyzer functions, swappable in tests. The production constructor wires
// them to the real OCR engine, the prewarmed face detector and the quality
// scorer.
type (
	OCRFunc     func(data []byte) kyc.OCRResult
	FaceFunc    func(ctx context.Context, data []byte, expectFaces int) (kyc.FaceResult, error)
	QualityFunc func(data []byte, role kyc.DocumentRole) (kyc.QualityResult, error)
)

// Emitter is the notification seam (satisfied by *notify.Notifier).
type Emitter interface {
	Emit(ctx context.Context, p notify.Payload) error
}

// Orchestrator drives one submission through fetch, analysis, verification,
// matching and decision, then persists and notifies. It holds no per-
// submission state; Process is safe to call concurrently.
type Orchestrator struct {
	repo     Repo
	store    storage.Store
	policies *kyc.PolicySource
	notifier Emitter

	ocr     OCRFunc
	face    FaceFunc
	quality QualityFunc

	// now is a clock hook for tests.
	now func() time.Time
}

// New wires the production analyzers. remote may be nil (remote face
// detection disabled); faces carries the prewarmed local detector.
func New(repo Repo, store storage.Store, engine *kyc.OCREngine, faces *kyc.Prewarmer, remote *kyc.RemoteFaceClient, policies *kyc.PolicySource, notifier Emitter) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		store:    store,
		policies: policies,
		notifier: notifier,
		ocr:      engine.ExtractText,
		quality:  kyc.ScoreQuality,
		now:      time.Now,
	}
	o.face = func(ctx context.Context, data []byte, expectFaces int) (kyc.FaceResult, error) {
		if remote != nil {
			if res, err := remote.Detect(ctx, data, expectFaces); err == nil {
				return res, nil
			}
			// breaker open or transport failure: degrade to local detection
		}
		det, err := faces.Detector(ctx)
		if err != nil {
			return kyc.FaceResult{}, err
		}
		return det.Detect(ctx, data, expectFaces)
	}
	return o
}

// NewWithAnalyzers builds an orchestrator with explicit analyzer functions.
func NewWithAnalyzers(repo Repo, store storage.Store, ocr OCRFunc, face FaceFunc, quality QualityFunc, policies *kyc.PolicySource, notifier Emitter) *Orchestrator {
	return &Orchestrator{
		repo: repo, store: store, policies: policies, notifier: notifier,
		ocr: ocr, face: face, quality: quality, now: time.Now,
	}
}

// docWork is the per-document fan-out result, verified in phase two.
type docWork struct {
	doc     models.KycDocument
	role    kyc.DocumentRole
	face    *kyc.FaceResult
	ocr     *kyc.OCRResult
	quality *kyc.QualityResult
	skipped []string // analyzer-level skips that void the document verdict
	// unreadable is set when the bytes could not be obtained or do not decode
	// as an image. The document is SKIPPED, not failed: infrastructure and
	// decode problems route to review, never to auto-rejection.
	unreadable bool
}

// Process runs the pipeline for one submission. A terminal decision is
// returned as-is without re-analyzing; a review-outcome decision is
// re-evaluated, so confirming the extracted fields (or a policy change) can
// move the submission forward.
func (o *Orchestrator) Process(ctx context.Context, ref string) (*models.DecisionRecord, error) {
	sub, err := o.repo.SubmissionByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if sub.Decision != nil && sub.Terminal() {
		return sub.Decision, nil
	}

	pol := o.policies.Snapshot()
	start := o.now()
	runCtx, cancel := context.WithTimeout(ctx, pol.SubmissionTimeout)
	defer cancel()

	// Phase one: fetch and analyze every document concurrently. Analyzer
	// failures are results, not errors; the group only aborts on repo errors.
	works := make([]docWork, len(sub.Documents))
	var reviewOnce sync.Once
	g, gctx := errgroup.WithContext(runCtx)
	for i := range sub.Documents {
		i := i
		g.Go(func() error {
			works[i] = o.analyzeDocument(gctx, pol, sub.Documents[i])
			reviewOnce.Do(func() {
				if err := o.repo.MarkUnderReview(context.WithoutCancel(gctx), sub.ID); err != nil {
					log.Printf("KYC %s: mark under review: %v", ref, err)
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	timedOut := runCtx.Err() != nil

	// Field extraction from the ID front/back OCR text, plus the clearance
	// page when present.
	fields := o.extractFields(sub, works)
	validity := fields.ClearanceValidityDate

	// Phase two: verdicts. Serial and pure; the clearance validity date from
	// extraction feeds the expiry checks.
	now := o.now()
	analyses := make([]kyc.Analysis, 0, len(works))
	persistCtx := context.WithoutCancel(ctx)
	for _, w := range works {
		var a kyc.Analysis
		if w.unreadable {
			a = kyc.Analysis{
				Role: w.role, Verdict: kyc.VerdictSkipped,
				Reason:     kyc.ReasonUnreadableDocument,
				Message:    kyc.ReasonUnreadableDocument.Message(),
				Warnings:   w.skipped,
				VerifiedAt: now,
			}
		} else if len(w.skipped) > 0 {
			a = kyc.Analysis{Role: w.role, Verdict: kyc.VerdictSkipped, Warnings: w.skipped, VerifiedAt: now}
		} else {
			a = kyc.VerifyDocument(w.role, w.face, w.ocr, w.quality, validity, now)
		}
		analyses = append(analyses, a)
		row := analysisRow(w.doc.ID, w, a)
		if err := o.repo.SaveAnalysis(persistCtx, &row); err != nil {
			return nil, fmt.Errorf("save analysis for %s: %w", w.role, err)
		}
	}
	if err := o.repo.SaveFields(persistCtx, fieldsRow(sub.ID, fields)); err != nil {
		return nil, fmt.Errorf("save fields: %w", err)
	}

	// Face match between the ID portrait and the selfie.
	faceMatch := o.matchFaces(sub.OwnerKind, works)

	confirmed := sub.Fields != nil && sub.Fields.Confirmed()
	dec := kyc.Decide(kyc.DecisionInput{
		Kind:            sub.OwnerKind,
		Analyses:        analyses,
		FieldsConfirmed: confirmed,
		FaceMatch:       faceMatch,
		TimedOut:        timedOut,
		Policy:          pol,
	})

	record, fresh, err := o.finalize(persistCtx, sub, dec, pol, now)
	if err != nil {
		return nil, err
	}
	if fresh {
		o.emitOutcome(persistCtx, sub, dec, record)
	}
	log.Printf("KYC %s: %s confidence=%.2f in %s", ref, record.Outcome, record.OverallConfidence, time.Since(start).Round(time.Millisecond))
	return record, nil
}

// analyzeDocument fetches the bytes and runs the analyzers that apply to the
// role, each under its own deadline.
func (o *Orchestrator) analyzeDocument(ctx context.Context, pol kyc.Policy, doc models.KycDocument) docWork {
	w := docWork{doc: doc, role: kyc.DocumentRole(doc.Role)}

	data, err := storage.FetchWithRetry(ctx, o.store, doc.Bucket, doc.StorePath)
	if err != nil {
		log.Printf("KYC doc %d (%s): fetch failed: %v", doc.ID, doc.Role, err)
		w.skipped = append(w.skipped, "document fetch failed")
		w.unreadable = true
		return w
	}

	type scored struct {
		q   kyc.QualityResult
		err error
	}
	if out, ok := runWithTimeout(ctx, pol.QualityTimeout, func() (scored, error) {
		q, err := o.quality(data, w.role)
		return scored{q, err}, nil
	}); ok {
		if out.err != nil {
			// Bytes do not decode as an image; no analyzer can use them.
			w.skipped = append(w.skipped, "undecodable image")
			w.unreadable = true
			return w
		}
		w.quality = &out.q
	} else {
		w.skipped = append(w.skipped, "quality analysis timed out")
	}

	if w.role.NeedsFace() {
		if f, ok := runWithTimeout(ctx, pol.FaceTimeout, func() (kyc.FaceResult, error) {
			return o.face(ctx, data, 1)
		}); ok {
			w.face = &f
		} else {
			w.skipped = append(w.skipped, "face detection unavailable")
		}
	}

	if w.role != kyc.RoleSelfie && w.role != kyc.RoleRepSelfie {
		if r, ok := runWithTimeout(ctx, pol.OCRTimeout, func() (kyc.OCRResult, error) {
			return o.ocr(data), nil
		}); ok {
			w.ocr = &r
		} else {
			w.skipped = append(w.skipped, "ocr timed out")
		}
	}
	return w
}

// runWithTimeout executes fn with a deadline. The second return is false on
// timeout, cancellation or error; analyzers signal domain outcomes through
// their results, so an error here means the analyzer itself was unusable.
func runWithTimeout[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, bool) {
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn()
		ch <- outcome{v, err}
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case out := <-ch:
		if out.err != nil {
			var zero T
			return zero, false
		}
		return out.val, true
	case <-timer.C:
	case <-ctx.Done():
	}
	var zero T
	return zero, false
}

// extractFields concatenates the front/back OCR text for the identity card
// and parses both the card fields and the clearance when one was submitted.
func (o *Orchestrator) extractFields(sub *models.KycSubmission, works []docWork) kyc.Fields {
	frontRole, backRole := kyc.RoleIDFront, kyc.RoleIDBack
	if sub.OwnerKind == models.SubmissionKindAgency {
		frontRole, backRole = kyc.RoleRepIDFront, kyc.RoleRepIDBack
	}

	var parts []string
	var conf float64
	var n int
	for _, w := range works {
		if (w.role == frontRole || w.role == backRole) && w.ocr != nil && !w.ocr.Skipped {
			parts = append(parts, w.ocr.Text)
			conf += w.ocr.MeanConfidence
			n++
		}
	}
	if n > 0 {
		conf /= float64(n)
	}
	fields := kyc.ExtractFields(strings.Join(parts, " "), sub.DeclaredIDType, conf)

	for _, w := range works {
		if w.role == kyc.RoleClearance && w.ocr != nil && !w.ocr.Skipped {
			kyc.ExtractClearance(&fields, w.ocr.Text, w.ocr.MeanConfidence)
		}
	}
	return fields
}

// matchFaces pairs the ID portrait descriptor with the selfie descriptor.
func (o *Orchestrator) matchFaces(ownerKind string, works []docWork) *float64 {
	frontRole, selfieRole := kyc.RoleIDFront, kyc.RoleSelfie
	if ownerKind == models.SubmissionKindAgency {
		frontRole, selfieRole = kyc.RoleRepIDFront, kyc.RoleRepSelfie
	}
	var front, selfie []float32
	for _, w := range works {
		if w.face == nil {
			continue
		}
		switch w.role {
		case frontRole:
			front = w.face.Descriptor
		case selfieRole:
			selfie = w.face.Descriptor
		}
	}
	return kyc.MatchFaces(front, selfie)
}

// finalize maps the decision to a submission status and writes everything in
// one transaction through the repo.
func (o *Orchestrator) finalize(ctx context.Context, sub *models.KycSubmission, dec kyc.Decision, pol kyc.Policy, now time.Time) (*models.DecisionRecord, bool, error) {
	status := models.SubmissionStatusUnderReview
	var verified *bool
	var retryAt *time.Time
	switch dec.Outcome {
	case kyc.OutcomeApproved:
		status = models.SubmissionStatusApproved
		v := true
		verified = &v
	case kyc.OutcomeRejected:
		status = models.SubmissionStatusRejected
		v := false
		verified = &v
		t := kyc.CooldownUntil(pol, now)
		retryAt = &t
	}

	return o.repo.FinalizeDecision(ctx, Finalization{
		Submission: sub,
		Decision: models.DecisionRecord{
			SubmissionID:        sub.ID,
			Outcome:             string(dec.Outcome),
			OverallConfidence:   dec.OverallConfidence,
			FaceMatchSimilarity: dec.FaceMatch,
			ThresholdsJSON:      pol.ThresholdsJSON(),
			Reasons:             strings.Join(dec.Reasons, "\n"),
			DecidedAt:           now,
		},
		Status:          status,
		SetVerified:     verified,
		RetryEligibleAt: retryAt,
		Audit: models.AuditEntry{
			SubmissionID: sub.ID,
			OwnerKind:    sub.OwnerKind,
			OwnerID:      sub.OwnerID,
			Outcome:      string(dec.Outcome),
			Actor:        "pipeline",
			Detail:       strings.Join(dec.Reasons, "; "),
		},
	})
}

// emitOutcome enqueues the owner notification for terminal outcomes. Review
// outcomes notify nobody; the human decision does that later.
func (o *Orchestrator) emitOutcome(ctx context.Context, sub *models.KycSubmission, dec kyc.Decision, record *models.DecisionRecord) {
	if o.notifier == nil {
		return
	}
	var kind, msg string
	agency := sub.OwnerKind == models.SubmissionKindAgency
	switch record.Outcome {
	case models.OutcomeAutoApproved:
		kind = models.NotifyKycApproved
		if agency {
			kind = models.NotifyAgencyKycApproved
		}
		msg = "Your identity has been verified."
	case models.OutcomeAutoRejected:
		kind = models.NotifyKycRejected
		if agency {
			kind = models.NotifyAgencyKycRejected
		}
		msg = dec.Message
	default:
		return
	}
	if err := o.notifier.Emit(ctx, notify.Payload{
		OwnerKind:       sub.OwnerKind,
		OwnerID:         sub.OwnerID,
		Kind:            kind,
		SubmissionRef:   sub.SubmissionID,
		Message:         msg,
		RetryEligibleAt: sub.RetryEligibleAt,
	}); err != nil {
		log.Printf("KYC %s: notify failed: %v", sub.SubmissionID, err)
	}
}

// analysisRow converts the in-memory analysis to its persistence row.
func analysisRow(docID uint, w docWork, a kyc.Analysis) models.DocumentAnalysis {
	row := models.DocumentAnalysis{
		DocumentID:       docID,
		Status:           string(a.Verdict),
		AIConfidence:     a.Confidence,
		RejectionReason:  string(a.Reason),
		RejectionMessage: a.Message,
		Warnings:         strings.Join(a.Warnings, "\n"),
		VerifiedAt:       a.VerifiedAt,
	}
	if w.face != nil {
		detected := w.face.FaceCount > 0
		row.FaceDetected = &detected
		row.FaceCount = w.face.FaceCount
		row.FaceConfidence = w.face.FaceConfidence
	}
	if w.ocr != nil && !w.ocr.Skipped {
		row.OCRText = kyc.TruncateOCRText(w.ocr.Text)
		row.OCRConfidence = w.ocr.MeanConfidence
	}
	if w.quality != nil {
		row.QualityScore = w.quality.Score
	}
	return row
}

// fieldsRow converts the extraction result to its persistence row.
func fieldsRow(submissionID uint, f kyc.Fields) *models.ExtractedFields {
	return &models.ExtractedFields{
		SubmissionID:          submissionID,
		FirstName:             f.FirstName.Value,
		FirstNameConf:         f.FirstName.Confidence,
		MiddleName:            f.MiddleName.Value,
		MiddleNameConf:        f.MiddleName.Confidence,
		LastName:              f.LastName.Value,
		LastNameConf:          f.LastName.Confidence,
		Birthdate:             f.Birthdate,
		BirthdateConf:         f.BirthdateConf,
		Address:               f.Address.Value,
		AddressConf:           f.Address.Confidence,
		IDNumber:              f.IDNumber.Value,
		IDNumberConf:          f.IDNumber.Confidence,
		Nationality:           f.Nationality.Value,
		NationalityConf:       f.Nationality.Confidence,
		Sex:                   f.Sex.Value,
		SexConf:               f.Sex.Confidence,
		PlaceOfBirth:          f.PlaceOfBirth.Value,
		PlaceOfBirthConf:      f.PlaceOfBirth.Confidence,
		ClearanceNumber:       f.ClearanceNumber.Value,
		ClearanceNumberConf:   f.ClearanceNumber.Confidence,
		ClearanceType:         f.ClearanceType,
		ClearanceIssueDate:    f.ClearanceIssueDate,
		ClearanceValidityDate: f.ClearanceValidityDate,
	}
}
