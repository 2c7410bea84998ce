package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Banyel3/iayos-sub003/models"
)

// MemoryRepo keeps everything in maps. It exists for tests and for the
// CLI dry-run modes; the locking mirrors what the database gives us.
type MemoryRepo struct {
	mu          sync.Mutex
	nextID      uint
	submissions map[uint]*models.KycSubmission
	byRef       map[string]uint
	documents   map[uint][]models.KycDocument // submission ID -> docs
	analyses    map[uint]*models.DocumentAnalysis
	fields      map[uint]*models.ExtractedFields
	decisions   map[uint]*models.DecisionRecord
	audits      []models.AuditEntry
	verified    map[string]bool // ownerKind/ownerID key
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		nextID:      1,
		submissions: make(map[uint]*models.KycSubmission),
		byRef:       make(map[string]uint),
		documents:   make(map[uint][]models.KycDocument),
		analyses:    make(map[uint]*models.DocumentAnalysis),
		fields:      make(map[uint]*models.ExtractedFields),
		decisions:   make(map[uint]*models.DecisionRecord),
		verified:    make(map[string]bool),
	}
}

func (r *MemoryRepo) id() uint {
	id := r.nextID
	r.nextID++
	return id
}

func (r *MemoryRepo) ActiveSubmission(_ context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.submissions {
		if sub.OwnerKind == ownerKind && sub.OwnerID == ownerID && !sub.Terminal() {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepo) LatestRejected(_ context.Context, ownerKind string, ownerID uint) (*models.KycSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.KycSubmission
	for _, sub := range r.submissions {
		if sub.OwnerKind == ownerKind && sub.OwnerID == ownerID && sub.Status == models.SubmissionStatusRejected {
			if latest == nil || sub.ID > latest.ID {
				latest = sub
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepo) CreateSubmission(_ context.Context, sub *models.KycSubmission, docs []models.KycDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = r.id()
	sub.CreatedAt = time.Now()
	for i := range docs {
		docs[i].ID = r.id()
		docs[i].SubmissionID = sub.ID
	}
	cp := *sub
	r.submissions[sub.ID] = &cp
	r.byRef[sub.SubmissionID] = sub.ID
	r.documents[sub.ID] = append([]models.KycDocument(nil), docs...)
	sub.Documents = docs
	return nil
}

func (r *MemoryRepo) SubmissionByRef(_ context.Context, ref string) (*models.KycSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[ref]
	if !ok {
		return nil, ErrNoSubmission
	}
	sub := *r.submissions[id]
	docs := append([]models.KycDocument(nil), r.documents[id]...)
	for i := range docs {
		if a, ok := r.analyses[docs[i].ID]; ok {
			cp := *a
			docs[i].Analysis = &cp
		}
	}
	sub.Documents = docs
	if f, ok := r.fields[id]; ok {
		cp := *f
		sub.Fields = &cp
	}
	if d, ok := r.decisions[id]; ok {
		cp := *d
		sub.Decision = &cp
	}
	return &sub, nil
}

func (r *MemoryRepo) MarkUnderReview(_ context.Context, submissionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.submissions[submissionID]; ok && sub.Status == models.SubmissionStatusPending {
		sub.Status = models.SubmissionStatusUnderReview
	}
	return nil
}

func (r *MemoryRepo) SaveAnalysis(_ context.Context, a *models.DocumentAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[a.DocumentID]; ok {
		return nil
	}
	cp := *a
	r.analyses[a.DocumentID] = &cp
	return nil
}

func (r *MemoryRepo) SaveFields(_ context.Context, f *models.ExtractedFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fields[f.SubmissionID]; ok {
		return nil
	}
	cp := *f
	r.fields[f.SubmissionID] = &cp
	return nil
}

func (r *MemoryRepo) FinalizeDecision(_ context.Context, fin Finalization) (*models.DecisionRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dec := fin.Decision
	if d, ok := r.decisions[fin.Submission.ID]; ok {
		if d.Outcome != models.OutcomePendingHumanReview {
			cp := *d
			return &cp, false, nil
		}
		dec.ID = d.ID // supersede the provisional review record
	} else {
		dec.ID = r.id()
	}
	r.decisions[fin.Submission.ID] = &dec
	if sub, ok := r.submissions[fin.Submission.ID]; ok {
		sub.Status = fin.Status
		sub.DecidedAt = &dec.DecidedAt
		if fin.RetryEligibleAt != nil {
			sub.RetryEligibleAt = fin.RetryEligibleAt
		}
	}
	if fin.SetVerified != nil {
		r.verified[fin.Submission.OwnerKind+"/"+itoa(fin.Submission.OwnerID)] = *fin.SetVerified
	}
	r.audits = append(r.audits, fin.Audit)
	cp := dec
	return &cp, true, nil
}

func (r *MemoryRepo) StalledSubmissions(_ context.Context, cutoff time.Time, limit int) ([]models.KycSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.KycSubmission
	for id, sub := range r.submissions {
		stalled := sub.Status == models.SubmissionStatusPending ||
			sub.Status == models.SubmissionStatusUnderReview
		if _, decided := r.decisions[id]; decided {
			stalled = false
		}
		if stalled && sub.CreatedAt.Before(cutoff) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OwnerVerified reports the flag the last decision wrote (test helper).
func (r *MemoryRepo) OwnerVerified(ownerKind string, ownerID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verified[ownerKind+"/"+itoa(ownerID)]
}

// Audits returns a copy of the audit trail (test helper).
func (r *MemoryRepo) Audits() []models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEntry(nil), r.audits...)
}

func itoa(v uint) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
