// Package notify emits KYC outcome notifications. Delivery is at-least-once;
// consumers dedupe on the idempotency key (submission id + outcome), which is
// also a unique column so the outbox itself can never hold duplicates.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Banyel3/iayos-sub003/models"
)

// Notifier writes notification rows after the decision transaction commits.
// An optional redis client short-circuits duplicate emits cheaply; the DB
// unique index remains the authority when redis is absent or lossy.
type Notifier struct {
	db    *gorm.DB
	cache *RedisCache
}

func NewNotifier(db *gorm.DB, cache *RedisCache) *Notifier {
	return &Notifier{db: db, cache: cache}
}

// Payload describes one notification to emit.
type Payload struct {
	OwnerKind       string
	OwnerID         uint
	Kind            string
	SubmissionRef   string
	Message         string
	RetryEligibleAt *time.Time
}

// Emit persists the notification unless an identical one (same submission and
// outcome) was already emitted. Safe to call repeatedly.
func (n *Notifier) Emit(ctx context.Context, p Payload) error {
	key := DedupeKey(p.SubmissionRef, p.Kind)
	if n.cache != nil {
		fresh, err := n.cache.ClaimOnce(ctx, key, 48*time.Hour)
		if err != nil {
			log.Printf("notify: redis dedupe unavailable, falling back to db: %v", err)
		} else if !fresh {
			return nil // already emitted
		}
	}
	row := models.Notification{
		OwnerKind:       p.OwnerKind,
		OwnerID:         p.OwnerID,
		Kind:            p.Kind,
		SubmissionRef:   p.SubmissionRef,
		Message:         p.Message,
		RetryEligibleAt: p.RetryEligibleAt,
		DedupeKey:       key,
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil // concurrent emit already landed
		}
		return fmt.Errorf("create notification: %w", err)
	}
	log.Printf("NOTIFY kind=%s owner=%s/%d submission=%s", p.Kind, p.OwnerKind, p.OwnerID, p.SubmissionRef)
	return nil
}

// DedupeKey builds the idempotency key for a submission outcome.
func DedupeKey(submissionRef, kind string) string {
	return submissionRef + ":" + kind
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
