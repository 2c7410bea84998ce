package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Banyel3/iayos-sub003/models"
	"github.com/Banyel3/iayos-sub003/pkg/kyc"
	"github.com/Banyel3/iayos-sub003/pkg/notify"
)

// reviewQueueHandler lists submissions waiting on a human, oldest first.
func reviewQueueHandler(c *gin.Context) {
	var subs []models.KycSubmission
	err := db.Preload("Documents").Preload("Documents.Analysis").
		Preload("Fields").Preload("Decision").
		Joins("JOIN decision_records ON decision_records.submission_id = kyc_submissions.id").
		Where("kyc_submissions.status = ? AND decision_records.outcome = ?",
			models.SubmissionStatusUnderReview, models.OutcomePendingHumanReview).
		Order("kyc_submissions.id asc").Limit(100).Find(&subs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	items := make([]gin.H, 0, len(subs))
	for i := range subs {
		v := submissionView(&subs[i])
		v["owner_kind"] = subs[i].OwnerKind
		v["owner_id"] = subs[i].OwnerID
		items = append(items, v)
	}
	c.JSON(http.StatusOK, items)
}

func approveKycHandler(c *gin.Context) { humanDecision(c, true) }
func rejectKycHandler(c *gin.Context)  { humanDecision(c, false) }

// humanDecision applies a reviewer verdict: terminal status, owner verified
// flag and the audit entry move in one transaction, then the notification.
func humanDecision(c *gin.Context, approve bool) {
	reviewer, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&req) // notes optional

	var sub models.KycSubmission
	if err := db.Where("submission_id = ?", c.Param("id")).First(&sub).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if sub.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "submission already decided"})
		return
	}

	now := time.Now()
	status := models.SubmissionStatusApproved
	outcome := models.OutcomeAutoApproved // stored outcome strings are shared
	if !approve {
		status = models.SubmissionStatusRejected
		outcome = models.OutcomeAutoRejected
	}
	var retryAt *time.Time
	if !approve {
		t := kyc.CooldownUntil(policies.Snapshot(), now)
		retryAt = &t
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":         status,
			"reviewed_by_id": reviewer.ID,
			"reviewed_at":    now,
			"reviewer_notes": req.Notes,
			"decided_at":     now,
		}
		if retryAt != nil {
			updates["retry_eligible_at"] = *retryAt
		}
		if err := tx.Model(&models.KycSubmission{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return err
		}
		if sub.OwnerKind == models.SubmissionKindAgency {
			if err := tx.Model(&models.Agency{}).Where("id = ?", sub.OwnerID).Update("verified", approve).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&models.User{}).Where("id = ?", sub.OwnerID).Update("verified", approve).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.AuditEntry{
			SubmissionID: sub.ID,
			OwnerKind:    sub.OwnerKind,
			OwnerID:      sub.OwnerID,
			Outcome:      outcome,
			Actor:        reviewer.Username,
			Detail:       req.Notes,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decision failed"})
		return
	}

	kind := models.NotifyKycApproved
	msg := "Your identity has been verified."
	agency := sub.OwnerKind == models.SubmissionKindAgency
	if approve && agency {
		kind = models.NotifyAgencyKycApproved
	} else if !approve {
		kind = models.NotifyKycRejected
		if agency {
			kind = models.NotifyAgencyKycRejected
		}
		msg = "Your verification was not approved. Please review the feedback and resubmit."
	}
	_ = notifier.Emit(c.Request.Context(), notify.Payload{
		OwnerKind:       sub.OwnerKind,
		OwnerID:         sub.OwnerID,
		Kind:            kind,
		SubmissionRef:   sub.SubmissionID,
		Message:         msg,
		RetryEligibleAt: retryAt,
	})

	c.JSON(http.StatusOK, gin.H{"submission_id": sub.SubmissionID, "status": status})
}
