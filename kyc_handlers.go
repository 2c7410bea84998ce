package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Banyel3/iayos-sub003/models"
	"github.com/Banyel3/iayos-sub003/pkg/kyc"
	"github.com/Banyel3/iayos-sub003/pkg/pipeline"
	"github.com/Banyel3/iayos-sub003/pkg/storage"
)

const maxDocumentBytes = 10 * 1024 * 1024

// submitKycHandler accepts the multipart submission: one file per document
// role plus the declared ID type. The response is 202; analysis runs in the
// background and the client polls the status endpoint.
func submitKycHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	idType := c.PostForm("id_type")
	if idType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_type required"})
		return
	}
	ownerKind := models.SubmissionKindIndividual
	ownerID := user.ID
	if aid := c.PostForm("agency_id"); aid != "" {
		var agency models.Agency
		if err := db.First(&agency, aid).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "agency not found"})
			return
		}
		if agency.OwnerUserID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the agency owner"})
			return
		}
		ownerKind = models.SubmissionKindAgency
		ownerID = agency.ID
	}

	// Client-supplied idempotency key, generated when absent. The ref also
	// namespaces the stored objects.
	ref := strings.TrimSpace(c.PostForm("submission_id"))
	if ref == "" {
		ref = uuid.NewString()
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	allowed := map[string]bool{}
	for _, role := range allRoles() {
		allowed[string(role)] = true
	}

	// Storage layout: user_{id}/kyc/{role}_{ts}.{ext} in the private bucket
	// for the owner kind.
	bucket := storage.BucketKycDocs
	pathPrefix := fmt.Sprintf("user_%d/kyc/", ownerID)
	if ownerKind == models.SubmissionKindAgency {
		bucket = storage.BucketAgency
		pathPrefix = fmt.Sprintf("agency_%d/kyc/", ownerID)
	}
	ts := time.Now().Unix()

	var docs []pipeline.IntakeDocument
	for field, files := range form.File {
		if !allowed[field] || len(files) == 0 {
			continue
		}
		fh := files[0]
		if fh.Size > maxDocumentBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": field + " too large (max 10MB)"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read " + field})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > maxDocumentBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read " + field})
			return
		}
		storePath := fmt.Sprintf("%s%s_%d%s", pathPrefix, field, ts, strings.ToLower(path.Ext(fh.Filename)))
		if err := fileStore.Put(c.Request.Context(), bucket, storePath, data); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
			return
		}
		docs = append(docs, pipeline.IntakeDocument{
			Role:        kyc.DocumentRole(field),
			Bucket:      bucket,
			StorePath:   storePath,
			ContentType: fh.Header.Get("Content-Type"),
			SizeBytes:   fh.Size,
		})
	}

	sub, err := orch.Intake(c.Request.Context(), pipeline.IntakeRequest{
		OwnerKind:      ownerKind,
		OwnerID:        ownerID,
		DeclaredIDType: idType,
		SubmissionRef:  ref,
		Documents:      docs,
	})
	if err != nil {
		switch {
		case errors.Is(err, kyc.ErrSubmissionPending):
			c.JSON(http.StatusConflict, gin.H{"error": "a submission is already being processed"})
		case errors.Is(err, kyc.ErrRetryCooldown):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "please wait before submitting again"})
		case errors.Is(err, kyc.ErrIncompleteSubmission):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
		}
		return
	}

	go func(ref string) {
		if _, err := orch.Process(context.Background(), ref); err != nil {
			log.Printf("KYC %s: processing failed: %v", ref, err)
		}
	}(sub.SubmissionID)

	c.JSON(http.StatusAccepted, gin.H{"submission_id": sub.SubmissionID, "status": sub.Status})
}

func allRoles() []kyc.DocumentRole {
	return []kyc.DocumentRole{
		kyc.RoleIDFront, kyc.RoleIDBack, kyc.RoleSelfie, kyc.RoleClearance,
		kyc.RoleAddressProof, kyc.RoleBusinessPermit, kyc.RoleRepIDFront,
		kyc.RoleRepIDBack, kyc.RoleRepSelfie, kyc.RoleAuthLetter,
	}
}

// loadOwnedSubmission fetches a submission by ref and enforces ownership
// (admins see everything).
func loadOwnedSubmission(c *gin.Context, user *models.User) (*models.KycSubmission, bool) {
	var sub models.KycSubmission
	err := db.Preload("Documents").Preload("Documents.Analysis").
		Preload("Fields").Preload("Decision").
		Where("submission_id = ?", c.Param("id")).First(&sub).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return nil, false
	}
	if role, _ := c.Get("role"); role == "administrator" {
		return &sub, true
	}
	if !ownsSubmission(user, &sub) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &sub, true
}

func ownsSubmission(user *models.User, sub *models.KycSubmission) bool {
	if sub.OwnerKind == models.SubmissionKindAgency {
		var agency models.Agency
		if err := db.First(&agency, sub.OwnerID).Error; err != nil {
			return false
		}
		return agency.OwnerUserID == user.ID
	}
	return sub.OwnerID == user.ID
}

func getKycHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	sub, ok := loadOwnedSubmission(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, submissionView(sub))
}

// submissionView shapes the API response: analysis summaries without raw OCR
// text, the extraction with confidences, and the decision when present.
func submissionView(sub *models.KycSubmission) gin.H {
	docs := make([]gin.H, 0, len(sub.Documents))
	for _, d := range sub.Documents {
		dv := gin.H{"role": d.Role, "uploaded_at": d.UploadedAt}
		if a := d.Analysis; a != nil {
			av := gin.H{
				"status":        a.Status,
				"ai_confidence": a.AIConfidence,
				"quality_score": a.QualityScore,
			}
			if a.FaceDetected != nil {
				av["face_detected"] = *a.FaceDetected
				av["face_count"] = a.FaceCount
			}
			if a.RejectionReason != "" {
				av["rejection_reason"] = a.RejectionReason
				av["message"] = a.RejectionMessage
			}
			if a.Warnings != "" {
				av["warnings"] = strings.Split(a.Warnings, "\n")
			}
			dv["analysis"] = av
		}
		docs = append(docs, dv)
	}
	out := gin.H{
		"submission_id": sub.SubmissionID,
		"status":        sub.Status,
		"id_type":       sub.DeclaredIDType,
		"created_at":    sub.CreatedAt,
		"documents":     docs,
	}
	if sub.DecidedAt != nil {
		out["decided_at"] = sub.DecidedAt
	}
	if sub.RetryEligibleAt != nil {
		out["retry_eligible_at"] = sub.RetryEligibleAt
	}
	if f := sub.Fields; f != nil {
		out["fields"] = gin.H{
			"first_name":  gin.H{"value": f.FirstName, "confidence": f.FirstNameConf},
			"middle_name": gin.H{"value": f.MiddleName, "confidence": f.MiddleNameConf},
			"last_name":   gin.H{"value": f.LastName, "confidence": f.LastNameConf},
			"birthdate":   gin.H{"value": f.Birthdate, "confidence": f.BirthdateConf},
			"address":     gin.H{"value": f.Address, "confidence": f.AddressConf},
			"id_number":   gin.H{"value": f.IDNumber, "confidence": f.IDNumberConf},
			"sex":         gin.H{"value": f.Sex, "confidence": f.SexConf},
			"confirmed":   f.Confirmed(),
		}
	}
	if d := sub.Decision; d != nil {
		out["decision"] = gin.H{
			"outcome":               d.Outcome,
			"overall_confidence":    d.OverallConfidence,
			"face_match_similarity": d.FaceMatchSimilarity,
			"decided_at":            d.DecidedAt,
		}
	}
	return out
}

func listKycHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var subs []models.KycSubmission
	q := db.Preload("Decision").Order("id desc").Limit(50)
	if role, _ := c.Get("role"); role == "administrator" {
		q.Find(&subs)
	} else {
		q.Where("owner_kind = ? AND owner_id = ?", models.SubmissionKindIndividual, user.ID).Find(&subs)
	}
	items := make([]gin.H, 0, len(subs))
	for i := range subs {
		items = append(items, submissionView(&subs[i]))
	}
	c.JSON(http.StatusOK, items)
}

// confirmFieldsHandler records the owner's confirmation (or correction) of
// the extracted fields. Deployments with REQUIRE_USER_CONFIRMATION use this
// as the approval gate.
func confirmFieldsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	sub, ok := loadOwnedSubmission(c, user)
	if !ok {
		return
	}
	if sub.Fields == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "fields not yet extracted"})
		return
	}
	var req struct {
		FirstName  string `json:"first_name"`
		MiddleName string `json:"middle_name"`
		LastName   string `json:"last_name"`
		Birthdate  string `json:"birthdate"` // YYYY-MM-DD
		Address    string `json:"address"`
		IDNumber   string `json:"id_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	now := time.Now()
	updates := map[string]any{
		"confirmed_first_name":  orFallback(req.FirstName, sub.Fields.FirstName),
		"confirmed_middle_name": orFallback(req.MiddleName, sub.Fields.MiddleName),
		"confirmed_last_name":   orFallback(req.LastName, sub.Fields.LastName),
		"confirmed_address":     orFallback(req.Address, sub.Fields.Address),
		"confirmed_id_number":   orFallback(req.IDNumber, sub.Fields.IDNumber),
		"confirmed_at":          now,
	}
	if req.Birthdate != "" {
		if t, err := time.Parse("2006-01-02", req.Birthdate); err == nil {
			updates["confirmed_birthdate"] = t
		}
	} else if sub.Fields.Birthdate != nil {
		updates["confirmed_birthdate"] = *sub.Fields.Birthdate
	}
	if err := db.Model(&models.ExtractedFields{}).Where("id = ?", sub.Fields.ID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
		return
	}
	// Confirmation can unblock auto-approval; re-run the decision.
	if !sub.Terminal() {
		go func(ref string) {
			if _, err := orch.Process(context.Background(), ref); err != nil {
				log.Printf("KYC %s: reprocess after confirmation failed: %v", ref, err)
			}
		}(sub.SubmissionID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "fields confirmed"})
}

func orFallback(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func retryEligibleHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	ownerKind := models.SubmissionKindIndividual
	ownerID := user.ID
	if aid := c.Query("agency_id"); aid != "" {
		var agency models.Agency
		if err := db.First(&agency, aid).Error; err != nil || agency.OwnerUserID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		ownerKind = models.SubmissionKindAgency
		ownerID = agency.ID
	}
	eligible, until, err := orch.RetryEligible(c.Request.Context(), ownerKind, ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := gin.H{"eligible": eligible}
	if until != nil {
		out["retry_eligible_at"] = until
	}
	c.JSON(http.StatusOK, out)
}

// serveFileHandler serves stored objects. Private buckets require a valid
// exp+sig pair from SignedURL; public ones are served directly.
func serveFileHandler(c *gin.Context) {
	bucket := c.Param("bucket")
	objPath := strings.TrimPrefix(c.Param("path"), "/")
	if strings.Contains(objPath, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}
	if storage.Private(bucket) {
		if !fileStore.VerifySignature(bucket, objPath, c.Query("exp"), c.Query("sig")) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired signature"})
			return
		}
	}
	data, err := fileStore.FetchBytes(c.Request.Context(), bucket, objPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}
