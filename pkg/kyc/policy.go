package kyc

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Policy holds the tunable thresholds for auto-approval. A snapshot is copied
// by value into each submission's evaluation; reloads only take effect
// between submissions.
type Policy struct {
	AutoApproveMinConfidence float64       `json:"auto_approve_min_confidence"`
	FaceMatchMinSimilarity   float64       `json:"face_match_min_similarity"`
	// SimilarityDriftBand widens the review zone just above the similarity
	// threshold to absorb calibration drift.
	SimilarityDriftBand     float64       `json:"similarity_drift_band"`
	RequireUserConfirmation bool          `json:"require_user_confirmation"`
	RetryCooldown           time.Duration `json:"retry_cooldown"`
	OCRTimeout              time.Duration `json:"ocr_timeout"`
	FaceTimeout             time.Duration `json:"face_timeout"`
	QualityTimeout          time.Duration `json:"quality_timeout"`
	SubmissionTimeout       time.Duration `json:"submission_timeout"`
	RemoteFaceAPIURL        string        `json:"remote_face_api_url"`
}

// DefaultPolicy returns the compiled-in defaults.
func DefaultPolicy() Policy {
	return Policy{
		AutoApproveMinConfidence: 0.90,
		FaceMatchMinSimilarity:   0.85,
		SimilarityDriftBand:      0.05,
		RequireUserConfirmation:  true,
		RetryCooldown:            24 * time.Hour,
		OCRTimeout:               15 * time.Second,
		FaceTimeout:              10 * time.Second,
		QualityTimeout:           5 * time.Second,
		SubmissionTimeout:        60 * time.Second,
	}
}

// PolicyFromEnv builds a policy from environment variables, falling back to
// defaults for anything unset or unparseable.
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	p.AutoApproveMinConfidence = envFloat("AUTO_APPROVE_MIN_CONFIDENCE", p.AutoApproveMinConfidence)
	p.FaceMatchMinSimilarity = envFloat("FACE_MATCH_MIN_SIMILARITY", p.FaceMatchMinSimilarity)
	p.RequireUserConfirmation = envBool("REQUIRE_USER_CONFIRMATION", p.RequireUserConfirmation)
	if secs := envInt("KYC_RETRY_COOLDOWN_SECONDS", 0); secs > 0 {
		p.RetryCooldown = time.Duration(secs) * time.Second
	}
	p.OCRTimeout = envMillis("OCR_TIMEOUT_MS", p.OCRTimeout)
	p.FaceTimeout = envMillis("FACE_TIMEOUT_MS", p.FaceTimeout)
	p.QualityTimeout = envMillis("QUALITY_TIMEOUT_MS", p.QualityTimeout)
	p.SubmissionTimeout = envMillis("SUBMISSION_TIMEOUT_MS", p.SubmissionTimeout)
	p.RemoteFaceAPIURL = os.Getenv("REMOTE_FACE_API_URL") // empty disables remote detection
	return p
}

// ThresholdsJSON renders the applied-thresholds snapshot persisted with each
// decision record.
func (p Policy) ThresholdsJSON() string {
	b, err := json.Marshal(map[string]any{
		"auto_approve_min_confidence": p.AutoApproveMinConfidence,
		"face_match_min_similarity":   p.FaceMatchMinSimilarity,
		"similarity_drift_band":       p.SimilarityDriftBand,
		"require_user_confirmation":   p.RequireUserConfirmation,
		"retry_cooldown_seconds":      int(p.RetryCooldown / time.Second),
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PolicySource hands out policy snapshots and optionally watches a key=value
// policy file so threshold changes apply without a restart. Reload happens
// between submissions only: Snapshot returns a copy.
type PolicySource struct {
	mu  sync.RWMutex
	cur Policy
}

// NewPolicySource seeds the source from the environment.
func NewPolicySource() *PolicySource {
	return &PolicySource{cur: PolicyFromEnv()}
}

// Snapshot returns the current policy by value.
func (ps *PolicySource) Snapshot() Policy {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.cur
}

// Watch reloads the policy whenever the given file changes. Lines are
// KEY=VALUE using the same names as the environment variables. Returns after
// installing the watcher; callers keep it alive for process lifetime.
func (ps *PolicySource) Watch(path string) error {
	if path == "" {
		return nil
	}
	ps.applyFile(path) // pick up initial contents
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					ps.applyFile(path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("policy watch error: %v", err)
			}
		}
	}()
	return nil
}

// applyFile overlays KEY=VALUE pairs from the policy file onto env-derived
// defaults and swaps the snapshot.
func (ps *PolicySource) applyFile(path string) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	next := PolicyFromEnv()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		switch key {
		case "AUTO_APPROVE_MIN_CONFIDENCE":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				next.AutoApproveMinConfidence = v
			}
		case "FACE_MATCH_MIN_SIMILARITY":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				next.FaceMatchMinSimilarity = v
			}
		case "REQUIRE_USER_CONFIRMATION":
			next.RequireUserConfirmation = parseBool(val, next.RequireUserConfirmation)
		case "KYC_RETRY_COOLDOWN_SECONDS":
			if v, err := strconv.Atoi(val); err == nil && v > 0 {
				next.RetryCooldown = time.Duration(v) * time.Second
			}
		}
	}
	ps.mu.Lock()
	ps.cur = next
	ps.mu.Unlock()
	log.Printf("policy reloaded from %s (approve>=%.2f match>=%.2f)", path, next.AutoApproveMinConfidence, next.FaceMatchMinSimilarity)
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if n := envInt(key, 0); n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return parseBool(v, def)
	}
	return def
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
