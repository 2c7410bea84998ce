package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore keeps each bucket as a directory under a base path. It is the
// deployment default; swapping in a cloud-backed Store is a config change,
// not a pipeline change.
type LocalStore struct {
	Base      string
	SignKey   []byte // HMAC key for signed URLs
	PublicBase string // external base, e.g. https://cdn.example.com/files
}

// NewLocalStoreFromEnv reads UPLOAD_BASE (default "uploads"), SIGN_KEY and
// PUBLIC_BASE_URL.
func NewLocalStoreFromEnv() *LocalStore {
	base := os.Getenv("UPLOAD_BASE")
	if base == "" {
		base = "uploads"
	}
	key := os.Getenv("SIGN_KEY")
	if key == "" {
		key = "dev-insecure-sign-key" // development fallback
	}
	pub := strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	if pub == "" {
		pub = "/files"
	}
	return &LocalStore{Base: base, SignKey: []byte(key), PublicBase: pub}
}

// EnsureBuckets creates the bucket directories.
func (s *LocalStore) EnsureBuckets() error {
	for _, b := range []string{BucketKycDocs, BucketAgency, BucketUsers} {
		if err := os.MkdirAll(filepath.Join(s.Base, b), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) fullPath(bucket, path string) string {
	return filepath.Join(s.Base, bucket, filepath.FromSlash(path))
}

func (s *LocalStore) FetchBytes(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.fullPath(bucket, path))
	if err != nil {
		if _, ok := err.(*fs.PathError); ok && os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &ErrTransient{Err: err}
	}
	return data, nil
}

func (s *LocalStore) Put(ctx context.Context, bucket, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := s.fullPath(bucket, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &ErrTransient{Err: err}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return &ErrTransient{Err: err}
	}
	return nil
}

// SignedURL issues a time-limited HMAC-signed URL for a private object.
func (s *LocalStore) SignedURL(bucket, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	exp := time.Now().Add(ttl).Unix()
	sig := s.sign(bucket, path, exp)
	return fmt.Sprintf("%s/%s/%s?exp=%d&sig=%s", s.PublicBase, bucket, path, exp, sig), nil
}

func (s *LocalStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", s.PublicBase, bucket, path)
}

// VerifySignature checks a signed URL's exp+sig pair; used by the file
// serving handler.
func (s *LocalStore) VerifySignature(bucket, path, expStr, sig string) bool {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(s.sign(bucket, path, exp)), []byte(sig))
}

func (s *LocalStore) sign(bucket, path string, exp int64) string {
	mac := hmac.New(sha256.New, s.SignKey)
	fmt.Fprintf(mac, "%s/%s:%d", bucket, path, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
