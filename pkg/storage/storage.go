// Package storage abstracts the object store holding KYC documents. Buckets
// in use: kyc-docs (private, individuals), agency (private, agencies) and
// users (public profile media).
package storage

import (
	"context"
	"errors"
	"time"
)

// Buckets.
const (
	BucketKycDocs = "kyc-docs"
	BucketAgency  = "agency"
	BucketUsers   = "users"
)

// ErrNotFound: no object at the given path. Not retried.
var ErrNotFound = errors.New("object not found")

// ErrTransient wraps failures worth retrying (I/O hiccups, timeouts).
type ErrTransient struct{ Err error }

func (e *ErrTransient) Error() string { return "transient storage error: " + e.Err.Error() }
func (e *ErrTransient) Unwrap() error { return e.Err }

// Store is the object-storage interface consumed by the pipeline.
type Store interface {
	FetchBytes(ctx context.Context, bucket, path string) ([]byte, error)
	Put(ctx context.Context, bucket, path string, data []byte) error
	SignedURL(bucket, path string, ttl time.Duration) (string, error)
	PublicURL(bucket, path string) string
}

// retrySchedule is the exponential backoff applied to transient fetch
// failures before a document is recorded as unreadable.
var retrySchedule = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// FetchWithRetry fetches bytes, retrying transient errors up to three times.
// Not-found and decode-level failures surface immediately.
func FetchWithRetry(ctx context.Context, s Store, bucket, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := s.FetchBytes(ctx, bucket, path)
		if err == nil {
			return data, nil
		}
		var tr *ErrTransient
		if !errors.As(err, &tr) || attempt >= len(retrySchedule) {
			return nil, err
		}
		lastErr = err
		select {
		case <-time.After(retrySchedule[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		_ = lastErr
	}
}

// privateBuckets lists buckets that must never be exposed via public URLs.
var privateBuckets = map[string]bool{
	BucketKycDocs: true,
	BucketAgency:  true,
}

// Private reports whether a bucket requires signed access.
func Private(bucket string) bool { return privateBuckets[bucket] }

// ResolveURL is the single URL resolver: signed URLs for private buckets,
// public URLs only for intentionally public ones.
func ResolveURL(s Store, bucket, path string, ttl time.Duration) (string, error) {
	if privateBuckets[bucket] {
		return s.SignedURL(bucket, path, ttl)
	}
	return s.PublicURL(bucket, path), nil
}
