package storage

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	return &LocalStore{Base: t.TempDir(), SignKey: []byte("test-key"), PublicBase: "/files"}
}

func TestLocalStorePutFetch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureBuckets())

	ctx := context.Background()
	payload := []byte("front of id")
	require.NoError(t, s.Put(ctx, BucketKycDocs, "user_7/kyc/ID_FRONT_1.jpg", payload))

	got, err := s.FetchBytes(ctx, BucketKycDocs, "user_7/kyc/ID_FRONT_1.jpg")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLocalStoreNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureBuckets())

	_, err := s.FetchBytes(context.Background(), BucketKycDocs, "missing.jpg")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchWithRetryNotFoundIsImmediate(t *testing.T) {
	fake := &flakyStore{failures: 3, err: ErrNotFound}
	start := time.Now()
	_, err := FetchWithRetry(context.Background(), fake, BucketKycDocs, "x")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, fake.calls, "not-found must not be retried")
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestFetchWithRetryTransientThenSuccess(t *testing.T) {
	fake := &flakyStore{failures: 2, err: &ErrTransient{Err: errors.New("io hiccup")}, data: []byte("ok")}
	got, err := FetchWithRetry(context.Background(), fake, BucketKycDocs, "x")
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), got)
	require.Equal(t, 3, fake.calls)
}

func TestFetchWithRetryExhaustion(t *testing.T) {
	fake := &flakyStore{failures: 10, err: &ErrTransient{Err: errors.New("down")}}
	_, err := FetchWithRetry(context.Background(), fake, BucketKycDocs, "x")
	require.Error(t, err)
	var tr *ErrTransient
	require.ErrorAs(t, err, &tr)
	require.Equal(t, 4, fake.calls, "one initial try plus three retries")
}

func TestFetchWithRetryContextCancel(t *testing.T) {
	fake := &flakyStore{failures: 10, err: &ErrTransient{Err: errors.New("down")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FetchWithRetry(ctx, fake, BucketKycDocs, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSignedURLRoundTrip(t *testing.T) {
	s := newTestStore(t)

	u, err := s.SignedURL(BucketKycDocs, "user_7/kyc/SELFIE_1.jpg", time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	q := parsed.Query()
	require.True(t, s.VerifySignature(BucketKycDocs, "user_7/kyc/SELFIE_1.jpg", q.Get("exp"), q.Get("sig")))

	// Wrong path, wrong key and garbage expiries all fail verification.
	require.False(t, s.VerifySignature(BucketKycDocs, "user_8/kyc/SELFIE_1.jpg", q.Get("exp"), q.Get("sig")))
	other := &LocalStore{Base: s.Base, SignKey: []byte("other-key"), PublicBase: "/files"}
	require.False(t, other.VerifySignature(BucketKycDocs, "user_7/kyc/SELFIE_1.jpg", q.Get("exp"), q.Get("sig")))
	require.False(t, s.VerifySignature(BucketKycDocs, "user_7/kyc/SELFIE_1.jpg", "oops", q.Get("sig")))
}

func TestSignedURLExpiry(t *testing.T) {
	s := newTestStore(t)
	expired := time.Now().Add(-time.Minute).Unix()
	sig := s.sign(BucketKycDocs, "a.jpg", expired)
	require.False(t, s.VerifySignature(BucketKycDocs, "a.jpg", itoa64(expired), sig))
}

func TestResolveURL(t *testing.T) {
	s := newTestStore(t)

	u, err := ResolveURL(s, BucketKycDocs, "user_7/kyc/ID_FRONT_1.jpg", time.Minute)
	require.NoError(t, err)
	require.Contains(t, u, "sig=", "private bucket must get a signed URL")

	u, err = ResolveURL(s, BucketUsers, "avatars/7.png", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/files/users/avatars/7.png", u)
	require.False(t, strings.Contains(u, "sig="))
}

func TestPrivate(t *testing.T) {
	require.True(t, Private(BucketKycDocs))
	require.True(t, Private(BucketAgency))
	require.False(t, Private(BucketUsers))
}

// flakyStore fails its first N fetches, then serves data.
type flakyStore struct {
	failures int
	calls    int
	err      error
	data     []byte
}

func (f *flakyStore) FetchBytes(ctx context.Context, bucket, path string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.data, nil
}

func (f *flakyStore) Put(ctx context.Context, bucket, path string, data []byte) error { return nil }
func (f *flakyStore) SignedURL(bucket, path string, ttl time.Duration) (string, error) {
	return "", nil
}
func (f *flakyStore) PublicURL(bucket, path string) string { return "" }

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }
