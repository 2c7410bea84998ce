package notify

import (
	"errors"
	"testing"
)

func TestDedupeKey(t *testing.T) {
	if got := DedupeKey("sub-123", "KYC_APPROVED"); got != "sub-123:KYC_APPROVED" {
		t.Errorf("DedupeKey = %q", got)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("duplicate key value violates unique constraint \"idx_notifications_dedupe\""), true},
		{errors.New("UNIQUE constraint failed: notifications.dedupe_key"), false},
		{errors.New("unique constraint violation"), true},
		{errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := isUniqueConstraintError(c.err); got != c.want {
			t.Errorf("isUniqueConstraintError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
