package service

import (
	"context"
	"testing"
	"time"

	perr "starchart/internal/platform/errors"
	cdom "starchart/internal/services/catalog/domain"
	crepo "starchart/internal/services/catalog/repo"
)

type fakeResolver struct {
	records map[string][]string
	err     error
	calls   int
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[name], nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func testSvc(t *testing.T) (*Svc, *fakeResolver, crepo.Store, *time.Time) {
	t.Helper()
	store := crepo.NewMemory()
	res := &fakeResolver{records: map[string][]string{}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := NewWith(store, Config{TTL: 5 * time.Minute})
	s.resolver = res
	s.now = func() time.Time { return now }
	s.newToken = func() string { return "tok-123" }
	return s, res, store, &now
}

func TestIssueThenVerify(t *testing.T) {
	t.Parallel()
	s, res, _, _ := testSvc(t)
	ctx := context.Background()

	c, err := s.Issue(ctx, "Example.ORG")
	if err != nil {
		t.Fatal(err)
	}
	if c.Domain != "example.org" || c.Token != "tok-123" || c.Status != cdom.ChallengePending {
		t.Fatalf("issued %+v", c)
	}

	res.records["_starchart-challenge.example.org"] = []string{"unrelated", "tok-123"}
	got, err := s.Verify(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != cdom.ChallengeVerified {
		t.Fatalf("status %s", got.Status)
	}

	ok, err := s.Admitted(ctx, "example.org")
	if err != nil || !ok {
		t.Fatalf("admitted = %v, %v", ok, err)
	}
}

func TestIssueIsReplaySafe(t *testing.T) {
	t.Parallel()
	s, _, _, _ := testSvc(t)
	ctx := context.Background()

	first, err := s.Issue(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	s.newToken = func() string { return "tok-456" }
	second, err := s.Issue(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	// a live pending challenge is returned unchanged, not rotated
	if second.Token != first.Token {
		t.Fatalf("token rotated on reissue: %s vs %s", second.Token, first.Token)
	}
}

func TestVerifyWrongTokenFailsThenRetrySucceeds(t *testing.T) {
	t.Parallel()
	s, res, store, _ := testSvc(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "example.org"); err != nil {
		t.Fatal(err)
	}

	res.records["_starchart-challenge.example.org"] = []string{"tok-999"}
	got, err := s.Verify(ctx, "example.org")
	if !perr.IsCode(err, perr.ErrorCodeChallengeMismatch) {
		t.Fatalf("mismatch = %v", err)
	}
	if got.Status != cdom.ChallengeFailed {
		t.Fatalf("status %s", got.Status)
	}

	// the operator fixes the record; the same challenge still verifies
	res.records["_starchart-challenge.example.org"] = []string{"tok-123"}
	got, err = s.Verify(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != cdom.ChallengeVerified {
		t.Fatalf("status %s", got.Status)
	}

	stored, err := store.GetChallenge(ctx, "example.org")
	if err != nil || stored.Status != cdom.ChallengeVerified {
		t.Fatalf("stored %+v, %v", stored, err)
	}
}

func TestVerifyAfterExpiry(t *testing.T) {
	t.Parallel()
	s, res, _, now := testSvc(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "example.org"); err != nil {
		t.Fatal(err)
	}
	res.records["_starchart-challenge.example.org"] = []string{"tok-123"}

	*now = now.Add(6 * time.Minute)
	got, err := s.Verify(ctx, "example.org")
	if !perr.IsCode(err, perr.ErrorCodeChallengeExpired) {
		t.Fatalf("expired = %v", err)
	}
	if got.Status != cdom.ChallengeExpired {
		t.Fatalf("status %s", got.Status)
	}
	if res.calls != 0 {
		t.Fatalf("no lookup should happen after expiry, saw %d", res.calls)
	}

	// expired is terminal; correct record cannot revive it
	_, err = s.Verify(ctx, "example.org")
	if !perr.IsCode(err, perr.ErrorCodeChallengeExpired) {
		t.Fatalf("revived terminal challenge: %v", err)
	}

	// but a fresh challenge can be issued for the same domain
	s.newToken = func() string { return "tok-789" }
	c, err := s.Issue(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	if c.Token != "tok-789" || c.Status != cdom.ChallengePending {
		t.Fatalf("reissue after expiry %+v", c)
	}
}

func TestVerifyLookupTimeoutIsFailedAttempt(t *testing.T) {
	t.Parallel()
	s, res, _, _ := testSvc(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "example.org"); err != nil {
		t.Fatal(err)
	}
	res.err = timeoutErr{}

	got, err := s.Verify(ctx, "example.org")
	if !perr.IsCode(err, perr.ErrorCodeChallengeMismatch) {
		t.Fatalf("timeout = %v", err)
	}
	// failed, not expired: the window is still open and a retry may succeed
	if got.Status != cdom.ChallengeFailed {
		t.Fatalf("status %s", got.Status)
	}

	res.err = nil
	res.records["_starchart-challenge.example.org"] = []string{"tok-123"}
	got, err = s.Verify(ctx, "example.org")
	if err != nil || got.Status != cdom.ChallengeVerified {
		t.Fatalf("retry after timeout: %+v, %v", got, err)
	}
}

func TestVerifyAlreadyVerifiedIsNoop(t *testing.T) {
	t.Parallel()
	s, res, _, _ := testSvc(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, "example.org"); err != nil {
		t.Fatal(err)
	}
	res.records["_starchart-challenge.example.org"] = []string{"tok-123"}
	if _, err := s.Verify(ctx, "example.org"); err != nil {
		t.Fatal(err)
	}

	calls := res.calls
	got, err := s.Verify(ctx, "example.org")
	if err != nil || got.Status != cdom.ChallengeVerified {
		t.Fatalf("re-verify: %+v, %v", got, err)
	}
	if res.calls != calls {
		t.Fatalf("re-verify must not hit DNS again")
	}
}

func TestVerifyUnknownDomain(t *testing.T) {
	t.Parallel()
	s, _, _, _ := testSvc(t)

	_, err := s.Verify(context.Background(), "nowhere.example")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("unknown domain = %v", err)
	}

	ok, err := s.Admitted(context.Background(), "nowhere.example")
	if err != nil || ok {
		t.Fatalf("admitted for unknown = %v, %v", ok, err)
	}
}
