package errors

import (
	stderrs "errors"
	"net/http"
	"testing"
	"time"
)

func TestCodeOfAndIsCode(t *testing.T) {
	t.Parallel()

	err := Unavailablef("forge down")
	if !IsCode(err, ErrorCodeUnavailable) {
		t.Fatalf("expected unavailable, got %v", CodeOf(err))
	}

	wrapped := Wrap(err, ErrorCodeDB, "store write failed")
	if got := CodeOf(wrapped); got != ErrorCodeDB {
		t.Fatalf("outermost code wins, got %v", got)
	}

	if got := CodeOf(stderrs.New("plain")); got != ErrorCodeUnknown {
		t.Fatalf("foreign errors map to unknown, got %v", got)
	}
}

func TestRetryAfterRoundTrip(t *testing.T) {
	t.Parallel()

	err := RateLimitedf(30*time.Second, "remote throttled")
	if got := RetryAfterOf(err); got != 30*time.Second {
		t.Fatalf("RetryAfterOf = %v, want 30s", got)
	}
	if !Transient(err) {
		t.Fatalf("rate limited must be transient")
	}

	// copy-on-write must not mutate the original
	orig := Unavailablef("x")
	hinted := WithRetryAfter(orig, time.Minute)
	if RetryAfterOf(orig) != 0 {
		t.Fatalf("WithRetryAfter mutated original")
	}
	if RetryAfterOf(hinted) != time.Minute {
		t.Fatalf("hint lost on copy")
	}
}

func TestTransientCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{Unavailablef("a"), true},
		{RateLimitedf(time.Second, "b"), true},
		{Unauthorizedf("c"), false},
		{NotFoundf("d"), false},
		{ChallengeMismatchf("e"), false},
	}
	for _, tc := range cases {
		if got := Transient(tc.err); got != tc.want {
			t.Fatalf("Transient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestVerificationCodeHTTPMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeInvalidTransition, http.StatusConflict},
		{ErrorCodeChallengeExpired, http.StatusGone},
		{ErrorCodeChallengeMismatch, http.StatusBadRequest},
		{ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := HTTPStatusCode(tc.code); got != tc.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestWireFrom(t *testing.T) {
	t.Parallel()

	w := WireFrom(WithField(InvalidArgf("bad hostname"), "hostname"))
	if w.Code != ErrorCodeInvalidArgument || w.Field != "hostname" {
		t.Fatalf("unexpected wire: %+v", w)
	}

	if w := WireFrom(nil); w.Code != ErrorCodeUnknown || w.Message != "" {
		t.Fatalf("nil error should produce zero wire, got %+v", w)
	}
}

func TestRootUnwrapsToDeepestCause(t *testing.T) {
	t.Parallel()

	base := stderrs.New("dial tcp: refused")
	err := Wrap(Wrap(base, ErrorCodeUnavailable, "gitea list"), ErrorCodeDB, "cycle")
	if Root(err) != base {
		t.Fatalf("Root did not reach the base cause")
	}
}
