package oauth

import (
	"context"
	"strings"
	"testing"
)

func TestAuthenticateEncodesBearerEnvelope(t *testing.T) {
	mech := Auth{Token: "tok123"}.AsMechanism()
	if mech.Name() != "OAUTHBEARER" {
		t.Fatalf("Name() = %q, want OAUTHBEARER", mech.Name())
	}

	_, msg, err := mech.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := "n,,\x01auth=Bearer tok123\x01\x01"
	if string(msg) != want {
		t.Fatalf("Authenticate message = %q, want %q", msg, want)
	}
}

func TestChallengeEmptyResponseSucceeds(t *testing.T) {
	mech := Auth{Token: "tok123"}.AsMechanism()
	sess, _, err := mech.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	done, clientWrite, err := sess.Challenge(nil)
	if err != nil || !done || clientWrite != nil {
		t.Fatalf("Challenge(nil) = (%v, %v, %v), want (true, nil, nil)", done, clientWrite, err)
	}
}

func TestChallengeInvalidTokenFails(t *testing.T) {
	mech := Auth{Token: "tok123"}.AsMechanism()
	sess, _, err := mech.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_, _, err = sess.Challenge([]byte(`{"status":"invalid_token"}`))
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("Challenge with invalid_token status: err = %v, want invalid_token error", err)
	}
}

func TestEmptyTokenRejected(t *testing.T) {
	mech := Auth{}.AsMechanism()
	if _, _, err := mech.Authenticate(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
