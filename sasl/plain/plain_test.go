package plain

import (
	"context"
	"testing"
)

func TestAuthenticateEncodesNullSeparatedFields(t *testing.T) {
	mech := Auth{Zid: "z", User: "user", Pass: "pencil"}.AsMechanism()
	if mech.Name() != "PLAIN" {
		t.Fatalf("Name() = %q, want PLAIN", mech.Name())
	}

	_, msg, err := mech.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := "z\x00user\x00pencil"
	if string(msg) != want {
		t.Fatalf("Authenticate message = %q, want %q", msg, want)
	}
}

func TestAuthenticateEmptyUsernameRejected(t *testing.T) {
	mech := Auth{Pass: "pencil"}.AsMechanism()
	if _, _, err := mech.Authenticate(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty username")
	}
}

func TestChallengeAlwaysSucceeds(t *testing.T) {
	mech := Auth{User: "user", Pass: "pencil"}.AsMechanism()
	sess, _, err := mech.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	done, clientWrite, err := sess.Challenge(nil)
	if err != nil || !done || clientWrite != nil {
		t.Fatalf("Challenge = (%v, %v, %v), want (true, nil, nil)", done, clientWrite, err)
	}
}
