package scram

import (
	"bytes"
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// fakeServer replays the RFC 5802 server side of an exchange so tests can
// check the client's ClientProof/ServerSignature. It builds on this
// package's own hmacSum, hashSum and xorBytes, so it shares that math with
// the client side of the comparison.
type fakeServer struct {
	algo       algorithm
	salt       []byte
	iterations int
	pass       string
}

func (fs fakeServer) serverFirst(clientFirstBare, serverNonce string) string {
	return fmt.Sprintf("r=%s,s=%s,i=%d",
		mustField(clientFirstBare, "r")+serverNonce,
		base64.StdEncoding.EncodeToString(fs.salt),
		fs.iterations,
	)
}

func mustField(clientFirstBare, key string) string {
	fields, err := parseFields(clientFirstBare)
	if err != nil {
		panic(err)
	}
	return fields[key]
}

func (fs fakeServer) verifyAndSign(clientFirstBare, serverFirst, clientFinalWithoutProof string, proof []byte) ([]byte, bool) {
	saltedPassword := pbkdf2.Key([]byte(fs.pass), fs.salt, fs.iterations, fs.algo.keyLen, fs.algo.newH)
	clientKey := hmacSum(fs.algo, saltedPassword, "Client Key")
	storedKey := hashSum(fs.algo, clientKey)
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof
	clientSignature := hmacSum(fs.algo, storedKey, authMessage)
	expectedProof := xorBytes(clientKey, clientSignature)
	if !hmac.Equal(expectedProof, proof) {
		return nil, false
	}
	serverKey := hmacSum(fs.algo, saltedPassword, "Server Key")
	return hmacSum(fs.algo, serverKey, authMessage), true
}

func TestSha256FullExchangeSucceeds(t *testing.T) {
	fs := fakeServer{
		algo:       sha256Algo,
		salt:       []byte("QSXCR+Q6sek8bf92"),
		iterations: 4096,
		pass:       "pencil",
	}

	mech := Sha256(Auth{User: "user", Pass: fs.pass})
	sess, clientFirstFull, err := mech.Authenticate(nil, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	clientFirstBare := string(clientFirstFull)[3:] // strip "n,," GS2 header

	serverFirst := fs.serverFirst(clientFirstBare, "serverNonceSuffix")

	done, clientFinal, err := sess.Challenge([]byte(serverFirst))
	if err != nil {
		t.Fatalf("first Challenge: %v", err)
	}
	if done {
		t.Fatalf("first Challenge should not be done")
	}

	fields, err := parseFields(string(clientFinal))
	if err != nil {
		t.Fatalf("parseFields(clientFinal): %v", err)
	}
	proof, err := base64.StdEncoding.DecodeString(fields["p"])
	if err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	clientFinalWithoutProof := "c=biws,r=" + fields["r"]

	sig, ok := fs.verifyAndSign(clientFirstBare, serverFirst, clientFinalWithoutProof, proof)
	if !ok {
		t.Fatalf("server rejected client proof")
	}

	serverFinal := "v=" + base64.StdEncoding.EncodeToString(sig)
	done, clientWrite, err := sess.Challenge([]byte(serverFinal))
	if err != nil {
		t.Fatalf("second Challenge: %v", err)
	}
	if !done {
		t.Fatalf("second Challenge should be done")
	}
	if clientWrite != nil {
		t.Fatalf("second Challenge should not produce a further client write")
	}
}

// TestSha256MatchesRFC7677Vector pins the client nonce to the literal
// value from RFC 7677 §3's worked SCRAM-SHA-256 example and checks the
// resulting ClientProof against that RFC's literal expected bytes,
// rather than against fakeServer, which the other tests in this file use
// and which calls the same hmacSum/hashSum/xorBytes as scram.go. A bug in
// those helpers would show up on both sides of fakeServer's comparison and
// pass every other test here; it cannot survive a check against an
// externally published, fixed answer.
func TestSha256MatchesRFC7677Vector(t *testing.T) {
	const clientNonce = "rOprNGfwEbeRWgbNEkqO"
	prev := newClientNonce
	newClientNonce = func() (string, error) { return clientNonce, nil }
	defer func() { newClientNonce = prev }()

	mech := Sha256(Auth{User: "user", Pass: "pencil"})
	sess, clientFirstFull, err := mech.Authenticate(nil, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	wantClientFirst := "n,,n=user,r=" + clientNonce
	if string(clientFirstFull) != wantClientFirst {
		t.Fatalf("clientFirst = %q, want %q", clientFirstFull, wantClientFirst)
	}

	const serverFirst = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	done, clientFinal, err := sess.Challenge([]byte(serverFirst))
	if err != nil {
		t.Fatalf("first Challenge: %v", err)
	}
	if done {
		t.Fatalf("first Challenge should not be done")
	}

	wantClientFinal := "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0," +
		"p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	if string(clientFinal) != wantClientFinal {
		t.Fatalf("clientFinal = %q, want %q", clientFinal, wantClientFinal)
	}

	const serverFinal = "v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="
	done, clientWrite, err := sess.Challenge([]byte(serverFinal))
	if err != nil {
		t.Fatalf("second Challenge: %v", err)
	}
	if !done {
		t.Fatalf("second Challenge should be done")
	}
	if clientWrite != nil {
		t.Fatalf("second Challenge should not produce a further client write")
	}
}

func TestServerNonceNotPrefixedByClientNonceFails(t *testing.T) {
	mech := Sha256(Auth{User: "user", Pass: "pencil"})
	sess, _, err := mech.Authenticate(nil, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	unrelated := "r=totally-unrelated-nonce,s=" + base64.StdEncoding.EncodeToString([]byte("salt")) + ",i=4096"
	if _, _, err := sess.Challenge([]byte(unrelated)); err == nil {
		t.Fatalf("expected error for tampered server nonce")
	}
}

func TestIterationsBelowMinimumRejected(t *testing.T) {
	mech := Sha256(Auth{User: "user", Pass: "pencil"})
	sess, clientFirstFull, err := mech.Authenticate(nil, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	clientFirstBare := string(clientFirstFull)[3:]
	fields, _ := parseFields(clientFirstBare)

	low := fmt.Sprintf("r=%sx,s=%s,i=1000", fields["r"], base64.StdEncoding.EncodeToString([]byte("salt")))
	if _, _, err := sess.Challenge([]byte(low)); err == nil {
		t.Fatalf("expected error for below-minimum iteration count")
	}
}

func TestServerSignatureMismatchRejected(t *testing.T) {
	fs := fakeServer{algo: sha256Algo, salt: []byte("saltsaltsalt"), iterations: 4096, pass: "pencil"}
	mech := Sha256(Auth{User: "user", Pass: fs.pass})
	sess, clientFirstFull, err := mech.Authenticate(nil, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	clientFirstBare := string(clientFirstFull)[3:]
	serverFirst := fs.serverFirst(clientFirstBare, "x")

	if _, _, err := sess.Challenge([]byte(serverFirst)); err != nil {
		t.Fatalf("first Challenge: %v", err)
	}

	bogus := "v=" + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0}, 32))
	if _, _, err := sess.Challenge([]byte(bogus)); err == nil {
		t.Fatalf("expected error for forged server signature")
	}
}
