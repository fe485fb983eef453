package webhook

import "testing"

func TestSignIsDeterministicForSameInputs(t *testing.T) {
	a := sign("secret", []byte(`{"event":"job.completed"}`))
	b := sign("secret", []byte(`{"event":"job.completed"}`))
	if a != b {
		t.Fatal("expected identical inputs to produce identical signatures")
	}
}

func TestSignHasSha256Prefix(t *testing.T) {
	sig := sign("secret", []byte("body"))
	if len(sig) < len("sha256=") || sig[:len("sha256=")] != "sha256=" {
		t.Fatalf("expected signature to start with sha256=, got %q", sig)
	}
}

func TestSignDiffersOnSecretOrBody(t *testing.T) {
	base := sign("secret", []byte("body"))

	if sign("other-secret", []byte("body")) == base {
		t.Fatal("expected different secret to change the signature")
	}
	if sign("secret", []byte("different")) == base {
		t.Fatal("expected different body to change the signature")
	}
}
