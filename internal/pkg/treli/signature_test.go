package treli

import "testing"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event_type":"payment_approved"}`)
	secret := "top-secret"
	valid := Sign(payload, secret)

	if !VerifySignature(payload, valid, secret) {
		t.Fatalf("expected signature to validate")
	}
	if !VerifySignature(payload, "sha256="+valid, secret) {
		t.Fatalf("expected prefixed signature to validate")
	}
	if VerifySignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifySignature(payload, "not-hex", secret) {
		t.Fatalf("expected non-hex signature to fail")
	}
	if VerifySignature(payload, valid, "") {
		t.Fatalf("expected empty secret to fail")
	}
	if VerifySignature([]byte(`{}`), valid, secret) {
		t.Fatalf("expected tampered payload to fail")
	}
}
