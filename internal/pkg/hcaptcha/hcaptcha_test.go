package hcaptcha

import "testing"

func TestVerifyRejectsEmptyToken(t *testing.T) {
	ok, err := Verify("")
	if ok {
		t.Fatal("empty token verified")
	}
	if err == nil {
		t.Fatal("expected an error for an empty token")
	}
}

func TestVerifyRequiresSecret(t *testing.T) {
	t.Setenv("HCAPTCHA_SECRET", "")
	ok, err := Verify("some-token")
	if ok {
		t.Fatal("verified without a configured secret")
	}
	if err == nil {
		t.Fatal("expected an error when the secret is missing")
	}
}
