package security

import (
	"strings"
	"testing"
	"time"
)

func TestVoiceSessionTokenRoundTrip(t *testing.T) {
	claims := VoiceSessionClaims{UserID: 42, Plan: "monthly", MaxSeconds: 600}

	token, err := GenerateVoiceSessionToken(claims, time.Minute, "s3cret")
	if err != nil {
		t.Fatalf("GenerateVoiceSessionToken: %v", err)
	}

	got, err := VerifyVoiceSessionToken(token, "s3cret")
	if err != nil {
		t.Fatalf("VerifyVoiceSessionToken: %v", err)
	}
	if got.UserID != 42 || got.Plan != "monthly" || got.MaxSeconds != 600 {
		t.Fatalf("claims mismatch: %+v", got)
	}
	if got.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("expected future expiry, got %d", got.ExpiresAt)
	}
}

func TestVoiceSessionTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateVoiceSessionToken(VoiceSessionClaims{UserID: 1}, time.Minute, "right")
	if err != nil {
		t.Fatalf("GenerateVoiceSessionToken: %v", err)
	}
	if _, err := VerifyVoiceSessionToken(token, "wrong"); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestVoiceSessionTokenRejectsTampering(t *testing.T) {
	token, err := GenerateVoiceSessionToken(VoiceSessionClaims{UserID: 1, MaxSeconds: 60}, time.Minute, "s3cret")
	if err != nil {
		t.Fatalf("GenerateVoiceSessionToken: %v", err)
	}
	parts := strings.SplitN(token, ".", 2)
	forged, err := GenerateVoiceSessionToken(VoiceSessionClaims{UserID: 1, MaxSeconds: 999999}, time.Minute, "other")
	if err != nil {
		t.Fatalf("GenerateVoiceSessionToken: %v", err)
	}
	forgedPayload := strings.SplitN(forged, ".", 2)[0]
	if _, err := VerifyVoiceSessionToken(forgedPayload+"."+parts[1], "s3cret"); err == nil {
		t.Fatal("expected verification to fail for tampered payload")
	}
}

func TestVoiceSessionTokenExpires(t *testing.T) {
	token, err := GenerateVoiceSessionToken(VoiceSessionClaims{UserID: 1}, -time.Minute, "s3cret")
	if err != nil {
		t.Fatalf("GenerateVoiceSessionToken: %v", err)
	}
	if _, err := VerifyVoiceSessionToken(token, "s3cret"); err == nil {
		t.Fatal("expected verification to fail for expired token")
	}
}

func TestVoiceSessionTokenRequiresSecret(t *testing.T) {
	if _, err := GenerateVoiceSessionToken(VoiceSessionClaims{UserID: 1}, time.Minute, ""); err == nil {
		t.Fatal("expected generation to fail without secret")
	}
	if _, err := VerifyVoiceSessionToken("a.b", ""); err == nil {
		t.Fatal("expected verification to fail without secret")
	}
}
