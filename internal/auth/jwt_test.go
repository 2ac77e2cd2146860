package auth

import (
	"testing"
	"time"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "chatgram",
		Audience: "chatgram-clients",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 42, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user 42, got %d", claims.UserID)
	}
	if claims.Name != "alice" {
		t.Fatalf("expected name alice, got %q", claims.Name)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, 42, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 42, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	other := testJWTConfig()
	other.Secret = []byte("a-different-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestValidateTokenRejectsWrongIssuerOrAudience(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 42, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	badIssuer := testJWTConfig()
	badIssuer.Issuer = "someone-else"
	if _, err := ValidateToken(badIssuer, token); err == nil {
		t.Fatalf("expected wrong issuer to be rejected")
	}

	badAudience := testJWTConfig()
	badAudience.Audience = "other-clients"
	if _, err := ValidateToken(badAudience, token); err == nil {
		t.Fatalf("expected wrong audience to be rejected")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	cfg := testJWTConfig()

	if _, err := ValidateToken(cfg, "not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
