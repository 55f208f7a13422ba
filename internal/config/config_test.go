package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COGNITO_REGION", "eu-west-1")
	t.Setenv("COGNITO_USER_POOL_ID", "eu-west-1_abc123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected default host 0.0.0.0, got %s", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if !cfg.JWTEnabled {
		t.Error("Expected JWT verification enabled by default")
	}
	if cfg.SAMLEnabled {
		t.Error("Expected SAML disabled by default")
	}
	if cfg.AutoCreateUser {
		t.Error("Expected auto-create disabled by default")
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("Expected default fetch timeout 10s, got %v", cfg.FetchTimeout)
	}
}

func TestLoadDerivesIssuerAndJWKS(t *testing.T) {
	t.Setenv("COGNITO_REGION", "us-east-1")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_pool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wantIssuer := "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_pool"
	if cfg.Issuer != wantIssuer {
		t.Errorf("Expected issuer %q, got %q", wantIssuer, cfg.Issuer)
	}
	if cfg.JWKSURL != wantIssuer+"/.well-known/jwks.json" {
		t.Errorf("Unexpected JWKS URL %q", cfg.JWKSURL)
	}
}

func TestLoadExplicitJWKSWins(t *testing.T) {
	t.Setenv("COGNITO_REGION", "us-east-1")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_pool")
	t.Setenv("COGNITO_JWKS_URL", "https://keys.example.com/jwks.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.JWKSURL != "https://keys.example.com/jwks.json" {
		t.Errorf("Expected explicit JWKS URL to be kept, got %q", cfg.JWKSURL)
	}
}

func TestLoadMissingJWKSFails(t *testing.T) {
	// No region, pool, or JWKS URL while JWT verification is on.
	if _, err := Load(); err == nil {
		t.Error("Expected error when JWKS URL cannot be derived")
	}
}

func TestLoadExplicitJWKSStillRequiresIssuer(t *testing.T) {
	// A JWKS URL alone must not satisfy validation: without an issuer
	// the verifier would accept tokens from any iss.
	t.Setenv("COGNITO_JWKS_URL", "https://keys.example.com/jwks.json")

	if _, err := Load(); err == nil {
		t.Error("Expected error when issuer cannot be derived")
	}
}

func TestLoadExplicitJWKSWithIssuer(t *testing.T) {
	t.Setenv("COGNITO_JWKS_URL", "https://keys.example.com/jwks.json")
	t.Setenv("COGNITO_ISSUER", "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_pool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Issuer != "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_pool" {
		t.Errorf("Unexpected issuer %q", cfg.Issuer)
	}
}

func TestLoadJWTDisabledSkipsJWKSCheck(t *testing.T) {
	t.Setenv("BRIDGE_JWT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWTEnabled {
		t.Error("Expected JWT verification disabled")
	}
}

func TestAddr(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 9090}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("Unexpected addr %q", cfg.Addr())
	}
}
