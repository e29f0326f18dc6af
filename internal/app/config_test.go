package app

import (
	"testing"
	"time"

	"torrentcast/internal/domain/ports"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.MediaWorkers != 10 {
		t.Fatalf("MediaWorkers = %d, want 10", cfg.MediaWorkers)
	}
	if cfg.UserDataTTL != 5*time.Minute {
		t.Fatalf("UserDataTTL = %v, want 5m", cfg.UserDataTTL)
	}
	if cfg.PasswordPolicy != PasswordNever {
		t.Fatalf("PasswordPolicy = %q, want %q", cfg.PasswordPolicy, PasswordNever)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BOT_PASSWORD_POLICY", "FAILURE")
	t.Setenv("AUTHENTICATED_USER_IDS", "12, 34,junk,56")
	t.Setenv("USERDATA_TTL_SECONDS", "60")

	cfg := LoadConfig()

	if cfg.PasswordPolicy != PasswordOnFailure {
		t.Fatalf("PasswordPolicy = %q, want %q", cfg.PasswordPolicy, PasswordOnFailure)
	}
	want := []ports.UserID{12, 34, 56}
	if len(cfg.AuthenticatedUsers) != len(want) {
		t.Fatalf("AuthenticatedUsers = %v, want %v", cfg.AuthenticatedUsers, want)
	}
	for i := range want {
		if cfg.AuthenticatedUsers[i] != want[i] {
			t.Fatalf("AuthenticatedUsers = %v, want %v", cfg.AuthenticatedUsers, want)
		}
	}
	if cfg.UserDataTTL != time.Minute {
		t.Fatalf("UserDataTTL = %v, want 1m", cfg.UserDataTTL)
	}
}

func TestParsePasswordPolicyFallsBackToNever(t *testing.T) {
	if got := parsePasswordPolicy("bogus"); got != PasswordNever {
		t.Fatalf("parsePasswordPolicy(bogus) = %q", got)
	}
	if got := parsePasswordPolicy("start"); got != PasswordOnStart {
		t.Fatalf("parsePasswordPolicy(start) = %q", got)
	}
}
