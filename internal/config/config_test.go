package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("VAULT_PEPPER", "test-pepper-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"AccessTokenExpiry", cfg.Auth.AccessTokenExpiry, 15 * time.Minute},
		{"LockoutWindow", cfg.Auth.LockoutWindow, 15 * time.Minute},
		{"InactivityTimeout", cfg.Auth.InactivityTimeout, 5 * time.Minute},
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Auth.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts: got %d, want 5", cfg.Auth.MaxLoginAttempts)
	}
	if cfg.Auth.TOTPIssuer != "VaultKeeper" {
		t.Errorf("TOTPIssuer: got %q, want VaultKeeper", cfg.Auth.TOTPIssuer)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	os.Setenv("LOGIN_LOCKOUT_WINDOW", "30m")
	os.Setenv("INACTIVITY_TIMEOUT", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts: got %d, want 3", cfg.Auth.MaxLoginAttempts)
	}
	if cfg.Auth.LockoutWindow != 30*time.Minute {
		t.Errorf("LockoutWindow: got %v, want 30m", cfg.Auth.LockoutWindow)
	}
	if cfg.Auth.InactivityTimeout != 10*time.Minute {
		t.Errorf("InactivityTimeout: got %v, want 10m", cfg.Auth.InactivityTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing JWT_SECRET", map[string]string{
			"VAULT_PEPPER": "test-pepper-32-characters-long!",
			"DB_PASSWORD":  "test",
		}},
		{"missing VAULT_PEPPER", map[string]string{
			"JWT_SECRET":  "test-secret-32-characters-long!",
			"DB_PASSWORD": "test",
		}},
		{"missing DB_PASSWORD", map[string]string{
			"JWT_SECRET":   "test-secret-32-characters-long!",
			"VAULT_PEPPER": "test-pepper-32-characters-long!",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			t.Cleanup(os.Clearenv)

			if _, err := Load(); err == nil {
				t.Fatal("Load() = nil, want error")
			}
		})
	}
}

func TestLoad_WeakSecretRejected(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("VAULT_PEPPER", "short")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a short pepper, want error")
	}
}
