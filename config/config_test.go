package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.MaxIterations != 30 {
		t.Errorf("MaxIterations = %d, want 30", cfg.MaxIterations)
	}
	if cfg.MaxBlocked != 10 {
		t.Errorf("MaxBlocked = %d, want 10", cfg.MaxBlocked)
	}
	if cfg.LLMTimeout != 120*time.Second {
		t.Errorf("LLMTimeout = %v, want 120s", cfg.LLMTimeout)
	}
	if cfg.Access != AccessPublic {
		t.Errorf("Access = %q, want public", cfg.Access)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "5")
	t.Setenv("COMMAND_TIMEOUT", "90")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("ALLOWED_USER_IDS", "1, 2,3")

	cfg := Load()
	if cfg.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.MaxIterations)
	}
	if cfg.CommandTimeout != 90*time.Second {
		t.Errorf("CommandTimeout = %v, want 90s", cfg.CommandTimeout)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Errorf("LLMTimeout = %v, want 45s", cfg.LLMTimeout)
	}
	if len(cfg.Allowlist) != 3 || cfg.Allowlist[2] != 3 {
		t.Errorf("Allowlist = %v, want [1 2 3]", cfg.Allowlist)
	}
}

func TestGetSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("sk-test-123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_API_KEY_FILE", path)

	if got := getSecret("LLM_API_KEY"); got != "sk-test-123" {
		t.Errorf("getSecret = %q, want sk-test-123", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"proxy ok", func(c *Config) { c.ProxyURL = "http://proxy:8080" }, false},
		{"direct ok", func(c *Config) { c.APIKey = "sk-x" }, false},
		{"no gateway", func(c *Config) {}, true},
		{"bad access mode", func(c *Config) { c.ProxyURL = "x"; c.Access = "vip" }, true},
		{"admin_only without admin", func(c *Config) { c.ProxyURL = "x"; c.Access = AccessAdminOnly }, true},
		{"admin_only with admin", func(c *Config) {
			c.ProxyURL = "x"
			c.Access = AccessAdminOnly
			c.AdminID = 42
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Workspace:     "/workspace",
				Access:        AccessPublic,
				MaxIterations: 30,
				MaxBlocked:    10,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
