package sessionkit

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	return cfg
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad anti-csrf mode", func(c *Config) { c.AntiCsrf = "SOMETIMES" }},
		{"bad transfer method", func(c *Config) { c.DefaultTransferMethod = "carrier-pigeon" }},
		{"bad samesite", func(c *Config) { c.CookieSameSite = "sorta" }},
		{"samesite none without secure", func(c *Config) {
			c.CookieSameSite = "none"
			c.CookieSecure = false
		}},
		{"zero access TTL", func(c *Config) { c.AccessTokenTTL = 0 }},
		{"refresh TTL not exceeding access TTL", func(c *Config) {
			c.AccessTokenTTL = time.Hour
			c.RefreshTokenTTL = time.Hour
		}},
		{"relative access path", func(c *Config) { c.AccessTokenPath = "api" }},
		{"relative refresh path", func(c *Config) { c.RefreshTokenPath = "refresh" }},
		{"audit enabled without buffer", func(c *Config) {
			c.Audit = AuditConfig{Enabled: true, BufferSize: 0}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigValidateSameSiteNoneWithSecure(t *testing.T) {
	cfg := validTestConfig()
	cfg.CookieSameSite = "none"
	cfg.CookieSecure = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("samesite none with secure should pass: %v", err)
	}
}

func TestCloneConfigCopiesKeyMaterial(t *testing.T) {
	cfg := validTestConfig()
	cfg.Token.SignKey = []byte("original-key")
	cfg.Token.VerifyKeys = map[string][]byte{"k1": []byte("verify-key")}

	clone := cloneConfig(cfg)
	clone.Token.SignKey[0] = 'X'
	clone.Token.VerifyKeys["k1"][0] = 'X'

	if cfg.Token.SignKey[0] == 'X' {
		t.Fatal("clone shares SignKey backing array")
	}
	if cfg.Token.VerifyKeys["k1"][0] == 'X' {
		t.Fatal("clone shares VerifyKeys backing arrays")
	}
}
