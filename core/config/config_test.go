package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
telegram:
  constructor_token: "123:abc"
webhook:
  public_url: "https://example.com/webhook"
database:
  host: "localhost"
  port: "5432"
  user: "feedbot"
  name: "feedbot"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Listen != "0.0.0.0" || cfg.HTTP.Port != 8080 {
		t.Errorf("http defaults: %+v", cfg.HTTP)
	}
	if cfg.Database.MaxConnections != 10 || cfg.Database.SSLMode != "disable" {
		t.Errorf("db defaults: %+v", cfg.Database)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("BOT_TOKEN", "999:env")
	cfg, err := Load(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Telegram.ConstructorToken != "999:env" {
		t.Errorf("token = %q", cfg.Telegram.ConstructorToken)
	}
}

func TestNormalizeRejectsMissingToken(t *testing.T) {
	cfg := &Config{}
	cfg.Webhook.PublicURL = "https://example.com/webhook"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing constructor token")
	}
}

func TestNormalizeRejectsRelativeURL(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.ConstructorToken = "123:abc"
	cfg.Webhook.PublicURL = "/webhook"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for relative public_url")
	}
}

func TestNormalizeTrimsAPIBase(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.ConstructorToken = "123:abc"
	cfg.Telegram.APIBaseURL = "https://tg.example.com/"
	cfg.Webhook.PublicURL = "https://example.com/webhook"
	if err := Normalize(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.APIBaseURL != "https://tg.example.com" {
		t.Errorf("api base = %q", cfg.Telegram.APIBaseURL)
	}
}
