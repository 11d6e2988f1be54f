package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.Postgres.Port != DefaultPGPort || cfg.Postgres.SSLMode != DefaultPGSSLMode {
		t.Errorf("postgres defaults = %+v", cfg.Postgres)
	}
	if cfg.Email.Provider != "generic" {
		t.Errorf("email provider = %q", cfg.Email.Provider)
	}
	if cfg.Email.IMAP.PollIntervalSeconds != 300 {
		t.Errorf("imap poll interval = %d", cfg.Email.IMAP.PollIntervalSeconds)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.SweepIntervalSeconds != 30 {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"
format = "json"

[server]
addr = ":9000"

[auth]
jwt_secret = "s3cret"

[telegram]
bot_token = "123:abc"

[email]
provider = "mailgun"

[email.mailgun]
domain = "mg.shop.example"
api_key = "key-123"
region = "eu"

[postgres]
host = "db.internal"
password = "pw"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Email.Provider != "mailgun" || cfg.Email.Mailgun.Region != "eu" {
		t.Errorf("email = %+v", cfg.Email)
	}
	// Values the file omits keep their defaults.
	if cfg.Postgres.Port != DefaultPGPort {
		t.Errorf("postgres port = %d", cfg.Postgres.Port)
	}
	if cfg.Auth.JWTExpiresIn != DefaultJWTExpiresIn {
		t.Errorf("jwt expires in = %q", cfg.Auth.JWTExpiresIn)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "omnidesk",
		Password: "pw",
		Database: "omnidesk",
		SSLMode:  "require",
	}
	want := "postgres://omnidesk:pw@db.internal:5433/omnidesk?sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
