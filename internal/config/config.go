package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "omnidesk"
	DefaultPGSSLMode    = "disable"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Telegram TelegramConfig `toml:"telegram"`
	VK       VKConfig       `toml:"vk"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Email    EmailConfig    `toml:"email"`
	Retry    RetryConfig    `toml:"retry"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the postgres connection string used by pgx and the
// migrations runner.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

type VKConfig struct {
	AccessToken      string `toml:"access_token"`
	GroupID          int64  `toml:"group_id"`
	ConfirmationCode string `toml:"confirmation_code"`
	Secret           string `toml:"secret"`
}

type WhatsAppConfig struct {
	BridgeURL   string `toml:"bridge_url"`
	BridgeToken string `toml:"bridge_token"`
}

// EmailConfig selects the outbound provider and carries both provider
// configurations; inbound always runs over IMAP when enabled.
type EmailConfig struct {
	Provider          string        `toml:"provider"` // generic or mailgun
	FromAddress       string        `toml:"from_address"`
	SubjectPrefix     string        `toml:"subject_prefix"`
	UnsubscribeFooter string        `toml:"unsubscribe_footer"`
	SMTP              SMTPConfig    `toml:"smtp"`
	IMAP              IMAPConfig    `toml:"imap"`
	Mailgun           MailgunConfig `toml:"mailgun"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Security string `toml:"security"` // tls, starttls, none
}

type IMAPConfig struct {
	Enabled             bool   `toml:"enabled"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	Username            string `toml:"username"`
	Password            string `toml:"password"`
	Security            string `toml:"security"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

type MailgunConfig struct {
	Domain string `toml:"domain"`
	APIKey string `toml:"api_key"`
	Region string `toml:"region"` // us or eu
}

type RetryConfig struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	MaxAttempts          int `toml:"max_attempts"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Email: EmailConfig{
			Provider: "generic",
			SMTP: SMTPConfig{
				Port:     587,
				Security: "starttls",
			},
			IMAP: IMAPConfig{
				Port:                993,
				Security:            "tls",
				PollIntervalSeconds: 300,
			},
			Mailgun: MailgunConfig{
				Region: "us",
			},
		},
		Retry: RetryConfig{
			SweepIntervalSeconds: 30,
			MaxAttempts:          3,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
