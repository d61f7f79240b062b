package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultRateLimitMs       = 1000
	defaultEmailTimeout      = 15 * time.Second
	defaultSheetTimeout      = 10 * time.Second
	defaultIMAPTimeout       = 15 * time.Second
	defaultVerifyDelay       = 60 * time.Second
	defaultVerifyTimeout     = 2 * time.Minute
	defaultMaxConcurrent     = 4
	defaultScanLimit         = 10
	defaultSessionTTL        = 30 * time.Minute
	defaultListenAddr        = ":10000"
	defaultInboundPerMinute  = 30
	defaultOutboxPerIdentity = 50
)

// DefaultBounceSenders are matched against the From header of candidate
// delivery-failure notifications.
var DefaultBounceSenders = []string{
	"mailer-daemon",
	"postmaster",
	"mail delivery subsystem",
	"mail delivery system",
}

// DefaultBouncePhrases mark a notification body as a hard bounce.
var DefaultBouncePhrases = []string{
	"address not found",
	"no such user",
	"5.1.1",
	"does not exist",
	"user unknown",
	"mailbox unavailable",
	"recipient address rejected",
}

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Bot          BotConfig          `yaml:"bot"`
	Email        EmailConfig        `yaml:"email"`
	Inbox        InboxConfig        `yaml:"inbox"`
	Store        StoreConfig        `yaml:"store"`
	Sheet        SheetConfig        `yaml:"sheet,omitempty"`
	Verification VerificationConfig `yaml:"verification"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// BotConfig holds conversation settings. Messages override the built-in
// reply texts by key (see bot.Messages).
type BotConfig struct {
	Brand      string            `yaml:"brand"`
	SessionTTL time.Duration     `yaml:"session_ttl"`
	Messages   map[string]string `yaml:"messages,omitempty"`
	Document   DocumentConfig    `yaml:"document,omitempty"`
	Welcome    bool              `yaml:"welcome_email"` // Send the welcome template after verification
}

// DocumentConfig points at an artifact offered to verified leads.
type DocumentConfig struct {
	Path     string `yaml:"path"`
	Filename string `yaml:"filename"`
	Caption  string `yaml:"caption"`
}

type EmailConfig struct {
	Provider    string        `yaml:"provider"` // "smtp", "sendgrid", "resend"
	From        string        `yaml:"from"`
	FromName    string        `yaml:"from_name"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimitMs int           `yaml:"rate_limit_ms"`
	SMTP        SMTPConfig    `yaml:"smtp,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"` // sendgrid / resend
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// InboxConfig holds IMAP settings for the mailbox that receives bounces
type InboxConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Provider      string        `yaml:"provider"` // "gmail", "outlook", "imap"
	Server        string        `yaml:"server"`
	Port          int           `yaml:"port"`
	Email         string        `yaml:"email"`
	Password      string        `yaml:"password"` // App password (not main password)
	Folder        string        `yaml:"folder"`
	Timeout       time.Duration `yaml:"timeout"`
	ScanLimit     int           `yaml:"scan_limit"`
	BounceSenders []string      `yaml:"bounce_senders,omitempty"`
	BouncePhrases []string      `yaml:"bounce_phrases,omitempty"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// SheetConfig points at the remote tabular store web app. Empty URL disables sync.
type SheetConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type VerificationConfig struct {
	Delay         time.Duration `yaml:"delay"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	WebhookToken      string   `yaml:"webhook_token,omitempty"`
	InboundPerMinute  int      `yaml:"inbound_per_minute"`
	OutboxPerIdentity int      `yaml:"outbox_per_identity"`
	AllowedOrigins    []string `yaml:"allowed_origins,omitempty"` // CORS for browser chat widgets
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".leadcheck", "config.yaml")
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "leads.db"
	}
	return filepath.Join(home, ".leadcheck", "leads.db")
}

// Load reads the YAML file at path (a missing file yields pure defaults),
// overlays environment variables (after loading an optional .env) and applies
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := checkFilePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SMTP_EMAIL"); v != "" {
		if c.Email.From == "" {
			c.Email.From = v
		}
		if c.Email.SMTP.Username == "" {
			c.Email.SMTP.Username = v
		}
		if c.Inbox.Email == "" {
			c.Inbox.Email = v
		}
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		if c.Email.SMTP.Password == "" {
			c.Email.SMTP.Password = v
		}
		if c.Inbox.Password == "" {
			c.Inbox.Password = v
		}
	}
	if v := os.Getenv("GOOGLE_SHEET_WEBAPP_URL"); v != "" {
		c.Sheet.URL = v
	}
	if v := os.Getenv("LEADCHECK_WEBHOOK_TOKEN"); v != "" {
		c.Server.WebhookToken = v
	}
	if v := os.Getenv("LEADCHECK_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = ":" + v
		}
	}
	if c.Email.APIKey == "" {
		switch c.Email.Provider {
		case "sendgrid":
			c.Email.APIKey = os.Getenv("SENDGRID_API_KEY")
		case "resend":
			c.Email.APIKey = os.Getenv("RESEND_API_KEY")
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Bot.Brand == "" {
		c.Bot.Brand = "ClientFlow"
	}
	if c.Bot.SessionTTL == 0 {
		c.Bot.SessionTTL = defaultSessionTTL
	}
	if c.Bot.Document.Filename == "" && c.Bot.Document.Path != "" {
		c.Bot.Document.Filename = filepath.Base(c.Bot.Document.Path)
	}

	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	if c.Email.Timeout == 0 {
		c.Email.Timeout = defaultEmailTimeout
	}
	if c.Email.RateLimitMs == 0 {
		c.Email.RateLimitMs = defaultRateLimitMs
	}
	if c.Email.Provider == "smtp" && c.Email.SMTP.Host == "" {
		c.Email.SMTP.Host = "smtp.gmail.com"
		c.Email.SMTP.Port = 465
		c.Email.SMTP.UseTLS = true
	}

	// Set inbox defaults
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
	if c.Inbox.Provider == "gmail" && c.Inbox.Server == "" {
		c.Inbox.Server = "imap.gmail.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Provider == "outlook" && c.Inbox.Server == "" {
		c.Inbox.Server = "outlook.office365.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Port == 0 {
		c.Inbox.Port = 993
	}
	if c.Inbox.Timeout == 0 {
		c.Inbox.Timeout = defaultIMAPTimeout
	}
	if c.Inbox.ScanLimit == 0 {
		c.Inbox.ScanLimit = defaultScanLimit
	}
	if len(c.Inbox.BounceSenders) == 0 {
		c.Inbox.BounceSenders = append([]string(nil), DefaultBounceSenders...)
	}
	if len(c.Inbox.BouncePhrases) == 0 {
		c.Inbox.BouncePhrases = append([]string(nil), DefaultBouncePhrases...)
	}

	if c.Store.Path == "" {
		c.Store.Path = DefaultDBPath()
	}
	if c.Sheet.Timeout == 0 {
		c.Sheet.Timeout = defaultSheetTimeout
	}

	if c.Verification.Delay == 0 {
		c.Verification.Delay = defaultVerifyDelay
	}
	if c.Verification.Timeout == 0 {
		c.Verification.Timeout = defaultVerifyTimeout
	}
	if c.Verification.MaxConcurrent == 0 {
		c.Verification.MaxConcurrent = defaultMaxConcurrent
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaultListenAddr
	}
	if c.Server.InboundPerMinute == 0 {
		c.Server.InboundPerMinute = defaultInboundPerMinute
	}
	if c.Server.OutboxPerIdentity == 0 {
		c.Server.OutboxPerIdentity = defaultOutboxPerIdentity
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the settings needed to send challenge emails.
func (c *Config) Validate() error {
	if c.Email.From == "" {
		return fmt.Errorf("email: from address is required")
	}
	switch c.Email.Provider {
	case "smtp":
		if c.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp: host is required")
		}
		if c.Email.SMTP.Port == 0 {
			return fmt.Errorf("email.smtp: port is required")
		}
	case "sendgrid", "resend":
		if c.Email.APIKey == "" {
			return fmt.Errorf("email: api_key is required for provider %q", c.Email.Provider)
		}
	default:
		return fmt.Errorf("email: unknown provider %q (smtp, sendgrid or resend)", c.Email.Provider)
	}
	if c.Verification.Delay < 0 {
		return fmt.Errorf("verification: delay must not be negative")
	}
	if c.Verification.MaxConcurrent < 0 {
		return fmt.Errorf("verification: max_concurrent must not be negative")
	}
	return nil
}

// ValidateInbox validates the IMAP settings used by bounce detection.
func (c *Config) ValidateInbox() error {
	if !c.Inbox.Enabled {
		return fmt.Errorf("inbox: bounce checking is not enabled in config")
	}
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}
