package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultLibraryURL = "https://www.amazon.com/hz/mycd/digital-console/contentlist/booksAll/dateDsc/"

// Config struct for environment variables.
type Config struct {
	RunInterval time.Duration `envconfig:"RUN_INTERVAL" default:"30s"`
	ReturnAfter time.Duration `envconfig:"RETURN_AFTER" default:"48h"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"INFO"`
	LockPath    string        `envconfig:"LOCK_PATH" default:"loan_downloader.lock"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Browser struct {
		Path     string `split_words:"true"`
		Headless bool   `split_words:"true" default:"true"`
	}

	LibraryURL     string        `envconfig:"LIBRARY_URL"`
	CookiesPath    string        `envconfig:"COOKIES_PATH" default:"cookies.json"`
	LoginTimeout   time.Duration `envconfig:"LOGIN_TIMEOUT" default:"60s"`
	MinSimilarity  float64       `envconfig:"MIN_SIMILARITY" default:"0.4"`
	DeviceName     string        `envconfig:"DEVICE_NAME"`
	RequireDevice  bool          `envconfig:"REQUIRE_DEVICE_MATCH" default:"true"`
	LoanMarker     string        `envconfig:"LOAN_MARKER" default:"is a Kindle digital library loan"`
	AccountEmail   string        `envconfig:"ACCOUNT_EMAIL"`
	AccountPass    string        `envconfig:"ACCOUNT_PASSWORD"`
	CredentialsSvc string        `envconfig:"CREDENTIAL_SERVICE" default:"amazon_credentials"`

	DownloadsDir     string        `envconfig:"DOWNLOADS_DIR" required:"true"`
	DownloadExt      string        `envconfig:"DOWNLOAD_EXTENSION" default:".azw3"`
	PartialExt       string        `envconfig:"PARTIAL_EXTENSION" default:".crdownload"`
	DownloadTimeout  time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	RemoveDownloaded bool          `envconfig:"REMOVE_DOWNLOADED" default:"false"`

	Calibre struct {
		LibraryPath   string `split_words:"true" required:"true"`
		DBBin         string `envconfig:"CALIBREDB_BIN" default:"calibredb"`
		ConvertBin    string `envconfig:"EBOOK_CONVERT_BIN" default:"ebook-convert"`
		SMTPBin       string `envconfig:"CALIBRE_SMTP_BIN" default:"calibre-smtp"`
		ConvertFormat string `envconfig:"CONVERT_FORMAT" default:"epub"`
		OutputProfile string `envconfig:"OUTPUT_PROFILE" default:"kindle_pw"`
	}

	Loans struct {
		OdmpyBin   string `envconfig:"ODMPY_BIN" default:"odmpy"`
		ExportPath string `envconfig:"LOANS_EXPORT_PATH" default:"libby_loan_info.json"`
		Format     string `envconfig:"LOAN_FORMAT" default:"ebook-kindle"`
	}

	Ledger struct {
		Backend string `split_words:"true" default:"json"`
		Path    string `split_words:"true" default:"examined_titles.json"`
	}
	DBPath string `envconfig:"DB_PATH" default:"loans.db"`

	// DeliveryRecipients maps a recipient name to its e-mail address, e.g.
	// DELIVERY_RECIPIENTS=kindle:reader@kindle.com,tablet:me@example.com.
	// The key is the name, not the address.
	DeliveryRecipients map[string]string `envconfig:"DELIVERY_RECIPIENTS"`

	SMTP struct {
		Host       string `split_words:"true"`
		Port       int    `split_words:"true" default:"587"`
		Username   string `split_words:"true"`
		Password   string `split_words:"true"`
		Encryption string `split_words:"true" default:"TLS"`
		From       string `split_words:"true"`
	}

	Web struct {
		Enabled         bool          `split_words:"true" default:"true"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"loan_downloader"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
	}
}

// LoadConfig reads a .env file when present, then environment variables, and populates the Config struct.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.LibraryURL == "" {
		cfg.LibraryURL = defaultLibraryURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges and the paths the run loop depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.RunInterval <= 0 {
		errs = append(errs, fmt.Errorf("RUN_INTERVAL must be positive, got %s", c.RunInterval))
	}

	if c.ReturnAfter <= 0 {
		errs = append(errs, fmt.Errorf("RETURN_AFTER must be positive, got %s", c.ReturnAfter))
	}

	if c.LoginTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_TIMEOUT must be positive, got %s", c.LoginTimeout))
	}

	if c.DownloadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_TIMEOUT must be positive, got %s", c.DownloadTimeout))
	}

	if c.MinSimilarity < 0 || c.MinSimilarity >= 1 {
		errs = append(errs, fmt.Errorf("MIN_SIMILARITY must be in [0, 1), got %v", c.MinSimilarity))
	}

	if info, err := os.Stat(c.DownloadsDir); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("DOWNLOADS_DIR %q is not a directory", c.DownloadsDir))
	}

	if c.Browser.Path != "" {
		if _, err := os.Stat(c.Browser.Path); err != nil {
			errs = append(errs, fmt.Errorf("BROWSER_PATH %q: %w", c.Browser.Path, err))
		}
	}

	switch strings.ToLower(c.Ledger.Backend) {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be json or sqlite, got %q", c.Ledger.Backend))
	}

	if len(c.DeliveryRecipients) > 0 && c.SMTP.Host == "" {
		errs = append(errs, errors.New("DELIVERY_RECIPIENTS requires SMTP_HOST"))
	}

	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
