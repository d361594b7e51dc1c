package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/orderproof/internal/browser"
	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/gauth"
	"github.com/Veraticus/orderproof/internal/ledger"
	"github.com/Veraticus/orderproof/internal/publish"
	"github.com/Veraticus/orderproof/internal/service"
	"github.com/Veraticus/orderproof/internal/sheets"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read through viper.
const EnvPrefix = "ORDERPROOF"

// Publish backends.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
)

// Config is the complete, immutable configuration of one run.
type Config struct {
	Google   gauth.Credentials `mapstructure:"google"`
	Location string            `mapstructure:"location"`
	BillsDir string            `mapstructure:"bills_dir"`
	Browser  BrowserConfig     `mapstructure:"browser"`
	Publish  PublishConfig     `mapstructure:"publish"`
	Ledger   LedgerConfig      `mapstructure:"ledger"`
	Journal  JournalConfig     `mapstructure:"journal"`
}

// BrowserConfig configures the browser session and navigation.
type BrowserConfig struct {
	Selectors        browser.Selectors `mapstructure:"selectors"`
	ProfileDir       string            `mapstructure:"profile_dir"`
	ExecPath         string            `mapstructure:"exec_path"`
	StartURL         string            `mapstructure:"start_url"`
	OrdersURLPattern string            `mapstructure:"orders_url_pattern"`
	LoginTimeout     time.Duration     `mapstructure:"login_timeout"`
	ActionTimeout    time.Duration     `mapstructure:"action_timeout"`
	Headless         bool              `mapstructure:"headless"`
}

// PublishConfig configures where artifacts are uploaded.
type PublishConfig struct {
	Backend       string        `mapstructure:"backend"`
	DriveFolderID string        `mapstructure:"drive_folder_id"`
	GCSBucket     string        `mapstructure:"gcs_bucket"`
	GCSPrefix     string        `mapstructure:"gcs_prefix"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	GCSPublicACL  bool          `mapstructure:"gcs_public_acl"`
}

// LedgerConfig configures the ledger spreadsheet.
type LedgerConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SpreadsheetName string `mapstructure:"spreadsheet_name"`
	WorksheetName   string `mapstructure:"worksheet_name"`
	TimeZone        string `mapstructure:"time_zone"`
	UpdatePolicy    string `mapstructure:"update_policy"`
	ShareRole       string `mapstructure:"share_role"`
	ShareEmail      string `mapstructure:"share_email"`
}

// JournalConfig configures the local run journal.
type JournalConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

// envFallbacks are the variable names accepted in addition to ORDERPROOF_*.
var envFallbacks = map[string][]string{
	"browser.profile_dir":         {"BRAVE_USER_DATA_DIR"},
	"browser.exec_path":           {"BRAVE_EXECUTABLE_PATH"},
	"browser.start_url":           {"SWIGGY_URL"},
	"browser.orders_url_pattern":  {"ORDERS_URL_PATTERN"},
	"location":                    {"DELIVERY_LOCATION"},
	"bills_dir":                   {"BILLS_DIRECTORY"},
	"google.service_account_path": {"SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS_FILE"},
	"publish.drive_folder_id":     {"GOOGLE_DRIVE_FOLDER_ID"},
	"ledger.spreadsheet_name":     {"GOOGLE_SHEET_NAME"},
	"ledger.worksheet_name":       {"WORKSHEET_NAME"},
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	sel := browser.DefaultSelectors()
	nav := browser.DefaultNavigatorConfig()
	session := browser.DefaultSessionConfig()
	sheetsDefaults := sheets.DefaultConfig()

	defaults := map[string]any{
		"browser.profile_dir":                 "",
		"browser.exec_path":                   "",
		"browser.headless":                    false,
		"browser.start_url":                   nav.StartURL,
		"browser.orders_url_pattern":          nav.OrdersURLPattern,
		"browser.login_timeout":               time.Duration(0),
		"browser.action_timeout":              session.ActionTimeout,
		"browser.selectors.view_details_text": sel.ViewDetailsText,
		"browser.selectors.show_more_text":    sel.ShowMoreText,
		"browser.selectors.popup_close":       sel.PopupClose,
		"browser.selectors.detail_container":  sel.DetailContainer,
		"browser.selectors.order_id":          sel.OrderID,
		"browser.selectors.amount":            sel.Amount,
		"browser.selectors.delivered_on":      sel.DeliveredOn,
		"browser.selectors.location":          sel.Location,
		"location":                            "work",
		"bills_dir":                           "./bills",
		"google.service_account_path":         "",
		"google.client_id":                    "",
		"google.client_secret":                "",
		"google.refresh_token":                "",
		"google.token_file":                   "~/.config/orderproof/token.json",
		"publish.backend":                     BackendDrive,
		"publish.drive_folder_id":             "",
		"publish.gcs_bucket":                  "",
		"publish.gcs_prefix":                  "",
		"publish.gcs_public_acl":              false,
		"publish.retry_attempts":              3,
		"publish.retry_delay":                 time.Second,
		"ledger.spreadsheet_id":               "",
		"ledger.spreadsheet_name":             sheetsDefaults.SpreadsheetName,
		"ledger.worksheet_name":               sheetsDefaults.WorksheetName,
		"ledger.time_zone":                    sheetsDefaults.TimeZone,
		"ledger.update_policy":                string(ledger.PolicyOverwrite),
		"ledger.share_role":                   sheetsDefaults.ShareRole,
		"ledger.share_email":                  "",
		"journal.path":                        "~/.local/share/orderproof/journal.db",
		"journal.disabled":                    false,
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		names := append([]string{envName(key)}, envFallbacks[key]...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the run configuration from v. SetDefaults must have been called.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.BillsDir = ExpandPath(cfg.BillsDir)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Browser.ExecPath = ExpandPath(cfg.Browser.ExecPath)
	cfg.Google.ServiceAccountPath = ExpandPath(cfg.Google.ServiceAccountPath)
	cfg.Google.TokenFile = ExpandPath(cfg.Google.TokenFile)
	cfg.Journal.Path = ExpandPath(cfg.Journal.Path)
	cfg.Publish.Backend = strings.ToLower(strings.TrimSpace(cfg.Publish.Backend))

	return &cfg, nil
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Browser.ProfileDir) == "" {
		return fmt.Errorf("%w: browser.profile_dir (or BRAVE_USER_DATA_DIR)", common.ErrMissingConfig)
	}
	if strings.TrimSpace(c.Location) == "" {
		return fmt.Errorf("%w: location (or DELIVERY_LOCATION)", common.ErrMissingConfig)
	}
	if strings.TrimSpace(c.BillsDir) == "" {
		return fmt.Errorf("%w: bills_dir", common.ErrMissingConfig)
	}
	if err := c.Browser.Selectors.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("%w: browser.action_timeout must be positive", common.ErrInvalidConfig)
	}
	if c.Browser.LoginTimeout < 0 {
		return fmt.Errorf("%w: browser.login_timeout cannot be negative", common.ErrInvalidConfig)
	}
	if _, err := ledger.ParseUpdatePolicy(c.Ledger.UpdatePolicy); err != nil {
		return err
	}

	switch c.Publish.Backend {
	case BackendDrive, BackendGCS:
	default:
		return fmt.Errorf("%w: publish.backend %q (want drive or gcs)", common.ErrInvalidConfig, c.Publish.Backend)
	}
	if c.Publish.RetryAttempts < 0 || c.Publish.RetryDelay < 0 {
		return fmt.Errorf("%w: publish retry settings cannot be negative", common.ErrInvalidConfig)
	}

	return nil
}

// ValidateRemote checks the settings needed to reach Google services.
func (c *Config) ValidateRemote() error {
	if err := c.Google.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	switch c.Publish.Backend {
	case BackendDrive:
		if c.Publish.DriveFolderID == "" {
			return fmt.Errorf("%w: publish.drive_folder_id (or GOOGLE_DRIVE_FOLDER_ID)", common.ErrMissingConfig)
		}
	case BackendGCS:
		if c.Publish.GCSBucket == "" {
			return fmt.Errorf("%w: publish.gcs_bucket", common.ErrMissingConfig)
		}
	}

	if c.Ledger.SpreadsheetID == "" && c.Ledger.SpreadsheetName == "" {
		return fmt.Errorf("%w: ledger.spreadsheet_id or ledger.spreadsheet_name", common.ErrMissingConfig)
	}
	return nil
}

// SessionConfig returns the browser session settings.
func (c *Config) SessionConfig() browser.SessionConfig {
	session := browser.DefaultSessionConfig()
	session.ProfileDir = c.Browser.ProfileDir
	session.ExecPath = c.Browser.ExecPath
	session.Headless = c.Browser.Headless
	session.Selectors = c.Browser.Selectors
	session.ActionTimeout = c.Browser.ActionTimeout
	return session
}

// NavigatorConfig returns the order history navigation settings.
func (c *Config) NavigatorConfig() browser.NavigatorConfig {
	nav := browser.DefaultNavigatorConfig()
	nav.StartURL = c.Browser.StartURL
	nav.OrdersURLPattern = c.Browser.OrdersURLPattern
	nav.Selectors = c.Browser.Selectors
	nav.LoginTimeout = c.Browser.LoginTimeout
	return nav
}

// RetryOptions returns the backoff used for remote calls.
func (c *Config) RetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  c.Publish.RetryAttempts,
		InitialDelay: c.Publish.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// GCSConfig returns the Cloud Storage publisher settings.
func (c *Config) GCSConfig() publish.GCSConfig {
	return publish.GCSConfig{
		Bucket:    c.Publish.GCSBucket,
		Prefix:    c.Publish.GCSPrefix,
		PublicACL: c.Publish.GCSPublicACL,
	}
}

// SheetsConfig returns the ledger spreadsheet settings.
func (c *Config) SheetsConfig() sheets.Config {
	cfg := sheets.DefaultConfig()
	cfg.Credentials = c.Google
	cfg.SpreadsheetID = c.Ledger.SpreadsheetID
	cfg.SpreadsheetName = c.Ledger.SpreadsheetName
	cfg.WorksheetName = c.Ledger.WorksheetName
	if c.Ledger.TimeZone != "" {
		cfg.TimeZone = c.Ledger.TimeZone
	}
	cfg.ShareRole = c.Ledger.ShareRole
	cfg.ShareEmail = c.Ledger.ShareEmail
	cfg.RetryAttempts = c.Publish.RetryAttempts
	cfg.RetryDelay = c.Publish.RetryDelay
	return cfg
}

// UpdatePolicy returns the parsed ledger update policy.
func (c *Config) UpdatePolicy() ledger.UpdatePolicy {
	policy, err := ledger.ParseUpdatePolicy(c.Ledger.UpdatePolicy)
	if err != nil {
		return ledger.PolicyOverwrite
	}
	return policy
}
