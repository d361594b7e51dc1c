package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/ledger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	v := newViper(t)
	v.Set("browser.profile_dir", "/tmp/profile")
	v.Set("publish.drive_folder_id", "folder-1")
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.Location)
	assert.Equal(t, "./bills", cfg.BillsDir)
	assert.Equal(t, "https://www.swiggy.com/", cfg.Browser.StartURL)
	assert.Equal(t, "**/my-account/orders", cfg.Browser.OrdersURLPattern)
	assert.Equal(t, 30*time.Second, cfg.Browser.ActionTimeout)
	assert.Zero(t, cfg.Browser.LoginTimeout)
	assert.Equal(t, "VIEW DETAILS", cfg.Browser.Selectors.ViewDetailsText)
	assert.Equal(t, BackendDrive, cfg.Publish.Backend)
	assert.Equal(t, 3, cfg.Publish.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Publish.RetryDelay)
	assert.Equal(t, "Swiggy Work Orders", cfg.Ledger.SpreadsheetName)
	assert.Equal(t, "Orders", cfg.Ledger.WorksheetName)
	assert.Equal(t, ledger.PolicyOverwrite, cfg.UpdatePolicy())
	assert.Equal(t, "reader", cfg.Ledger.ShareRole)
	assert.Empty(t, cfg.Ledger.ShareEmail)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("ORDERPROOF_LOCATION", "office")
	t.Setenv("ORDERPROOF_PUBLISH_BACKEND", "GCS")
	t.Setenv("ORDERPROOF_BROWSER_HEADLESS", "true")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "office", cfg.Location)
	assert.Equal(t, BackendGCS, cfg.Publish.Backend)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_FallbackEnv(t *testing.T) {
	t.Setenv("BRAVE_USER_DATA_DIR", "/profiles/brave")
	t.Setenv("DELIVERY_LOCATION", "home")
	t.Setenv("GOOGLE_DRIVE_FOLDER_ID", "abc123")
	t.Setenv("GOOGLE_SHEET_NAME", "Receipts")
	t.Setenv("WORKSHEET_NAME", "2025")
	t.Setenv("SERVICE_ACCOUNT_FILE", "/keys/sa.json")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "/profiles/brave", cfg.Browser.ProfileDir)
	assert.Equal(t, "home", cfg.Location)
	assert.Equal(t, "abc123", cfg.Publish.DriveFolderID)
	assert.Equal(t, "Receipts", cfg.Ledger.SpreadsheetName)
	assert.Equal(t, "2025", cfg.Ledger.WorksheetName)
	assert.Equal(t, "/keys/sa.json", cfg.Google.ServiceAccountPath)
}

func TestLoad_PrefixedEnvWinsOverFallback(t *testing.T) {
	t.Setenv("DELIVERY_LOCATION", "home")
	t.Setenv("ORDERPROOF_LOCATION", "work")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.Location)
}

func TestLoad_ExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("BILLS_ROOT", "/data")

	v := newViper(t)
	v.Set("bills_dir", "$BILLS_ROOT/bills")
	v.Set("browser.profile_dir", "~/profile")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/bills", cfg.BillsDir)
	assert.Equal(t, filepath.Join(dir, "profile"), cfg.Browser.ProfileDir)
	assert.Equal(t, filepath.Join(dir, ".local/share/orderproof/journal.db"), cfg.Journal.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing profile dir",
			mutate:  func(c *Config) { c.Browser.ProfileDir = "" },
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "empty location",
			mutate:  func(c *Config) { c.Location = "  " },
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Publish.Backend = "s3" },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Ledger.UpdatePolicy = "merge" },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "empty selector",
			mutate:  func(c *Config) { c.Browser.Selectors.OrderID = "" },
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "zero action timeout",
			mutate:  func(c *Config) { c.Browser.ActionTimeout = 0 },
			wantErr: common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRemote(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "drive with folder", mutate: func(*Config) {}},
		{
			name:    "drive without folder",
			mutate:  func(c *Config) { c.Publish.DriveFolderID = "" },
			wantErr: common.ErrMissingConfig,
		},
		{
			name: "gcs without bucket",
			mutate: func(c *Config) {
				c.Publish.Backend = BackendGCS
			},
			wantErr: common.ErrMissingConfig,
		},
		{
			name: "gcs with bucket",
			mutate: func(c *Config) {
				c.Publish.Backend = BackendGCS
				c.Publish.GCSBucket = "receipts"
			},
		},
		{
			name: "ambiguous auth",
			mutate: func(c *Config) {
				c.Google.ServiceAccountPath = "/keys/sa.json"
				c.Google.ClientID = "id"
				c.Google.ClientSecret = "secret"
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "no spreadsheet",
			mutate: func(c *Config) {
				c.Ledger.SpreadsheetName = ""
			},
			wantErr: common.ErrMissingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.ValidateRemote()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Browser.Headless = true
	cfg.Browser.LoginTimeout = 2 * time.Minute
	cfg.Ledger.SpreadsheetID = "sheet-1"
	cfg.Ledger.UpdatePolicy = "preserve"
	cfg.Ledger.ShareRole = "writer"
	cfg.Ledger.ShareEmail = "accounts@example.com"
	cfg.Publish.GCSBucket = "bucket"
	cfg.Publish.GCSPrefix = "bills/"

	session := cfg.SessionConfig()
	assert.Equal(t, "/tmp/profile", session.ProfileDir)
	assert.True(t, session.Headless)
	assert.Equal(t, time.Second, session.SettleDelay)

	nav := cfg.NavigatorConfig()
	assert.Equal(t, 2*time.Minute, nav.LoginTimeout)
	assert.Equal(t, 7*time.Second, nav.ShowMoreTimeout)

	sheetsCfg := cfg.SheetsConfig()
	assert.Equal(t, "sheet-1", sheetsCfg.SpreadsheetID)
	assert.Equal(t, "Orders", sheetsCfg.WorksheetName)
	assert.Equal(t, 3, sheetsCfg.RetryAttempts)
	assert.Equal(t, "writer", sheetsCfg.ShareRole)
	assert.Equal(t, "accounts@example.com", sheetsCfg.ShareEmail)

	retry := cfg.RetryOptions()
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, time.Second, retry.InitialDelay)

	gcs := cfg.GCSConfig()
	assert.Equal(t, "bucket", gcs.Bucket)
	assert.Equal(t, "bills/", gcs.Prefix)

	assert.Equal(t, ledger.PolicyPreserve, cfg.UpdatePolicy())
}

func TestExpandPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("ORDERPROOF_TEST_DIR", "/srv")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, dir, ExpandPath("~"))
	assert.Equal(t, filepath.Join(dir, "a/b"), ExpandPath("~/a/b"))
	assert.Equal(t, "/srv/x", ExpandPath("$ORDERPROOF_TEST_DIR/x"))
	assert.Equal(t, "relative/path", ExpandPath("relative/path"))
}
