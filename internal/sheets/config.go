// Package sheets stores the order ledger in a Google Sheets worksheet.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/orderproof/internal/gauth"
)

// Config holds the configuration for the ledger worksheet.
type Config struct {
	Credentials      gauth.Credentials
	SpreadsheetID    string
	SpreadsheetName  string
	WorksheetName    string
	TimeZone         string
	RetryAttempts    int
	RetryDelay       time.Duration
	EnableFormatting bool
	// ShareRole is the Drive role granted on a newly created spreadsheet.
	// Empty leaves the spreadsheet private to its owner.
	ShareRole string
	// ShareEmail limits the grant to one account instead of anyone with the
	// link.
	ShareEmail string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  "Swiggy Work Orders",
		WorksheetName:    "Orders",
		TimeZone:         "Asia/Kolkata",
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		EnableFormatting: true,
		ShareRole:        "reader",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Credentials.Validate(); err != nil {
		return err
	}

	if c.SpreadsheetID == "" && c.SpreadsheetName == "" {
		return fmt.Errorf("either a spreadsheet id or a spreadsheet name is required")
	}

	if c.WorksheetName == "" {
		return fmt.Errorf("worksheet name is required")
	}

	switch c.ShareRole {
	case "", "reader", "commenter", "writer":
	default:
		return fmt.Errorf("share role %q must be reader, commenter or writer", c.ShareRole)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}

	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	return nil
}
