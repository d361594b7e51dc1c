// Package gauth builds Google API credentials shared by the Drive, Sheets
// and Cloud Storage clients.
package gauth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultScopes are the scopes needed to publish artifacts and write the ledger.
func DefaultScopes() []string {
	return []string{drive.DriveScope, sheets.SpreadsheetsScope}
}

// Credentials selects how the process authenticates to Google APIs. Exactly
// one of a service account key or OAuth2 client credentials may be set; with
// neither, Application Default Credentials are used.
type Credentials struct {
	ServiceAccountPath string `mapstructure:"service_account_path"`
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	TokenFile          string `mapstructure:"token_file"`
}

// HasOAuth reports whether OAuth2 client credentials are configured.
func (c Credentials) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Validate checks that the credentials are unambiguous.
func (c Credentials) Validate() error {
	partialOAuth := (c.ClientID != "") != (c.ClientSecret != "")
	if partialOAuth {
		return fmt.Errorf("incomplete OAuth2 credentials: both client id and client secret are required")
	}

	if c.HasOAuth() && c.ServiceAccountPath != "" {
		return fmt.Errorf("multiple authentication methods configured; use either OAuth2 or service account")
	}

	if c.HasOAuth() && c.RefreshToken == "" && c.TokenFile == "" {
		return fmt.Errorf("OAuth2 credentials need a refresh token or a token file (run 'orderproof auth')")
	}

	return nil
}

// TokenSource returns a token source for the given scopes.
func TokenSource(ctx context.Context, creds Credentials, scopes ...string) (oauth2.TokenSource, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	switch {
	case creds.ServiceAccountPath != "":
		jsonKey, err := os.ReadFile(creds.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		return jwtConfig.TokenSource(ctx), nil

	case creds.HasOAuth():
		token := &oauth2.Token{
			RefreshToken: creds.RefreshToken,
			TokenType:    "Bearer",
		}
		if creds.TokenFile != "" {
			saved, err := LoadToken(creds.TokenFile)
			if err != nil && creds.RefreshToken == "" {
				return nil, fmt.Errorf("unable to load token file (run 'orderproof auth'): %w", err)
			}
			if err == nil {
				token = saved
			}
		}

		config := OAuth2Config{ClientID: creds.ClientID, ClientSecret: creds.ClientSecret, Scopes: scopes}
		return oauth2.ReuseTokenSource(token, config.oauthConfig().TokenSource(ctx, token)), nil

	default:
		ts, err := google.DefaultTokenSource(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("no Google credentials configured and application default credentials unavailable: %w", err)
		}
		return ts, nil
	}
}

// ClientOptions returns the API client options for the given scopes.
func ClientOptions(ctx context.Context, creds Credentials, scopes ...string) ([]option.ClientOption, error) {
	ts, err := TokenSource(ctx, creds, scopes...)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}
