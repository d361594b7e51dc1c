package gauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "application default credentials",
			creds: Credentials{},
		},
		{
			name:  "service account",
			creds: Credentials{ServiceAccountPath: "/path/to/key.json"},
		},
		{
			name:  "oauth with refresh token",
			creds: Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		},
		{
			name:  "oauth with token file",
			creds: Credentials{ClientID: "id", ClientSecret: "secret", TokenFile: "/tmp/token.json"},
		},
		{
			name:    "partial oauth credentials",
			creds:   Credentials{ClientID: "id", RefreshToken: "refresh"},
			wantErr: true,
			errMsg:  "incomplete OAuth2 credentials",
		},
		{
			name:    "multiple auth methods",
			creds:   Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "r", ServiceAccountPath: "/k.json"},
			wantErr: true,
			errMsg:  "multiple authentication methods configured",
		},
		{
			name:    "oauth without token",
			creds:   Credentials{ClientID: "id", ClientSecret: "secret"},
			wantErr: true,
			errMsg:  "refresh token or a token file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenSource_MissingServiceAccountFile(t *testing.T) {
	_, err := TokenSource(context.Background(), Credentials{ServiceAccountPath: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read service account key file")
}

func TestTokenSource_OAuthUsesSavedToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.json")
	saved := &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, SaveToken(tokenFile, saved))

	ts, err := TokenSource(context.Background(), Credentials{ClientID: "id", ClientSecret: "secret", TokenFile: tokenFile})
	require.NoError(t, err)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken, "a still-valid saved token is used without a refresh")
}

func TestSaveAndLoadToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "nested", "token.json")
	require.NoError(t, SaveToken(tokenFile, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))

	info, err := os.Stat(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err := LoadToken(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "r", token.RefreshToken)
}
