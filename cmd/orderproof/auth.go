package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/orderproof/internal/cli"
	"github.com/Veraticus/orderproof/internal/config"
	"github.com/Veraticus/orderproof/internal/gauth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google using OAuth2",
		Long: `Authenticate with Google Drive, Sheets and Cloud Storage using OAuth2.

This command will:
1. Print a URL to open in your browser
2. Wait for Google to redirect back to a local callback server
3. Save the token to the configured token file

Not needed when a service account key is configured.`,
		RunE: runAuth,
	}

	cmd.Flags().String("client-id", "", "OAuth2 Client ID (overrides config)")
	cmd.Flags().String("client-secret", "", "OAuth2 Client Secret (overrides config)")
	cmd.Flags().String("callback-addr", "localhost:8080", "address of the local OAuth2 callback server")

	return cmd
}

func runAuth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	clientID := cfg.Google.ClientID
	clientSecret := cfg.Google.ClientSecret

	// Override with flags if provided
	if flagID, _ := cmd.Flags().GetString("client-id"); flagID != "" {
		clientID = flagID
	}
	if flagSecret, _ := cmd.Flags().GetString("client-secret"); flagSecret != "" {
		clientSecret = flagSecret
	}

	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("OAuth2 credentials not found. Please set google.client_id and google.client_secret in config or use --client-id and --client-secret flags")
	}
	if cfg.Google.TokenFile == "" {
		return fmt.Errorf("nowhere to save the token: google.token_file is empty")
	}

	callback, _ := cmd.Flags().GetString("callback-addr")
	slog.Info("Starting Google authentication", "token_file", cfg.Google.TokenFile)

	token, err := gauth.AuthenticateOAuth2Interactive(ctx, gauth.OAuth2Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    cfg.Google.TokenFile,
		CallbackAddr: callback,
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if token.RefreshToken == "" {
		fmt.Fprintln(os.Stdout, cli.FormatWarning("Google did not return a refresh token; revoke access and authenticate again"))
		return nil
	}

	fmt.Fprintln(os.Stdout, cli.FormatSuccess("Authenticated. Token saved to "+cfg.Google.TokenFile))
	return nil
}
