package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/italolelis/loan_downloader/internal/config"
	"github.com/italolelis/loan_downloader/internal/credentials"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:           "loan_downloader",
		Short:         "Download borrowed library ebooks into calibre and return them when due",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			logger := newLogger(cfg)
			slog.SetDefault(logger)

			slog.Info("loan downloader starting...", "log_level", cfg.LogLevel, "once", once)

			return run(logctx.WithLogger(cmd.Context(), logger), cfg, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single iteration and exit")
	cmd.AddCommand(newStoreCredentialsCommand())

	return cmd
}

func newStoreCredentialsCommand() *cobra.Command {
	var (
		email   string
		service string
	)

	cmd := &cobra.Command{
		Use:   "store-credentials",
		Short: "Save the account password read from stdin in the OS keyring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("an account email is required (--email or ACCOUNT_EMAIL)")
			}

			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			if err := (credentials.Keyring{Service: service}).Set(email, secret); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "stored password for %s in %s\n", email, service)

			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", os.Getenv("ACCOUNT_EMAIL"), "account email")
	cmd.Flags().StringVar(&service, "service", envOr("CREDENTIAL_SERVICE", "amazon_credentials"), "keyring service name")

	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty password")
	}

	return secret, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
