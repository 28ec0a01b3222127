// Package main provides the factcheck-bot command: the webhook server plus
// operator tools for migrations, hand-off tokens and the audit trail.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/txn2/factcheck-bot/internal/server"
	"github.com/txn2/factcheck-bot/pkg/platform"
)

// configEnv names the config file when --config is not given.
const configEnv = "FACTCHECK_CONFIG"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the persistent flags shared by every subcommand.
type app struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "factcheck-bot",
		Short:         "LINE fact-check bot",
		Long:          "factcheck-bot answers LINE webhook events and hands search sessions over to the LIFF app.",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadEnv()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to configuration file (default $"+configEnv+")")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file loaded before the config is read (default .env if present)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
		newCheckSessionCmd(a),
		newAuditCmd(a),
	)
	return root
}

// loadEnv loads the dotenv file so ${VAR} references in the config resolve.
// A missing default .env is not an error.
func (a *app) loadEnv() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file, continuing with process environment", "error", err)
	}
	return nil
}

func (a *app) loadConfig() (*platform.Config, error) {
	path := a.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("no configuration file: use --config or set %s", configEnv)
	}
	return platform.LoadConfig(path)
}
