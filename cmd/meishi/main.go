// Package main is the meishi CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/meishi/internal/cli"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultServerURL = "http://localhost:8080"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	// API keys may live in a .env next to the working directory
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "meishi",
		Short: "Business card indexing and semantic search",
		Long: `meishi extracts business cards into structured records, stores each card as
four embedded fragments and answers natural-language searches with one result
per card.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(opts),
		newIndexCmd(opts),
		newSearchCmd(opts),
		newLookupCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newReindexCmd(opts),
		newStatusCmd(opts),
		newInboxCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meishi version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default and a config.yaml
// exists in the current directory, that file is used instead so that running from a
// project directory picks up the project's config. A missing file yields defaults.
// Returns the config and the path it belongs to (for saving).
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath() {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger for a command.
func setup(opts *rootOptions) (*config.Config, string, *zap.Logger, error) {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || opts.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path))
	return cfg, path, logger, nil
}

// buildQuery joins all positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func outputFormat(cmd *cobra.Command) (cli.OutputFormat, error) {
	f, _ := cmd.Flags().GetString("format")
	return cli.ParseOutputFormat(f)
}
