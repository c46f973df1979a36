package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/meishi/internal/cli"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cardReader is what the read-only commands need, served either by a running
// server or by components opened in-process.
type cardReader interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
	Lookup(ctx context.Context, query *models.LookupQuery) (*models.LookupResponse, error)
	FindCard(ctx context.Context, identity string) (*models.CardRecord, error)
	Stats(ctx context.Context) (*models.IndexStats, error)
}

// addReadFlags registers --server, --limit and --format.
func addReadFlags(cmd *cobra.Command, withLimit bool) {
	cmd.Flags().String("server", defaultServerURL, "server URL; empty runs directly against the local index")
	cmd.Flags().String("format", "text", "output format: text or json")
	if withLimit {
		cmd.Flags().Int("limit", 0, "number of cards to return (0 uses the configured default)")
	}
}

// withReader runs fn against the server named by --server, or in-process when the
// flag is empty. The returned direct flag is true for in-process runs.
func withReader(cmd *cobra.Command, opts *rootOptions, fn func(r cardReader, direct bool) error) error {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL != "" {
		return fn(newAPIClient(serverURL), false)
	}
	cfg, _, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c, err := initializeComponents(cmd.Context(), cfg, logger, componentOptions{rebuildIfStale: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close components", zap.Error(err))
		}
	}()
	return fn(c.Engine, true)
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Semantic search returning one result per card",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			query := &models.SearchQuery{Query: buildQuery(args), Limit: limit}
			return withReader(cmd, opts, func(r cardReader, _ bool) error {
				resp, err := r.Search(cmd.Context(), query)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
			})
		},
	}
	addReadFlags(cmd, true)
	return cmd
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <terms...>",
		Short: "Keyword lookup by name, company, title or email",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			query := &models.LookupQuery{Query: buildQuery(args), Limit: limit}
			return withReader(cmd, opts, func(r cardReader, _ bool) error {
				resp, err := r.Lookup(cmd.Context(), query)
				if err != nil {
					return fmt.Errorf("lookup failed: %w", err)
				}
				return cli.WriteLookupResults(cmd.OutOrStdout(), resp, format)
			})
		},
	}
	addReadFlags(cmd, true)
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <card-identity>",
		Short: "Show a stored card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			return withReader(cmd, opts, func(r cardReader, _ bool) error {
				card, err := r.FindCard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return cli.WriteCard(cmd.OutOrStdout(), card, format)
			})
		},
	}
	addReadFlags(cmd, false)
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			return withReader(cmd, opts, func(r cardReader, direct bool) error {
				stats, err := r.Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				if direct {
					cfg, _, _ := loadConfig(opts.configPath)
					if cfg != nil {
						st := cfg.Storage
						if n, err := storage.DiskUsageBytes(st.DatabasePath, st.BleveIndexPath, st.VectorIndexPath); err == nil {
							stats.DiskUsageBytes = n
						}
					}
				}
				return cli.WriteStats(cmd.OutOrStdout(), stats, format)
			})
		},
	}
	addReadFlags(cmd, false)
	return cmd
}

// runDirect opens the components in-process for commands that write to the index.
func runDirect(cmd *cobra.Command, opts *rootOptions, rebuild bool, fn func(c *components, logger *zap.Logger) error) error {
	cfg, _, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c, err := initializeComponents(cmd.Context(), cfg, logger, componentOptions{rebuildIfStale: rebuild})
	if err != nil {
		return err
	}
	runErr := fn(c, logger)
	if err := c.Close(); err != nil && runErr == nil {
		return fmt.Errorf("failed to save indices: %w", err)
	}
	return runErr
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index <image|record.json|directory|url>...",
		Short: "Extract and index business cards",
		Long: `Index card images, sidecar record files (*.json) or whole directories.
Directories are walked recursively for the configured image extensions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			return runDirect(cmd, opts, false, func(c *components, logger *zap.Logger) error {
				var failed int
				for _, arg := range args {
					n, err := indexPath(cmd.Context(), c.Indexer, arg, cfg.Watch.Extensions)
					if err != nil {
						failed++
						logger.Error("index failed", zap.String("path", arg), zap.Error(err))
						cmd.PrintErrf("failed to index %s: %v\n", arg, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d card(s) from %s\n", n, arg)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d paths failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

// indexPath indexes one CLI argument: a directory, a record file, or an image path or URL.
func indexPath(ctx context.Context, idx *indexer.Indexer, arg string, exts []string) (int, error) {
	if isURL(arg) {
		_, err := idx.IndexImage(ctx, arg)
		return countOne(err)
	}
	info, err := os.Stat(arg)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return idx.IndexDirectory(ctx, arg, exts)
	}
	if strings.EqualFold(filepath.Ext(arg), ".json") {
		_, err := idx.IndexRecordFile(ctx, arg)
		return countOne(err)
	}
	_, err = idx.IndexImage(ctx, arg)
	return countOne(err)
}

func countOne(err error) (int, error) {
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card-identity>...",
		Short: "Delete cards from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd, opts, false, func(c *components, _ *zap.Logger) error {
				var errs []error
				for _, id := range args {
					if err := c.Indexer.DeleteCard(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed every stored card and rebuild the keyword index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDirect(cmd, opts, false, func(c *components, _ *zap.Logger) error {
				n, err := c.Indexer.Reindex(cmd.Context())
				if err != nil {
					return fmt.Errorf("reindex failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d cards\n", n)
				return nil
			})
		},
	}
}

func newInboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Manage the inbox directories watched by a running server",
	}
	cmd.PersistentFlags().String("server", defaultServerURL, "server URL")

	client := func(cmd *cobra.Command) *apiClient {
		u, _ := cmd.Flags().GetString("server")
		return newAPIClient(u)
	}

	add := &cobra.Command{
		Use:   "add <directory>",
		Short: "Watch a directory and index the cards dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			noSync, _ := cmd.Flags().GetBool("no-sync")
			if err := client(cmd).InboxAdd(cmd.Context(), abs, !noSync); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", abs)
			return nil
		},
	}
	add.Flags().Bool("no-sync", false, "do not index files already in the directory")

	remove := &cobra.Command{
		Use:   "remove <directory>",
		Short: "Stop watching a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := client(cmd).InboxRemove(cmd.Context(), abs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", abs)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List watched directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dirs, err := client(cmd).InboxList(cmd.Context())
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No inbox directories")
				return nil
			}
			for _, d := range dirs {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}
