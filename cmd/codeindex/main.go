// Package main is the codeindex CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/app"
	"github.com/hyperjump/codeindex/internal/cli"
	"github.com/hyperjump/codeindex/internal/config"
	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/internal/server"
	"github.com/hyperjump/codeindex/pkg/utils"
)

var version = "dev"

type rootOptions struct {
	configPath string
	debug      bool
	output     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "codeindex",
		Short:        "Semantic code retrieval over a source tree",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file path (.yaml or .toml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.output, "format", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newScanCmd(opts),
		newRebuildCmd(opts),
		newPersistCmd(opts),
		newLoadCmd(opts),
		newQueryCmd(opts),
		newAskCmd(opts),
		newStatusCmd(opts),
		newSampleCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default and does not
// exist, config.yaml in the current directory is used if present. Returns the
// config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath() {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if cwd, cwdErr := os.Getwd(); cwdErr == nil {
				fallback := filepath.Join(cwd, "config.yaml")
				if _, statErr := os.Stat(fallback); statErr == nil {
					cfg, loadErr := config.Load(fallback)
					if loadErr != nil {
						return nil, "", loadErr
					}
					return cfg, fallback, nil
				}
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// openApp loads config and composes the application. One-shot commands never
// watch the tree.
func openApp(opts *rootOptions, oneShot bool) (*app.App, error) {
	cfg, resolved, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || opts.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	if oneShot {
		cfg.Watch.Enabled = false
	}
	a, err := app.Open(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

// withApp opens the app, runs fn and closes the app, joining errors.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app.App) error) (err error) {
	a, err := openApp(opts, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		_ = a.Logger.Sync()
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}
	return fn(a)
}

func (o *rootOptions) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(o.output)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts, false)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Logger.Warn("Shutdown incomplete", zap.Error(err))
				}
				_ = a.Logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Start(ctx); err != nil {
				return err
			}

			srv := server.NewServer(a, &a.Config.Server, a.Logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			a.Logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Index every file under the configured root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if _, err := a.Jobs.Start(cmd.Context()); err != nil {
					return err
				}
				if err := a.Jobs.Wait(cmd.Context()); err != nil {
					return err
				}
				return cli.WriteJobStatus(cmd.OutOrStdout(), a.Jobs.Status(), format)
			})
		},
	}
}

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	var noPersist bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Scan the root and rebuild the index from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if noPersist {
					a.Config.ANN.AutoPersist = false
					if _, err := a.ScanAll(cmd.Context()); err != nil {
						a.Logger.Error("Scan failed", zap.Error(err))
					}
					stats, err := a.Index.RebuildFromStore(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index: %d entries\n", stats.Loaded)
					return nil
				}
				stats, err := a.RebuildAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt index: %d entries, saved to %s\n", stats.Loaded, a.SnapshotPath(""))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "do not write the snapshot afterwards")
	return cmd
}

func newPersistCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "persist [path]",
		Short: "Write the index snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				a.Config.ANN.AutoPersist = false
				path, err := a.Persist(optionalArg(args))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Persisted %d entries to %s\n", a.Index.Size(), path)
				return nil
			})
		},
	}
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load [path]",
		Short: "Load an index snapshot and report its size",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				a.Config.ANN.AutoPersist = false
				path, err := a.Load(optionalArg(args))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d entries from %s\n", a.Index.Size(), path)
				return nil
			})
		},
	}
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Print the top-K snippets for a question",
		Long:  "The question is all remaining arguments joined by spaces; quoting is optional.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			question := buildQuestion(args)
			if question == "" {
				return errors.New("question is required")
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				a.Config.ANN.AutoPersist = false
				resp, err := a.Retrieval.Retrieve(cmd.Context(), a.Scanner.ApplicationID(), question, resolveK(k, a.Config.Retrieval))
				if err != nil {
					return err
				}
				return cli.WriteSnippets(cmd.OutOrStdout(), resp, format)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of snippets (default from config)")
	return cmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with the language model and retrieved snippets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			question := buildQuestion(args)
			if question == "" {
				return errors.New("question is required")
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				a.Config.ANN.AutoPersist = false
				if !a.Answer.Enabled() {
					return errors.New("no language model configured; set llm.provider")
				}
				snippets, err := a.Retrieval.TopK(cmd.Context(), a.Scanner.ApplicationID(), question, resolveK(k, a.Config.Retrieval))
				if err != nil {
					return err
				}
				answer, err := a.Answer.Answer(cmd.Context(), question, snippets)
				if err != nil {
					return err
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), &models.QueryResponse{Answer: answer, Snippets: snippets}, format)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of snippets (default from config)")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store, index and snapshot status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				a.Config.ANN.AutoPersist = false
				records, err := a.Store.Count(cmd.Context())
				if err != nil {
					return err
				}
				usage, err := a.DiskUsage()
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), &cli.Status{
					Records:        records,
					Index:          a.Index.Stats(),
					DiskUsageBytes: usage,
					ApplicationID:  a.Scanner.ApplicationID(),
					Root:           a.Scanner.Root(),
					SnapshotPath:   a.SnapshotPath(""),
				}, format)
			})
		},
	}
}

func newSampleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Insert a timestamped sample snippet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				total, err := a.InsertSample(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted sample; %d records stored\n", total)
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codeindex version %s\n", version)
		},
	}
}

// buildQuestion joins all positional args with spaces so multi-word
// questions work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// resolveK applies the configured default and maximum to a flag value.
func resolveK(k int, cfg config.RetrievalConfig) int {
	if k <= 0 {
		k = cfg.DefaultK
	}
	if cfg.MaxK > 0 && k > cfg.MaxK {
		k = cfg.MaxK
	}
	return k
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
