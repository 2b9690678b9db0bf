package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bookshelf-tools/bookenrich/internal/config"
	"github.com/bookshelf-tools/bookenrich/internal/enrich"
	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/report"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
)

// errNoData makes single-shot lookups that found nothing exit non-zero.
var errNoData = errors.New("no data found")

type globalOptions struct {
	verbose bool
	format  string
	cfg     *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var pageID string

	cmd := &cobra.Command{
		Use:   "bookenrich [url]",
		Short: "Fill book metadata in a Notion reading list",
		Long: `bookenrich fills missing book metadata in a Notion database.

Without arguments it scans the database, scrapes each row's detail-page URL,
consults Google Books and Open Library for whatever is still missing, and
writes back only the empty columns (every column with FORCE_UPDATE=true or
the Refresh checkbox ticked).

With a URL (or an ISBN) it prints the merged record instead and touches
nothing.`,
		Example: `  # Sync the database configured in .env
  bookenrich

  # Look one book up
  bookenrich https://www.goodreads.com/book/show/12345 --format yaml`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			opts.cfg = config.New()
			setupLogging(opts.verbose, opts.cfg.LogLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return runLookup(cmd.Context(), cmd.OutOrStdout(), opts.cfg, args[0], format)
			}
			return runSync(cmd.Context(), cmd.OutOrStdout(), opts.cfg, pageID, format)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&pageID, "page", "", "Sync a single database page by id")

	cmd.AddCommand(newScrapeCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))

	return cmd
}

func setupLogging(verbose bool, level string) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func runSync(ctx context.Context, w io.Writer, cfg *config.Config, pageID string, format report.Format) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	client := newHTTPClient(cfg)
	engine, err := newEngine(ctx, cfg, client, newStore(cfg, client))
	if err != nil {
		return err
	}

	slog.Info("Starting sync", "database", cfg.DatabaseID, "force", cfg.Force, "recent_window", cfg.RecentWindow, "scan_limit", cfg.ScanLimit)

	var sum enrich.Summary
	if pageID != "" {
		sum, err = engine.SyncTarget(ctx, pageID)
	} else {
		sum, err = engine.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return report.Write(w, format, sum)
}

func runLookup(ctx context.Context, w io.Writer, cfg *config.Config, arg string, format report.Format) error {
	client := newHTTPClient(cfg)
	engine, err := newEngine(ctx, cfg, client, nil)
	if err != nil {
		return err
	}

	key := lookupKey(arg)
	rec, results := engine.EnrichKey(ctx, key)
	if err := report.Write(w, format, report.NewLookup(arg, rec, results)); err != nil {
		return err
	}
	if rec.IsEmpty() {
		return fmt.Errorf("%w for %s", errNoData, arg)
	}
	return nil
}

// lookupKey interprets a command-line argument as a URL, an ISBN or a title.
func lookupKey(arg string) sources.LookupKey {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return sources.LookupKey{URL: arg}
	}
	if isbn := record.NormalizeISBN(arg); len(isbn) == 10 || len(isbn) == 13 {
		return sources.LookupKey{ISBN: isbn}
	}
	return sources.LookupKey{Title: arg}
}
