package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bookshelf-tools/bookenrich/internal/dataset"
	"github.com/bookshelf-tools/bookenrich/internal/report"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
)

func newScrapeCmd(opts *globalOptions) *cobra.Command {
	var (
		input  string
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "scrape [url|isbn...]",
		Short: "Enrich a list of books without touching Notion",
		Long: `Runs the fetch-and-merge pipeline over URLs, ISBNs or a key file and
exports the merged records.

Key files may be JSONL (url, isbn, title, author per line), Parquet with the
same columns, or plain text with one URL or ISBN per line. Output goes to
stdout unless --output names a .jsonl or .parquet file.`,
		Example: `  # Two books to stdout
  bookenrich scrape https://www.goodreads.com/book/show/1 9789750718546

  # A reading list to Parquet
  bookenrich scrape --input books.jsonl --output enriched.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			format, err := report.ParseFormat(opts.format)
			if err != nil {
				return err
			}

			keys := make([]sources.LookupKey, 0, len(args))
			for _, arg := range args {
				keys = append(keys, lookupKey(arg))
			}
			if input != "" {
				rows, err := dataset.NewLoader(input).LoadSample(limit)
				if err != nil {
					return fmt.Errorf("failed to load keys: %w", err)
				}
				for _, row := range rows {
					keys = append(keys, row.Key())
				}
			}
			if len(keys) == 0 {
				return errors.New("nothing to scrape: pass URLs, ISBNs or --input")
			}

			client := newHTTPClient(opts.cfg)
			engine, err := newEngine(ctx, opts.cfg, client, nil)
			if err != nil {
				return err
			}

			out := make([]dataset.RecordRow, 0, len(keys))
			found := 0
			for i, key := range keys {
				if ctx.Err() != nil {
					break
				}
				name := dataset.Input(key)
				slog.Info("Processing key", "index", i+1, "total", len(keys), "input", name)

				rec, results := engine.EnrichKey(ctx, key)
				row := dataset.NewRecordRow(name, rec)
				if rec.IsEmpty() {
					row.Error = report.NewLookup(name, rec, results).Reason()
				} else {
					found++
				}
				out = append(out, row)
			}
			slog.Info("Scrape finished", "keys", len(keys), "found", found)

			if output != "" {
				if err := dataset.WriteRecords(output, out); err != nil {
					return err
				}
				slog.Info("Records saved", "path", output)
				return nil
			}
			if format == report.YAML {
				return report.Write(cmd.OutOrStdout(), format, out)
			}
			return dataset.WriteJSONL(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Key file (.jsonl, .parquet or .txt)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (.jsonl or .parquet); stdout when empty")
	cmd.Flags().IntVar(&limit, "limit", 0, "Read at most this many keys from --input (0 = all)")

	return cmd
}
