package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
)

// inspect runs one file through text and field extraction without touching
// the metadata store, for checking prompts and OCR settings.
func newInspectCmd() *cobra.Command {
	var textOnly, noCache bool
	cmd := &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Show the text and the record extracted from one PDF without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if textOnly {
				start := time.Now()
				res, err := a.textExtractor().Extract(ctx, path)
				if err != nil {
					return err
				}
				logger.Info("inspect.text.ok", "method", res.Method, "pages", res.Pages, "bytes", len(res.Text),
					"quality", res.TextQuality, "duration_ms", time.Since(start).Milliseconds())
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
				return nil
			}

			c, err := ingest.CandidateFor(path)
			if err != nil {
				return err
			}
			proc, err := a.processor(ctx, !noCache)
			if err != nil {
				return err
			}
			rec := proc.Process(ctx, c)
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", proc.Outcome(&rec))
			return nil
		},
	}
	cmd.Flags().BoolVar(&textOnly, "text", false, "print the extracted text only; no model call")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "call the model even when a cached response exists")
	return cmd
}
