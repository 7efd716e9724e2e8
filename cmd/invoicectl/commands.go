package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/export"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/mail"
	"github.com/joseph-ayodele/invoice-organizer/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the inbox, organize the files and write the reports (default)",
		RunE:  runAll,
	}
}

func runAll(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	report, err := pass(cmd.Context(), a, processOptions{}, false)
	fmt.Fprintln(cmd.OutOrStdout(), report.Line())
	return err
}

// pass is one full process, organize and summarize cycle.
func pass(ctx context.Context, a *app, opts processOptions, workbook bool) (pipeline.RunReport, error) {
	report, err := a.process(ctx, opts)
	if err != nil {
		return report, err
	}
	if !report.Interrupted {
		stats, err := a.organize(ctx)
		report.Organize = &stats
		if err != nil {
			return report, err
		}
	}
	_, err = a.summarize(&report, workbook)
	return report, err
}

func newProcessCmd() *cobra.Command {
	var opts processOptions
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract fields from new or previously failed invoices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			report, err := a.process(cmd.Context(), opts)
			fmt.Fprintln(cmd.OutOrStdout(), report.Line())
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "drop the metadata store and reprocess every file")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "call the model even when a cached response exists")
	return cmd
}

func newOrganizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "organize",
		Short: "Mirror extracted invoices into by_date and by_sender trees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			stats, err := a.organize(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "organized %d: %d written, %d reused, %d conflicts, %d failed, %d skipped\n",
				stats.Eligible, stats.Written, stats.Reused, stats.Conflicts, stats.Failed, stats.Skipped)
			return err
		},
	}
}

func newSummarizeCmd() *cobra.Command {
	var workbook bool
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Write per-sender and per-month totals, the review queue and the error list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			sum, err := a.summarize(nil, workbook)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d accepted, %d flagged for review, %d failed, %d malformed; reports in %s\n",
				sum.Accepted, sum.Flagged, sum.Failed, sum.Malformed, cfg.Paths.ReportsDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&workbook, "xlsx", false, "also write "+constants.ReportWorkbook)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline whenever PDFs appear in the inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			batches, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
				Roots:       []string{cfg.Paths.InboxDir},
				InitialScan: true,
				Debounce:    debounce,
				Exclude:     cfg.GeneratedDirs(),
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			logger.Info("watch.start", "inbox", cfg.Paths.InboxDir, "debounce", debounce)
			for {
				select {
				case <-ctx.Done():
					logger.Info("watch.stop")
					return nil
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					logger.Warn("watch.error", "error", err)
				case paths, ok := <-batches:
					if !ok {
						return nil
					}
					logger.Info("watch.batch", "files", len(paths))
					report, err := pass(ctx, a, processOptions{}, false)
					fmt.Fprintln(cmd.OutOrStdout(), report.Line())
					if err != nil {
						logger.Error("watch.pass_failed", "error", err)
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before a batch is processed")
	return cmd
}

func newFetchCmd() *cobra.Command {
	var (
		after, before string
		readState     string
		label         string
		maxResults    int64
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download PDF invoices from Gmail into the inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch readState {
			case mail.ReadAll, mail.ReadRead, mail.ReadUnread:
			default:
				return fmt.Errorf("--read-state must be all, read or unread, got %q", readState)
			}
			q := mail.Query{ReadState: readState, MaxResults: maxResults}
			var err error
			if q.After, err = parseDay(after); err != nil {
				return fmt.Errorf("--after: %w", err)
			}
			if q.Before, err = parseDay(before); err != nil {
				return fmt.Errorf("--before: %w", err)
			}

			g, err := mail.NewGmail(ctx, cfg.Mail.CredentialsFile, cfg.Mail.TokenFile, logger)
			if err != nil {
				return err
			}
			atts, dash, err := g.FetchAttachments(ctx, q)
			if err != nil {
				return err
			}
			saved, err := mail.SaveAttachments(cfg.Paths.InboxDir, atts, logger)
			if err != nil {
				return err
			}

			data, err := export.Document("dashboard_invoices", dash, time.Now())
			if err != nil {
				return err
			}
			if err := fsutil.WriteFileAtomic(filepath.Join(cfg.Paths.ReportsDir, constants.ReportDashboard), data); err != nil {
				return err
			}

			if label == "" {
				label = cfg.Mail.ProcessedLabel
			}
			labelled := 0
			if label != "" {
				seen := map[string]bool{}
				for _, s := range saved {
					if seen[s.MessageID] {
						continue
					}
					seen[s.MessageID] = true
					if err := g.ApplyLabel(ctx, s.MessageID, label); err != nil {
						logger.Warn("mail.label.failed", "message_id", s.MessageID, "error", err)
						continue
					}
					labelled++
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d PDF(s) into %s, %d labelled %q, %d dashboard-only invoice(s)\n",
				len(saved), cfg.Paths.InboxDir, labelled, label, len(dash))
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "first day to include, YYYY-MM-DD")
	cmd.Flags().StringVar(&before, "before", "", "day to stop before, YYYY-MM-DD")
	cmd.Flags().StringVar(&readState, "read-state", mail.ReadAll, "all, read or unread")
	cmd.Flags().StringVar(&label, "label", "", "label applied to fetched messages (default from config)")
	cmd.Flags().Int64Var(&maxResults, "max", 500, "maximum messages to fetch")
	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
