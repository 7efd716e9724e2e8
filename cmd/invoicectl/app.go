package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/export"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm/ollama"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-organizer/internal/metrics"
	"github.com/joseph-ayodele/invoice-organizer/internal/normalize"
	"github.com/joseph-ayodele/invoice-organizer/internal/ocr"
	"github.com/joseph-ayodele/invoice-organizer/internal/organize"
	"github.com/joseph-ayodele/invoice-organizer/internal/pipeline"
	"github.com/joseph-ayodele/invoice-organizer/internal/repository"
	"github.com/joseph-ayodele/invoice-organizer/internal/retry"
	"github.com/joseph-ayodele/invoice-organizer/internal/summary"
)

// app holds what every command shares: config, store and metrics.
type app struct {
	cfg     *common.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *repository.Store
	cache   *repository.Cache
}

func openApp(c *common.Config, logger *slog.Logger) (*app, error) {
	store, err := repository.OpenStore(c.Paths.MetadataPath, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: c, logger: logger, metrics: metrics.New(), store: store}, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache.close_failed", "error", err)
		}
	}
	if path := a.cfg.Paths.MetricsTextfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("metrics.write_failed", "path", path, "error", err)
		}
	}
}

func (a *app) completer(ctx context.Context) (llm.Completer, error) {
	c := a.cfg.LLM
	switch c.Provider {
	case common.ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{APIKey: c.APIKey, Model: c.Model, Temperature: c.Temperature}, a.logger)
	case common.ProviderOllama:
		return ollama.NewClient(ollama.Config{Host: c.BaseURL, Model: c.Model, Temperature: c.Temperature}, a.logger)
	default:
		return openai.NewClient(openai.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		}, a.logger), nil
	}
}

func (a *app) processor(ctx context.Context, useCache bool) (*pipeline.Processor, error) {
	if err := a.cfg.RequireLLMCredentials(); err != nil {
		return nil, err
	}
	completer, err := a.completer(ctx)
	if err != nil {
		return nil, err
	}

	opts := []llm.Option{
		llm.WithTimeout(a.cfg.LLM.Timeout),
		llm.WithLogger(a.logger),
		llm.WithAttemptObserver(func(provider, result string) { a.metrics.LLMAttempts(provider, result, 1) }),
	}
	if useCache && a.cfg.Paths.CachePath != "" {
		if a.cache == nil {
			cache, err := repository.OpenCache(a.cfg.Paths.CachePath, a.logger)
			if err != nil {
				return nil, err
			}
			a.cache = cache
		}
		opts = append(opts, llm.WithCache(a.cache))
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = a.cfg.LLM.MaxAttempts
	policy.BaseDelay = a.cfg.LLM.BackoffBase
	fields := llm.NewExtractor(completer, policy, opts...)

	text := a.textExtractor()

	ec := a.cfg.Extraction
	norm := normalize.New(normalize.Options{
		DefaultCurrency: ec.DefaultCurrency,
		Dates:           normalize.DatePolicy{PreferLabeled: ec.PreferLabeledDates, Tiebreak: ec.DateTiebreak, DayFirst: ec.DayFirst},
		SenderAliases:   ec.SenderAliases,
	})

	return pipeline.NewProcessor(text, fields, norm, pipeline.ProcessorConfig{
		DefaultCurrency: ec.DefaultCurrency,
		MaxTextChars:    a.cfg.LLM.MaxTextChars,
		Threshold:       ec.ConfidenceThreshold,
	}, a.logger, a.metrics), nil
}

func (a *app) textExtractor() *ocr.Extractor {
	oc := a.cfg.OCR
	return ocr.NewExtractor(ocr.Config{
		Pdftotext:     oc.Pdftotext,
		Pdftoppm:      oc.Pdftoppm,
		Tesseract:     oc.Tesseract,
		TesseractLang: oc.Lang,
		TessdataDir:   oc.TessdataDir,
		DPI:           oc.DPI,
		MaxPages:      oc.MaxPages,
		EnableOCR:     oc.Enabled,
		MinTextLength: oc.MinTextLength,
	}, nil, a.logger)
}

type processOptions struct {
	rebuild bool
	noCache bool
}

// process scans the inbox and runs every new or failed file through the pipeline.
func (a *app) process(ctx context.Context, opts processOptions) (pipeline.RunReport, error) {
	proc, err := a.processor(ctx, !opts.noCache)
	if err != nil {
		return pipeline.RunReport{}, err
	}
	candidates, stats, err := ingest.Scan(ctx, a.cfg.Paths.InboxDir, a.logger, a.cfg.GeneratedDirs()...)
	if err != nil {
		return pipeline.RunReport{}, err
	}
	if opts.rebuild {
		a.logger.Warn("store.rebuild", "path", a.store.Path(), "records", a.store.Len())
		a.store.Reset()
	}

	runner := pipeline.NewRunner(proc, a.store, pipeline.RunnerConfig{
		Workers:     a.cfg.Pipeline.Workers,
		FileTimeout: a.cfg.Pipeline.FileTimeout,
		QueueSize:   a.cfg.Pipeline.QueueSize,
		Reprocess:   opts.rebuild,
	}, a.logger)
	report, err := runner.Run(ctx, candidates)
	report.ApplyScan(stats)
	return report, err
}

func (a *app) organize(ctx context.Context) (organize.Stats, error) {
	mode, err := fsutil.ParseMode(a.cfg.Organizer.Mode)
	if err != nil {
		return organize.Stats{}, common.NewAppError(common.CodeConfig, err.Error(), common.ErrInvalidInput)
	}
	o := organize.New(a.cfg.Paths.OutputRoot, mode, a.logger, a.metrics, organize.WithWorkers(a.cfg.Pipeline.Workers))
	stats, runErr := o.Organize(ctx, a.store)
	if err := a.store.Save(); err != nil {
		return stats, err
	}
	return stats, runErr
}

// summarize writes the report documents and, when asked, the workbook.
func (a *app) summarize(run *pipeline.RunReport, withWorkbook bool) (summary.Summary, error) {
	now := time.Now()
	records := a.store.All()
	sum := summary.Summarize(records, a.cfg.Extraction.ConfidenceThreshold, a.store.Malformed()...)

	exp := export.NewService(a.logger)
	if _, err := exp.WriteReports(a.cfg.Paths.ReportsDir, sum, run, now); err != nil {
		return sum, err
	}
	if !withWorkbook {
		return sum, nil
	}
	buf, err := exp.BuildWorkbook(records, sum)
	if err != nil {
		return sum, err
	}
	path := filepath.Join(a.cfg.Paths.ReportsDir, constants.ReportWorkbook)
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return sum, fmt.Errorf("write %s: %w", path, err)
	}
	a.logger.Info("export.xlsx.written", "path", path)
	return sum, nil
}
