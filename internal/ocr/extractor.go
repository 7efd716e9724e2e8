package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for the OCR page, default 300
	MaxPages      int // text-layer page cap, default 3

	EnableOCR     bool // fall back to OCR of the first page
	MinTextLength int  // non-space characters required to accept a result, default 20
}

type ExtractionResult struct {
	Text        string
	Pages       int
	Method      string // constants.MethodPDFText | MethodPDFNative | MethodPDFOCR
	Duration    time.Duration
	Warnings    []string
	TextQuality float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 20
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Extract returns the text of a PDF, trying the text layer before OCR.
// It fails with an UNREADABLE_PDF AppError when no usable text is found.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("ocr.extract.start", "path", path, "ext", ext)

	if !constants.IsAllowedExt(ext) {
		return ExtractionResult{}, common.NewAppError(common.CodeUnreadablePDF, fmt.Sprintf("unsupported extension %q", ext), common.ErrInvalidInput)
	}
	if st, err := os.Stat(path); err != nil {
		return ExtractionResult{}, common.NewAppError(common.CodeUnreadablePDF, "cannot stat source", err)
	} else if st.IsDir() {
		return ExtractionResult{}, common.NewAppError(common.CodeUnreadablePDF, "source is a directory", common.ErrInvalidInput)
	}

	var warns []string
	finish := func(res ExtractionResult) (ExtractionResult, error) {
		res.Duration = time.Since(start)
		res.Warnings = append(warns, res.Warnings...)
		res.TextQuality = heuristicQuality(res.Text)
		e.logger.Info("ocr.extract.ok",
			"path", path,
			"method", res.Method,
			"pages", res.Pages,
			"chars", len(res.Text),
			"quality", res.TextQuality,
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res, nil
	}

	text, pages, w, err := e.pdfToText(ctx, path)
	warns = append(warns, w...)
	if err == nil && e.usable(text) {
		return finish(ExtractionResult{Text: text, Pages: pages, Method: constants.MethodPDFText})
	}
	switch {
	case errors.Is(err, ErrToolMissing):
		e.logger.Debug("ocr.pdftotext.missing", "path", path)
	case err != nil:
		e.logger.Warn("ocr.pdftotext.failed", "path", path, "error", err)
	}

	text, pages, w, err = e.nativeText(path)
	warns = append(warns, w...)
	if err == nil && e.usable(text) {
		return finish(ExtractionResult{Text: text, Pages: pages, Method: constants.MethodPDFNative})
	}
	if err != nil {
		e.logger.Warn("ocr.native.failed", "path", path, "error", err)
	}

	if !e.cfg.EnableOCR {
		e.logger.Warn("ocr.extract.unreadable", "path", path, "ocr_enabled", false)
		return ExtractionResult{Warnings: warns, Duration: time.Since(start)},
			common.NewAppError(common.CodeUnreadablePDF, "text layer empty and OCR disabled", nil)
	}

	text, w, err = e.firstPageOCR(ctx, path)
	warns = append(warns, w...)
	if err == nil && e.usable(text) {
		return finish(ExtractionResult{Text: text, Pages: 1, Method: constants.MethodPDFOCR})
	}
	e.logger.Warn("ocr.extract.unreadable", "path", path, "ocr_enabled", true, "error", err)
	return ExtractionResult{Warnings: warns, Duration: time.Since(start)},
		common.NewAppError(common.CodeUnreadablePDF, "no usable text from text layer or OCR", err)
}

// usable applies the minimum-length heuristic on non-space characters.
func (e *Extractor) usable(text string) bool {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
			if n >= e.cfg.MinTextLength {
				return true
			}
		}
	}
	return false
}
