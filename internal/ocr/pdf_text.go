package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix -f 1 -l <max> <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext,
		"-layout", "-enc", "UTF-8", "-eol", "unix",
		"-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages),
		path, "-")
	if err != nil {
		return "", 0, []string{truncate(string(errb), 512)}, fmt.Errorf("pdftotext: %w", err)
	}
	text = strings.TrimRight(string(out), "\f\n ")
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return Normalize(text), pages, nil, nil
}

// nativeText reads the text layer in-process when pdftotext is missing or came back empty.
func (e *Extractor) nativeText(path string) (text string, pages int, warnings []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	n := r.NumPage()
	if n > e.cfg.MaxPages {
		warnings = append(warnings, fmt.Sprintf("text layer capped at %d of %d pages", e.cfg.MaxPages, n))
		n = e.cfg.MaxPages
	}
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i, err))
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\f\n")
		}
		sb.WriteString(t)
		pages++
	}
	return Normalize(sb.String()), pages, warnings, nil
}
