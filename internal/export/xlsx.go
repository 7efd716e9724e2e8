package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/summary"
)

const (
	sheetInvoices = "Invoices"
	sheetBySender = "By Sender"
	sheetByMonth  = "By Month"
	sheetReview   = "Review Queue"
)

// numFmtAmount is the built-in "#,##0.00" format.
const numFmtAmount = 4

// BuildWorkbook renders records and their summary as an XLSX workbook.
func (s *Service) BuildWorkbook(records []entity.InvoiceRecord, sum summary.Summary) (*bytes.Buffer, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetInvoices); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetBySender, sheetByMonth, sheetReview} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetInvoices)
	f.SetActiveSheet(activeIndex)

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		return nil, err
	}

	w := &sheetWriter{f: f, header: header, money: money}
	w.invoices(records)
	w.buckets(sheetBySender, "Sender", sum.BySender)
	w.buckets(sheetByMonth, "Month", sum.ByMonth)
	w.review(sum.ReviewQueue)
	if w.err != nil {
		return nil, w.err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(records),
		"senders", len(sum.BySender),
		"months", len(sum.ByMonth),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

// sheetWriter keeps the first error so the row loops stay flat.
type sheetWriter struct {
	f      *excelize.File
	header int
	money  int
	err    error
}

func (w *sheetWriter) row(sheet string, row int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *sheetWriter) headerRow(sheet string, headers ...any) {
	w.row(sheet, 1, headers...)
	if w.err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	w.err = w.f.SetCellStyle(sheet, "A1", last, w.header)
	if w.err == nil {
		w.err = w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
}

func (w *sheetWriter) style(sheet, col string, fromRow, toRow, style int) {
	if w.err != nil || toRow < fromRow {
		return
	}
	w.err = w.f.SetCellStyle(sheet, fmt.Sprintf("%s%d", col, fromRow), fmt.Sprintf("%s%d", col, toRow), style)
}

func (w *sheetWriter) widths(sheet string, widths map[string]float64) {
	for col, width := range widths {
		if w.err != nil {
			return
		}
		w.err = w.f.SetColWidth(sheet, col, col, width)
	}
}

func (w *sheetWriter) invoices(records []entity.InvoiceRecord) {
	sorted := make([]entity.InvoiceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Month(), sorted[j].Month()
		if sorted[i].IssueDate != nil && sorted[j].IssueDate != nil {
			a, b = sorted[i].IssueDate.String(), sorted[j].IssueDate.String()
		}
		if a != b {
			return a < b
		}
		return sorted[i].SourcePath < sorted[j].SourcePath
	})

	w.headerRow(sheetInvoices, "Issue Date", "Sender", "Invoice Number", "Amount", "Currency",
		"Confidence", "Flags", "Status", "Source Path", "By Date", "By Sender")

	row := 2
	for _, r := range sorted {
		date := ""
		if r.IssueDate != nil {
			date = r.IssueDate.String()
		}
		var amount any = ""
		if r.Amount != nil {
			amount = r.Amount.InexactFloat64()
		}
		flags := make([]string, len(r.Flags))
		for i, fl := range r.Flags {
			flags[i] = string(fl)
		}
		byDate, bySender := "", ""
		if r.Organized != nil {
			byDate, bySender = r.Organized.ByDate, r.Organized.BySender
		}
		w.row(sheetInvoices, row, date, r.Sender, r.InvoiceNumber, amount, r.Currency,
			r.Confidence, strings.Join(flags, ", "), string(r.Status), r.SourcePath, byDate, bySender)
		row++
	}
	w.style(sheetInvoices, "D", 2, row-1, w.money)
	w.widths(sheetInvoices, map[string]float64{"A": 12, "B": 24, "C": 18, "D": 14, "G": 36, "H": 20, "I": 60, "J": 60, "K": 60})
}

// buckets writes one row per group and currency.
func (w *sheetWriter) buckets(sheet, keyHeader string, buckets []summary.Bucket) {
	w.headerRow(sheet, keyHeader, "Records", "Currency", "Total")
	row := 2
	for _, b := range buckets {
		currencies := make([]string, 0, len(b.TotalsByCurrency))
		for cur := range b.TotalsByCurrency {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)
		if len(currencies) == 0 {
			w.row(sheet, row, b.Key, b.RecordCount, "", "")
			row++
			continue
		}
		for _, cur := range currencies {
			w.row(sheet, row, b.Key, b.RecordCount, cur, b.TotalsByCurrency[cur].InexactFloat64())
			row++
		}
	}
	w.style(sheet, "D", 2, row-1, w.money)
	w.widths(sheet, map[string]float64{"A": 28, "D": 16})
}

func (w *sheetWriter) review(items []summary.ReviewItem) {
	w.headerRow(sheetReview, "Confidence", "Reasons", "Sender", "Issue Date", "Amount", "Currency", "Source Path", "Details")
	for i, it := range items {
		w.row(sheetReview, i+2, it.Confidence, strings.Join(it.Reasons, ", "), it.Sender, it.IssueDate,
			it.Amount, it.Currency, it.SourcePath, truncate(strings.Join(it.Details, "; "), 200))
	}
	w.widths(sheetReview, map[string]float64{"B": 40, "C": 24, "G": 60, "H": 60})
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
