package constants

import "strings"

// AllowedExtensions holds the file extensions accepted from the inbox.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a path extension (with or without dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// Report and store file names written under the configured directories.
const (
	ReportBySender    = "invoice_summary_by_sender.json"
	ReportByMonth     = "invoice_summary_by_month.json"
	ReportReviewQueue = "invoice_review_queue.json"
	ReportErrors      = "invoice_errors.json"
	ReportRun         = "run_report.json"
	ReportWorkbook    = "invoices.xlsx"
	ReportDashboard   = "dashboard_invoices.json"

	DirByDate   = "by_date"
	DirBySender = "by_sender"
)
