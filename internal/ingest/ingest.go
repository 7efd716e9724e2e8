package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
)

// Candidate is one unique inbox file ready for processing.
type Candidate struct {
	ID         string    // SHA-256 hex of the content
	Path       string    // absolute path, first in lexical order among identical copies
	Filename   string    // base name of Path
	Size       int64     // bytes
	ModTime    time.Time // source modification time
	Duplicates []string  // other paths with identical content
}

// ScanFailure is a file the scan could not read.
type ScanFailure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      int           `json:"scanned"`
	Matched      int           `json:"matched"`
	Unique       int           `json:"unique"`
	Deduplicated int           `json:"deduplicated"`
	Failed       int           `json:"failed"`
	Failures     []ScanFailure `json:"failures,omitempty"`
}

// isHidden reports whether the base name of path starts with a dot.
func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// isInvoiceFile reports whether path names a PDF we should pick up.
func isInvoiceFile(path string) bool {
	return !isHidden(path) && constants.IsAllowedExt(filepath.Ext(path))
}

// skipDirs are absolute directories a scan or watch never descends into.
type skipDirs []string

// newSkipDirs resolves dirs to absolute paths. A dir that is a root or
// contains one is dropped, since skipping it would hide the inbox itself.
func newSkipDirs(roots, dirs []string) skipDirs {
	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			absRoots = append(absRoots, abs)
		}
	}
	var out skipDirs
next:
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		for _, r := range absRoots {
			if fsutil.Within(abs, r) {
				continue next
			}
		}
		out = append(out, abs)
	}
	return out
}

// has reports whether path is one of the skipped directories or lies below one.
func (s skipDirs) has(path string) bool {
	if len(s) == 0 {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	for _, d := range s {
		if fsutil.Within(d, path) {
			return true
		}
	}
	return false
}

