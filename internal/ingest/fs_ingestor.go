package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/constants"
)

// HashFile returns the SHA-256 hex digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Scan walks root, skipping hidden entries and the exclude directories, and
// hashes every PDF. Files with identical content collapse into one Candidate
// whose Path is the first in lexical order. Unreadable files are reported in
// DirStats, never as an error.
func Scan(ctx context.Context, root string, logger *slog.Logger, exclude ...string) ([]Candidate, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("inbox path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, stats, fmt.Errorf("inbox path: %w", err)
	}
	skip := newSkipDirs([]string{abs}, exclude)

	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == abs {
				return walkErr
			}
			stats.Failed++
			stats.Failures = append(stats.Failures, ScanFailure{Path: path, Err: walkErr.Error()})
			return nil
		}
		if path != abs && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != abs && skip.has(path) {
				logger.Debug("ingest.scan.skip_dir", "path", path)
				return filepath.SkipDir
			}
			return nil
		}
		stats.Scanned++
		if !d.Type().IsRegular() || !isInvoiceFile(path) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk %s: %w", abs, err)
	}
	sort.Strings(paths)

	var (
		out  []Candidate
		byID = map[string]int{}
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		id, err := HashFile(path)
		if err != nil {
			logger.Warn("ingest.hash_failed", "path", path, "error", err)
			stats.Failed++
			stats.Failures = append(stats.Failures, ScanFailure{Path: path, Err: err.Error()})
			continue
		}
		if i, dup := byID[id]; dup {
			out[i].Duplicates = append(out[i].Duplicates, path)
			stats.Deduplicated++
			logger.Debug("ingest.duplicate", "path", path, "same_as", out[i].Path, "id", id)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, ScanFailure{Path: path, Err: err.Error()})
			continue
		}
		byID[id] = len(out)
		out = append(out, Candidate{
			ID:       id,
			Path:     path,
			Filename: filepath.Base(path),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	stats.Unique = len(out)

	logger.Info("ingest.scan.ok", "root", abs, "scanned", stats.Scanned, "matched", stats.Matched,
		"unique", stats.Unique, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return out, stats, nil
}

// CandidateFor hashes a single file, for the watcher path.
func CandidateFor(path string) (Candidate, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Candidate{}, err
	}
	if !constants.IsAllowedExt(filepath.Ext(abs)) {
		return Candidate{}, fmt.Errorf("unsupported extension %q", filepath.Ext(abs))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Candidate{}, err
	}
	id, err := HashFile(abs)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{ID: id, Path: abs, Filename: filepath.Base(abs), Size: info.Size(), ModTime: info.ModTime()}, nil
}
