package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/keylock"
)

// Recovery describes a corrupt metadata document that was moved aside on open.
type Recovery struct {
	BackupPath string `json:"backup_path"`
	Err        string `json:"error"`
}

// document is the on-disk shape. total_invoices counts every entry in invoices,
// malformed ones included; malformed_invoices says how many of those could not be used.
type document struct {
	GeneratedAt       time.Time         `json:"generated_at"`
	TotalInvoices     int               `json:"total_invoices"`
	MalformedInvoices int               `json:"malformed_invoices,omitempty"`
	Invoices          []json.RawMessage `json:"invoices"`
}

// Store is the metadata document: one record per invoice file, keyed by content id.
type Store struct {
	path   string
	logger *slog.Logger
	locks  *keylock.Locker
	now    func() time.Time

	mu        sync.RWMutex
	records   map[string]*entity.InvoiceRecord
	malformed []entity.MalformedEntry
	recovery  *Recovery
}

// OpenStore loads the document at path. A missing file is an empty store. A
// document that does not parse is renamed to <path>.corrupt-<timestamp> and the
// store starts empty; only a failed backup is returned as an error.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger,
		locks:   keylock.New(),
		now:     time.Now,
		records: make(map[string]*entity.InvoiceRecord),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("store.open", "path", path, "records", 0, "created", true)
		return s, nil
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeCorruptStore, "read metadata store", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		logger.Info("store.open", "path", path, "records", 0, "empty", true)
		return s, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return s, s.recover(err)
	}
	s.load(doc.Invoices)
	logger.Info("store.open", "path", path, "records", len(s.records), "malformed", len(s.malformed))
	return s, nil
}

func (s *Store) recover(parseErr error) error {
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.path, backup); err != nil {
		s.logger.Error("store.recovery_failed", "path", s.path, "backup", backup, "error", err)
		return common.NewAppError(common.CodeCorruptStore,
			fmt.Sprintf("metadata store is corrupt (%v) and could not be backed up", parseErr), err)
	}
	s.recovery = &Recovery{BackupPath: backup, Err: parseErr.Error()}
	s.logger.Error("store.recovered", "path", s.path, "backup", backup, "error", parseErr)
	return nil
}

func (s *Store) load(raw []json.RawMessage) {
	for i, msg := range raw {
		var rec entity.InvoiceRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			s.malformed = append(s.malformed, entity.MalformedEntry{Index: i, Reason: err.Error(), Raw: msg})
			continue
		}
		if problem := rec.Problem(); problem != "" {
			s.malformed = append(s.malformed, entity.MalformedEntry{Index: i, ID: rec.ID, Reason: problem, Raw: msg})
			continue
		}
		if _, dup := s.records[rec.ID]; dup {
			s.malformed = append(s.malformed, entity.MalformedEntry{Index: i, ID: rec.ID, Reason: "duplicate id", Raw: msg})
			continue
		}
		s.records[rec.ID] = &rec
	}
	if len(s.malformed) > 0 {
		s.logger.Warn("store.malformed_entries", "path", s.path, "count", len(s.malformed))
	}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Recovery returns the corrupt-document backup made on open, or nil.
func (s *Store) Recovery() *Recovery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recovery == nil {
		return nil
	}
	r := *s.recovery
	return &r
}

// Upsert inserts or replaces the record with rec.ID. Organized paths of the
// stored record survive when the new one agrees on sender, issue date and source.
func (s *Store) Upsert(rec entity.InvoiceRecord) error {
	if rec.ID == "" {
		return common.NewAppError(common.CodeInvalidInput, "record id is required", nil)
	}
	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	next := rec.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[rec.ID]; ok && next.Organized == nil && prev.Organized != nil && samePlacement(prev, &next) {
		o := *prev.Organized
		next.Organized = &o
	}
	s.records[rec.ID] = &next
	s.malformed = slices.DeleteFunc(s.malformed, func(m entity.MalformedEntry) bool { return m.ID == rec.ID })
	return nil
}

func samePlacement(a, b *entity.InvoiceRecord) bool {
	if a.Sender != b.Sender || a.SourcePath != b.SourcePath {
		return false
	}
	switch {
	case a.IssueDate == nil && b.IssueDate == nil:
		return true
	case a.IssueDate == nil || b.IssueDate == nil:
		return false
	default:
		return *a.IssueDate == *b.IssueDate
	}
}

// Get returns a copy of the record with id.
func (s *Store) Get(id string) (entity.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return entity.InvoiceRecord{}, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	return rec.Clone(), nil
}

// SetOrganizedPaths records where the organizer placed the source file.
func (s *Store) SetOrganizedPaths(id string, paths entity.OrganizedPaths) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	rec.Organized = &paths
	return nil
}

// All returns copies of every record ordered by id.
func (s *Store) All() []entity.InvoiceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.InvoiceRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Malformed returns the entries that were kept verbatim because they could not be used.
func (s *Store) Malformed() []entity.MalformedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.malformed)
}

// Len returns the number of well-formed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// BySender groups extracted records by normalized sender.
func (s *Store) BySender() map[string][]entity.InvoiceRecord {
	return s.groupBy(func(r *entity.InvoiceRecord) string { return r.Sender })
}

// ByMonth groups extracted records by YYYY-MM of the issue date; records without one land in "undated".
func (s *Store) ByMonth() map[string][]entity.InvoiceRecord {
	return s.groupBy(func(r *entity.InvoiceRecord) string { return r.Month() })
}

func (s *Store) groupBy(key func(*entity.InvoiceRecord) string) map[string][]entity.InvoiceRecord {
	out := make(map[string][]entity.InvoiceRecord)
	for _, r := range s.All() {
		if r.Status != constants.StatusExtracted {
			continue
		}
		k := key(&r)
		out[k] = append(out[k], r)
	}
	return out
}

// Reset drops every record, for a rebuild from the source files.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*entity.InvoiceRecord)
	s.malformed = nil
	s.logger.Info("store.reset", "path", s.path)
}

// Save writes the document atomically. Malformed entries are written back unchanged.
func (s *Store) Save() error {
	recs := s.All()

	s.mu.RLock()
	malformed := slices.Clone(s.malformed)
	s.mu.RUnlock()

	doc := document{
		GeneratedAt: s.now().UTC(),
		Invoices:    make([]json.RawMessage, 0, len(recs)+len(malformed)),
	}
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode invoice %s: %w", r.ID, err)
		}
		doc.Invoices = append(doc.Invoices, b)
	}
	for _, m := range malformed {
		if len(m.Raw) > 0 {
			doc.Invoices = append(doc.Invoices, m.Raw)
			doc.MalformedInvoices++
		}
	}
	doc.TotalInvoices = len(doc.Invoices)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata store: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, append(data, '\n')); err != nil {
		s.logger.Error("store.save_failed", "path", s.path, "error", err)
		return fmt.Errorf("write metadata store: %w", err)
	}
	s.logger.Info("store.saved", "path", s.path, "records", len(recs))
	return nil
}
