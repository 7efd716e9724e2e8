package organize

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	inbox string
	root  string
	store *repository.Store
	org   *Organizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := repository.OpenStore(filepath.Join(dir, "meta.json"), logger)
	require.NoError(t, err)
	root := filepath.Join(dir, "organized")
	return &fixture{
		inbox: filepath.Join(dir, "inbox"),
		root:  root,
		store: store,
		org:   New(root, fsutil.ModeCopy, logger, nil, WithWorkers(2)),
	}
}

func (f *fixture) add(t *testing.T, id, filename, sender, content string, date *civil.Date) entity.InvoiceRecord {
	t.Helper()
	src := filepath.Join(f.inbox, id, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	amt := decimal.RequireFromString("10")
	rec := entity.InvoiceRecord{
		ID: id, SourcePath: src, Filename: filename, Status: constants.StatusExtracted,
		Sender: sender, IssueDate: date, Amount: &amt, Currency: "USD", Confidence: 1,
	}
	require.NoError(t, f.store.Upsert(rec))
	return rec
}

func jan(day int) *civil.Date { return &civil.Date{Year: 2025, Month: 1, Day: day} }

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestOrganize_PlacesBothTrees(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a1", "inv-001.pdf", "acme_corp", "pdf-a", jan(10))

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Eligible)
	assert.Equal(t, 2, stats.Written)

	rec, err := f.store.Get("a1")
	require.NoError(t, err)
	require.NotNil(t, rec.Organized)
	assert.Equal(t, filepath.Join(f.root, "by_date", "2025-01", "acme_corp", "inv-001.pdf"), rec.Organized.ByDate)
	assert.Equal(t, filepath.Join(f.root, "by_sender", "acme_corp", "2025-01-10_inv-001.pdf"), rec.Organized.BySender)
	assert.Equal(t, "pdf-a", readFile(t, rec.Organized.ByDate))
	assert.Equal(t, "pdf-a", readFile(t, rec.Organized.BySender))
	assert.Equal(t, "pdf-a", readFile(t, rec.SourcePath), "source is never moved")
}

func TestOrganize_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a1", "inv.pdf", "acme", "pdf-a", jan(10))

	_, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	first, _ := f.store.Get("a1")

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Written)
	assert.Equal(t, 2, stats.Reused)

	second, _ := f.store.Get("a1")
	assert.Equal(t, first.Organized, second.Organized)

	entries, err := os.ReadDir(filepath.Join(f.root, "by_date", "2025-01", "acme"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOrganize_CollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a1", "invoice.pdf", "acme", "new content", jan(10))

	existing := filepath.Join(f.root, "by_date", "2025-01", "acme", "invoice.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("someone else's invoice"), 0o644))

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Conflicts)

	rec, _ := f.store.Get("a1")
	assert.Equal(t, filepath.Join(filepath.Dir(existing), "invoice_1.pdf"), rec.Organized.ByDate)
	assert.Equal(t, "new content", readFile(t, rec.Organized.ByDate))
	assert.Equal(t, "someone else's invoice", readFile(t, existing))

	// a second run reuses the suffixed file instead of making invoice_2.pdf
	stats, err = f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Written)
	_, err = os.Stat(filepath.Join(filepath.Dir(existing), "invoice_2.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestOrganize_SameNameDifferentRecords(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a1", "invoice.pdf", "acme", "first", jan(10))
	f.add(t, "a2", "invoice.pdf", "acme", "second", jan(10))

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Written)
	assert.Equal(t, 2, stats.Conflicts)

	r1, _ := f.store.Get("a1")
	r2, _ := f.store.Get("a2")
	assert.NotEqual(t, r1.Organized.ByDate, r2.Organized.ByDate)
	assert.Equal(t, "first", readFile(t, r1.Organized.ByDate))
	assert.Equal(t, "second", readFile(t, r2.Organized.ByDate))
}

func TestOrganize_SkipsIneligible(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "a.pdf", constants.UnknownVendor, "x", jan(1))
	f.add(t, "d1", "b.pdf", "acme", "y", nil)
	require.NoError(t, f.store.Upsert(entity.InvoiceRecord{ID: "f1", SourcePath: "/nope.pdf", Status: constants.StatusUnreadablePDF}))

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Eligible)
	assert.Equal(t, 3, stats.Skipped)
	assert.Len(t, stats.Skips, 3)
	_, err = os.Stat(f.root)
	assert.True(t, os.IsNotExist(err), "nothing is written for skipped records")
}

func TestOrganize_MissingSourceCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, "a1", "inv.pdf", "acme", "x", jan(2))
	require.NoError(t, os.Remove(rec.SourcePath))

	stats, err := f.org.Organize(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	got, _ := f.store.Get("a1")
	assert.Nil(t, got.Organized)
}

func TestDestinations_StayUnderRoot(t *testing.T) {
	f := newFixture(t)
	paths, err := f.org.Destinations(entity.InvoiceRecord{
		Filename: "../../etc/passwd", Sender: "acme", IssueDate: jan(3),
	})
	require.NoError(t, err)
	assert.True(t, fsutil.Within(f.root, paths.ByDate))
	assert.True(t, fsutil.Within(f.root, paths.BySender))
	assert.Equal(t, "____etc_passwd", filepath.Base(paths.ByDate))
}

func TestIsVariant(t *testing.T) {
	base := filepath.Join("r", "inv.pdf")
	assert.True(t, isVariant(base, base))
	assert.True(t, isVariant(base, filepath.Join("r", "inv_12.pdf")))
	assert.False(t, isVariant(base, filepath.Join("r", "inv_x.pdf")))
	assert.False(t, isVariant(base, filepath.Join("other", "inv_1.pdf")))
}
