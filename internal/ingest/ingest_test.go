package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func put(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_DedupesAndFilters(t *testing.T) {
	root := t.TempDir()
	put(t, filepath.Join(root, "b.pdf"), "same")
	put(t, filepath.Join(root, "a", "z.PDF"), "same")
	put(t, filepath.Join(root, "c.pdf"), "other")
	put(t, filepath.Join(root, "notes.txt"), "same")
	put(t, filepath.Join(root, ".hidden.pdf"), "hidden")
	put(t, filepath.Join(root, ".cache", "x.pdf"), "hidden dir")

	got, stats, err := Scan(context.Background(), root, quiet)
	require.NoError(t, err)
	require.Len(t, got, 2)

	sum := sha256.Sum256([]byte("same"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got[0].ID)
	assert.Equal(t, filepath.Join(root, "a", "z.PDF"), got[0].Path, "first path in lexical order wins")
	assert.Equal(t, []string{filepath.Join(root, "b.pdf")}, got[0].Duplicates)
	assert.Equal(t, "c.pdf", got[1].Filename)
	assert.Equal(t, int64(len("other")), got[1].Size)

	assert.Equal(t, 4, stats.Scanned)
	assert.Equal(t, 3, stats.Matched)
	assert.Equal(t, 2, stats.Unique)
	assert.Equal(t, 1, stats.Deduplicated)
	assert.Equal(t, 0, stats.Failed)
}

func TestScan_SkipsOrganizedCopiesInsideInbox(t *testing.T) {
	inbox := t.TempDir()
	put(t, filepath.Join(inbox, "zeta.pdf"), "zeta invoice")
	put(t, filepath.Join(inbox, "by_date", "2025-01", "zeta_co", "zeta.pdf"), "zeta invoice")
	put(t, filepath.Join(inbox, "by_sender", "zeta_co", "2025-01", "zeta.pdf"), "zeta invoice")
	put(t, filepath.Join(inbox, "reports", "stray.pdf"), "report attachment")
	put(t, filepath.Join(inbox, "by_date_notes", "keep.pdf"), "keep me")

	exclude := []string{
		filepath.Join(inbox, "by_date"),
		filepath.Join(inbox, "by_sender"),
		filepath.Join(inbox, "reports"),
		inbox, // a dir equal to the root is ignored, not skipped
	}
	got, stats, err := Scan(context.Background(), inbox, quiet, exclude...)
	require.NoError(t, err)
	require.Len(t, got, 2)

	paths := []string{got[0].Path, got[1].Path}
	slices.Sort(paths)
	assert.Equal(t, []string{
		filepath.Join(inbox, "by_date_notes", "keep.pdf"),
		filepath.Join(inbox, "zeta.pdf"),
	}, paths)
	for _, c := range got {
		assert.Empty(t, c.Duplicates)
	}
	assert.Equal(t, 0, stats.Deduplicated)
	assert.Equal(t, 2, stats.Scanned)
}

func TestSkipDirs(t *testing.T) {
	root := t.TempDir()
	skip := newSkipDirs([]string{root}, []string{"", filepath.Dir(root), filepath.Join(root, "out")})
	require.Len(t, skip, 1, "blank entries and ancestors of the root are dropped")
	assert.True(t, skip.has(filepath.Join(root, "out")))
	assert.True(t, skip.has(filepath.Join(root, "out", "a", "b.pdf")))
	assert.False(t, skip.has(filepath.Join(root, "outbox")))
	assert.False(t, skip.has(root))
	assert.False(t, skipDirs(nil).has(root))
}

func TestScan_Errors(t *testing.T) {
	_, _, err := Scan(context.Background(), " ", quiet)
	assert.Error(t, err)

	_, _, err = Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), quiet)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := t.TempDir()
	put(t, filepath.Join(root, "a.pdf"), "x")
	_, _, err = Scan(ctx, root, quiet)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidateFor(t *testing.T) {
	dir := t.TempDir()
	put(t, filepath.Join(dir, "inv.pdf"), "content")
	c, err := CandidateFor(filepath.Join(dir, "inv.pdf"))
	require.NoError(t, err)
	want, _ := HashFile(filepath.Join(dir, "inv.pdf"))
	assert.Equal(t, want, c.ID)

	put(t, filepath.Join(dir, "inv.png"), "content")
	_, err = CandidateFor(filepath.Join(dir, "inv.png"))
	assert.Error(t, err)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden("/a/.git"))
	assert.False(t, isHidden("."))
	assert.False(t, isHidden("/a/b.pdf"))
	assert.True(t, isInvoiceFile("/a/B.PDF"))
	assert.False(t, isInvoiceFile("/a/.b.pdf"))
	assert.False(t, isInvoiceFile("/a/b.png"))
}

func waitBatch(t *testing.T, ch <-chan []string, want string) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-ch:
			require.True(t, ok, "watcher closed early")
			if slices.Contains(batch, want) {
				return batch
			}
		case <-deadline:
			t.Fatalf("no batch containing %s", want)
			return nil
		}
	}
}

func TestStartWatcher(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.pdf")
	put(t, existing, "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    50 * time.Millisecond,
		Logger:      quiet,
	})
	require.NoError(t, err)

	waitBatch(t, events, existing)

	fresh := filepath.Join(root, "new.pdf")
	put(t, fresh, "new")
	put(t, filepath.Join(root, "ignored.txt"), "x")
	batch := waitBatch(t, events, fresh)
	assert.NotContains(t, batch, filepath.Join(root, "ignored.txt"))

	cancel()
	for range events {
	}
}

func TestStartWatcher_ExcludedTreesAreIgnored(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "acme.pdf")
	copied := filepath.Join(root, "by_date", "2025-01", "acme", "acme.pdf")
	put(t, source, "acme")
	put(t, copied, "acme")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    50 * time.Millisecond,
		Exclude:     []string{filepath.Join(root, "by_date")},
		Logger:      quiet,
	})
	require.NoError(t, err)

	batch := waitBatch(t, events, source)
	assert.NotContains(t, batch, copied)

	later := filepath.Join(root, "by_date", "2025-02", "acme", "later.pdf")
	put(t, later, "later")
	fresh := filepath.Join(root, "fresh.pdf")
	put(t, fresh, "fresh")
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case batch, ok := <-events:
			require.True(t, ok, "watcher closed early")
			assert.NotContains(t, batch, later)
			seen = slices.Contains(batch, fresh)
		case <-deadline:
			t.Fatalf("no batch containing %s", fresh)
		}
	}

	cancel()
	for range events {
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
