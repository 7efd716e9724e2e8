package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := write(t, filepath.Join(dir, "a.pdf"), "hello")
	b := write(t, filepath.Join(dir, "b.pdf"), "hello")
	c := write(t, filepath.Join(dir, "c.pdf"), "hellO")
	d := write(t, filepath.Join(dir, "d.pdf"), "hello world")

	same, err := SameContent(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameContent(a, c)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = SameContent(a, d)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = SameContent(a, filepath.Join(dir, "missing.pdf"))
	require.NoError(t, err)
	assert.False(t, same)
}

func TestCopyFile_ExclusiveAndPreservesMtime(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "src.pdf"), "invoice")
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(dir, "out", "dst.pdf")
	require.NoError(t, Materialize(src, dst, ModeCopy))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))

	err = CopyFile(src, dst)
	assert.True(t, errors.Is(err, os.ErrExist))
	got, _ := os.ReadFile(dst)
	assert.Equal(t, "invoice", string(got))
}

func TestMaterialize_Links(t *testing.T) {
	dir := t.TempDir()
	src := write(t, filepath.Join(dir, "src.pdf"), "invoice")

	hard := filepath.Join(dir, "hard.pdf")
	require.NoError(t, Materialize(src, hard, ModeHardlink))
	same, err := SameContent(src, hard)
	require.NoError(t, err)
	assert.True(t, same)

	sym := filepath.Join(dir, "sym.pdf")
	require.NoError(t, Materialize(src, sym, ModeSymlink))
	target, err := os.Readlink(sym)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(target))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestSuffixedPath(t *testing.T) {
	assert.Equal(t, "/a/b/inv_2.pdf", SuffixedPath("/a/b/inv.pdf", 2))
	assert.Equal(t, "noext_1", SuffixedPath("noext", 1))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c.pdf", SanitizeFilename("a/b\\c.pdf"))
	assert.Equal(t, "__etc_passwd", SanitizeFilename("../etc/passwd"))
	assert.Equal(t, "file", SanitizeFilename(" . "))
	assert.Equal(t, "inv_01.pdf", SanitizeFilename("inv:01.pdf"))
}

func TestWithin(t *testing.T) {
	root := filepath.Join("/tmp", "root")
	assert.True(t, Within(root, filepath.Join(root, "by_date", "2025", "x.pdf")))
	assert.True(t, Within(root, root))
	assert.False(t, Within(root, filepath.Join(root, "..", "escape.pdf")))
	assert.False(t, Within(root, "/tmp/rootx/file"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("LINK")
	require.NoError(t, err)
	assert.Equal(t, ModeHardlink, m)
	_, err = ParseMode("move")
	assert.Error(t, err)
}
