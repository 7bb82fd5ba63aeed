package apack

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterBasic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "basic.apack")
	w, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, w.Add("a.txt", []byte("content of a")))
	require.NoError(t, w.Add("b.txt", []byte("content of b")))
	assert.Equal(t, 2, w.Len())
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.Len())
	content, err := r.ReadAllBytes("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content of a"), content)
}

func TestWriterNothingVisibleBeforeClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pending.apack")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add("a", []byte("data")))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "archive must not exist before Close")
}

func TestWriterEmptyArchive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.apack")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 0, r.Len())
}

func TestWriterDuplicateName(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dup.apack")
	w, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, w.Add("a", []byte("first")))
	err = w.Add("a", []byte("second"))
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// The writer stays usable after a conflict.
	require.NoError(t, w.Add("b", []byte("third")))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.Len())
	content, err := r.ReadAllBytes("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), content)
}

func TestWriterAddAfterClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "closed.apack")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Add("late", []byte("x")), ErrClosed)
}

func TestWriterCloseIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "twice.apack")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Add("a", []byte("x")))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWriterEmptyEntryName(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "noname.apack")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.Add("", []byte("x")))
}

func TestWriterAddStream(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream.apack")
	w, err := Create(path)
	require.NoError(t, err)

	md, err := NewMetadata("streamed.txt", WithMimeType("text/plain"))
	require.NoError(t, err)
	require.NoError(t, w.AddStream(md, strings.NewReader("streamed content")))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	content, err := r.ReadAllBytes("streamed.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("streamed content"), content)

	info, ok := r.Entry("streamed.txt")
	require.True(t, ok)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, "text/plain", info.Metadata.MimeType())
}

func TestWriterMetadataNameMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mismatch.apack")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	md, err := NewMetadata("other")
	require.NoError(t, err)
	assert.Error(t, w.AddWithMetadata("entry", []byte("x"), md))
}

func TestWriterMaxEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "limit.apack")
	w, err := Create(path, WithMaxEntries(2))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add("a", nil))
	require.NoError(t, w.Add("b", nil))
	assert.ErrorIs(t, w.Add("c", nil), ErrTooManyEntries)
}

func TestWriterMaxEntrySize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.apack")
	w, err := Create(path, WithWriterMaxEntrySize(8))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add("small", bytes.Repeat([]byte("x"), 8)))
	assert.ErrorIs(t, w.Add("large", bytes.Repeat([]byte("x"), 9)), ErrSizeOverflow)
}

func TestWriterStreamTooLarge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bigstream.apack")
	w, err := Create(path, WithWriterMaxEntrySize(4))
	require.NoError(t, err)
	defer w.Close()

	md, err := NewMetadata("big")
	require.NoError(t, err)
	assert.ErrorIs(t, w.AddStream(md, strings.NewReader("too large")), ErrSizeOverflow)
}

func TestWriterStreamUnlimited(t *testing.T) {
	t.Parallel()

	// A zero limit disables the per-entry size check entirely.
	path := filepath.Join(t.TempDir(), "unlimited.apack")
	w, err := Create(path, WithWriterMaxEntrySize(0))
	require.NoError(t, err)

	md, err := NewMetadata("one")
	require.NoError(t, err)
	require.NoError(t, w.AddStream(md, strings.NewReader("x")))
	require.NoError(t, w.Add("more", bytes.Repeat([]byte("y"), 1<<16)))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	content, err := r.ReadAllBytes("one")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), content)
}

func TestWriterSpoolCleanedUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clean.apack")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Add("a", []byte("x")))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"clean.apack"}, names)
}
