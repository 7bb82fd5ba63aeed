package apack

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentRoundTrips runs many full write+read round-trips on
// distinct archives at once. Nothing is shared between workers except the
// configuration, which is immutable.
func TestConcurrentRoundTrips(t *testing.T) {
	t.Parallel()

	const workers = 64

	key := roundTripKey()
	cfg, err := NewConfig(WithCompression(Zstd(), 2), WithEncryption(XChaCha20(), key))
	require.NoError(t, err)

	dir := t.TempDir()
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("archive-%d.apack", i))
			payload := bytes.Repeat([]byte(fmt.Sprintf("worker %d payload ", i)), 100)

			w, err := Create(path, WithWriterConfig(cfg))
			if err != nil {
				return err
			}
			if err := w.Add("payload", payload); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			r, err := Open(path, WithKey(key))
			if err != nil {
				return err
			}
			defer r.Close()

			got, err := r.ReadAllBytes("payload")
			if err != nil {
				return err
			}
			if !bytes.Equal(payload, got) {
				return fmt.Errorf("archive %d: content mismatch", i)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// TestSharedChunkProcessor exercises one processor instance from many
// goroutines: it is stateless, so concurrent use must be safe.
func TestSharedChunkProcessor(t *testing.T) {
	t.Parallel()

	key := roundTripKey()
	cfg, err := NewConfig(WithCompression(LZ4(), 0), WithEncryption(AESGCM(), key))
	require.NoError(t, err)
	proc := cfg.ChunkProcessor()

	var g errgroup.Group
	for i := range 32 {
		g.Go(func() error {
			payload := bytes.Repeat([]byte{byte(i), byte(i + 1)}, 2048)
			for range 50 {
				stored, flags, err := proc.Process(payload)
				if err != nil {
					return err
				}
				restored, err := proc.Unprocess(stored, flags, len(payload))
				if err != nil {
					return err
				}
				if !bytes.Equal(payload, restored) {
					return fmt.Errorf("goroutine %d: round-trip mismatch", i)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// TestManyReadersOnePath opens independent readers on the same archive
// concurrently; each parses its own directory copy and none contends with
// or affects the others.
func TestManyReadersOnePath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.apack")
	entries := [][2]string{
		{"first", "first content"},
		{"second", "second content"},
		{"third", "third content"},
	}
	writeTestArchive(t, path, nil, entries)

	var g errgroup.Group
	for range 32 {
		g.Go(func() error {
			r, err := Open(path)
			if err != nil {
				return err
			}
			defer r.Close()

			count := 0
			for info := range r.Entries() {
				want := entries[count]
				if info.Name != want[0] {
					return fmt.Errorf("entry %d: got name %q, want %q", count, info.Name, want[0])
				}
				content, err := r.ReadAllBytes(info.Name)
				if err != nil {
					return err
				}
				if string(content) != want[1] {
					return fmt.Errorf("entry %q: content mismatch", info.Name)
				}
				count++
			}
			if count != len(entries) {
				return fmt.Errorf("iterated %d entries, want %d", count, len(entries))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// TestConcurrentWritersIsolated runs writers on different paths in
// parallel and checks that no content crosses between archives.
func TestConcurrentWritersIsolated(t *testing.T) {
	t.Parallel()

	const writers = 16
	dir := t.TempDir()

	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("w-%d.apack", i))
			w, err := Create(path)
			if err != nil {
				return err
			}
			marker := fmt.Sprintf("owned by writer %d", i)
			if err := w.Add("marker", []byte(marker)); err != nil {
				return err
			}
			return w.Close()
		})
	}
	require.NoError(t, g.Wait())

	for i := range writers {
		path := filepath.Join(dir, fmt.Sprintf("w-%d.apack", i))
		r, err := Open(path)
		require.NoError(t, err)
		content, err := r.ReadAllBytes("marker")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("owned by writer %d", i), string(content))
		require.NoError(t, r.Close())
	}
}

// TestMixedWorkloadCompletes interleaves writes, opens, reads, and closes
// across goroutines and archives. The engine takes no cross-archive locks,
// so this must finish within the test timeout.
func TestMixedWorkloadCompletes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := NewConfig(WithCompression(Zstd(), 1))
	require.NoError(t, err)

	var g errgroup.Group
	for i := range 24 {
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("mix-%d.apack", i))
			w, err := Create(path, WithWriterConfig(cfg))
			if err != nil {
				return err
			}
			for j := range 10 {
				name := fmt.Sprintf("entry-%d", j)
				if err := w.Add(name, bytes.Repeat([]byte("abc"), j*31)); err != nil {
					return err
				}
			}
			if err := w.Close(); err != nil {
				return err
			}

			for range 3 {
				r, err := Open(path)
				if err != nil {
					return err
				}
				for info := range r.Entries() {
					if _, err := r.ReadAllBytes(info.Name); err != nil {
						r.Close()
						return err
					}
				}
				if err := r.Close(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
