package apack

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/apack/apack/internal/format"
	"github.com/apack/apack/internal/sizing"
)

// DefaultMaxEntries is the default limit used when no WithMaxEntries
// option is set.
const DefaultMaxEntries = 1_000_000

// DefaultMaxEntrySize is the default per-entry logical size limit (1GB).
const DefaultMaxEntrySize = 1 << 30

// Writer builds an archive by sequential appends. Create it in the Open
// state with Create; every Add runs the content through the chunk
// processor and spools the processed block; Close finalizes the header and
// directory and atomically publishes the archive file.
//
// A Writer is exclusively owned by the task that created it and must not
// be shared across goroutines. Writers targeting different paths share no
// state and never interfere.
type Writer struct {
	path string
	cfg  *Config
	proc *ChunkProcessor

	spool     *os.File
	spoolSize uint64

	entries []format.Entry
	names   map[string]struct{}

	maxEntries   int
	maxEntrySize uint64
	logger       *slog.Logger
	closed       bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterConfig sets the codec configuration. The default is the
// identity pipeline.
func WithWriterConfig(cfg *Config) WriterOption {
	return func(w *Writer) {
		w.cfg = cfg
	}
}

// WithWriterLogger sets the logger. The default discards all records.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithMaxEntries limits the number of entries. Zero uses
// DefaultMaxEntries; negative means no limit.
func WithMaxEntries(n int) WriterOption {
	return func(w *Writer) {
		w.maxEntries = n
	}
}

// WithWriterMaxEntrySize limits the logical size of a single entry.
// Set to 0 to disable the limit.
func WithWriterMaxEntrySize(limit uint64) WriterOption {
	return func(w *Writer) {
		w.maxEntrySize = limit
	}
}

// Create opens a new Writer targeting path. Nothing is visible at path
// until Close succeeds: processed blocks spool to a temp file alongside
// the destination, and the finished archive is renamed into place.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		path:         path,
		names:        make(map[string]struct{}),
		maxEntries:   DefaultMaxEntries,
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxEntries == 0 {
		w.maxEntries = DefaultMaxEntries
	}
	w.proc = w.cfg.ChunkProcessor()

	spool, err := os.CreateTemp(filepath.Dir(path), ".apack-spool-")
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	w.spool = spool

	compressionID, level, encryptionID := w.cfg.descriptor()
	w.log().Info("creating archive", "path", path,
		"compression_id", compressionID, "level", level, "encryption_id", encryptionID)
	return w, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (w *Writer) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Add appends a new entry with the given unique name and content.
// Adding a duplicate name fails with ErrDuplicateEntry and leaves the
// writer usable; adding after Close fails with ErrClosed.
func (w *Writer) Add(name string, data []byte) error {
	return w.add(name, data, nil)
}

// AddWithMetadata appends a new entry with attached metadata. The metadata
// name must match the entry name.
func (w *Writer) AddWithMetadata(name string, data []byte, meta *Metadata) error {
	return w.add(name, data, meta)
}

// AddStream appends a new entry named by the metadata, reading r to
// completion first: the directory needs the final stored length, so
// streamed input is materialized before processing.
func (w *Writer) AddStream(meta *Metadata, r io.Reader) error {
	if meta == nil {
		return errors.New("apack: nil metadata")
	}
	if w.closed {
		return ErrClosed
	}
	limit := w.maxEntrySize
	if limit == 0 {
		limit = sizing.MaxRead
	}
	data, err := sizing.ReadAll(r, limit)
	if err != nil {
		if errors.Is(err, sizing.ErrLimit) {
			return fmt.Errorf("%w: stream exceeds %d bytes", ErrSizeOverflow, limit)
		}
		return err
	}
	return w.add(meta.Name(), data, meta)
}

func (w *Writer) add(name string, data []byte, meta *Metadata) error {
	if w.closed {
		return ErrClosed
	}
	if name == "" {
		return errors.New("apack: empty entry name")
	}
	if meta != nil && meta.Name() != name {
		return fmt.Errorf("apack: metadata name %q does not match entry name %q", meta.Name(), name)
	}
	if _, exists := w.names[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	if w.maxEntries > 0 && len(w.entries) >= w.maxEntries {
		return ErrTooManyEntries
	}
	if w.maxEntrySize > 0 && uint64(len(data)) > w.maxEntrySize {
		return fmt.Errorf("%w: entry %q is %d bytes (limit %d)",
			ErrSizeOverflow, name, len(data), w.maxEntrySize)
	}

	stored, flags, err := w.proc.Process(data)
	if err != nil {
		return fmt.Errorf("add %q: %w", name, err)
	}

	if _, err := w.spool.Write(stored); err != nil {
		// Rewind so a retried add does not leave half a block behind.
		if terr := w.spool.Truncate(int64(w.spoolSize)); terr == nil {
			_, _ = w.spool.Seek(0, io.SeekEnd)
		}
		return fmt.Errorf("add %q: %w", name, err)
	}

	offset := w.spoolSize
	newSize, ok := sizing.AddUint64(w.spoolSize, uint64(len(stored)))
	if !ok {
		return ErrSizeOverflow
	}
	w.spoolSize = newSize

	w.entries = append(w.entries, format.Entry{
		Name:         name,
		OriginalSize: uint64(len(data)),
		StoredSize:   uint64(len(stored)),
		Offset:       offset,
		Flags:        flags,
		Digest:       digest.FromBytes(data).String(),
		Metadata:     meta.record(),
	})
	w.names[name] = struct{}{}

	w.log().Debug("entry added", "name", name,
		"size", len(data), "stored_size", len(stored), "flags", flags)
	return nil
}

// Len returns the number of entries added so far.
func (w *Writer) Len() int {
	return len(w.entries)
}

// Close finalizes the archive: it writes the header and directory followed
// by the spooled data region to a temp file and renames it over the
// destination path. Close always releases the spool, including on error
// paths, and is idempotent: the second and later calls return nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	spool := w.spool
	w.spool = nil
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	directory, err := format.EncodeDirectory(w.entries)
	if err != nil {
		return err
	}
	if uint64(len(w.entries)) > math.MaxUint32 {
		return ErrTooManyEntries
	}

	compressionID, level, encryptionID := w.cfg.descriptor()
	header := format.EncodeHeader(format.Header{
		Major:             format.MajorVersion,
		Minor:             format.MinorVersion,
		CompressionID:     compressionID,
		EncryptionID:      encryptionID,
		CompressionLevel:  level,
		EntryCount:        uint32(len(w.entries)),
		DirectorySize:     uint64(len(directory)),
		DirectoryChecksum: format.Checksum(directory),
		DataSize:          w.spoolSize,
	})

	if err := w.publish(spool, header, directory); err != nil {
		return err
	}

	w.log().Info("archive finalized", "path", w.path,
		"entries", len(w.entries), "data_size", w.spoolSize)
	return nil
}

// publish assembles header | directory | data in a temp file and renames
// it over the destination.
func (w *Writer) publish(spool *os.File, header, directory []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".apack-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := tmp.Write(directory); err != nil {
		return fmt.Errorf("writing directory: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding spool: %w", err)
	}
	if _, err := io.Copy(tmp, spool); err != nil {
		return fmt.Errorf("writing data region: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming to destination: %w", err)
	}
	success = true
	return nil
}
