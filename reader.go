package apack

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/apack/apack/internal/format"
	"github.com/apack/apack/internal/sizing"
)

// maxDirectorySize bounds the directory blob a reader will load, so a
// corrupted length field cannot trigger an arbitrary allocation.
const maxDirectorySize = 1 << 30

// Reader provides random access to the entries of an existing archive.
//
// Open validates the header, parses the full directory into memory, and
// reconstructs the chunk pipeline from the header descriptor; the data
// region is only touched when content is read. Each Reader owns its file
// handle and its own parsed directory copy, so independent readers on the
// same path share no mutable state and closing one never affects another.
//
// A Reader is exclusively owned by the task that created it and must not
// be shared across goroutines.
type Reader struct {
	f      *os.File
	header format.Header

	entries []format.Entry
	byName  map[string]int

	proc       *ChunkProcessor
	dataOffset int64

	maxEntrySize uint64
	logger       *slog.Logger
	closed       bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithKey supplies the encryption key for an encrypted archive. The key is
// required for content reads, not for opening: the header and directory
// are not encrypted. A wrong key surfaces as ErrAuthentication at the
// first ReadAllBytes; a missing one as ErrKeyRequired.
func WithKey(key []byte) ReaderOption {
	return func(r *Reader) {
		r.proc = r.proc.withKey(key)
	}
}

// WithReaderLogger sets the logger. The default discards all records.
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithMaxEntrySize limits the logical size of a single entry read.
// Set to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) ReaderOption {
	return func(r *Reader) {
		r.maxEntrySize = limit
	}
}

// Open opens the archive at path. It fails fast on format problems:
// ErrBadMagic, ErrUnsupportedVersion for a newer major version, and
// ErrCorrupt for a truncated or checksum-failing directory.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			f.Close()
		}
	}()

	headerBuf := make([]byte, format.HeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}
	header, err := format.DecodeHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	if header.DirectorySize > maxDirectorySize {
		return nil, fmt.Errorf("%w: directory size %d exceeds limit", ErrCorrupt, header.DirectorySize)
	}
	directory := make([]byte, header.DirectorySize)
	if _, err := io.ReadFull(f, directory); err != nil {
		return nil, fmt.Errorf("%w: short directory: %v", ErrCorrupt, err)
	}
	if sum := format.Checksum(directory); sum != header.DirectoryChecksum {
		return nil, fmt.Errorf("%w: directory checksum mismatch", ErrCorrupt)
	}

	entries, err := format.DecodeDirectory(directory)
	if err != nil {
		return nil, err
	}
	if uint64(len(entries)) != uint64(header.EntryCount) {
		return nil, fmt.Errorf("%w: directory has %d entries, header records %d",
			ErrCorrupt, len(entries), header.EntryCount)
	}

	proc, err := processorFromHeader(header)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate directory entry %q", ErrCorrupt, e.Name)
		}
		byName[e.Name] = i
	}

	r := &Reader{
		f:            f,
		header:       header,
		entries:      entries,
		byName:       byName,
		proc:         proc,
		dataOffset:   int64(format.HeaderSize) + int64(header.DirectorySize),
		maxEntrySize: DefaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.log().Debug("archive opened", "path", path,
		"entries", len(entries), "major", header.Major, "minor", header.Minor)
	success = true
	return r, nil
}

// processorFromHeader rebuilds the chunk pipeline from the public codec
// descriptor. The encryption key is not part of the descriptor; WithKey
// supplies it out-of-band.
func processorFromHeader(header format.Header) (*ChunkProcessor, error) {
	proc := &ChunkProcessor{}
	if header.CompressionID != compressionNoneID {
		provider, err := compressionByID(header.CompressionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
		}
		proc.compression = provider
		proc.level = int(header.CompressionLevel)
	}
	if header.EncryptionID != encryptionNoneID {
		provider, err := encryptionByID(header.EncryptionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
		}
		proc.encryption = provider
	}
	return proc, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Version returns the archive's format version.
func (r *Reader) Version() (major, minor uint16) {
	return r.header.Major, r.header.Minor
}

// Len returns the number of entries in the archive.
func (r *Reader) Len() int {
	return len(r.entries)
}

// Entry returns the descriptor for the named entry.
func (r *Reader) Entry(name string) (EntryInfo, bool) {
	if r.closed {
		return EntryInfo{}, false
	}
	i, ok := r.byName[name]
	if !ok {
		return EntryInfo{}, false
	}
	return r.entryInfo(i), true
}

// Entries returns a lazy iterator over entry descriptors in directory
// (insertion) order. Iterating never decodes content; fetch content per
// entry with ReadAllBytes. The sequence is restartable: each range starts
// from the first entry. On a closed reader the sequence is empty.
func (r *Reader) Entries() iter.Seq[EntryInfo] {
	return func(yield func(EntryInfo) bool) {
		if r.closed {
			return
		}
		for i := range r.entries {
			if !yield(r.entryInfo(i)) {
				return
			}
		}
	}
}

func (r *Reader) entryInfo(i int) EntryInfo {
	e := &r.entries[i]
	return EntryInfo{
		Name:       e.Name,
		Size:       e.OriginalSize,
		StoredSize: e.StoredSize,
		Offset:     e.Offset,
		Metadata:   metadataFromRecord(e.Metadata),
	}
}

// ReadAllBytes returns the exact logical bytes of the named entry: the
// stored block is read from the data region and run through the inverse
// pipeline (decrypt, then decompress). When the directory recorded a
// content digest the result is verified against it. Repeated calls return
// identical bytes.
func (r *Reader) ReadAllBytes(name string) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	entry := &r.entries[i]

	originalLen, ok := sizing.ToInt(entry.OriginalSize)
	if !ok {
		return nil, fmt.Errorf("read %q: %w", name, ErrSizeOverflow)
	}
	if r.maxEntrySize > 0 && entry.OriginalSize > r.maxEntrySize {
		return nil, fmt.Errorf("read %q: %w: entry is %d bytes (limit %d)",
			name, ErrSizeOverflow, entry.OriginalSize, r.maxEntrySize)
	}

	stored, err := r.readStored(entry)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}

	content, err := r.proc.Unprocess(stored, entry.Flags, originalLen)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}

	if entry.Digest != "" {
		if err := verifyDigest(entry.Digest, content); err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
	}
	return content, nil
}

// readStored reads an entry's stored block from the data region.
func (r *Reader) readStored(entry *format.Entry) ([]byte, error) {
	offset, ok := sizing.ToInt64(entry.Offset)
	if !ok {
		return nil, ErrSizeOverflow
	}
	length, ok := sizing.ToInt64(entry.StoredSize)
	if !ok {
		return nil, ErrSizeOverflow
	}
	end, ok := sizing.AddUint64(entry.Offset, entry.StoredSize)
	if !ok || end > r.header.DataSize {
		return nil, fmt.Errorf("%w: entry block [%d, %d) exceeds data region of %d bytes",
			ErrCorrupt, entry.Offset, end, r.header.DataSize)
	}

	stored := make([]byte, length)
	section := io.NewSectionReader(r.f, r.dataOffset+offset, length)
	if _, err := io.ReadFull(section, stored); err != nil {
		return nil, fmt.Errorf("%w: short data region: %v", ErrCorrupt, err)
	}
	return stored, nil
}

// verifyDigest checks content against the canonical digest string recorded
// in the directory. Digests with an unknown algorithm are skipped so newer
// minor versions can introduce one without breaking old readers.
func verifyDigest(recorded string, content []byte) error {
	d, err := digest.Parse(recorded)
	if err != nil {
		return fmt.Errorf("%w: bad digest in directory: %v", ErrCorrupt, err)
	}
	if !d.Algorithm().Available() {
		return nil
	}
	verifier := d.Verifier()
	if _, err := verifier.Write(content); err != nil {
		return err
	}
	if !verifier.Verified() {
		return ErrHashMismatch
	}
	return nil
}

// Close releases the underlying file. Later operations on this instance
// fail with ErrClosed. Close is idempotent and never affects other
// readers, including ones opened on the same path.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}
