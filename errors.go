package apack

import (
	"errors"

	"github.com/apack/apack/internal/format"
)

// Errors re-exported from internal/format.
var (
	// ErrBadMagic is returned when a file does not start with the APACK magic.
	ErrBadMagic = format.ErrBadMagic

	// ErrUnsupportedVersion is returned for archives with a newer or unknown
	// major version, or a codec descriptor this implementation cannot satisfy.
	ErrUnsupportedVersion = format.ErrUnsupportedVersion

	// ErrCorrupt is returned when the header or directory is truncated or
	// fails its integrity check.
	ErrCorrupt = format.ErrCorrupt
)

// Errors specific to the apack package.
var (
	// ErrEntryNotFound is returned when a named entry is absent from the
	// directory. The archive remains usable for other entries.
	ErrEntryNotFound = errors.New("apack: entry not found")

	// ErrDuplicateEntry is returned when an entry name is added twice to the
	// same writer. The failing Add has no effect and the writer remains usable.
	ErrDuplicateEntry = errors.New("apack: duplicate entry name")

	// ErrAuthentication is returned when decryption fails: the ciphertext was
	// tampered with or the key is wrong. Other entries are unaffected.
	ErrAuthentication = errors.New("apack: authentication failed")

	// ErrHashMismatch is returned when reconstructed content does not match
	// the digest recorded in the directory.
	ErrHashMismatch = errors.New("apack: content hash mismatch")

	// ErrDecompression is returned when decompression fails on malformed
	// stored bytes.
	ErrDecompression = errors.New("apack: decompression failed")

	// ErrClosed is returned when an operation is invoked on a closed Writer
	// or Reader. The operation has no side effects.
	ErrClosed = errors.New("apack: closed")

	// ErrKeyRequired is returned on the first content read of an encrypted
	// archive opened without a key.
	ErrKeyRequired = errors.New("apack: encryption key required")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("apack: size overflow")

	// ErrTooManyEntries is returned when the entry count exceeds the
	// configured limit.
	ErrTooManyEntries = errors.New("apack: too many entries")
)
