// Package format implements the APACK byte-level container encoding: the
// fixed-size archive header, the CBOR-encoded entry directory, and the
// version/compatibility rules that tie them together.
//
// An archive is laid out as header | directory | data region. The header
// carries the codec descriptor a reader needs to rebuild the chunk pipeline
// (provider ids and compression level, never key material) plus the length
// and checksum of the directory. Entry offsets are relative to the start of
// the data region, so every block is independently addressable.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Magic identifies an APACK archive. It occupies the first four bytes.
const Magic = "APAK"

// Current format version. Readers accept any archive with a major version
// at most MajorVersion; minor bumps only add optional directory fields, so
// they never affect readability.
const (
	MajorVersion uint16 = 1
	MinorVersion uint16 = 1
)

// HeaderSize is the fixed size of the archive header in bytes.
const HeaderSize = 48

// FlagCompressed marks an entry whose stored block actually went through
// the compression stage. The writer clears it when the configured
// compressor declared the block incompressible and stored it raw.
const FlagCompressed uint8 = 1 << 0

// Sentinel errors for header and directory parsing. The root package
// re-exports these.
var (
	// ErrBadMagic is returned when the file does not start with the APACK magic.
	ErrBadMagic = errors.New("apack: bad magic")

	// ErrUnsupportedVersion is returned for archives with a newer or unknown
	// major version, or a codec descriptor this implementation cannot satisfy.
	ErrUnsupportedVersion = errors.New("apack: unsupported version")

	// ErrCorrupt is returned when the header or directory is truncated or
	// fails its integrity check.
	ErrCorrupt = errors.New("apack: corrupt archive")
)

// Header is the decoded fixed-layout archive header.
type Header struct {
	Major uint16
	Minor uint16

	// Codec descriptor: provider ids and the compression level. The
	// encryption key is never part of the header.
	CompressionID    uint8
	EncryptionID     uint8
	CompressionLevel int32

	EntryCount uint32

	// DirectorySize and DirectoryChecksum describe the CBOR directory blob
	// that immediately follows the header.
	DirectorySize     uint64
	DirectoryChecksum uint64

	// DataSize is the total length of the data region in bytes.
	DataSize uint64
}

// EncodeHeader serializes h into the fixed 48-byte layout.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	buf[8] = h.CompressionID
	buf[9] = h.EncryptionID
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.CompressionLevel))
	binary.LittleEndian.PutUint32(buf[16:20], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.DirectorySize)
	binary.LittleEndian.PutUint64(buf[32:40], h.DirectoryChecksum)
	binary.LittleEndian.PutUint64(buf[40:48], h.DataSize)
	return buf
}

// DecodeHeader parses and validates a header. It fails with ErrBadMagic for
// non-APACK input and ErrUnsupportedVersion for a major version this
// implementation does not support.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(buf))
	}
	if string(buf[0:4]) != Magic {
		return Header{}, ErrBadMagic
	}

	h := Header{
		Major:             binary.LittleEndian.Uint16(buf[4:6]),
		Minor:             binary.LittleEndian.Uint16(buf[6:8]),
		CompressionID:     buf[8],
		EncryptionID:      buf[9],
		CompressionLevel:  int32(binary.LittleEndian.Uint32(buf[12:16])),
		EntryCount:        binary.LittleEndian.Uint32(buf[16:20]),
		DirectorySize:     binary.LittleEndian.Uint64(buf[24:32]),
		DirectoryChecksum: binary.LittleEndian.Uint64(buf[32:40]),
		DataSize:          binary.LittleEndian.Uint64(buf[40:48]),
	}

	if h.Major > MajorVersion {
		return Header{}, fmt.Errorf("%w: major version %d (supported: <= %d)",
			ErrUnsupportedVersion, h.Major, MajorVersion)
	}
	if h.Major == 0 {
		return Header{}, fmt.Errorf("%w: major version 0", ErrCorrupt)
	}
	return h, nil
}

// Checksum computes the xxhash64 digest used to detect directory corruption.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
