package format

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Attribute value kinds stored in metadata records. Protocol constants;
// changing them breaks directory compatibility.
const (
	AttrKindString uint8 = 1
	AttrKindInt    uint8 = 2
	AttrKindBool   uint8 = 3
)

// Attribute is one scalar metadata attribute. Exactly one of the value
// fields is meaningful, selected by Kind.
type Attribute struct {
	Name   string `cbor:"0,keyasint"`
	Kind   uint8  `cbor:"1,keyasint"`
	String string `cbor:"2,keyasint,omitempty"`
	Int    int64  `cbor:"3,keyasint,omitempty"`
	Bool   bool   `cbor:"4,keyasint,omitempty"`
}

// Metadata is the serialized form of an entry's metadata record.
// Attribute order is preserved.
type Metadata struct {
	Name       string      `cbor:"0,keyasint"`
	MimeType   string      `cbor:"1,keyasint,omitempty"`
	Attributes []Attribute `cbor:"2,keyasint,omitempty"`
}

// Entry is one directory record. Offset is relative to the start of the
// data region. Digest is the canonical digest string of the logical
// (pre-pipeline) bytes; it is optional for compatibility with minor
// version 0 archives, which did not record it.
type Entry struct {
	Name         string    `cbor:"0,keyasint"`
	OriginalSize uint64    `cbor:"1,keyasint"`
	StoredSize   uint64    `cbor:"2,keyasint"`
	Offset       uint64    `cbor:"3,keyasint"`
	Flags        uint8     `cbor:"4,keyasint,omitempty"`
	Digest       string    `cbor:"5,keyasint,omitempty"`
	Metadata     *Metadata `cbor:"6,keyasint,omitempty"`
}

// Encoding is deterministic so identical directories produce identical
// bytes; decoding rejects unknown-length pathologies via the default
// decode limits. Unknown struct fields added by future minor versions are
// ignored, which is what gives minor bumps their compatibility guarantee.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("format: cbor encode mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("format: cbor decode mode: " + err.Error())
	}
}

// EncodeDirectory serializes the directory records in insertion order.
func EncodeDirectory(entries []Entry) ([]byte, error) {
	data, err := encMode.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode directory: %w", err)
	}
	return data, nil
}

// DecodeDirectory parses a directory blob previously produced by
// EncodeDirectory. The caller is expected to have verified the checksum;
// any decode failure is reported as ErrCorrupt.
func DecodeDirectory(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := decMode.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode directory: %v", ErrCorrupt, err)
	}
	return entries, nil
}
