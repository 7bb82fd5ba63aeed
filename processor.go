package apack

import (
	"errors"
	"fmt"

	"github.com/apack/apack/internal/format"
)

// ChunkProcessor applies the configured codec transforms to one block at a
// time. Processing order on write is compress-then-encrypt; reading
// applies the exact inverse, decrypt-then-decompress. With neither stage
// configured the processor is the identity pipeline.
//
// A ChunkProcessor holds no archive-specific mutable state, so one
// instance can be shared by any number of concurrent writers and readers.
type ChunkProcessor struct {
	compression CompressionProvider // nil = none
	level       int
	encryption  EncryptionProvider // nil = none
	key         []byte             // nil = key not supplied
}

// Encrypted reports whether the pipeline includes an encryption stage.
func (p *ChunkProcessor) Encrypted() bool {
	return p.encryption != nil
}

// Process transforms a logical block into its stored form and returns the
// entry flags describing what was applied. When the compressor declares
// the block incompressible the block is stored raw and FlagCompressed is
// left clear, so the reader knows to skip the decompression stage.
func (p *ChunkProcessor) Process(block []byte) (stored []byte, flags uint8, err error) {
	stored = block

	if p.compression != nil {
		compressed, err := p.compression.Compress(block, p.level)
		switch {
		case err == nil:
			stored = compressed
			flags |= format.FlagCompressed
		case errors.Is(err, errIncompressible):
			// Stored raw; flag stays clear.
		default:
			return nil, 0, fmt.Errorf("compress: %w", err)
		}
	}

	if p.encryption != nil {
		if p.key == nil {
			return nil, 0, ErrKeyRequired
		}
		sealed, err := p.encryption.Encrypt(stored, p.key)
		if err != nil {
			return nil, 0, err
		}
		stored = sealed
	}

	return stored, flags, nil
}

// Unprocess reverses Process: decrypt first, then decompress when the
// entry flags say the block was compressed. originalLen is the logical
// length recorded in the directory and is verified exactly.
func (p *ChunkProcessor) Unprocess(stored []byte, flags uint8, originalLen int) ([]byte, error) {
	block := stored

	if p.encryption != nil {
		if p.key == nil {
			return nil, ErrKeyRequired
		}
		plaintext, err := p.encryption.Decrypt(block, p.key)
		if err != nil {
			return nil, err
		}
		block = plaintext
	}

	if flags&format.FlagCompressed != 0 {
		if p.compression == nil {
			return nil, fmt.Errorf("%w: entry is compressed but the archive descriptor has no compression provider", ErrCorrupt)
		}
		decompressed, err := p.compression.Decompress(block, originalLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		block = decompressed
	} else if len(block) != originalLen {
		return nil, fmt.Errorf("%w: stored block is %d bytes, directory records %d",
			ErrCorrupt, len(block), originalLen)
	}

	return block, nil
}

// withKey returns a copy of the processor bound to the given key. Used by
// readers that reconstruct the pipeline from the archive descriptor and
// receive the key out-of-band.
func (p *ChunkProcessor) withKey(key []byte) *ChunkProcessor {
	clone := *p
	clone.key = append([]byte(nil), key...)
	return &clone
}
