// Package apack implements the APACK archive container format: named,
// independently addressable entries with optional compression, optional
// authenticated encryption, and optional structured metadata.
//
// An archive is a single file laid out as header | directory | data
// region. Every entry's block is independently decodable, so ReadAllBytes
// never touches unrelated entries. The header records the codec descriptor
// (provider ids and compression level, never key material), which lets a
// Reader rebuild the chunk pipeline on its own; encrypted archives
// additionally need the key supplied via WithKey.
//
// Archives written by one version remain readable by all later versions of
// the same major format version.
package apack
