package apack

import (
	"errors"
	"fmt"
)

// Config is an immutable snapshot of the codec choices for an archive: at
// most one compression provider (with a level) and at most one encryption
// provider (with a key). Once built it is never mutated; a nil *Config is
// the identity configuration.
//
// A Config can synthesize any number of chunk processors; all of them are
// stateless and safe to share across concurrent writers and readers.
type Config struct {
	compression CompressionProvider // nil = none
	level       int
	encryption  EncryptionProvider // nil = none
	key         []byte
}

// configBuilder accumulates option state so NewConfig can validate the
// whole configuration in one place.
type configBuilder struct {
	cfg            Config
	compressionSet bool
	encryptionSet  bool
	err            error
}

// Option configures a Config under construction.
type Option func(*configBuilder)

// WithCompression enables the compression stage of the pipeline. The level
// is provider-specific and validated when the configuration is built.
// At most one compression choice is accepted.
func WithCompression(provider CompressionProvider, level int) Option {
	return func(b *configBuilder) {
		if b.compressionSet {
			b.setErr(errors.New("apack: compression configured twice"))
			return
		}
		if provider == nil {
			b.setErr(errors.New("apack: nil compression provider"))
			return
		}
		b.compressionSet = true
		b.cfg.compression = provider
		b.cfg.level = level
	}
}

// WithEncryption enables authenticated encryption as the final write stage
// and first read stage. The key length is validated when the configuration
// is built. At most one encryption choice is accepted.
func WithEncryption(provider EncryptionProvider, key []byte) Option {
	return func(b *configBuilder) {
		if b.encryptionSet {
			b.setErr(errors.New("apack: encryption configured twice"))
			return
		}
		if provider == nil {
			b.setErr(errors.New("apack: nil encryption provider"))
			return
		}
		b.encryptionSet = true
		b.cfg.encryption = provider
		b.cfg.key = append([]byte(nil), key...)
	}
}

func (b *configBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// NewConfig builds and validates a Config. Option order is irrelevant to
// the result. Invalid levels and key lengths fail here, at build time,
// never during writes or reads.
func NewConfig(opts ...Option) (*Config, error) {
	b := &configBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.err != nil {
		return nil, b.err
	}

	cfg := b.cfg
	if cfg.compression != nil {
		if err := cfg.compression.ValidateLevel(cfg.level); err != nil {
			return nil, fmt.Errorf("apack: invalid compression level: %w", err)
		}
	}
	if cfg.encryption != nil {
		if len(cfg.key) != cfg.encryption.KeySize() {
			return nil, fmt.Errorf("apack: %s key must be %d bytes, got %d",
				cfg.encryption.Name(), cfg.encryption.KeySize(), len(cfg.key))
		}
	}
	return &cfg, nil
}

// ChunkProcessor returns a pipeline bound to this configuration's codec
// choices. A nil Config yields the identity pipeline.
func (c *Config) ChunkProcessor() *ChunkProcessor {
	if c == nil {
		return &ChunkProcessor{}
	}
	return &ChunkProcessor{
		compression: c.compression,
		level:       c.level,
		encryption:  c.encryption,
		key:         c.key,
	}
}

// descriptor returns the public codec parameters recorded in the archive
// header. The key is never part of the descriptor.
func (c *Config) descriptor() (compressionID uint8, level int32, encryptionID uint8) {
	if c == nil {
		return compressionNoneID, 0, encryptionNoneID
	}
	if c.compression != nil {
		compressionID = c.compression.ID()
		level = int32(c.level)
	}
	if c.encryption != nil {
		encryptionID = c.encryption.ID()
	}
	return compressionID, level, encryptionID
}
