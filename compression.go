package apack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression provider ids recorded in the archive header. Protocol
// constants; changing them breaks format compatibility.
const (
	compressionNoneID uint8 = 0
	compressionZstdID uint8 = 1
	compressionLZ4ID  uint8 = 2
)

// CompressionProvider is the capability contract for a symmetric
// compression algorithm. Implementations are stateless values and safe for
// concurrent use from any number of writers and readers.
//
// Compress may report that the input is incompressible; the chunk
// processor then stores the block raw and records that in the entry flags,
// so Decompress is only ever called on blocks Compress produced.
type CompressionProvider interface {
	// ID returns the provider id recorded in the archive header.
	ID() uint8

	// Name returns the human-readable provider name.
	Name() string

	// ValidateLevel reports whether level is valid for this provider.
	// Called at configuration build time, never during writes.
	ValidateLevel(level int) error

	// Compress returns the compressed form of data at the given level.
	Compress(data []byte, level int) ([]byte, error)

	// Decompress reconstructs the original bytes. originalLen must match
	// the pre-compression length exactly; a mismatch is an error.
	Decompress(data []byte, originalLen int) ([]byte, error)
}

// errIncompressible is returned by Compress when the output would not be
// smaller than the input. The chunk processor falls back to storing raw.
var errIncompressible = errors.New("apack: data is incompressible")

// Zstd returns the Zstandard compression provider. Levels 1 (fastest)
// through 4 (best) map onto the encoder's speed/ratio presets.
func Zstd() CompressionProvider { return zstdProvider{} }

// LZ4 returns the LZ4 block compression provider. Level 0 is the fast
// path; levels 1-9 select increasing high-compression effort.
func LZ4() CompressionProvider { return lz4Provider{} }

// compressionByID resolves a header provider id when reconstructing a
// reader-side pipeline.
func compressionByID(id uint8) (CompressionProvider, error) {
	switch id {
	case compressionZstdID:
		return Zstd(), nil
	case compressionLZ4ID:
		return LZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression provider id %d", id)
	}
}

// Zstandard. Encoders are built once per level and shared: EncodeAll and
// DecodeAll are safe for concurrent use.

type zstdProvider struct{}

func (zstdProvider) ID() uint8    { return compressionZstdID }
func (zstdProvider) Name() string { return "zstd" }

func (zstdProvider) ValidateLevel(level int) error {
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		return fmt.Errorf("zstd: level %d out of range [%d, %d]",
			level, zstd.SpeedFastest, zstd.SpeedBestCompression)
	}
	return nil
}

var (
	zstdEncoderMu sync.Mutex
	zstdEncoders  = map[int]*zstd.Encoder{}
	zstdDecoder   *zstd.Decoder
)

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("apack: zstd decoder initialization failed: " + err.Error())
	}
}

func zstdEncoderForLevel(level int) (*zstd.Encoder, error) {
	zstdEncoderMu.Lock()
	defer zstdEncoderMu.Unlock()
	if enc, ok := zstdEncoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd: create encoder: %w", err)
	}
	zstdEncoders[level] = enc
	return enc, nil
}

func (p zstdProvider) Compress(data []byte, level int) ([]byte, error) {
	enc, err := zstdEncoderForLevel(level)
	if err != nil {
		return nil, err
	}
	compressed := enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func (p zstdProvider) Decompress(data []byte, originalLen int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, originalLen))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != originalLen {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), originalLen)
	}
	return result, nil
}

// LZ4 block mode.

type lz4Provider struct{}

func (lz4Provider) ID() uint8    { return compressionLZ4ID }
func (lz4Provider) Name() string { return "lz4" }

// lz4Levels maps numeric levels 1-9 to the high-compression depth presets.
var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func (lz4Provider) ValidateLevel(level int) error {
	if level < 0 || level > len(lz4Levels) {
		return fmt.Errorf("lz4: level %d out of range [0, %d]", level, len(lz4Levels))
	}
	return nil
}

func (p lz4Provider) Compress(data []byte, level int) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, bound)

	var written int
	var err error
	if level <= 0 {
		var c lz4.Compressor
		written, err = c.CompressBlock(data, dst)
	} else {
		c := lz4.CompressorHC{Level: lz4Levels[level-1]}
		written, err = c.CompressBlock(data, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also fall back when the output is not smaller.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func (p lz4Provider) Decompress(data []byte, originalLen int) ([]byte, error) {
	dst := make([]byte, originalLen)
	read, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != originalLen {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, originalLen)
	}
	return dst, nil
}
