// Package sizing bounds the byte counts flowing through archive writers
// and readers: overflow-safe conversions for directory fields and a
// limit-enforcing read for streamed entry content.
package sizing

import (
	"errors"
	"io"
	"math"
)

// MaxRead is the largest byte count ReadAll will materialize in memory.
// Callers that disable their own limit fall back to it.
const MaxRead = uint64(math.MaxInt - 1)

// ErrLimit is returned by ReadAll when the source holds more bytes than
// allowed. Callers translate it into their own error taxonomy.
var ErrLimit = errors.New("sizing: byte limit exceeded")

// ToInt converts an archive byte count to int. ok is false when the value
// does not fit on this platform.
func ToInt(v uint64) (int, bool) {
	if v > uint64(math.MaxInt) {
		return 0, false
	}
	return int(v), true
}

// ToInt64 converts an archive byte count to an int64 file offset.
func ToInt64(v uint64) (int64, bool) {
	if v > uint64(math.MaxInt64) {
		return 0, false
	}
	return int64(v), true
}

// AddUint64 adds two byte counts, reporting overflow instead of wrapping.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// ReadAll reads r to completion, failing with ErrLimit when more than
// limit bytes are available. Limits above MaxRead are clamped to MaxRead.
func ReadAll(r io.Reader, limit uint64) ([]byte, error) {
	if limit > MaxRead {
		limit = MaxRead
	}
	lr := &io.LimitedReader{R: r, N: int64(limit) + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > limit {
		return nil, ErrLimit
	}
	return data, nil
}
