package apack

import (
	"fmt"
	"strconv"

	"github.com/apack/apack/internal/format"
)

// AttrKind identifies the scalar type of a metadata attribute value.
type AttrKind uint8

const (
	AttrString AttrKind = AttrKind(format.AttrKindString)
	AttrInt    AttrKind = AttrKind(format.AttrKindInt)
	AttrBool   AttrKind = AttrKind(format.AttrKindBool)
)

// AttrValue is one scalar attribute value: a string, a 64-bit integer, or
// a boolean. The zero AttrValue has no kind and reports false from every
// As* accessor.
type AttrValue struct {
	kind AttrKind
	s    string
	i    int64
	b    bool
}

// StringAttr returns a string-valued attribute value.
func StringAttr(v string) AttrValue { return AttrValue{kind: AttrString, s: v} }

// IntAttr returns an integer-valued attribute value.
func IntAttr(v int64) AttrValue { return AttrValue{kind: AttrInt, i: v} }

// BoolAttr returns a boolean-valued attribute value.
func BoolAttr(v bool) AttrValue { return AttrValue{kind: AttrBool, b: v} }

// attrValueOf converts a Go value into an AttrValue. Accepted types:
// string, bool, and any signed or unsigned integer that fits in int64.
func attrValueOf(v any) (AttrValue, error) {
	switch val := v.(type) {
	case string:
		return StringAttr(val), nil
	case bool:
		return BoolAttr(val), nil
	case int:
		return IntAttr(int64(val)), nil
	case int8:
		return IntAttr(int64(val)), nil
	case int16:
		return IntAttr(int64(val)), nil
	case int32:
		return IntAttr(int64(val)), nil
	case int64:
		return IntAttr(val), nil
	case uint8:
		return IntAttr(int64(val)), nil
	case uint16:
		return IntAttr(int64(val)), nil
	case uint32:
		return IntAttr(int64(val)), nil
	case uint64:
		if val > 1<<63-1 {
			return AttrValue{}, fmt.Errorf("apack: attribute value %d overflows int64", val)
		}
		return IntAttr(int64(val)), nil
	case AttrValue:
		return val, nil
	default:
		return AttrValue{}, fmt.Errorf("apack: unsupported attribute type %T", v)
	}
}

// Kind returns the scalar kind, or 0 for the zero value.
func (v AttrValue) Kind() AttrKind { return v.kind }

// AsString returns the string value; ok is false for non-string kinds.
func (v AttrValue) AsString() (value string, ok bool) {
	return v.s, v.kind == AttrString
}

// AsInt returns the integer value; ok is false for non-integer kinds.
func (v AttrValue) AsInt() (value int64, ok bool) {
	return v.i, v.kind == AttrInt
}

// AsBool returns the boolean value; ok is false for non-boolean kinds.
func (v AttrValue) AsBool() (value bool, ok bool) {
	return v.b, v.kind == AttrBool
}

// String implements fmt.Stringer for logs and error messages.
func (v AttrValue) String() string {
	switch v.kind {
	case AttrString:
		return v.s
	case AttrInt:
		return strconv.FormatInt(v.i, 10)
	case AttrBool:
		return strconv.FormatBool(v.b)
	default:
		return "<unset>"
	}
}

// record converts the value to its directory representation.
func (v AttrValue) record(name string) format.Attribute {
	rec := format.Attribute{Name: name, Kind: uint8(v.kind)}
	switch v.kind {
	case AttrString:
		rec.String = v.s
	case AttrInt:
		rec.Int = v.i
	case AttrBool:
		rec.Bool = v.b
	}
	return rec
}

// attrValueFromRecord converts a directory attribute record back to a value.
func attrValueFromRecord(rec format.Attribute) (AttrValue, error) {
	switch rec.Kind {
	case format.AttrKindString:
		return StringAttr(rec.String), nil
	case format.AttrKindInt:
		return IntAttr(rec.Int), nil
	case format.AttrKindBool:
		return BoolAttr(rec.Bool), nil
	default:
		return AttrValue{}, fmt.Errorf("%w: unknown attribute kind %d", ErrCorrupt, rec.Kind)
	}
}
