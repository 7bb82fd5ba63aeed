package apack

import (
	"errors"
	"iter"

	"github.com/apack/apack/internal/format"
)

// Metadata is an immutable, typed attribute bag attached to an entry: an
// entry name, an optional mime type, and an ordered set of scalar
// attributes. Build one with NewMetadata; it is frozen afterwards.
//
// Attributes keep insertion order. Setting an attribute whose name was
// already set overwrites the earlier value in place (last write wins).
type Metadata struct {
	name     string
	mimeType string
	attrs    []attr
}

type attr struct {
	name  string
	value AttrValue
}

// metadataBuilder accumulates option state for NewMetadata.
type metadataBuilder struct {
	md  Metadata
	err error
}

// MetadataOption configures a Metadata under construction.
type MetadataOption func(*metadataBuilder)

// WithMimeType sets the mime-type string.
func WithMimeType(mimeType string) MetadataOption {
	return func(b *metadataBuilder) {
		b.md.mimeType = mimeType
	}
}

// WithAttribute adds a scalar attribute. value must be a string, a bool,
// or an integer representable as int64; anything else fails NewMetadata.
// Repeatable; a duplicate attribute name overwrites the earlier value.
func WithAttribute(name string, value any) MetadataOption {
	return func(b *metadataBuilder) {
		if name == "" {
			b.setErr(errors.New("apack: empty attribute name"))
			return
		}
		av, err := attrValueOf(value)
		if err != nil {
			b.setErr(err)
			return
		}
		for i := range b.md.attrs {
			if b.md.attrs[i].name == name {
				b.md.attrs[i].value = av
				return
			}
		}
		b.md.attrs = append(b.md.attrs, attr{name: name, value: av})
	}
}

func (b *metadataBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// NewMetadata builds an immutable Metadata for the entry with the given
// name. The name must match the name the entry is added under.
func NewMetadata(name string, opts ...MetadataOption) (*Metadata, error) {
	if name == "" {
		return nil, errors.New("apack: empty metadata name")
	}
	b := &metadataBuilder{md: Metadata{name: name}}
	for _, opt := range opts {
		opt(b)
	}
	if b.err != nil {
		return nil, b.err
	}
	md := b.md
	return &md, nil
}

// Name returns the owning entry name.
func (m *Metadata) Name() string { return m.name }

// MimeType returns the mime-type string, or "" when unset.
func (m *Metadata) MimeType() string { return m.mimeType }

// Len returns the number of attributes.
func (m *Metadata) Len() int { return len(m.attrs) }

// Attribute returns the value for the named attribute.
func (m *Metadata) Attribute(name string) (AttrValue, bool) {
	for _, a := range m.attrs {
		if a.name == name {
			return a.value, true
		}
	}
	return AttrValue{}, false
}

// Attributes iterates the attributes in insertion order.
func (m *Metadata) Attributes() iter.Seq2[string, AttrValue] {
	return func(yield func(string, AttrValue) bool) {
		for _, a := range m.attrs {
			if !yield(a.name, a.value) {
				return
			}
		}
	}
}

// record converts the metadata to its directory representation.
func (m *Metadata) record() *format.Metadata {
	if m == nil {
		return nil
	}
	rec := &format.Metadata{Name: m.name, MimeType: m.mimeType}
	if len(m.attrs) > 0 {
		rec.Attributes = make([]format.Attribute, 0, len(m.attrs))
		for _, a := range m.attrs {
			rec.Attributes = append(rec.Attributes, a.value.record(a.name))
		}
	}
	return rec
}

// metadataFromRecord converts a directory metadata record back to a
// Metadata value. Unknown attribute kinds written by future minor versions
// are skipped rather than failing the whole directory.
func metadataFromRecord(rec *format.Metadata) *Metadata {
	if rec == nil {
		return nil
	}
	md := &Metadata{name: rec.Name, mimeType: rec.MimeType}
	for _, arec := range rec.Attributes {
		av, err := attrValueFromRecord(arec)
		if err != nil {
			continue
		}
		md.attrs = append(md.attrs, attr{name: arec.Name, value: av})
	}
	return md
}
