package apack

// EntryInfo describes one archive entry: its unique name, the logical
// (pre-pipeline) and stored (post-pipeline) byte lengths, its offset into
// the data region, and the optional metadata attached when it was written.
type EntryInfo struct {
	// Name is the entry's unique name within the archive.
	Name string

	// Size is the logical content length in bytes.
	Size uint64

	// StoredSize is the post-pipeline length of the block in the data region.
	StoredSize uint64

	// Offset is the block's byte offset relative to the start of the data
	// region.
	Offset uint64

	// Metadata is the entry's metadata, or nil when none was attached.
	Metadata *Metadata
}
