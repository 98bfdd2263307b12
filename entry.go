package smallbin

import (
	"strings"
	"time"
)

// catalogVersion is the format tag written into every catalog
const catalogVersion = "1.0"

// FileEntry is one catalog record: the metadata for a stored payload
// plus, for entries that own their blob, the ciphertext itself.
// Content fields (EncryptedData, IV, Checksum, ChecksumAlgorithm,
// FileSize, IsCompressed) are fixed at creation; everything else is
// mutable only through UpdateMetadata.
type FileEntry struct {
	ID        string    // unique id, never reused
	FileName  string    // display name, not a filesystem path
	Tags      []string  // set semantics, no duplicates
	CreatedAt time.Time // UTC
	UpdatedAt time.Time // UTC, stamped on every metadata mutation

	FileSize       int64             // original plaintext size in bytes
	ContentType    string            // MIME type
	IsCompressed   bool              // blob passed through the compressor
	CustomMetadata map[string]string // free-form host metadata

	EncryptedData []byte `json:",omitempty"` // ciphertext; empty on duplicates
	IV            []byte `json:",omitempty"` // 16 bytes; empty on duplicates

	Checksum          string            // hex digest of the original plaintext
	ChecksumAlgorithm ChecksumAlgorithm // digest the checksum was taken with

	// Dedup links. A duplicate owns no blob and resolves content
	// through OriginalFileID; the original lists its duplicates.
	OriginalFileID   string   `json:",omitempty"`
	DuplicateFileIDs []string `json:",omitempty"`

	// Version links. A version points at its base; the base holds the
	// ordered version ids. A version is never a dedup original or
	// duplicate.
	BaseFileID     string   `json:",omitempty"`
	VersionNumber  int      // 1 for plain entries and bases, 2+ for versions
	VersionComment string   `json:",omitempty"`
	VersionIDs     []string `json:",omitempty"`
}

// IsDuplicate reports whether the entry aliases another entry's blob
func (e *FileEntry) IsDuplicate() bool {
	return e.OriginalFileID != ""
}

// IsVersion reports whether the entry is a version of a base entry
func (e *FileEntry) IsVersion() bool {
	return e.BaseFileID != ""
}

// HasTag reports whether the entry carries the exact tag
func (e *FileEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if the entry does not already carry it and reports
// whether the tag set changed
func (e *FileEntry) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || e.HasTag(tag) {
		return false
	}
	e.Tags = append(e.Tags, tag)
	return true
}

// RemoveTag removes a tag and reports whether the tag set changed
func (e *FileEntry) RemoveTag(tag string) bool {
	for i, t := range e.Tags {
		if t == tag {
			e.Tags = append(e.Tags[:i], e.Tags[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the entry. Public lookups hand out
// clones so callers cannot reach the live catalog state.
func (e *FileEntry) Clone() *FileEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = cloneStrings(e.Tags)
	c.CustomMetadata = cloneStringMap(e.CustomMetadata)
	c.EncryptedData = cloneBytes(e.EncryptedData)
	c.IV = cloneBytes(e.IV)
	c.DuplicateFileIDs = cloneStrings(e.DuplicateFileIDs)
	c.VersionIDs = cloneStrings(e.VersionIDs)
	return &c
}

// Catalog is the serialized form of the whole store: every entry keyed
// by id, plus the format version tag.
type Catalog struct {
	Files   map[string]*FileEntry
	Version string
}

// newCatalog returns an empty catalog
func newCatalog() *Catalog {
	return &Catalog{
		Files:   make(map[string]*FileEntry),
		Version: catalogVersion,
	}
}

// lookup returns the live entry for an id
func (c *Catalog) lookup(id string) (*FileEntry, bool) {
	e, ok := c.Files[id]
	return e, ok
}

// findDedupTarget scans for an entry that owns a blob with the same
// checksum under the same algorithm. Duplicates and versions are never
// dedup targets.
func (c *Catalog) findDedupTarget(sum string, algo ChecksumAlgorithm) *FileEntry {
	for _, e := range c.Files {
		if e.IsDuplicate() || e.IsVersion() {
			continue
		}
		if e.ChecksumAlgorithm == algo && strings.EqualFold(e.Checksum, sum) {
			return e
		}
	}
	return nil
}

// normalize repairs nil collections after a JSON load so the rest of
// the engine can assume they exist
func (c *Catalog) normalize() {
	if c.Files == nil {
		c.Files = make(map[string]*FileEntry)
	}
	if c.Version == "" {
		c.Version = catalogVersion
	}
	for _, e := range c.Files {
		if e.CustomMetadata == nil {
			e.CustomMetadata = make(map[string]string)
		}
		if e.Tags == nil {
			e.Tags = []string{}
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
