package container

import (
	"fmt"
	"sort"
	"time"
)

// Metadata describes the contents of a vault: a creation timestamp and a
// mapping from normalized virtual path to the entry's location in the blob.
type Metadata struct {
	CreatedAt time.Time             `json:"timestamp"`
	Files     map[string]*FileEntry `json:"files"`
}

// FileEntry records where a file lives inside the content blob.
type FileEntry struct {
	Offset   int64     `json:"offset"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	MimeType string    `json:"mime_type"`
}

// NewMetadata returns empty metadata stamped with the current time.
func NewMetadata() *Metadata {
	return &Metadata{
		CreatedAt: time.Now().UTC(),
		Files:     make(map[string]*FileEntry),
	}
}

// Validate checks the blob bookkeeping invariant: every entry lies within
// the blob, no two entries overlap, and the entries sorted by offset tile
// the blob contiguously from zero with no gaps or unreferenced bytes.
func (m *Metadata) Validate(blobLen int64) error {
	if m == nil {
		return fmt.Errorf("%w: nil metadata", ErrBadPayload)
	}

	entries := make([]*FileEntry, 0, len(m.Files))
	for path, entry := range m.Files {
		if entry == nil {
			return fmt.Errorf("%w: nil entry for %q", ErrBadPayload, path)
		}
		if entry.Offset < 0 || entry.Size < 0 {
			return fmt.Errorf("%w: negative offset or size for %q", ErrBadPayload, path)
		}
		if entry.Offset+entry.Size > blobLen {
			return fmt.Errorf("%w: entry %q exceeds blob length", ErrBadPayload, path)
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Offset != entries[j].Offset {
			return entries[i].Offset < entries[j].Offset
		}
		return entries[i].Size < entries[j].Size
	})

	var next int64
	for _, entry := range entries {
		if entry.Offset != next {
			return fmt.Errorf("%w: blob ranges are not contiguous at offset %d", ErrBadPayload, entry.Offset)
		}
		next = entry.Offset + entry.Size
	}
	if next != blobLen {
		return fmt.Errorf("%w: blob has %d unreferenced trailing bytes", ErrBadPayload, blobLen-next)
	}
	return nil
}

// TotalSize returns the sum of all entry sizes.
func (m *Metadata) TotalSize() int64 {
	var total int64
	for _, entry := range m.Files {
		total += entry.Size
	}
	return total
}
