// Package vfs maintains the logical file tree of an open vault.
//
// A VFS holds the decrypted state of one vault: the path-keyed metadata
// and a single append-only content blob where every file occupies one
// contiguous byte range. Mutations keep the ranges contiguous and
// non-overlapping, set the dirty flag, and are written back as a whole
// on Save. Encryption and on-disk framing belong to pkg/container.
//
// A VFS is not safe for concurrent use. Every operation runs to
// completion on the calling goroutine, and key derivation makes Load and
// Save deliberately slow; callers wanting a responsive front end must
// funnel calls through a single worker.
package vfs

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hemliga/valvet/pkg/container"
	"github.com/hemliga/valvet/pkg/crypto"
)

// Sentinel errors returned by VFS operations.
var (
	// ErrFileNotFound indicates the virtual path has no entry.
	ErrFileNotFound = errors.New("vfs: file not found in vault")

	// ErrFileExists indicates the virtual path is already taken.
	ErrFileExists = errors.New("vfs: file already exists in vault")

	// ErrEmptyPath indicates the virtual path normalized to nothing.
	ErrEmptyPath = errors.New("vfs: empty virtual path")

	// ErrUnsafePath indicates an extraction destination escaping its directory.
	ErrUnsafePath = errors.New("vfs: unsafe extraction path")

	// ErrNotLoaded indicates an operation before Create or Load.
	ErrNotLoaded = errors.New("vfs: vault not loaded")
)

// VFS is the in-memory model of an open vault's contents.
type VFS struct {
	container *container.Container
	meta      *container.Metadata
	blob      []byte
	dirty     bool
}

// New returns a VFS bound to a container. Call Create or Load before
// anything else.
func New(c *container.Container) *VFS {
	return &VFS{container: c}
}

// Create initializes a brand-new empty vault on disk and loads it.
func (v *VFS) Create(password []byte, params crypto.Params) error {
	if err := v.container.CreateNew(password, params); err != nil {
		return fmt.Errorf("vfs: failed to create vault: %w", err)
	}
	v.meta = container.NewMetadata()
	v.blob = nil
	v.dirty = false
	return nil
}

// Load decrypts the vault and replaces the in-memory state.
func (v *VFS) Load(password []byte) error {
	meta, blob, err := v.container.Load(password)
	if err != nil {
		return fmt.Errorf("vfs: failed to load vault: %w", err)
	}
	v.meta = meta
	v.blob = blob
	v.dirty = false
	return nil
}

// Save writes the current state back to disk. It is a no-op when nothing
// changed since the last Load or Save.
func (v *VFS) Save(password []byte) error {
	if v.meta == nil {
		return ErrNotLoaded
	}
	if !v.dirty {
		return nil
	}
	if err := v.container.Save(password, v.meta, v.blob); err != nil {
		return fmt.Errorf("vfs: failed to save vault: %w", err)
	}
	v.dirty = false
	return nil
}

// Discard drops the in-memory state. The blob never outlives the session.
func (v *VFS) Discard() {
	v.meta = nil
	v.blob = nil
	v.dirty = false
}

// AddFile reads the source file and stores it under the normalized
// virtual path, appending its bytes to the end of the blob.
func (v *VFS) AddFile(sourcePath, vaultPath string) error {
	if v.meta == nil {
		return ErrNotLoaded
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("vfs: source file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("vfs: source path is not a file: %s", sourcePath)
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("vfs: failed to read source file: %w", err)
	}
	return v.AddBytes(vaultPath, content, mimeTypeFor(sourcePath))
}

// AddBytes stores raw bytes under the normalized virtual path. An empty
// mimeType falls back to application/octet-stream.
func (v *VFS) AddBytes(vaultPath string, content []byte, mimeType string) error {
	if v.meta == nil {
		return ErrNotLoaded
	}
	path, err := NormalizePath(vaultPath)
	if err != nil {
		return err
	}
	if _, ok := v.meta.Files[path]; ok {
		return fmt.Errorf("%w: %s", ErrFileExists, path)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	offset := int64(len(v.blob))
	v.blob = append(v.blob, content...)

	now := time.Now().UTC()
	v.meta.Files[path] = &container.FileEntry{
		Offset:   offset,
		Size:     int64(len(content)),
		Created:  now,
		Modified: now,
		MimeType: mimeType,
	}
	v.dirty = true
	return nil
}

// RemoveFile excises the file's byte range from the blob and shifts every
// later entry down by its size, keeping the blob contiguous.
func (v *VFS) RemoveFile(vaultPath string) error {
	if v.meta == nil {
		return ErrNotLoaded
	}
	path, err := NormalizePath(vaultPath)
	if err != nil {
		return err
	}
	entry, ok := v.meta.Files[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	v.blob = append(v.blob[:entry.Offset], v.blob[entry.Offset+entry.Size:]...)

	// Single remap pass: entries before the removed range keep their
	// offsets, everything after moves down by the removed size.
	for _, other := range v.meta.Files {
		if other.Offset > entry.Offset {
			other.Offset -= entry.Size
		}
	}
	delete(v.meta.Files, path)
	v.dirty = true
	return nil
}

// ExtractFile writes the file's bytes to destPath. The destination is
// validated against its parent directory before anything is written, so
// a hostile virtual path cannot escape the chosen directory.
func (v *VFS) ExtractFile(vaultPath, destPath string) error {
	if v.meta == nil {
		return ErrNotLoaded
	}
	path, err := NormalizePath(vaultPath)
	if err != nil {
		return err
	}
	entry, ok := v.meta.Files[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	// The virtual path may carry ".." segments or an embedded absolute
	// path; resolved against the destination's directory it must not
	// escape it.
	destDir := filepath.Dir(destPath)
	if !container.ValidateExtractionPath(path[1:], destDir) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}

	content := v.blob[entry.Offset : entry.Offset+entry.Size]
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("vfs: failed to create destination directory: %w", err)
	}
	if err := os.WriteFile(destPath, content, 0600); err != nil {
		return fmt.Errorf("vfs: failed to write extracted file: %w", err)
	}
	return nil
}

// ExtractTo extracts the file into destDir using its own virtual path,
// rejecting paths that would land outside destDir.
func (v *VFS) ExtractTo(vaultPath, destDir string) (string, error) {
	if v.meta == nil {
		return "", ErrNotLoaded
	}
	path, err := NormalizePath(vaultPath)
	if err != nil {
		return "", err
	}
	if _, ok := v.meta.Files[path]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	relative := path[1:] // drop the leading slash
	if !container.ValidateExtractionPath(relative, destDir) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	dest := filepath.Join(destDir, filepath.FromSlash(relative))
	return dest, v.ExtractFile(path, dest)
}

// ListFiles returns all virtual paths in sorted order.
func (v *VFS) ListFiles() []string {
	if v.meta == nil {
		return nil
	}
	paths := make([]string, 0, len(v.meta.Files))
	for path := range v.meta.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// FileInfo returns the entry for the given virtual path.
func (v *VFS) FileInfo(vaultPath string) (*container.FileEntry, error) {
	if v.meta == nil {
		return nil, ErrNotLoaded
	}
	path, err := NormalizePath(vaultPath)
	if err != nil {
		return nil, err
	}
	entry, ok := v.meta.Files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return entry, nil
}

// FileExists reports whether the normalized path has an entry.
func (v *VFS) FileExists(vaultPath string) bool {
	_, err := v.FileInfo(vaultPath)
	return err == nil
}

// FileSize returns the size in bytes of the file at the virtual path.
func (v *VFS) FileSize(vaultPath string) (int64, error) {
	entry, err := v.FileInfo(vaultPath)
	if err != nil {
		return 0, err
	}
	return entry.Size, nil
}

// TotalSize returns the summed size of all files, which always equals
// the blob length.
func (v *VFS) TotalSize() int64 {
	if v.meta == nil {
		return 0
	}
	return v.meta.TotalSize()
}

// FileCount returns the number of files in the vault.
func (v *VFS) FileCount() int {
	if v.meta == nil {
		return 0
	}
	return len(v.meta.Files)
}

// IsDirty reports whether there are unsaved mutations.
func (v *VFS) IsDirty() bool {
	return v.dirty
}

// CreatedAt returns the vault creation timestamp.
func (v *VFS) CreatedAt() time.Time {
	if v.meta == nil {
		return time.Time{}
	}
	return v.meta.CreatedAt
}

// mimeTypeFor guesses a MIME type from the file name extension.
func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
