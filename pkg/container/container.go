// Package container owns the on-disk representation of a valvet vault.
//
// A vault is a single file: a fixed 38-byte header, a 12-byte AES-GCM
// nonce, and the ciphertext of the zlib-compressed payload. The header is
// the associated data for the AEAD, so tampering with it is detected even
// though it is stored in the clear. Updates are atomic: the new frame is
// written to a temp file in the same directory, synced, and renamed over
// the vault, so a crashed save never corrupts the previous state.
//
// An OS-level exclusive advisory lock is held on the vault file while the
// container is open so a second process cannot read or write it mid-save.
package container

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/hemliga/valvet/pkg/crypto"
)

const (
	// HeaderSize is the fixed size of the vault header in bytes.
	HeaderSize = 38

	// Version is the current vault format version.
	// Version 1 files from the format's history embedded KDF parameters
	// ambiguously and are rejected rather than reinterpreted.
	Version uint16 = 2

	// FileMode restricts the vault file to the owner.
	FileMode = 0600
)

// MagicBytes identifies a valvet vault file.
var MagicBytes = []byte("VALVET\r\n")

// Sentinel errors returned by container operations.
var (
	// ErrNotOpen indicates an operation on a closed container.
	ErrNotOpen = errors.New("container: vault file not open")

	// ErrLocked indicates another process holds the vault lock.
	ErrLocked = errors.New("container: vault file is locked by another process")

	// ErrLockLost indicates a save reached stable storage but the
	// advisory lock could not be moved to the new vault file. The
	// container closes itself; reopen the vault to continue.
	ErrLockLost = errors.New("container: vault saved but the file lock was not reacquired, reopen the vault")

	// ErrTooSmall indicates the file cannot hold a header and nonce.
	ErrTooSmall = errors.New("container: invalid vault file: too small")

	// ErrBadMagic indicates the file is not a valvet vault.
	ErrBadMagic = errors.New("container: invalid vault file: wrong magic bytes")

	// ErrBadVersion indicates an unsupported format version.
	ErrBadVersion = errors.New("container: unsupported vault version")

	// ErrBadHeader indicates a malformed or out-of-range header.
	ErrBadHeader = errors.New("container: malformed vault header")

	// ErrBadPayload indicates the decrypted payload is malformed.
	ErrBadPayload = errors.New("container: malformed vault payload")

	// ErrPermission indicates a permission failure with actionable guidance.
	ErrPermission = errors.New("container: access denied: choose another location for the vault file or adjust permissions")
)

// Container handles vault file operations and the binary format.
// It is not safe for concurrent use; callers must serialize access.
type Container struct {
	path     string
	file     *os.File
	auditKey []byte
}

// Open opens the vault file at path, creating it if absent, and acquires
// an exclusive advisory lock. The returned container must be closed to
// release the lock.
func Open(path string) (*Container, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("container: failed to open vault file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}

	return &Container{path: path, file: f}, nil
}

// Close releases the advisory lock, wipes derived key material, and
// closes the vault file.
func (c *Container) Close() error {
	if c.auditKey != nil {
		crypto.SecureWipe(c.auditKey)
		c.auditKey = nil
	}
	if c.file == nil {
		return nil
	}
	unlockFile(c.file)
	err := c.file.Close()
	c.file = nil
	return err
}

// AuditKey returns a MAC key for the audit trail, derived from the vault
// key via HKDF after a successful CreateNew or Load. It is distinct from
// the encryption key and never written to disk. Returns nil before the
// vault has been unlocked.
func (c *Container) AuditKey() []byte {
	return c.auditKey
}

// setAuditKey derives the audit MAC key from the vault key and salt.
func (c *Container) setAuditKey(key, salt []byte) {
	if c.auditKey != nil {
		crypto.SecureWipe(c.auditKey)
	}
	r := hkdf.New(sha256.New, key, salt, []byte("valvet audit v2"))
	c.auditKey = make([]byte, 32)
	if _, err := io.ReadFull(r, c.auditKey); err != nil {
		c.auditKey = nil
	}
}

// Path returns the vault file path.
func (c *Container) Path() string {
	return c.path
}

// CreateNew initializes the vault file with an empty payload encrypted
// under a key derived from password with a fresh salt. The salt and the
// KDF parameters are embedded in the header and are fixed for the life
// of the vault.
func (c *Container) CreateNew(password []byte, params crypto.Params) error {
	if c.file == nil {
		return ErrNotOpen
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("container: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}

	hdr := Header{Version: Version, Params: params}
	copy(hdr.Salt[:], salt)
	headerBytes, err := hdr.MarshalBinary()
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}

	key, err := crypto.DeriveKey(password, salt, params)
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}
	defer crypto.SecureWipe(key)
	c.setAuditKey(key, salt)

	payload, err := encodePayload(NewMetadata(), nil)
	if err != nil {
		return err
	}

	nonce, ciphertext, err := crypto.Encrypt(payload, key, headerBytes)
	if err != nil {
		return fmt.Errorf("container: failed to encrypt vault: %w", err)
	}

	return c.writeAtomic(frame(headerBytes, nonce, ciphertext))
}

// Load reads, authenticates, and decrypts the vault, returning the file
// metadata and the concatenated content blob. Any parse error, foreign
// header, or decryption failure is reported without a partial result.
func (c *Container) Load(password []byte) (*Metadata, []byte, error) {
	if c.file == nil {
		return nil, nil, ErrNotOpen
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, nil, fmt.Errorf("container: failed to read vault file: %w", err)
	}
	if len(raw) < HeaderSize+crypto.NonceLength {
		return nil, nil, ErrTooSmall
	}

	headerBytes := raw[:HeaderSize]
	var hdr Header
	if err := hdr.UnmarshalBinary(headerBytes); err != nil {
		return nil, nil, err
	}

	key, err := crypto.DeriveKey(password, hdr.Salt[:], hdr.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("container: %w", err)
	}
	defer crypto.SecureWipe(key)

	nonce := raw[HeaderSize : HeaderSize+crypto.NonceLength]
	ciphertext := raw[HeaderSize+crypto.NonceLength:]

	payload, err := crypto.Decrypt(nonce, ciphertext, key, headerBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("container: failed to decrypt vault: %w", err)
	}
	c.setAuditKey(key, hdr.Salt[:])

	meta, blob, err := decodePayload(payload)
	if err != nil {
		return nil, nil, err
	}
	if err := meta.Validate(int64(len(blob))); err != nil {
		return nil, nil, err
	}
	return meta, blob, nil
}

// Save encrypts metadata and blob and atomically replaces the vault file.
// The existing header is reused so the salt and KDF parameters stay
// stable; only the nonce is fresh, and it is never reused. An error
// matching ErrLockLost means the new contents are durable on disk but the
// container is closed and must be reopened.
func (c *Container) Save(password []byte, meta *Metadata, blob []byte) error {
	if c.file == nil {
		return ErrNotOpen
	}
	if err := meta.Validate(int64(len(blob))); err != nil {
		return err
	}

	headerBytes, hdr, err := c.readHeader()
	if err != nil {
		return err
	}

	key, err := crypto.DeriveKey(password, hdr.Salt[:], hdr.Params)
	if err != nil {
		return fmt.Errorf("container: %w", err)
	}
	defer crypto.SecureWipe(key)

	payload, err := encodePayload(meta, blob)
	if err != nil {
		return err
	}

	nonce, ciphertext, err := crypto.Encrypt(payload, key, headerBytes)
	if err != nil {
		return fmt.Errorf("container: failed to encrypt vault: %w", err)
	}

	return c.writeAtomic(frame(headerBytes, nonce, ciphertext))
}

// readHeader reads and validates the header of the on-disk vault.
func (c *Container) readHeader() ([]byte, *Header, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := c.file.ReadAt(headerBytes, 0); err != nil {
		return nil, nil, fmt.Errorf("container: failed to read vault header: %w", err)
	}
	var hdr Header
	if err := hdr.UnmarshalBinary(headerBytes); err != nil {
		return nil, nil, err
	}
	return headerBytes, &hdr, nil
}

func frame(header, nonce, ciphertext []byte) []byte {
	out := make([]byte, 0, len(header)+len(nonce)+len(ciphertext))
	out = append(out, header...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out
}

// writeAtomic writes data to a temp file in the vault's directory, forces
// it to stable storage, and renames it over the vault path. On failure the
// temp file is removed and the original vault is untouched. The advisory
// lock is reacquired on the new file handle after the swap.
func (c *Container) writeAtomic(data []byte) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".valvet-*.tmp")
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("container: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpPath)
		if os.IsPermission(cause) || errors.Is(cause, os.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermission, cause)
		}
		return fmt.Errorf("container: failed to write vault atomically: %w", cause)
	}

	if err := tmp.Chmod(FileMode); err != nil {
		return cleanup(err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("container: failed to write vault atomically: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("container: failed to replace vault file: %w", err)
	}

	// The rename is the durability point. The old handle points at the
	// replaced inode, so the lock must move to the file now at the path.
	return c.adoptNewFile()
}

// adoptNewFile locks the file currently at the vault path and makes it
// the container's handle, releasing the old one. If the new file cannot
// be opened or locked, the container closes itself rather than keeping a
// handle whose lock covers a replaced inode, and reports ErrLockLost so
// callers can tell the durable save from a failed one.
func (c *Container) adoptNewFile() error {
	f, err := os.OpenFile(c.path, os.O_RDWR, FileMode)
	if err != nil {
		c.release()
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		c.release()
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	unlockFile(c.file)
	c.file.Close()
	c.file = f
	return nil
}

func (c *Container) release() {
	unlockFile(c.file)
	c.file.Close()
	c.file = nil
}

// ValidateExtractionPath reports whether candidate, resolved against dir,
// stays inside dir. Both sides are brought to canonical absolute form
// before the containment check, so neither ".." segments, embedded
// absolute paths, nor symlinked components already on disk can redirect
// writes outside the chosen extraction directory.
func ValidateExtractionPath(candidate string, dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if resolved, err := resolveExisting(absDir); err == nil {
		absDir = resolved
	}
	target := filepath.FromSlash(candidate)
	if !filepath.IsAbs(target) {
		target = filepath.Join(absDir, target)
	}
	target = filepath.Clean(target)
	if resolved, err := resolveExisting(target); err == nil {
		target = resolved
	}

	rel, err := filepath.Rel(absDir, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor of
// path and rejoins the not-yet-created remainder.
func resolveExisting(path string) (string, error) {
	remainder := ""
	for {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(path), remainder)
		path = parent
	}
}
