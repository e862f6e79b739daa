package container

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hemliga/valvet/pkg/crypto"
)

// Header is the fixed 38-byte vault header. All integers are big-endian.
//
//	offset  size  field
//	0       8     magic bytes
//	8       2     format version
//	10      16    Argon2id salt
//	26      4     Argon2id memory cost (KiB)
//	30      4     Argon2id time cost
//	34      4     Argon2id parallelism
type Header struct {
	Version uint16
	Salt    [crypto.SaltLength]byte
	Params  crypto.Params
}

// MarshalBinary encodes the header into its fixed 38-byte form.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(MagicBytes)
	binary.Write(&buf, binary.BigEndian, h.Version)
	buf.Write(h.Salt[:])
	binary.Write(&buf, binary.BigEndian, h.Params.Memory)
	binary.Write(&buf, binary.BigEndian, h.Params.Time)
	binary.Write(&buf, binary.BigEndian, h.Params.Threads)

	if buf.Len() != HeaderSize {
		return nil, fmt.Errorf("%w: encoded %d bytes, want %d", ErrBadHeader, buf.Len(), HeaderSize)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses and validates a 38-byte header. Magic and version
// are checked before anything else so foreign files are rejected without
// any key derivation work, and the embedded KDF parameters must fall in
// the accepted range.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrBadHeader, len(data))
	}
	if !bytes.Equal(data[:8], MagicBytes) {
		return ErrBadMagic
	}

	h.Version = binary.BigEndian.Uint16(data[8:10])
	if h.Version != Version {
		return fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}

	copy(h.Salt[:], data[10:26])
	h.Params = crypto.Params{
		Memory:  binary.BigEndian.Uint32(data[26:30]),
		Time:    binary.BigEndian.Uint32(data[30:34]),
		Threads: binary.BigEndian.Uint32(data[34:38]),
	}
	if err := h.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	return nil
}

// encodePayload serializes metadata and blob into the plaintext payload
// and compresses it: 4-byte big-endian metadata length, the UTF-8 JSON
// metadata, then the raw concatenated file bytes, all wrapped in zlib.
func encodePayload(meta *Metadata, blob []byte) ([]byte, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("container: failed to marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(metaJSON)))
	if _, err := zw.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("container: failed to compress payload: %w", err)
	}
	if _, err := zw.Write(metaJSON); err != nil {
		return nil, fmt.Errorf("container: failed to compress payload: %w", err)
	}
	if _, err := zw.Write(blob); err != nil {
		return nil, fmt.Errorf("container: failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("container: failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

// decodePayload decompresses and splits the payload back into metadata
// and blob. Malformed metadata is rejected rather than trusted.
func decodePayload(payload []byte) (*Metadata, []byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	defer zr.Close()

	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if len(plain) < 4 {
		return nil, nil, fmt.Errorf("%w: too small", ErrBadPayload)
	}
	metaLen := binary.BigEndian.Uint32(plain[:4])
	if uint64(len(plain)) < 4+uint64(metaLen) {
		return nil, nil, fmt.Errorf("%w: metadata size mismatch", ErrBadPayload)
	}

	meta := new(Metadata)
	if err := json.Unmarshal(plain[4:4+metaLen], meta); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if meta.Files == nil {
		meta.Files = make(map[string]*FileEntry)
	}

	blob := plain[4+metaLen:]
	return meta, blob, nil
}
