// Package audit appends tamper-evident operation records next to the
// vault. Records form an HMAC chain: each one authenticates its own
// fields plus the previous record's MAC, so removing or editing a line
// breaks verification of everything after it. The MAC key is derived
// from the vault key, so the log can only be written and verified by
// someone who can open the vault.
package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MinDiskSpace is the least free space required before a record is written.
const MinDiskSpace = 1024 * 1024

// Operation types recorded in the log.
const (
	OpVaultCreate       = "vault.create"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultSave         = "vault.save"
	OpVaultLock         = "vault.lock"

	OpFileAdd     = "file.add"
	OpFileRemove  = "file.remove"
	OpFileExtract = "file.extract"
)

// Outcomes of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Errors returned by the logger.
var (
	ErrNoKey       = errors.New("audit: MAC key not set")
	ErrChainBroken = errors.New("audit: chain verification failed")
)

// Event is a single log record. Virtual paths are stored as HMACs so the
// log never leaks file names in plaintext.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"`
	Operation string `json:"op"`
	PathHMAC  string `json:"path_hmac,omitempty"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Detail    string `json:"detail,omitempty"`
	Chain     Chain  `json:"chain"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends chained records to monthly JSONL files under a directory.
type Logger struct {
	path      string
	key       []byte
	mu        sync.Mutex
	sequence  int64
	prevHash  string
	sessionID string
	keySet    bool
}

// NewLogger returns a logger writing under dir. Call SetKey before Log.
func NewLogger(dir string) *Logger {
	return &Logger{
		path:      dir,
		prevHash:  "genesis",
		sessionID: generateSessionID(),
	}
}

// SetKey installs the MAC key and resumes the chain from the stored
// state, starting a fresh chain when none exists.
func (l *Logger) SetKey(key []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.key = append([]byte(nil), key...)
	l.keySet = true

	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = "genesis"
	}
}

// Log records one operation. path may be empty for vault-level
// operations; detail carries an optional human-readable note.
func (l *Logger) Log(op, result, path, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return ErrNoKey
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event := Event{
		Version:   1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		SessionID: l.sessionID,
		Result:    result,
		Detail:    detail,
	}
	if path != "" {
		event.PathHMAC = l.macHex([]byte(path))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.macHex(recordData(&event))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, path string) error {
	return l.Log(op, ResultSuccess, path, "")
}

// LogError records a failed operation with its error text.
func (l *Logger) LogError(op, path string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return l.Log(op, ResultError, path, detail)
}

// LogDenied records an operation refused by policy, such as an unsafe
// extraction destination.
func (l *Logger) LogDenied(op, path, reason string) error {
	return l.Log(op, ResultDenied, path, reason)
}

// Verify replays every record in sequence order and checks the HMAC
// chain, returning the number of verified records. Any edited, removed,
// or reordered record yields ErrChainBroken.
func (l *Logger) Verify() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.keySet {
		return 0, ErrNoKey
	}

	events, err := l.readAll()
	if err != nil {
		return 0, err
	}

	prev := "genesis"
	for i, event := range events {
		if event.Chain.Sequence != int64(i+1) {
			return i, fmt.Errorf("%w: record %d has sequence %d", ErrChainBroken, i+1, event.Chain.Sequence)
		}
		if event.Chain.PrevHash != prev {
			return i, fmt.Errorf("%w: record %d does not link to its predecessor", ErrChainBroken, i+1)
		}
		want := l.macHex(recordData(&event))
		if !hmac.Equal([]byte(want), []byte(event.Chain.HMAC)) {
			return i, fmt.Errorf("%w: record %d has a bad MAC", ErrChainBroken, i+1)
		}
		prev = event.Chain.HMAC
	}
	return len(events), nil
}

// readAll loads every record from the monthly files in name order, which
// is chronological for the 2006-01 naming scheme.
func (l *Logger) readAll() ([]Event, error) {
	entries, err := os.ReadDir(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: failed to read log directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".jsonl" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var events []Event
	for _, name := range names {
		f, err := os.Open(filepath.Join(l.path, name))
		if err != nil {
			return nil, fmt.Errorf("audit: failed to open log file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var event Event
			if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
				f.Close()
				return nil, fmt.Errorf("audit: malformed record in %s: %w", name, err)
			}
			events = append(events, event)
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("audit: failed to read %s: %w", name, err)
		}
		f.Close()
	}
	return events, nil
}

func (l *Logger) macHex(data []byte) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData serializes the authenticated fields in a fixed order.
func recordData(event *Event) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.PathHMAC,
		event.SessionID,
		event.Result,
		event.Detail,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	))
}

// writeEvent appends the record to the current month's file.
func (l *Logger) writeEvent(event *Event) error {
	name := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.path, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// chainState is the persisted tail of the chain.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// generateEventID returns a time-sortable unique identifier: 6 bytes of
// millisecond timestamp followed by 10 random bytes, hex encoded.
func generateEventID() string {
	ts := time.Now().UnixMilli()
	b := make([]byte, 16)
	for i := 5; i >= 0; i-- {
		b[i] = byte(ts & 0xFF)
		ts >>= 8
	}
	if _, err := rand.Read(b[6:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
