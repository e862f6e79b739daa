// Package session locks the vault after a period of inactivity.
package session

import (
	"sync"
	"time"
)

// DefaultTimeout applies when no timeout is configured.
const DefaultTimeout = 15 * time.Minute

// Manager arms a timer on Start and fires the expiry callback when no
// activity is reported for the configured duration. Touch rearms it.
// All methods are safe for concurrent use; the callback runs on its own
// goroutine with no Manager lock held.
type Manager struct {
	mu           sync.Mutex
	timeout      time.Duration
	onExpire     func()
	timer        *time.Timer
	lastActivity time.Time
	running      bool
}

// NewManager returns a stopped manager. A non-positive timeout falls
// back to DefaultTimeout. onExpire may be nil.
func NewManager(timeout time.Duration, onExpire func()) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout, onExpire: onExpire}
}

// Start arms the inactivity timer. Starting an already running manager
// just resets it.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActivity = time.Now()
	m.running = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.expire)
}

// Stop disarms the timer without firing the callback.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Touch records activity and pushes the deadline out by the full
// timeout. It is a no-op on a stopped manager.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.lastActivity = time.Now()
	m.timer.Reset(m.timeout)
}

// Remaining returns the time left before expiry, zero when stopped or
// already expired.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return 0
	}
	remaining := m.timeout - time.Since(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Active reports whether the timer is armed.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetTimeout changes the inactivity window. A running manager is
// rearmed against the new window immediately.
func (m *Manager) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeout = timeout
	if m.running {
		m.lastActivity = time.Now()
		m.timer.Reset(m.timeout)
	}
}

// Timeout returns the configured inactivity window.
func (m *Manager) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *Manager) expire() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.timer = nil
	callback := m.onExpire
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}
