package session

import (
	"testing"
	"time"
)

func TestExpiryFiresCallback(t *testing.T) {
	fired := make(chan struct{})
	m := NewManager(20*time.Millisecond, func() { close(fired) })
	m.Start()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback never fired")
	}
	if m.Active() {
		t.Error("manager still active after expiry")
	}
	if m.Remaining() != 0 {
		t.Error("Remaining() nonzero after expiry")
	}
}

func TestStopPreventsCallback(t *testing.T) {
	fired := make(chan struct{})
	m := NewManager(30*time.Millisecond, func() { close(fired) })
	m.Start()
	m.Stop()

	select {
	case <-fired:
		t.Fatal("callback fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTouchExtendsDeadline(t *testing.T) {
	fired := make(chan struct{})
	m := NewManager(80*time.Millisecond, func() { close(fired) })
	m.Start()

	// Keep touching well inside the window; the deadline must keep moving.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		select {
		case <-fired:
			t.Fatal("expired despite regular activity")
		default:
		}
		m.Touch()
	}

	// Now go quiet and let it expire.
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("never expired after activity stopped")
	}
}

func TestTouchOnStoppedManager(t *testing.T) {
	m := NewManager(time.Minute, nil)
	m.Touch() // must not panic
	if m.Active() {
		t.Error("Touch armed a stopped manager")
	}
	if m.Remaining() != 0 {
		t.Error("stopped manager reports remaining time")
	}
}

func TestRemaining(t *testing.T) {
	m := NewManager(time.Minute, nil)
	m.Start()
	defer m.Stop()

	remaining := m.Remaining()
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("Remaining() = %v, want within (0, 1m]", remaining)
	}
}

func TestSetTimeoutRearms(t *testing.T) {
	fired := make(chan struct{})
	m := NewManager(time.Hour, func() { close(fired) })
	m.Start()
	m.SetTimeout(20 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("shortened timeout never fired")
	}
}

func TestDefaultTimeout(t *testing.T) {
	m := NewManager(0, nil)
	if m.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", m.Timeout(), DefaultTimeout)
	}
	m.SetTimeout(-time.Second)
	if m.Timeout() != DefaultTimeout {
		t.Errorf("negative SetTimeout: Timeout() = %v, want %v", m.Timeout(), DefaultTimeout)
	}
}

func TestRestartAfterExpiry(t *testing.T) {
	fired := make(chan struct{}, 2)
	m := NewManager(20*time.Millisecond, func() { fired <- struct{}{} })

	m.Start()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never expired")
	}

	m.Start()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("second cycle never expired")
	}
}
