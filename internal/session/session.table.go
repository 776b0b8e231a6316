// Package session owns the in-flight protocol state that lives between round
// trips: pending AKE verifier blobs, TOTP secrets awaiting proof of
// possession, and the unverified-registration cleanup timers.
package session

import (
	"sync"
	"time"
)

// Table is the ephemeral session store consulted by the auth usecase. All
// mutation of a username's in-flight state goes through here; implementations
// must be safe for concurrent requests racing on the same username.
type Table interface {
	// SetPendingLogin stores the server-side AKE verifier state for one
	// in-flight login. A second call for the same username overwrites the
	// first: a client that lost the KE2 response can retry login/init without
	// being locked out. The cost is that anyone who can call login/init can
	// invalidate a victim's in-flight login; the strict rate tier bounds that.
	SetPendingLogin(username string, expected []byte)

	// TakePendingLogin returns and deletes the verifier state. Single use:
	// the second caller gets ok=false.
	TakePendingLogin(username string) (expected []byte, ok bool)

	// SetPendingTOTPSecret stores a setup-phase TOTP secret. The secret stays
	// pending until the user proves possession of a valid code.
	SetPendingTOTPSecret(username, secret string)

	// PendingTOTPSecret returns the pending secret without consuming it.
	PendingTOTPSecret(username string) (secret string, ok bool)

	// DeletePendingTOTPSecret drops the pending secret.
	DeletePendingTOTPSecret(username string)

	// ScheduleCleanup arms the one-shot unverified-registration timer. When it
	// fires, cleanup runs unless MarkVerified won the race first.
	ScheduleCleanup(username string, ttl time.Duration, cleanup func())

	// MarkVerified cancels the pending cleanup timer. Idempotent; reports
	// whether a timer was armed.
	MarkVerified(username string) bool

	// Remove drops every trace of the username's in-flight state.
	Remove(username string)
}

type entry struct {
	pendingLogin      []byte
	pendingTOTPSecret string
	cleanupTimer      *time.Timer
	verified          bool
}

// MemoryTable is the process-local Table implementation: a mutex-guarded map
// with time.AfterFunc timers.
type MemoryTable struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[string]*entry)}
}

func (t *MemoryTable) get(username string) *entry {
	e, ok := t.entries[username]
	if !ok {
		e = &entry{}
		t.entries[username] = e
	}
	return e
}

// prune drops the entry if nothing is left in it, so abandoned flows do not
// accumulate.
func (t *MemoryTable) prune(username string) {
	e, ok := t.entries[username]
	if ok && e.pendingLogin == nil && e.pendingTOTPSecret == "" && e.cleanupTimer == nil {
		delete(t.entries, username)
	}
}

func (t *MemoryTable) SetPendingLogin(username string, expected []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(username).pendingLogin = expected
}

func (t *MemoryTable) TakePendingLogin(username string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[username]
	if !ok || e.pendingLogin == nil {
		return nil, false
	}
	expected := e.pendingLogin
	e.pendingLogin = nil
	t.prune(username)
	return expected, true
}

func (t *MemoryTable) SetPendingTOTPSecret(username, secret string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(username).pendingTOTPSecret = secret
}

func (t *MemoryTable) PendingTOTPSecret(username string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[username]
	if !ok || e.pendingTOTPSecret == "" {
		return "", false
	}
	return e.pendingTOTPSecret, true
}

func (t *MemoryTable) DeletePendingTOTPSecret(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[username]; ok {
		e.pendingTOTPSecret = ""
		t.prune(username)
	}
}

func (t *MemoryTable) ScheduleCleanup(username string, ttl time.Duration, cleanup func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.get(username)
	if e.cleanupTimer != nil {
		e.cleanupTimer.Stop()
	}
	e.verified = false
	e.cleanupTimer = time.AfterFunc(ttl, func() {
		t.mu.Lock()
		e, ok := t.entries[username]
		// The user may have completed verification between the timer firing
		// and this goroutine taking the lock; cleanup must be a no-op then.
		if !ok || e.verified || e.cleanupTimer == nil {
			t.mu.Unlock()
			return
		}
		e.cleanupTimer = nil
		delete(t.entries, username)
		t.mu.Unlock()
		cleanup()
	})
}

func (t *MemoryTable) MarkVerified(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[username]
	if !ok || e.cleanupTimer == nil {
		return false
	}
	e.verified = true
	e.cleanupTimer.Stop()
	e.cleanupTimer = nil
	t.prune(username)
	return true
}

func (t *MemoryTable) Remove(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[username]; ok {
		if e.cleanupTimer != nil {
			e.cleanupTimer.Stop()
		}
		delete(t.entries, username)
	}
}
