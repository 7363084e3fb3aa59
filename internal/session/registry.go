// Package session owns the process-wide registry of browser sessions. The
// registry is the only place a driver handle lives; every component that
// wants the browser goes through Acquire/Release so at most one logical
// operation runs per session at a time.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/uiwatch/uiwatch/internal/driver"
	"github.com/uiwatch/uiwatch/pkg/models"
)

// Session pairs one driver handle with its lifecycle state. The op mutex
// serializes operations against the handle; status is kept in sync for
// observability but is not the lock.
type Session struct {
	ID             string
	Handle         driver.Handle
	Status         models.SessionStatus
	Environment    models.Environment
	TargetURL      string
	Credential     string
	CreatedAt      time.Time
	LastActivityAt time.Time

	op        sync.Mutex
	closeOnce sync.Once
}

// Info returns the externally visible view of the session. Callers must
// hold the registry lock or the session's op lock for a consistent read.
func (s *Session) Info() models.SessionInfo {
	return models.SessionInfo{
		ID:             s.ID,
		Status:         s.Status,
		Environment:    s.Environment,
		TargetURL:      s.TargetURL,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

// closeHandle closes the driver handle exactly once. Close errors are
// logged and swallowed; they never block registry mutations.
func (s *Session) closeHandle() {
	s.closeOnce.Do(func() {
		if err := s.Handle.Close(); err != nil {
			log.Printf("[registry] error closing handle for session %s: %v", s.ID, err)
		}
	})
}

// Registry is the concurrency-safe map of sessions. It is constructed once
// at process start and injected into every component that needs it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	slots    *semaphore.Weighted
	maxAge   time.Duration
}

// NewRegistry creates a registry capped at maxSessions concurrently open
// browsers. Sessions stuck outside the active state longer than maxAge are
// removed by the sweeper.
func NewRegistry(maxSessions int64, maxAge time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		slots:    semaphore.NewWeighted(maxSessions),
		maxAge:   maxAge,
	}
}

// Create allocates a new session owning the given handle. The caller keeps
// responsibility for the handle only if Create returns an error.
func (r *Registry) Create(handle driver.Handle, environment models.Environment, targetURL, credential string) (*Session, error) {
	if !r.slots.TryAcquire(1) {
		return nil, models.ErrSessionLimit
	}

	now := time.Now()
	s := &Session{
		ID:             uuid.New().String(),
		Handle:         handle,
		Status:         models.StatusInitializing,
		Environment:    environment,
		TargetURL:      targetURL,
		Credential:     credential,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	log.Printf("[registry] created session %s (%s, %s), total sessions: %d", s.ID, s.Environment, s.Status, total)
	return s, nil
}

// Get retrieves a session by id. Unknown ids yield ErrNotFound, never a
// panic.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

// Info returns a snapshot of a session's externally visible state, read
// under the registry lock so it never races a concurrent status change.
func (r *Registry) Info(id string) (models.SessionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return models.SessionInfo{}, models.ErrNotFound
	}
	return s.Info(), nil
}

// legalTransition enforces the status machine: initializing→active,
// active→executing, executing→active. Removal is not a status.
func legalTransition(from, to models.SessionStatus) bool {
	switch from {
	case models.StatusInitializing:
		return to == models.StatusActive
	case models.StatusActive:
		return to == models.StatusExecuting
	case models.StatusExecuting:
		return to == models.StatusActive
	}
	return false
}

// SetStatus transitions a session's status and refreshes its activity
// timestamp. A missing session or an illegal transition is a logged no-op.
func (r *Registry) SetStatus(id string, status models.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		log.Printf("[registry] set status %s on unknown session %s, ignoring", status, id)
		return
	}
	if s.Status == status {
		s.LastActivityAt = time.Now()
		return
	}
	if !legalTransition(s.Status, status) {
		log.Printf("[registry] illegal transition %s → %s for session %s, ignoring", s.Status, status, id)
		return
	}

	s.Status = status
	s.LastActivityAt = time.Now()
	log.Printf("[registry] session %s status → %s", id, status)
}

// Touch refreshes the session's activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.LastActivityAt = time.Now()
	}
}

// Acquire takes exclusive ownership of a session for one operation. Active
// sessions are flipped to executing for the duration; initializing sessions
// (mid-authentication) keep their status. The returned release func must be
// called on every exit path, typically via defer. A concurrent Acquire on
// the same session fails with ErrSessionBusy instead of interleaving
// browser operations.
func (r *Registry) Acquire(id string) (*Session, func(), error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}

	if !s.op.TryLock() {
		return nil, nil, fmt.Errorf("%w: an operation is already running on session %s", models.ErrSessionBusy, id)
	}

	// Re-check under the op lock: the session may have been removed between
	// the lookup and the lock.
	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		s.op.Unlock()
		return nil, nil, models.ErrNotFound
	}
	wasActive := s.Status == models.StatusActive
	if wasActive {
		s.Status = models.StatusExecuting
	}
	s.LastActivityAt = time.Now()
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if _, ok := r.sessions[id]; ok && wasActive {
			s.Status = models.StatusActive
			s.LastActivityAt = time.Now()
		}
		r.mu.Unlock()
		s.op.Unlock()
	}
	return s, release, nil
}

// Remove deletes a session and closes its handle. The handle is always
// closed, even when the caller already did, thanks to the close-once guard.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		log.Printf("[registry] remove of unknown session %s, ignoring", id)
		return false
	}

	s.closeHandle()
	r.slots.Release(1)
	log.Printf("[registry] removed session %s, remaining sessions: %d", id, remaining)
	return true
}

// SweepExpired removes every non-active session older than maxAge. Active
// sessions are never swept regardless of age; only sessions stuck
// mid-authentication are reaped automatically. A session whose op lock is
// held has an operation in flight and is skipped until the next sweep, so
// the handle is never closed out from under a running operation. Returns
// the number removed.
func (r *Registry) SweepExpired(maxAge time.Duration) int {
	now := time.Now()

	r.mu.RLock()
	var expired []*Session
	for _, s := range r.sessions {
		if s.Status != models.StatusActive && now.Sub(s.CreatedAt) > maxAge {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, s := range expired {
		if !s.op.TryLock() {
			log.Printf("[registry] expired session %s has an operation in flight, skipping sweep", s.ID)
			continue
		}
		log.Printf("[registry] sweeping expired session %s", s.ID)
		if r.Remove(s.ID) {
			removed++
		}
		s.op.Unlock()
	}
	return removed
}

// RemoveAll closes and deletes every session unconditionally. Used for
// full-system reset and process shutdown.
func (r *Registry) RemoveAll() int {
	r.mu.Lock()
	removed := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		removed = append(removed, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range removed {
		s.closeHandle()
		r.slots.Release(1)
	}

	if len(removed) > 0 {
		log.Printf("[registry] removed all %d sessions", len(removed))
	}
	return len(removed)
}

// List returns a snapshot of every session.
func (r *Registry) List() []models.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper runs SweepExpired on a ticker until the context ends.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.SweepExpired(r.maxAge); n > 0 {
					log.Printf("[registry] sweeper removed %d expired sessions", n)
				}
			}
		}
	}()
}

// MaxAge returns the configured expiry age for non-active sessions.
func (r *Registry) MaxAge() time.Duration {
	return r.maxAge
}
