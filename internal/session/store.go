// Package session implements the persistent session lifecycle core: an
// in-memory authoritative session index backed by a crash-safe, debounced
// full-snapshot ledger on disk.
package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/logging"
)

// Options configures a Store
type Options struct {
	// LedgerPath is the canonical ledger file path
	LedgerPath string
	// Debounce is the minimum interval between routine persists
	Debounce time.Duration
	// IDPrefix is the prefix for generated session IDs
	IDPrefix string
	// Logger receives store diagnostics; nil disables logging
	Logger *logging.Logger
}

// Store is the authoritative in-memory session index. All queries answer
// from memory; durability is delegated to the persistence engine. Creation
// and state-critical mutations persist forced, routine saves are debounced.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	prefix   string
	logger   *logging.Logger
	engine   *Engine

	// dirtyGen advances on every mutation; cleanGen records the last
	// generation successfully written. dirtyGen != cleanGen means dirty.
	dirtyGen uint64
	cleanGen uint64

	closed bool
}

// NewStore creates a session store backed by the ledger at opts.LedgerPath,
// loading any existing ledger into memory.
func NewStore(opts Options) (*Store, error) {
	if opts.LedgerPath == "" {
		return nil, lserrors.NewConfigurationError("storage.dir", "ledger path must not be empty")
	}
	if opts.IDPrefix == "" {
		opts.IDPrefix = "analysis"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	s := &Store{
		sessions: make(map[string]*Session),
		prefix:   opts.IDPrefix,
		logger:   logger,
	}
	s.engine = NewEngine(opts.LedgerPath, opts.Debounce, s, logger)

	ledger, err := s.engine.Load()
	if err != nil {
		s.engine.Close()
		return nil, err
	}
	for _, sess := range ledger.Sessions {
		s.sessions[sess.ID] = sess
	}
	if len(ledger.Sessions) > 0 {
		logger.Info("ledger loaded", "sessions", len(ledger.Sessions), "path", opts.LedgerPath)
	}

	return s, nil
}

// LedgerPath returns the canonical ledger file path
func (s *Store) LedgerPath() string {
	return s.engine.Path()
}

// Snapshot serializes the current session set for the persistence engine
func (s *Store) Snapshot() ([]byte, uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gen := s.dirtyGen
	if gen == s.cleanGen {
		return nil, gen, false, nil
	}

	ledger := Ledger{
		Sessions:    make([]*Session, 0, len(s.sessions)),
		LastUpdated: time.Now(),
		Version:     LedgerVersion,
	}
	for _, sess := range s.sessions {
		ledger.Sessions = append(ledger.Sessions, sess)
	}
	// Stable ordering keeps the on-disk ledger diffable
	sort.Slice(ledger.Sessions, func(i, j int) bool {
		a, b := ledger.Sessions[i], ledger.Sessions[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	data, err := json.MarshalIndent(&ledger, "", "  ")
	if err != nil {
		return nil, gen, true, err
	}
	return data, gen, true, nil
}

// MarkClean acknowledges a successful write of generation gen
func (s *Store) MarkClean(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.cleanGen {
		s.cleanGen = gen
	}
}

// Create allocates a new active session for task and forces an immediate
// persist: creation is the recovery anchor and must survive a crash the
// instant it exists. On persist failure the session is still returned and
// remains in the in-memory index alongside the error.
func (s *Store) Create(task Task, options map[string]string) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, lserrors.ErrStoreClosed
	}

	now := time.Now()
	sess := &Session{
		ID:           NewID(s.prefix),
		Task:         task,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if len(options) > 0 {
		opts := make(map[string]string, len(options))
		for k, v := range options {
			opts[k] = v
		}
		sess.Context = &Context{Options: opts}
	}

	s.sessions[sess.ID] = sess
	s.dirtyGen++
	clone := sess.Clone()
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.ID, "task_id", task.ID)

	if err := s.engine.Persist(true); err != nil {
		s.logger.Error("session create persist failed", "session_id", sess.ID, "error", err)
		return clone, err
	}
	return clone, nil
}

// Get looks up a session in memory. It never touches disk.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Restore looks up a session, reloading the ledger from disk if the id is
// not in memory. Sessions already in memory are authoritative and are not
// overwritten by the disk copy. On success the session is touched and a
// routine persist is scheduled.
func (s *Store) Restore(id string) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, lserrors.ErrStoreClosed
	}

	sess, ok := s.sessions[id]
	if !ok {
		ledger, err := s.engine.Load()
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		for _, loaded := range ledger.Sessions {
			if _, exists := s.sessions[loaded.ID]; !exists {
				s.sessions[loaded.ID] = loaded
			}
		}
		sess, ok = s.sessions[id]
	}
	if !ok {
		s.mu.Unlock()
		return nil, lserrors.NewNotFoundError("session", id)
	}

	sess.Touch()
	s.dirtyGen++
	clone := sess.Clone()
	s.mu.Unlock()

	s.logger.Debug("session restored", "session_id", id)
	s.engine.Persist(false)
	return clone, nil
}

// SaveState merges result entries into the session metadata and schedules a
// routine debounced persist. Used for best-effort progress autosaves.
func (s *Store) SaveState(id string, result map[string]string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return lserrors.NewNotFoundError("session", id)
	}

	if len(result) > 0 {
		if sess.Metadata == nil {
			sess.Metadata = make(map[string]string, len(result))
		}
		for k, v := range result {
			sess.Metadata[k] = v
		}
	}
	sess.Touch()
	s.dirtyGen++
	s.mu.Unlock()

	return s.engine.Persist(false)
}

// UpdateContext replaces the session's execution context and forces a
// persist. The context records the resolved mode, so losing it across a
// crash would let a resumed task silently switch strategy.
func (s *Store) UpdateContext(id string, ctx Context) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, lserrors.NewNotFoundError("session", id)
	}

	updated := ctx
	if sess.Context != nil && updated.Options == nil {
		updated.Options = sess.Context.Options
	}
	sess.Context = &updated
	sess.Touch()
	s.dirtyGen++
	clone := sess.Clone()
	s.mu.Unlock()

	if err := s.engine.Persist(true); err != nil {
		return clone, err
	}
	return clone, nil
}

// CreateCheckpoint appends an immutable named snapshot of progress to the
// session and forces a persist. Checkpoints are never rewritten.
func (s *Store) CreateCheckpoint(id string, state json.RawMessage, description string) (*Checkpoint, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, lserrors.NewNotFoundError("session", id)
	}

	cp := Checkpoint{
		ID:          newCheckpointID(len(sess.Checkpoints) + 1),
		Timestamp:   time.Now(),
		Description: description,
	}
	if state != nil {
		cp.State = make(json.RawMessage, len(state))
		copy(cp.State, state)
	}
	sess.Checkpoints = append(sess.Checkpoints, cp)
	sess.Touch()
	s.dirtyGen++
	s.mu.Unlock()

	s.logger.Debug("checkpoint created", "session_id", id, "checkpoint_id", cp.ID)

	if err := s.engine.Persist(true); err != nil {
		return &cp, err
	}
	return &cp, nil
}

// UpdateStatus transitions a session to status and forces a persist.
// Transitions out of a terminal state are permitted but logged: the state
// machine intends one-way transitions into terminal states, and a reversal
// usually indicates a caller bug.
func (s *Store) UpdateStatus(id string, status Status) error {
	if !status.Valid() {
		return lserrors.NewConfigurationError("status", "unknown session status").WithValue(string(status))
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return lserrors.NewNotFoundError("session", id)
	}

	prev := sess.Status
	sess.Status = status
	sess.Touch()
	s.dirtyGen++
	s.mu.Unlock()

	if prev.Terminal() && prev != status {
		s.logger.Warn("session left terminal status",
			"session_id", id, "from", string(prev), "to", string(status))
	}
	s.logger.Debug("session status updated", "session_id", id, "status", string(status))

	return s.engine.Persist(true)
}

// ActiveSessions returns all sessions with status active, newest first
func (s *Store) ActiveSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.Status == StatusActive {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// All returns every session in the store, newest first
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FindByTask returns the most recently active session for the given task id,
// or nil if the task has never been seen. Used for mode continuity on resume.
func (s *Store) FindByTask(taskID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Session
	for _, sess := range s.sessions {
		if sess.Task.ID != taskID {
			continue
		}
		if best == nil || sess.LastActiveAt.After(best.LastActiveAt) {
			best = sess
		}
	}
	return best.Clone()
}

// FindForcedMode returns the most recent session for taskID that recorded a
// forced execution mode, or nil. A freshly created session without a context
// never shadows an older one that pinned a mode.
func (s *Store) FindForcedMode(taskID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Session
	for _, sess := range s.sessions {
		if sess.Task.ID != taskID || sess.Context == nil {
			continue
		}
		if !sess.Context.Forced || sess.Context.Mode == "" {
			continue
		}
		if best == nil || sess.LastActiveAt.After(best.LastActiveAt) {
			best = sess
		}
	}
	return best.Clone()
}

// Stats summarizes the session population
func (s *Store) Stats() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		Total:    len(s.sessions),
		ByStatus: make(map[Status]int),
	}
	var oldest *Session
	for _, sess := range s.sessions {
		stats.ByStatus[sess.Status]++
		stats.Checkpoint += len(sess.Checkpoints)
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest != nil {
		stats.OldestID = oldest.ID
	}
	return stats
}

// Delete removes a session from the store and forces a persist reflecting
// the removal.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return lserrors.NewNotFoundError("session", id)
	}
	delete(s.sessions, id)
	s.dirtyGen++
	s.mu.Unlock()

	s.logger.Info("session deleted", "session_id", id)
	return s.engine.Persist(true)
}

// CleanupExpired transitions every active session idle longer than maxIdle
// to timeout with one forced persist covering the whole batch, and returns
// the count transitioned. The timeout transitions stay in memory even when
// the persist fails, so a later sweep or mutation re-flushes them.
func (s *Store) CleanupExpired(maxIdle time.Duration) (int, error) {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for _, sess := range s.sessions {
		if sess.Status == StatusActive && sess.IdleSince(now) > maxIdle {
			sess.Status = StatusTimeout
			sess.Touch()
			expired = append(expired, sess.ID)
		}
	}
	if len(expired) > 0 {
		s.dirtyGen++
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return 0, nil
	}

	for _, id := range expired {
		s.logger.Info("session timed out", "session_id", id, "max_idle", maxIdle.String())
	}
	return len(expired), s.engine.Persist(true)
}

// PruneTerminal deletes terminal sessions whose last activity is older than
// maxAge and returns the count removed. Unlike CleanupExpired this physically
// removes records from the ledger.
func (s *Store) PruneTerminal(maxAge time.Duration) (int, error) {
	now := time.Now()

	s.mu.Lock()
	var pruned []string
	for id, sess := range s.sessions {
		if sess.Status.Terminal() && sess.IdleSince(now) > maxAge {
			delete(s.sessions, id)
			pruned = append(pruned, id)
		}
	}
	if len(pruned) > 0 {
		s.dirtyGen++
	}
	s.mu.Unlock()

	if len(pruned) == 0 {
		return 0, nil
	}

	s.logger.Info("sessions pruned", "count", len(pruned))
	if err := s.engine.Persist(true); err != nil {
		return len(pruned), err
	}
	return len(pruned), nil
}

// ShutdownAllActive transitions every active session to cancelled with a
// single batched forced persist. Called on process teardown so the ledger
// never retains a session claiming to be active after a clean exit.
func (s *Store) ShutdownAllActive() (int, error) {
	s.mu.Lock()
	var cancelled int
	for _, sess := range s.sessions {
		if sess.Status == StatusActive {
			sess.Status = StatusCancelled
			sess.Touch()
			cancelled++
		}
	}
	if cancelled > 0 {
		s.dirtyGen++
	}
	s.mu.Unlock()

	if cancelled == 0 {
		return 0, nil
	}

	s.logger.Info("active sessions cancelled for shutdown", "count", cancelled)
	return cancelled, s.engine.Persist(true)
}

// Close flushes pending writes and stops the persistence engine
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.engine.Close()
}
