package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// LedgerVersion identifies the on-disk ledger format
const LedgerVersion = "1.0"

// Status represents the lifecycle state of a session
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal lifecycle state
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Task is the caller-owned descriptor of the work a session tracks
type Task struct {
	// ID identifies the logical task across retries and resumes
	ID string `json:"id"`
	// Title is a short human-readable label
	Title string `json:"title,omitempty"`
	// Prompt is the full task description handed to an executor
	Prompt string `json:"prompt,omitempty"`
	// WorkDir is the directory the task operates on
	WorkDir string `json:"workDir,omitempty"`
}

// Context records the execution decision and related state for a session
type Context struct {
	// Mode is the concrete execution mode resolved for this session
	Mode string `json:"mode,omitempty"`
	// ModeSource records which step of the resolution chain produced Mode
	ModeSource string `json:"modeSource,omitempty"`
	// Forced marks the mode as explicitly requested by the caller. A forced
	// mode is reused on resume so a retried task never switches strategy.
	Forced bool `json:"forced,omitempty"`
	// Complexity is the recommender's score for the task, if one was consulted
	Complexity float64 `json:"complexity,omitempty"`
	// SnapshotRef points to a codebase snapshot the session was built against
	SnapshotRef string `json:"snapshotRef,omitempty"`
	// Options carries free-form caller options
	Options map[string]string `json:"options,omitempty"`
}

// Checkpoint is an immutable named snapshot of session progress
type Checkpoint struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description"`
	State       json.RawMessage `json:"state,omitempty"`
}

// Session is the persisted unit of execution state for one task attempt
type Session struct {
	ID           string            `json:"id"`
	Task         Task              `json:"task"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActiveAt time.Time         `json:"lastActiveAt"`
	Context      *Context          `json:"context,omitempty"`
	Checkpoints  []Checkpoint      `json:"checkpoints,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Touch updates LastActiveAt to the current time
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleSince returns how long the session has been inactive
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActiveAt)
}

// Clone returns a deep copy of the session. Callers receive clones from the
// store so that external mutation cannot bypass the store's bookkeeping.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s

	if s.Context != nil {
		ctx := *s.Context
		if s.Context.Options != nil {
			ctx.Options = make(map[string]string, len(s.Context.Options))
			for k, v := range s.Context.Options {
				ctx.Options[k] = v
			}
		}
		clone.Context = &ctx
	}

	if s.Checkpoints != nil {
		clone.Checkpoints = make([]Checkpoint, len(s.Checkpoints))
		copy(clone.Checkpoints, s.Checkpoints)
		for i, cp := range s.Checkpoints {
			if cp.State != nil {
				state := make(json.RawMessage, len(cp.State))
				copy(state, cp.State)
				clone.Checkpoints[i].State = state
			}
		}
	}

	if s.Metadata != nil {
		clone.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// Ledger is the durable snapshot of the full session set
type Ledger struct {
	Sessions    []*Session `json:"sessions"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Version     string     `json:"version"`
}

// Statistics summarizes the session population by status
type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"byStatus"`
	Checkpoint int            `json:"checkpoints"`
	OldestID   string         `json:"oldestId,omitempty"`
}

// idPattern matches well-formed session IDs: <prefix>-<epochMillis>-<hex8>
var idPattern = regexp.MustCompile(`^[A-Za-z]+-\d+-[0-9a-f]{8}$`)

// ValidID reports whether id has the expected session ID shape
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// NewID generates a session ID of the form <prefix>-<epochMillis>-<hex8>.
// The random suffix comes from crypto/rand so concurrent creates in the same
// millisecond still produce distinct IDs.
func NewID(prefix string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken;
		// fall back to a time-derived suffix rather than panicking.
		nano := time.Now().UnixNano()
		buf[0] = byte(nano >> 24)
		buf[1] = byte(nano >> 16)
		buf[2] = byte(nano >> 8)
		buf[3] = byte(nano)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// newCheckpointID generates a checkpoint ID scoped to its ordinal position
func newCheckpointID(ordinal int) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		nano := time.Now().UnixNano()
		buf[0] = byte(nano >> 24)
		buf[1] = byte(nano >> 16)
		buf[2] = byte(nano >> 8)
		buf[3] = byte(nano)
	}
	return fmt.Sprintf("cp-%d-%s", ordinal, hex.EncodeToString(buf))
}
