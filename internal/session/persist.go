package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
	"github.com/lodestar-dev/lodestar/internal/logging"
)

// LedgerFileName is the canonical ledger file name within the state directory
const LedgerFileName = "sessions.json"

// Source provides ledger snapshots to the persistence engine. Snapshot
// returns the serialized ledger, a generation counter, and whether any
// mutation happened since the last MarkClean. MarkClean acknowledges a
// successful write of the given generation; later mutations keep the
// source dirty.
type Source interface {
	Snapshot() (data []byte, gen uint64, dirty bool, err error)
	MarkClean(gen uint64)
}

// persistRequest is one unit of work for the writer goroutine. Forced
// requests carry a reply channel so the caller learns the write outcome.
type persistRequest struct {
	forced bool
	reply  chan error
}

// Engine serializes all ledger writes through a single dedicated writer
// goroutine. Requests are processed in FIFO order: forced writes happen
// immediately, routine writes are debounced so a burst of updates within
// the minimum interval coalesces into one write. The canonical file is
// replaced atomically (temp sibling, fsync, rename) so a crash mid-write
// never leaves a half-written ledger.
type Engine struct {
	path     string
	debounce time.Duration
	source   Source
	logger   *logging.Logger

	requests chan persistRequest
	stop     chan struct{}
	stopped  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewEngine creates a persistence engine for the ledger at path and starts
// its writer goroutine. debounce is the minimum interval between routine
// writes; zero disables debouncing.
func NewEngine(path string, debounce time.Duration, source Source, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	e := &Engine{
		path:     path,
		debounce: debounce,
		source:   source,
		logger:   logger,
		requests: make(chan persistRequest, 64),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Path returns the canonical ledger file path
func (e *Engine) Path() string {
	return e.path
}

// Persist requests a write of the current ledger snapshot. A forced persist
// blocks until the write completes and returns its error; a routine persist
// enqueues a debounced write and returns nil immediately, with any failure
// logged by the writer goroutine.
func (e *Engine) Persist(forced bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return lserrors.NewPersistenceError("persist", lserrors.ErrStoreClosed)
	}

	if forced {
		req := persistRequest{forced: true, reply: make(chan error, 1)}
		e.requests <- req
		e.mu.Unlock()
		return <-req.reply
	}

	// Routine writes are fire-and-forget. A full queue means a write burst
	// is already pending, and this update will ride along with it.
	select {
	case e.requests <- persistRequest{}:
	default:
	}
	e.mu.Unlock()
	return nil
}

// Close flushes any pending debounced write and stops the writer goroutine.
// Safe to call once; subsequent Persist calls fail with a store-closed error.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stop)
	<-e.stopped
	return nil
}

// run is the dedicated writer goroutine. All file writes happen here, so
// ledger writes are totally ordered and a debounce reschedule can never
// starve a forced write.
func (e *Engine) run() {
	defer close(e.stopped)

	var (
		lastWrite time.Time
		timer     *time.Timer
		timerC    <-chan time.Time
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case req := <-e.requests:
			if req.forced {
				err := e.write()
				lastWrite = time.Now()
				// A forced write covers anything a pending routine
				// write would have flushed.
				stopTimer()
				req.reply <- err
				continue
			}

			if e.debounce <= 0 || time.Since(lastWrite) >= e.debounce {
				if err := e.write(); err != nil {
					e.logger.Warn("background persist failed", "error", err)
				}
				lastWrite = time.Now()
				continue
			}

			// Within the debounce window: schedule one deferred write if
			// none is pending, otherwise coalesce into it.
			if timerC == nil {
				timer = time.NewTimer(e.debounce - time.Since(lastWrite))
				timerC = timer.C
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := e.write(); err != nil {
				e.logger.Warn("background persist failed", "error", err)
			}
			lastWrite = time.Now()

		case <-e.stop:
			stopTimer()
			// Final flush so a clean shutdown never loses a coalesced
			// update.
			err := e.write()
			if err != nil {
				e.logger.Warn("final persist on close failed", "error", err)
			}
			// Requests enqueued before Close flipped closed may still sit
			// in the queue; the final flush covers their data, but forced
			// callers are blocked on a reply and must get one.
			for {
				select {
				case req := <-e.requests:
					if req.forced {
						req.reply <- err
					}
				default:
					return
				}
			}
		}
	}
}

// write serializes the current snapshot and atomically replaces the ledger
// file. A clean snapshot is a no-op.
func (e *Engine) write() error {
	data, gen, dirty, err := e.source.Snapshot()
	if err != nil {
		return lserrors.NewPersistenceError("serialize", err)
	}
	if !dirty {
		return nil
	}

	if err := atomicWriteFile(e.path, data); err != nil {
		return lserrors.NewPersistenceError("write", err).WithPath(e.path)
	}

	e.source.MarkClean(gen)
	e.logger.Debug("ledger persisted", "path", e.path, "bytes", len(data))
	return nil
}

// Load reads the ledger from disk. A missing file yields an empty ledger.
// A version mismatch is logged but tolerated; a file that fails to parse
// is a persistence error carrying the corruption sentinel.
func (e *Engine) Load() (*Ledger, error) {
	ledger, err := ReadLedger(e.path)
	if err != nil {
		return nil, err
	}
	if ledger.Version != LedgerVersion {
		e.logger.Warn("ledger version mismatch, loading anyway",
			"found", ledger.Version, "expected", LedgerVersion)
	}
	return ledger, nil
}

// ReadLedger reads and parses a ledger file without going through a store.
// Used by read-only viewers. A missing file yields an empty ledger.
func ReadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Ledger{Version: LedgerVersion}, nil
	}
	if err != nil {
		return nil, lserrors.NewPersistenceError("read", err).WithPath(path)
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, lserrors.NewPersistenceError("parse ledger",
			lserrors.Join(lserrors.ErrLedgerCorrupted, err)).WithPath(path)
	}
	return &ledger, nil
}

// atomicWriteFile writes data to a temporary sibling file, fsyncs it, and
// renames it over path. Readers observe either the old content or the new
// content, never a partial write.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
