// Package archive records completed matches to durable storage without
// blocking gameplay. Live room state is never read back from the archive.
package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Result is one finished match as written to the archive.
type Result struct {
	RoomID       string
	MatchNumber  int
	GridSize     int
	WinCondition int
	PlayerX      string
	PlayerO      string
	WinnerSymbol string
	WinnerName   string
	IsDraw       bool
	Moves        int
	FinishedAt   time.Time
}

// Store persists results.
type Store interface {
	SaveResult(ctx context.Context, r Result) error
}

// Recorder accepts finished matches. Implementations must not block the
// caller on I/O.
type Recorder interface {
	Record(r Result)
}

// Nop discards every result. It is used when the archive is disabled.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Result) {}

// ErrStopped is returned by Start once the recorder has been stopped.
var ErrStopped = errors.New("archive recorder stopped")

// AsyncRecorder queues results in memory and writes them from a single
// worker goroutine. When the queue is full the result is dropped and a
// warning is logged.
type AsyncRecorder struct {
	store        Store
	queue        chan Result
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	started sync.Once
}

// NewAsyncRecorder creates an AsyncRecorder.
//
// Precondition: store and logger must be non-nil.
// Postcondition: queueSize and writeTimeout fall back to 256 and 5s when not
// positive.
func NewAsyncRecorder(store Store, queueSize int, writeTimeout time.Duration, logger *zap.Logger) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &AsyncRecorder{
		store:        store,
		queue:        make(chan Result, queueSize),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Record enqueues r without blocking.
func (a *AsyncRecorder) Record(r Result) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.stopped {
		a.logger.Warn("archive stopped, dropping match result",
			observability.Room(r.RoomID),
			zap.Int("match_number", r.MatchNumber),
		)
		return
	}
	select {
	case a.queue <- r:
	default:
		a.logger.Warn("archive queue full, dropping match result",
			observability.Room(r.RoomID),
			zap.Int("match_number", r.MatchNumber),
			zap.Int("queue_size", cap(a.queue)),
		)
	}
}

// Start runs the write loop until Stop is called and the queue drains.
//
// Postcondition: Returns nil after a clean drain, or ErrStopped when called
// more than once.
func (a *AsyncRecorder) Start() error {
	first := false
	a.started.Do(func() { first = true })
	if !first {
		return ErrStopped
	}
	defer close(a.done)

	for r := range a.queue {
		a.write(r)
	}
	return nil
}

func (a *AsyncRecorder) write(r Result) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	start := time.Now()
	if err := a.store.SaveResult(ctx, r); err != nil {
		a.logger.Warn("archiving match result",
			observability.Room(r.RoomID),
			zap.Int("match_number", r.MatchNumber),
			zap.Error(err),
		)
		return
	}
	a.logger.Debug("match result archived",
		observability.Room(r.RoomID),
		zap.Int("match_number", r.MatchNumber),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Stop closes the queue and waits for queued results to be written. Results
// recorded after Stop are dropped.
//
// Postcondition: Safe to call more than once. When Start was never called
// the queue is drained on the caller's goroutine.
func (a *AsyncRecorder) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	neverStarted := false
	a.started.Do(func() { neverStarted = true })
	if neverStarted {
		for r := range a.queue {
			a.write(r)
		}
		close(a.done)
		return
	}
	<-a.done
}
