package worker

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/screa/create3-salt-miner/internal/crypto"
	"github.com/screa/create3-salt-miner/internal/pattern"
	"github.com/screa/create3-salt-miner/internal/salt"
	"github.com/screa/create3-salt-miner/pkg/types"
)

// FlushInterval is how many attempts a worker accumulates locally before adding
// them to the shared counter. Must be a power of two.
const FlushInterval = 1024

// Unbounded is the budget of a worker in a search without an attempt limit
const Unbounded = math.MaxUint64

// Shared holds the only state workers of one run share. All fields are accessed
// atomically; nothing on the hot path takes a lock.
type Shared struct {
	Stop     atomic.Bool
	Result   atomic.Pointer[types.SearchResult]
	Attempts atomic.Uint64
	Start    time.Time
}

// NewShared returns coordination state for a run starting now
func NewShared() *Shared {
	return &Shared{Start: time.Now()}
}

// Config contains configuration for an individual worker
type Config struct {
	Deriver *crypto.Deriver // owned by the worker
	Matcher *pattern.Matcher
	Stream  salt.Stream // owned by the worker
	Budget  uint64      // local attempt limit, Unbounded for none
}

// Worker runs derive-and-match attempts over its own salt stream
type Worker struct {
	id     int
	config Config
	shared *Shared
	state  atomic.Int32

	attempts uint64
	flushed  uint64

	// Pre-allocated buffers for the hot loop
	salt [32]byte
	addr common.Address
}

// NewWorker creates a new worker instance
func NewWorker(id int, config Config, shared *Shared) *Worker {
	return &Worker{
		id:     id,
		config: config,
		shared: shared,
	}
}

// ID returns the worker index
func (w *Worker) ID() int { return w.id }

// State returns the current worker state. It is safe to call from any goroutine.
func (w *Worker) State() types.WorkerState {
	return types.WorkerState(w.state.Load())
}

// Attempts returns the number of attempts this worker made. Only meaningful after Run returns.
func (w *Worker) Attempts() uint64 { return w.attempts }

// Run searches until the worker finds a match, exhausts its budget or observes the
// stop flag, and returns the terminal state.
func (w *Worker) Run() types.WorkerState {
	defer w.flush()

	for w.attempts < w.config.Budget {
		if w.shared.Stop.Load() {
			return w.finish(types.WorkerStopped)
		}

		w.config.Stream.Next(&w.salt)
		w.config.Deriver.DeriveInto(&w.salt, &w.addr)
		w.attempts++

		if w.config.Matcher.Match(w.addr) {
			return w.publish()
		}
		if w.attempts&(FlushInterval-1) == 0 {
			w.flush()
		}
	}
	return w.finish(types.WorkerExhausted)
}

// publish tries to claim the result slot. Only the first worker to get there wins;
// the others drop their match and stop.
func (w *Worker) publish() types.WorkerState {
	result := &types.SearchResult{
		Salt:    types.Salt(w.salt),
		Address: w.addr,
		Elapsed: time.Since(w.shared.Start),
	}
	if !w.shared.Result.CompareAndSwap(nil, result) {
		return w.finish(types.WorkerStopped)
	}
	w.shared.Stop.Store(true)
	return w.finish(types.WorkerFound)
}

func (w *Worker) finish(state types.WorkerState) types.WorkerState {
	w.state.Store(int32(state))
	return state
}

// flush adds attempts made since the last flush to the shared counter
func (w *Worker) flush() {
	if n := w.attempts - w.flushed; n > 0 {
		w.shared.Attempts.Add(n)
		w.flushed = w.attempts
	}
}

// Share splits a total attempt budget across workers: every worker gets total/workers
// and the first total%workers workers get one more. A zero total means unbounded.
func Share(total uint64, workers, index int) uint64 {
	if total == 0 {
		return Unbounded
	}
	n := uint64(workers)
	share := total / n
	if uint64(index) < total%n {
		share++
	}
	return share
}
