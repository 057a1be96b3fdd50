package miner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/screa/create3-salt-miner/internal/crypto"
	"github.com/screa/create3-salt-miner/internal/logger"
	"github.com/screa/create3-salt-miner/internal/pattern"
	"github.com/screa/create3-salt-miner/internal/salt"
	"github.com/screa/create3-salt-miner/pkg/types"
	"github.com/screa/create3-salt-miner/pkg/worker"
)

// DefaultProgressInterval bounds how often progress events are emitted
const DefaultProgressInterval = 250 * time.Millisecond

// ErrAlreadyRun is returned when Search is called twice on the same Miner
var ErrAlreadyRun = errors.New("miner: search already run")

// ProgressFunc receives progress snapshots from the reporter goroutine.
// It is never called from a worker's hot loop.
type ProgressFunc func(types.Progress)

// Option configures a Miner
type Option func(*Miner)

// WithProgress registers a progress callback. It is ignored for silent searches.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Miner) { m.onProgress = fn }
}

// WithSeed fixes the run seed used by counter salt streams
func WithSeed(seed [salt.SeedLen]byte) Option {
	return func(m *Miner) { m.seed = &seed }
}

// Miner coordinates the workers of a single search
type Miner struct {
	config     types.SearchConfig
	logger     *logger.Logger
	matcher    *pattern.Matcher
	workers    int
	onProgress ProgressFunc
	seed       *[salt.SeedLen]byte

	shared    *worker.Shared
	ran       atomic.Bool
	cancelled atomic.Bool
}

// NewMiner creates a new miner instance. cfg is expected to come from the config
// layer; only the pattern and salt strategy are validated here.
func NewMiner(cfg types.SearchConfig, log *logger.Logger, opts ...Option) (*Miner, error) {
	matcher, err := pattern.Compile(cfg.Pattern)
	if err != nil {
		return nil, err
	}
	if _, err := salt.ParseStrategy(string(cfg.SaltStrategy)); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if log == nil {
		log = logger.Nop()
	}

	m := &Miner{
		config:  cfg,
		logger:  log.Named("miner"),
		matcher: matcher,
		workers: WorkerCount(cfg),
		shared:  worker.NewShared(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WorkerCount is 1 for sequential searches, otherwise the configured override or
// one worker per logical CPU.
func WorkerCount(cfg types.SearchConfig) int {
	if !cfg.Parallel {
		return 1
	}
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

// Workers returns the number of workers the search runs with
func (m *Miner) Workers() int { return m.workers }

// Matcher returns the compiled pattern
func (m *Miner) Matcher() *pattern.Matcher { return m.matcher }

// Search runs the search to completion. The returned Outcome is Found, Exhausted
// or Cancelled; the error is reserved for misuse and setup failures.
// Cancelling ctx has the same effect as Stop.
func (m *Miner) Search(ctx context.Context) (*types.Outcome, error) {
	if !m.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	if ctx.Err() != nil {
		m.cancelled.Store(true)
	}
	if m.cancelled.Load() {
		m.logger.Infow("search cancelled before start")
		return &types.Outcome{Status: types.StatusCancelled, Workers: m.workers}, nil
	}

	workers, err := m.spawnWorkers()
	if err != nil {
		return nil, err
	}

	stopOnCancel := context.AfterFunc(ctx, m.Stop)
	defer stopOnCancel()

	m.logger.Infow("search started",
		"workers", m.workers,
		"pattern", m.matcher.String(),
		"expected_attempts", m.matcher.Difficulty(),
		"max_attempts", m.config.MaxAttempts,
		"salt_strategy", m.config.SaltStrategy,
	)

	m.shared.Start = time.Now()
	start := m.shared.Start

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			state := w.Run()
			m.logger.Debugw("worker finished", "worker", w.ID(), "state", state, "attempts", w.Attempts())
		}(w)
	}

	var reporterDone chan struct{}
	done := make(chan struct{})
	if m.reportsProgress() {
		reporterDone = make(chan struct{})
		go m.periodicReporter(done, reporterDone, start)
	}

	wg.Wait()
	close(done)
	if reporterDone != nil {
		<-reporterDone
	}

	outcome := m.outcome(time.Since(start))
	if m.reportsProgress() {
		m.onProgress(types.NewProgress(outcome.Attempts, outcome.Elapsed))
	}
	m.logger.Infow("search finished",
		"status", outcome.Status,
		"attempts", outcome.Attempts,
		"elapsed", outcome.Elapsed,
	)
	return outcome, nil
}

// Stop asks all workers to stop. The search then ends Cancelled unless a match was
// already published. Safe to call from any goroutine, before or during Search.
func (m *Miner) Stop() {
	m.cancelled.Store(true)
	m.shared.Stop.Store(true)
}

// Attempts returns the attempts reported by workers so far. Workers flush their
// local counters periodically, so the value lags slightly until the search ends.
func (m *Miner) Attempts() uint64 {
	return m.shared.Attempts.Load()
}

// Result returns the published match, if any
func (m *Miner) Result() *types.SearchResult {
	return m.shared.Result.Load()
}

func (m *Miner) spawnWorkers() ([]*worker.Worker, error) {
	seed := salt.NewSeed()
	if m.seed != nil {
		seed = *m.seed
	}

	workers := make([]*worker.Worker, m.workers)
	for i := range workers {
		stream, err := salt.New(m.config.SaltStrategy, seed, i)
		if err != nil {
			return nil, err
		}
		workers[i] = worker.NewWorker(i, worker.Config{
			Deriver: m.newDeriver(),
			Matcher: m.matcher,
			Stream:  stream,
			Budget:  worker.Share(m.config.MaxAttempts, m.workers, i),
		}, m.shared)
	}
	return workers, nil
}

func (m *Miner) newDeriver() *crypto.Deriver {
	if m.config.Factory != nil {
		return crypto.NewFactoryDeriver(*m.config.Factory, m.config.Creator)
	}
	return crypto.NewDeriver(m.config.Creator)
}

func (m *Miner) outcome(elapsed time.Duration) *types.Outcome {
	o := &types.Outcome{
		Attempts: m.shared.Attempts.Load(),
		Elapsed:  elapsed,
		Workers:  m.workers,
	}
	switch result := m.shared.Result.Load(); {
	case result != nil:
		found := *result
		found.Attempts = o.Attempts
		o.Status = types.StatusFound
		o.Result = &found
	case m.cancelled.Load():
		o.Status = types.StatusCancelled
	default:
		o.Status = types.StatusExhausted
	}
	return o
}

func (m *Miner) reportsProgress() bool {
	return !m.config.Silent && m.onProgress != nil
}

// periodicReporter emits progress at the configured interval until done is closed
func (m *Miner) periodicReporter(done <-chan struct{}, finished chan<- struct{}, start time.Time) {
	defer close(finished)
	ticker := time.NewTicker(m.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.onProgress(types.NewProgress(m.shared.Attempts.Load(), now.Sub(start)))
		case <-done:
			return
		}
	}
}
