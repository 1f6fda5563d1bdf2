// Package workpool provides the parallel-for-over-a-range primitive shared
// by the drift estimator, the gating acceptance-band walk, and the offset
// search. It dispatches chunks of an integer range to a fixed pool of
// goroutines and joins their results, either preserving submission order
// (Map) or reducing to a single winner (Best).
package workpool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when submitting work to a closed Pool.
	ErrClosed = errors.New("workpool: pool closed")
	// ErrCallbackNil is returned when the provided callback is nil.
	ErrCallbackNil = errors.New("workpool: callback cannot be nil")
	// ErrNotInitialized is returned when Execute is called on a Pool that
	// was not built by New.
	ErrNotInitialized = errors.New("workpool: not initialized")
)

// Task is the unit of work dispatched to a chunk [start, end) of the range.
type Task func(start, end int) error

// ChunkSizer controls how many indices belong to a chunk for a given workload.
type ChunkSizer func(total, workers int) int

// Option configures a Pool when it is built by New.
type Option func(*config)

type config struct {
	workers int
	sizer   ChunkSizer
}

// WithWorkers overrides the worker count used by the pool.
func WithWorkers(workers int) Option {
	return func(cfg *config) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithChunkSizer provides a custom chunk sizing strategy.
func WithChunkSizer(sizer ChunkSizer) Option {
	return func(cfg *config) {
		if sizer != nil {
			cfg.sizer = sizer
		}
	}
}

// Pool coordinates chunked parallel execution of Tasks over an integer
// range, with results collected by the caller from within each Task.
// A Pool must not be copied after New.
type Pool struct {
	workers int
	sizer   ChunkSizer
	jobs    chan *job
	stop    chan struct{}
	wg      sync.WaitGroup
	pool    sync.Pool
	closed  atomic.Bool
	ready   atomic.Bool
}

type job struct {
	start, end int
	state      *execState
}

type execState struct {
	cb      Task
	wg      sync.WaitGroup
	failed  atomic.Bool
	err     error
	errOnce sync.Once
}

func (s *execState) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.failed.Store(true)
		s.err = err
	})
}

// New creates and initializes a Pool. Close must be called to release
// its goroutines once the pool is no longer needed.
func New(opts ...Option) *Pool {
	cfg := config{workers: runtime.GOMAXPROCS(0), sizer: defaultChunkSizer}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.sizer == nil {
		cfg.sizer = defaultChunkSizer
	}

	p := &Pool{
		workers: cfg.workers,
		sizer:   cfg.sizer,
		jobs:    make(chan *job, cfg.workers),
		stop:    make(chan struct{}),
		pool:    sync.Pool{New: func() any { return &job{} }},
	}
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	p.ready.Store(true)
	return p
}

// Execute splits [0, total) into chunks and runs fn over each chunk on the
// pool's workers, blocking until every chunk completes or one returns an
// error. The first error observed wins; later errors are discarded.
func (p *Pool) Execute(total int, fn Task) error {
	if fn == nil {
		return ErrCallbackNil
	}
	if total <= 0 {
		return nil
	}
	if !p.ready.Load() {
		return ErrNotInitialized
	}
	if p.closed.Load() {
		return ErrClosed
	}

	state := &execState{cb: fn}
	chunk := p.chunkSize(total)

	for start := 0; start < total; start += chunk {
		end := start + chunk
		if end > total {
			end = total
		}
		state.wg.Add(1)
		j := p.pool.Get().(*job)
		j.start, j.end, j.state = start, end, state
		select {
		case <-p.stop:
			state.wg.Done()
			state.wg.Wait()
			return ErrClosed
		case p.jobs <- j:
		}
	}

	state.wg.Wait()
	if state.err != nil {
		return state.err
	}
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close shuts the pool down, waiting for in-flight chunks to finish.
func (p *Pool) Close() {
	if p == nil || !p.ready.Load() {
		return
	}
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case j := <-p.jobs:
			if j == nil {
				continue
			}
			state := j.state
			if !state.failed.Load() {
				if err := state.cb(j.start, j.end); err != nil {
					state.setErr(err)
				}
			}
			state.wg.Done()
			j.start, j.end, j.state = 0, 0, nil
			p.pool.Put(j)
		}
	}
}

func (p *Pool) chunkSize(total int) int {
	size := p.sizer(total, p.workers)
	if size <= 0 {
		return 1
	}
	return size
}

func defaultChunkSizer(total, workers int) int {
	if total <= 0 {
		return 0
	}
	if workers <= 0 {
		workers = 1
	}
	size := (total + workers - 1) / workers
	if size <= 0 {
		return 1
	}
	return size
}

// Map runs fn(i) for every i in [0, n) on the pool, in parallel, and
// returns the results indexed by i — submission order is preserved
// regardless of which worker finishes first (§5: "results are collected
// in sub-window order").
func Map[T any](p *Pool, n int, fn func(i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	err := p.Execute(n, func(start, end int) error {
		for i := start; i < end; i++ {
			v, err := fn(i)
			if err != nil {
				return err
			}
			out[i] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Candidate is one scored item considered by Best.
type Candidate[T any] struct {
	Index int
	Value T
	Score float64
}

// Best runs fn(i) for every i in [0, n), each producing a score, and
// reduces to the candidate with the highest score. Ties are broken by the
// smallest index, independent of goroutine scheduling order (§4.6:
// "ties are broken by smallest offset").
func Best[T any](p *Pool, n int, fn func(i int) (T, float64)) (Candidate[T], bool) {
	var (
		mu      sync.Mutex
		best    Candidate[T]
		haveOne bool
	)
	_ = p.Execute(n, func(start, end int) error {
		var (
			localBest    Candidate[T]
			localHaveOne bool
		)
		for i := start; i < end; i++ {
			v, score := fn(i)
			if isBetter(score, i, localBest.Score, localBest.Index, localHaveOne) {
				localBest = Candidate[T]{Index: i, Value: v, Score: score}
				localHaveOne = true
			}
		}
		if !localHaveOne {
			return nil
		}
		mu.Lock()
		if isBetter(localBest.Score, localBest.Index, best.Score, best.Index, haveOne) {
			best = localBest
			haveOne = true
		}
		mu.Unlock()
		return nil
	})
	return best, haveOne
}

// isBetter reports whether (score, index) should replace (curScore,
// curIndex) as the running best: strictly higher score wins; on a tie the
// smaller index wins; NaN never beats anything (§4.6: "NaN as not highest").
func isBetter(score float64, index int, curScore float64, curIndex int, haveCur bool) bool {
	if score != score { // NaN
		return false
	}
	if !haveCur {
		return true
	}
	if score > curScore {
		return true
	}
	if score == curScore && index < curIndex {
		return true
	}
	return false
}
