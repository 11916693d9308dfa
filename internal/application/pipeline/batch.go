package pipeline

import (
	"container/heap"
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel Errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrShutdown is returned when a batch is submitted after Shutdown.
	ErrShutdown = stderrors.New("batch processor is shut down")

	// ErrGateOpen marks items rejected while the failure gate is open.
	ErrGateOpen = stderrors.New("failure gate is open")
)

// ─────────────────────────────────────────────────────────────────────────────
// Item Status
// ─────────────────────────────────────────────────────────────────────────────

// ItemStatus is the outcome classification of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processed without error
	ItemStatusFailed                      // all attempts returned an error
	ItemStatusTimeout                     // item or batch deadline expired
	ItemStatusCancelled                   // context cancelled before completion
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Results
// ─────────────────────────────────────────────────────────────────────────────

// ProcessFunc processes one item and returns its result.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// PrioritizedItem pairs an item with a scheduling priority. Higher priorities
// are dispatched first; ties dispatch in input order.
type PrioritizedItem[T any] struct {
	Item     T
	Priority int
}

// ItemResult is the outcome of one item. Index is the item's position in the
// input slice regardless of execution order.
type ItemResult[R any] struct {
	Index    int
	Result   R
	Err      error
	Status   ItemStatus
	Duration time.Duration
}

// BatchResult collects the outcomes of a whole batch in input order.
type BatchResult[R any] struct {
	Results   []*ItemResult[R]
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Total returns the number of items in the batch.
func (br *BatchResult[R]) Total() int { return len(br.Results) }

// Err joins the errors of every non-successful item, or returns nil when the
// whole batch succeeded.
func (br *BatchResult[R]) Err() error {
	var errs []error
	for _, r := range br.Results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", r.Index, r.Err))
		}
	}
	return stderrors.Join(errs...)
}

// Values returns the per-item results in input order. Slots of failed items
// hold the zero value; check Err first.
func (br *BatchResult[R]) Values() []R {
	out := make([]R, len(br.Results))
	for i, r := range br.Results {
		out[i] = r.Result
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Retry Policy
// ─────────────────────────────────────────────────────────────────────────────

// RetryPolicy governs re-attempts for failed items. An empty RetryableErrors
// list means every error is retryable.
type RetryPolicy struct {
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	Multiplier      float64
	RetryableErrors []error
}

func shouldRetry(err error, policy *RetryPolicy) bool {
	if policy == nil || err == nil {
		return false
	}
	if len(policy.RetryableErrors) == 0 {
		return true
	}
	for _, re := range policy.RetryableErrors {
		if stderrors.Is(err, re) {
			return true
		}
	}
	return false
}

// backoffDelay returns the pause before the attempt-th retry: exponential
// growth with ±25% jitter, capped at MaxBackoff.
func backoffDelay(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Failure Gate
// ─────────────────────────────────────────────────────────────────────────────

// failureGate fast-fails items after a run of consecutive failures, then
// closes again once the cooldown elapses. Two states only: closed (openUntil
// is zero) and open.
type failureGate struct {
	threshold int32
	cooldown  time.Duration
	logger    logging.Logger

	fails     atomic.Int32
	openUntil atomic.Int64 // unix nanos; 0 means closed
}

func newFailureGate(threshold int, cooldown time.Duration, logger logging.Logger) *failureGate {
	return &failureGate{
		threshold: int32(threshold),
		cooldown:  cooldown,
		logger:    logger,
	}
}

func (g *failureGate) allow() bool {
	if g == nil {
		return true
	}
	until := g.openUntil.Load()
	if until == 0 {
		return true
	}
	if time.Now().UnixNano() >= until {
		if g.openUntil.CompareAndSwap(until, 0) {
			g.fails.Store(0)
			g.logger.Info("failure gate closed after cooldown",
				logging.Duration("cooldown", g.cooldown))
		}
		return true
	}
	return false
}

func (g *failureGate) recordSuccess() {
	if g == nil {
		return
	}
	g.fails.Store(0)
}

func (g *failureGate) recordFailure() {
	if g == nil {
		return
	}
	fails := g.fails.Add(1)
	if fails >= g.threshold {
		if g.openUntil.CompareAndSwap(0, time.Now().Add(g.cooldown).UnixNano()) {
			g.logger.Warn("failure gate opened",
				logging.Int("consecutive_failures", int(fails)),
				logging.Duration("cooldown", g.cooldown))
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// BatchObserver receives a one-line summary after every processed batch.
// Implementations must be safe for concurrent use.
type BatchObserver interface {
	ObserveBatch(name string, succeeded, failed int, elapsed time.Duration)
}

type batchOptions struct {
	name          string
	concurrency   int
	itemTimeout   time.Duration
	batchTimeout  time.Duration
	retry         *RetryPolicy
	gateThreshold int
	gateCooldown  time.Duration
	logger        logging.Logger
	observer      BatchObserver
}

func defaultBatchOptions() batchOptions {
	return batchOptions{
		name:        "batch",
		concurrency: runtime.GOMAXPROCS(0),
		itemTimeout: 0, // no per-item deadline
	}
}

// BatchOption configures a Processor.
type BatchOption func(*batchOptions)

// WithName labels the processor in logs and observer calls.
func WithName(name string) BatchOption {
	return func(o *batchOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConcurrency bounds the number of items processed at once.
// Non-positive values keep the default of GOMAXPROCS.
func WithConcurrency(n int) BatchOption {
	return func(o *batchOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithItemTimeout sets a per-item deadline. Zero disables it.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(o *batchOptions) {
		if d > 0 {
			o.itemTimeout = d
		}
	}
}

// WithBatchTimeout sets a deadline for the whole batch. Zero disables it.
func WithBatchTimeout(d time.Duration) BatchOption {
	return func(o *batchOptions) {
		if d > 0 {
			o.batchTimeout = d
		}
	}
}

// WithRetry enables retries with exponential backoff starting at
// initialBackoff and capped at 16x.
func WithRetry(maxRetries int, initialBackoff time.Duration) BatchOption {
	return func(o *batchOptions) {
		if maxRetries > 0 {
			o.retry = &RetryPolicy{
				MaxRetries:     maxRetries,
				InitialBackoff: initialBackoff,
				MaxBackoff:     initialBackoff * 16,
				Multiplier:     2.0,
			}
		}
	}
}

// WithRetryPolicy installs a fully specified retry policy.
func WithRetryPolicy(policy *RetryPolicy) BatchOption {
	return func(o *batchOptions) {
		o.retry = policy
	}
}

// WithFailureGate fast-fails remaining items after threshold consecutive
// failures, re-admitting work once cooldown elapses.
func WithFailureGate(threshold int, cooldown time.Duration) BatchOption {
	return func(o *batchOptions) {
		if threshold > 0 && cooldown > 0 {
			o.gateThreshold = threshold
			o.gateCooldown = cooldown
		}
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(o *batchOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver injects a batch summary observer.
func WithObserver(ob BatchObserver) BatchOption {
	return func(o *batchOptions) {
		o.observer = ob
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Processor
// ─────────────────────────────────────────────────────────────────────────────

// Processor fans a slice of items out to a bounded set of goroutines and
// collects the results in input order. The zero items case, per-item and
// whole-batch deadlines, retries and a consecutive-failure gate are all
// handled here so callers only supply the per-item function.
type Processor[T, R any] struct {
	opts   batchOptions
	gate   *failureGate
	logger logging.Logger

	closed   atomic.Bool
	inflight sync.WaitGroup
}

// NewProcessor builds a Processor with the supplied options.
func NewProcessor[T, R any](opts ...BatchOption) *Processor[T, R] {
	o := defaultBatchOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNopLogger()
	}
	p := &Processor[T, R]{opts: o, logger: o.logger}
	if o.gateThreshold > 0 && o.gateCooldown > 0 {
		p.gate = newFailureGate(o.gateThreshold, o.gateCooldown, o.logger)
	}
	return p
}

// Process runs fn over every item with bounded concurrency. The returned
// BatchResult always covers all items; per-item failures are reported in the
// result, not as the error return.
func (p *Processor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("batch: process function must not be nil")
	}
	if p.closed.Load() {
		return nil, ErrShutdown
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	start := time.Now()
	batchCtx, cancel := p.batchContext(ctx)
	defer cancel()

	// Each goroutine writes only its own slot, so no result channel and no
	// re-sort is needed: the slice is in input order by construction.
	results := make([]*ItemResult[R], n)
	sem := make(chan struct{}, p.opts.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				results[idx] = &ItemResult[R]{
					Index:  idx,
					Err:    batchCtx.Err(),
					Status: statusForContextErr(batchCtx.Err()),
				}
				return
			}
			results[idx] = p.runItem(batchCtx, idx, item, fn)
		}(i, items[i])
	}
	wg.Wait()

	return p.finish(results, time.Since(start)), nil
}

// ProcessWithPriority is Process with an explicit dispatch order: higher
// priorities acquire a worker slot first. Results are still in input order.
func (p *Processor[T, R]) ProcessWithPriority(ctx context.Context, items []PrioritizedItem[T], fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("batch: process function must not be nil")
	}
	if p.closed.Load() {
		return nil, ErrShutdown
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	start := time.Now()
	batchCtx, cancel := p.batchContext(ctx)
	defer cancel()

	pq := make(itemHeap[T], n)
	for i, pi := range items {
		pq[i] = &heapEntry[T]{item: pi.Item, index: i, priority: pi.Priority}
	}
	heap.Init(&pq)

	results := make([]*ItemResult[R], n)
	sem := make(chan struct{}, p.opts.concurrency)

	var wg sync.WaitGroup

	// The dispatcher acquires the slot before spawning the worker so that the
	// highest-priority pending item is always the one that blocks for it.
dispatch:
	for pq.Len() > 0 {
		entry := heap.Pop(&pq).(*heapEntry[T])
		select {
		case sem <- struct{}{}:
		case <-batchCtx.Done():
			results[entry.index] = &ItemResult[R]{
				Index:  entry.index,
				Err:    batchCtx.Err(),
				Status: statusForContextErr(batchCtx.Err()),
			}
			for pq.Len() > 0 {
				rem := heap.Pop(&pq).(*heapEntry[T])
				results[rem.index] = &ItemResult[R]{
					Index:  rem.index,
					Err:    batchCtx.Err(),
					Status: statusForContextErr(batchCtx.Err()),
				}
			}
			break dispatch
		}

		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = p.runItem(batchCtx, idx, item, fn)
		}(entry.index, entry.item)
	}
	wg.Wait()

	return p.finish(results, time.Since(start)), nil
}

// Shutdown stops admission of new batches and waits for in-flight work until
// ctx expires.
func (p *Processor[T, R]) Shutdown(ctx context.Context) error {
	p.closed.Store(true)

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch: shutdown timed out: %w", ctx.Err())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-Item Execution
// ─────────────────────────────────────────────────────────────────────────────

func (p *Processor[T, R]) runItem(batchCtx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	start := time.Now()

	if !p.gate.allow() {
		return &ItemResult[R]{
			Index:    idx,
			Err:      ErrGateOpen,
			Status:   ItemStatusFailed,
			Duration: time.Since(start),
		}
	}

	attempts := 1
	if p.opts.retry != nil && p.opts.retry.MaxRetries > 0 {
		attempts += p.opts.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, p.opts.retry)
			if delay > 0 {
				select {
				case <-batchCtx.Done():
					return &ItemResult[R]{
						Index:    idx,
						Err:      batchCtx.Err(),
						Status:   statusForContextErr(batchCtx.Err()),
						Duration: time.Since(start),
					}
				case <-time.After(delay):
				}
			}
		}

		itemCtx, cancel := p.itemContext(batchCtx)
		result, err := fn(itemCtx, item)
		cancel()

		if err == nil {
			p.gate.recordSuccess()
			return &ItemResult[R]{
				Index:    idx,
				Result:   result,
				Status:   ItemStatusSuccess,
				Duration: time.Since(start),
			}
		}

		lastErr = err
		p.gate.recordFailure()

		if attempt < attempts-1 && shouldRetry(err, p.opts.retry) {
			continue
		}
		break
	}

	return &ItemResult[R]{
		Index:    idx,
		Err:      lastErr,
		Status:   statusForErr(batchCtx, lastErr),
		Duration: time.Since(start),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatch Heap (max-heap by priority, input order on ties)
// ─────────────────────────────────────────────────────────────────────────────

type heapEntry[T any] struct {
	item     T
	index    int
	priority int
}

type itemHeap[T any] []*heapEntry[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].index < h[j].index
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(*heapEntry[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (p *Processor[T, R]) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.batchTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.batchTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Processor[T, R]) itemContext(batchCtx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.itemTimeout > 0 {
		return context.WithTimeout(batchCtx, p.opts.itemTimeout)
	}
	return context.WithCancel(batchCtx)
}

func (p *Processor[T, R]) finish(results []*ItemResult[R], elapsed time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{Results: results, Elapsed: elapsed}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.Succeeded++
		} else {
			br.Failed++
		}
	}
	p.logger.Debug("batch processed",
		logging.String("batch", p.opts.name),
		logging.Int("items", br.Total()),
		logging.Int("failed", br.Failed),
		logging.Duration("elapsed", br.Elapsed))
	if p.opts.observer != nil {
		p.opts.observer.ObserveBatch(p.opts.name, br.Succeeded, br.Failed, br.Elapsed)
	}
	return br
}

func statusForContextErr(err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func statusForErr(batchCtx context.Context, err error) ItemStatus {
	switch {
	case err == nil:
		return ItemStatusSuccess
	case stderrors.Is(err, context.DeadlineExceeded):
		return ItemStatusTimeout
	case stderrors.Is(err, context.Canceled):
		return ItemStatusCancelled
	}
	switch batchCtx.Err() {
	case context.DeadlineExceeded:
		return ItemStatusTimeout
	case context.Canceled:
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}
