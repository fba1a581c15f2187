package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/clients/llm"
	"github.com/callsift/callsift/internal/clients/transcriptapi"
	"github.com/callsift/callsift/internal/events"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/internal/modules/transcripts"
)

// Cache is the slice of the chunked store the runner needs
type Cache interface {
	Get(key string) (json.RawMessage, error)
	Put(key string, payload json.RawMessage) error
	Exists(key string) bool
}

// TranscriptFetcher fetches one transcript from the remote source
type TranscriptFetcher interface {
	Fetch(ctx context.Context, ticker string, year, quarter int) (*transcriptapi.Transcript, error)
}

// Summarizer generates a summary for one transcript
type Summarizer interface {
	Summarize(ctx context.Context, req llm.SummarizeRequest) (string, error)
}

// Catalog is the relational side: transcript rows and summaries
type Catalog interface {
	RecordFetched(t *transcriptapi.Transcript) error
	SaveSummary(cacheKey, summary string) error
	ListUnsummarized(limit int) ([]transcripts.Record, error)
}

// RunnerConfig wires a Runner
type RunnerConfig struct {
	Store      *Store
	Cache      Cache
	Fetcher    TranscriptFetcher
	Summarizer Summarizer
	Catalog    Catalog
	Events     *events.Manager
	Log        zerolog.Logger

	Concurrency int           // parallel executors per job (default 3)
	MaxAttempts int           // per-item attempts for transient failures (default 3)
	ItemTimeout time.Duration // per remote call (default 60s)
	BaseBackoff time.Duration // first retry delay, doubled per attempt (default 1s)
	Lookback    int           // fallback quarter search window (default 4)
	Now         func() time.Time
}

// Runner drives one job at a time from running to a terminal state with a
// bounded pool of executors. Progress appends and snapshot persistence go
// through a single writer so snapshots are never corrupted by interleaved
// workers.
type Runner struct {
	store      *Store
	cache      Cache
	fetcher    TranscriptFetcher
	summarizer Summarizer
	catalog    Catalog
	events     *events.Manager
	log        zerolog.Logger

	concurrency int
	maxAttempts int
	itemTimeout time.Duration
	baseBackoff time.Duration
	lookback    int
	now         func() time.Time
}

// NewRunner creates a runner with defaults applied
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		store:       cfg.Store,
		cache:       cfg.Cache,
		fetcher:     cfg.Fetcher,
		summarizer:  cfg.Summarizer,
		catalog:     cfg.Catalog,
		events:      cfg.Events,
		log:         cfg.Log.With().Str("component", "job_runner").Logger(),
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		itemTimeout: cfg.ItemTimeout,
		baseBackoff: cfg.BaseBackoff,
		lookback:    cfg.Lookback,
		now:         cfg.Now,
	}

	if r.concurrency < 1 {
		r.concurrency = 3
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 3
	}
	if r.itemTimeout <= 0 {
		r.itemTimeout = 60 * time.Second
	}
	if r.baseBackoff <= 0 {
		r.baseBackoff = time.Second
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Run drives a job to a terminal state (or to paused). A job found in
// running state is resumed: remaining work is recomputed from the
// persisted progress lists, so resumption after a process restart is
// identical to resumption after a pause.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.Get(jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case StatusPending:
		if job, err = r.store.Transition(jobID, EventStart); err != nil {
			return err
		}
		r.emit(events.JobStarted, job)
	case StatusRunning:
		r.log.Info().Str("job", jobID).Int("done", job.Progress.Current).Msg("Resuming job")
	default:
		return &InvalidTransitionError{From: job.Status, Event: EventStart}
	}

	items, err := r.itemsFor(job)
	if err != nil {
		_, _ = r.store.Fail(jobID, fmt.Sprintf("failed to resolve work items: %v", err))
		r.emit(events.JobFailed, job)
		return err
	}

	done := job.Progress.DoneKeys()
	var pending []WorkItem
	for _, it := range items {
		if !done[it.Key()] {
			pending = append(pending, it)
		}
	}

	tr := &tracker{store: r.store, job: job, now: r.now}
	if err := tr.setTotal(job.Progress.Current + len(pending)); err != nil {
		_, _ = r.store.Fail(jobID, err.Error())
		return err
	}

	fatal := &fatalFlag{}
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	var sig Event

dispatch:
	for _, it := range pending {
		if fatal.get() != nil || ctx.Err() != nil {
			break
		}

		// cooperative pause/cancel: checked before every dispatch
		sig, err = r.store.Signal(jobID)
		if err != nil {
			fatal.set(&PersistenceError{Op: "read signal", Err: err})
			break
		}
		if sig == EventPause || sig == EventCancel {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		tr.setCurrent(it.Ticker)
		wg.Add(1)
		go func(it WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			out, fatalErr := r.execute(ctx, job, it)
			if fatalErr != nil {
				fatal.set(fatalErr)
				return
			}
			if out.kind == outcomeNone {
				return // aborted by shutdown; stays pending for resume
			}
			if err := tr.record(it.Key(), out); err != nil {
				fatal.set(err)
			}
		}(it)
	}

	// let in-flight items drain and record their outcomes
	wg.Wait()

	if err := fatal.get(); err != nil {
		if _, ferr := r.store.Fail(jobID, err.Error()); ferr != nil {
			r.log.Error().Err(ferr).Str("job", jobID).Msg("Failed to mark job failed")
		}
		r.emit(events.JobFailed, job)
		return err
	}

	if ctx.Err() != nil {
		// process shutdown: leave the job running so the next start resumes it
		r.log.Warn().Str("job", jobID).Msg("Run interrupted by shutdown, job left resumable")
		return ctx.Err()
	}

	// a signal may also have arrived while the last items drained
	if sig != EventPause && sig != EventCancel {
		if sig, err = r.store.Signal(jobID); err != nil {
			return err
		}
	}

	switch sig {
	case EventPause:
		if _, err := r.store.Transition(jobID, EventPause); err != nil {
			return err
		}
		r.emit(events.JobPaused, job)
		return nil
	case EventCancel:
		if _, err := r.store.Transition(jobID, EventCancel); err != nil {
			return err
		}
		r.emit(events.JobCancelled, job)
		return nil
	}

	if _, err := r.store.Transition(jobID, EventComplete); err != nil {
		return err
	}
	r.emit(events.JobCompleted, job)
	return nil
}

// itemsFor picks the item source for the job type
func (r *Runner) itemsFor(job *Job) ([]WorkItem, error) {
	var source ItemSource
	if job.Type == TypeGenerateSummaries {
		source = NewSummarySource(r.catalog, 0)
	} else {
		source = NewTargetSource(job.Targets)
	}
	return source.Items()
}

type outcomeKind int

const (
	outcomeNone outcomeKind = iota // not attempted; do not record
	outcomeProcessed
	outcomeSkipped
	outcomeFailed
)

type outcome struct {
	kind   outcomeKind
	reason string
}

// execute runs one work item. The returned error is fatal to the job;
// per-item failures come back as outcomes.
func (r *Runner) execute(ctx context.Context, job *Job, it WorkItem) (outcome, error) {
	if job.Type == TypeGenerateSummaries {
		return r.executeSummary(ctx, it)
	}
	return r.executeFetch(ctx, job, it)
}

func (r *Runner) executeFetch(ctx context.Context, job *Job, it WorkItem) (outcome, error) {
	if err := validateTicker(it.Ticker); err != nil {
		return outcome{kind: outcomeFailed, reason: err.Error()}, nil
	}

	if it.Resolved {
		if !job.Options.ForceRefresh && r.cache.Exists(it.Key()) {
			return outcome{kind: outcomeSkipped, reason: ReasonAlreadyCached}, nil
		}

		t, err := r.fetchWithRetry(ctx, it.Ticker, it.Year, it.Quarter)
		switch {
		case errors.Is(err, transcriptapi.ErrNotFound):
			return outcome{kind: outcomeSkipped, reason: ReasonNotAvailable}, nil
		case errors.Is(err, context.Canceled):
			return outcome{}, nil
		case err != nil:
			return outcome{kind: outcomeFailed, reason: err.Error()}, nil
		}

		return r.persistTranscript(t)
	}

	// No explicit quarter: walk the fallback window, stopping at the
	// first candidate the source has data for.
	lookback := job.Targets.QuarterCount
	if lookback <= 0 {
		lookback = r.lookback
	}
	window := NewQuarterWindow(r.now(), lookback)
	for {
		q, ok := window.Next()
		if !ok {
			return outcome{kind: outcomeSkipped, reason: ReasonNotAvailable}, nil
		}

		key := transcripts.Key(it.Ticker, q.Year, q.Quarter)
		if !job.Options.ForceRefresh && r.cache.Exists(key) {
			return outcome{kind: outcomeSkipped, reason: ReasonAlreadyCached}, nil
		}

		t, err := r.fetchWithRetry(ctx, it.Ticker, q.Year, q.Quarter)
		switch {
		case errors.Is(err, transcriptapi.ErrNotFound):
			continue
		case errors.Is(err, context.Canceled):
			return outcome{}, nil
		case err != nil:
			return outcome{kind: outcomeFailed, reason: err.Error()}, nil
		}

		return r.persistTranscript(t)
	}
}

func (r *Runner) persistTranscript(t *transcriptapi.Transcript) (outcome, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return outcome{kind: outcomeFailed, reason: fmt.Sprintf("failed to encode transcript: %v", err)}, nil
	}

	key := transcripts.Key(t.Ticker, t.Year, t.Quarter)
	if err := r.cache.Put(key, payload); err != nil {
		return outcome{}, &PersistenceError{Op: "cache put " + key, Err: err}
	}

	// relational row is best-effort; the reconcile job repairs gaps
	if err := r.catalog.RecordFetched(t); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Failed to record transcript row")
	}

	return outcome{kind: outcomeProcessed}, nil
}

func (r *Runner) executeSummary(ctx context.Context, it WorkItem) (outcome, error) {
	payload, err := r.cache.Get(it.CacheKey)
	if errors.Is(err, cache.ErrMiss) {
		return outcome{kind: outcomeFailed, reason: "transcript missing from cache"}, nil
	}
	if err != nil {
		return outcome{kind: outcomeFailed, reason: err.Error()}, nil
	}

	var t transcriptapi.Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return outcome{kind: outcomeFailed, reason: "corrupt cached payload"}, nil
	}

	summary, err := r.summarizeWithRetry(ctx, it, t.Text)
	switch {
	case errors.Is(err, context.Canceled):
		return outcome{}, nil
	case err != nil:
		return outcome{kind: outcomeFailed, reason: err.Error()}, nil
	}

	if err := r.catalog.SaveSummary(it.CacheKey, summary); err != nil {
		return outcome{kind: outcomeFailed, reason: err.Error()}, nil
	}

	return outcome{kind: outcomeProcessed}, nil
}

func (r *Runner) fetchWithRetry(ctx context.Context, ticker string, year, quarter int) (*transcriptapi.Transcript, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
		t, err := r.fetcher.Fetch(callCtx, ticker, year, quarter)
		cancel()

		if err == nil {
			return t, nil
		}
		lastErr = err

		if errors.Is(err, transcriptapi.ErrNotFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !isTransient(err) || attempt == r.maxAttempts {
			return nil, err
		}

		wait := r.backoffDelay(attempt, err)
		r.log.Warn().Err(err).
			Str("ticker", ticker).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Transcript fetch failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *Runner) summarizeWithRetry(ctx context.Context, it WorkItem, text string) (string, error) {
	req := llm.SummarizeRequest{
		Text:    text,
		Ticker:  it.Ticker,
		Year:    it.Year,
		Quarter: it.Quarter,
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
		summary, err := r.summarizer.Summarize(callCtx, req)
		cancel()

		if err == nil {
			return summary, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if !isTransient(err) || attempt == r.maxAttempts {
			return "", err
		}

		wait := r.backoffDelay(attempt, err)
		r.log.Warn().Err(err).
			Str("item", it.Key()).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Summary generation failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// backoffDelay doubles per attempt; a rate-limited source can push the
// delay out further via its Retry-After hint
func (r *Runner) backoffDelay(attempt int, err error) time.Duration {
	wait := r.baseBackoff << uint(attempt-1)

	var rl *transcriptapi.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > wait {
		wait = rl.RetryAfter
	}

	return wait
}

func (r *Runner) emit(eventType events.EventType, job *Job) {
	if r.events == nil {
		return
	}
	r.events.Emit(eventType, "jobs", map[string]interface{}{
		"job_id": job.ID,
		"type":   string(job.Type),
	})
}

// fatalFlag records the first fatal error across workers
type fatalFlag struct {
	mu  sync.Mutex
	err error
}

func (f *fatalFlag) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *fatalFlag) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// tracker is the single writer for a job's progress lists and snapshots
type tracker struct {
	mu    sync.Mutex
	store *Store
	job   *Job
	now   func() time.Time
}

func (t *tracker) setTotal(total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.job.Progress.Total = total
	t.job.Progress.UpdatedAt = t.now().UTC()
	return t.store.UpdateProgress(t.job.ID, t.job.Progress)
}

func (t *tracker) setCurrent(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.Progress.CurrentTicker = ticker
}

// record appends the outcome and persists a snapshot. Append order is
// completion order, not dispatch order.
func (t *tracker) record(key string, out outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &t.job.Progress
	switch out.kind {
	case outcomeProcessed:
		p.Processed = append(p.Processed, key)
	case outcomeFailed:
		p.Failed = append(p.Failed, key)
		p.FailedDetails = append(p.FailedDetails, ItemDetail{Item: key, Reason: out.reason})
	case outcomeSkipped:
		p.Skipped = append(p.Skipped, key)
		p.SkippedDetails = append(p.SkippedDetails, ItemDetail{Item: key, Reason: out.reason})
	}
	p.Current++
	p.UpdatedAt = t.now().UTC()

	return t.store.UpdateProgress(t.job.ID, *p)
}
