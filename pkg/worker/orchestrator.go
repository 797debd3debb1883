package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wouteroostervld/sawmill/pkg/llm"
)

// Job is one chunk payload awaiting dispatch
type Job struct {
	ChunkIndex int
	Payload    string
}

// Response statuses
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// Response is the outcome of processing one job
type Response struct {
	ChunkIndex int
	Text       string
	Status     string
	Attempts   int
	Err        error
}

// Recorder persists chunk state transitions. Implemented by store.Store;
// a nil recorder disables persistence.
type Recorder interface {
	MarkChunkProcessing(runID string, idx int) error
	MarkChunkDone(runID string, idx, attempts int, response string) error
	MarkChunkFailed(runID string, idx, attempts int, errMsg string) error
}

// Config holds orchestrator configuration
type Config struct {
	Backend      llm.Backend
	Concurrency  int           // parallel in-flight calls
	Rate         float64       // requests per second across all workers
	Burst        int           // rate limiter burst size
	MaxAttempts  int           // total attempts per job including the first
	BackoffBase  time.Duration // first retry delay, doubled per attempt
	BackoffCap   time.Duration // upper bound on a single delay
	Timeout      time.Duration // per-attempt deadline
	AbortOnFatal bool          // cancel remaining jobs on a fatal error
	Recorder     Recorder
	RunID        string
}

// Orchestrator fans chunk payloads out to an LLM backend with bounded
// concurrency, a shared rate limit and retry on transient failures
type Orchestrator struct {
	backend      llm.Backend
	limiter      *rate.Limiter
	concurrency  int
	maxAttempts  int
	backoffBase  time.Duration
	backoffCap   time.Duration
	timeout      time.Duration
	abortOnFatal bool
	recorder     Recorder
	runID        string
}

// New creates an orchestrator
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 2.0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Orchestrator{
		backend:      cfg.Backend,
		limiter:      rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		concurrency:  cfg.Concurrency,
		maxAttempts:  cfg.MaxAttempts,
		backoffBase:  cfg.BackoffBase,
		backoffCap:   cfg.BackoffCap,
		timeout:      cfg.Timeout,
		abortOnFatal: cfg.AbortOnFatal,
		recorder:     cfg.Recorder,
		runID:        cfg.RunID,
	}
}

// Process dispatches every job and returns one response per job, in job
// order. Completion order is unordered internally; position in the result
// slice matches position in jobs. The returned error is non-nil only when
// the whole batch was aborted (context cancelled, or a fatal error with
// AbortOnFatal set); per-job failures are reported in the responses.
func (o *Orchestrator) Process(ctx context.Context, jobs []Job) ([]Response, error) {
	responses := make([]Response, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	slog.Info("Dispatching chunks", "count", len(jobs), "concurrency", o.concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			resp := o.processJob(gctx, job)
			responses[i] = resp
			if resp.Err != nil && o.abortOnFatal && !llm.IsTransient(resp.Err) {
				return fmt.Errorf("chunk %d failed fatally: %w", job.ChunkIndex, resp.Err)
			}
			return nil
		})
	}

	err := g.Wait()

	// Jobs skipped by an abort have no status yet
	for i := range responses {
		if responses[i].Status == "" {
			responses[i] = Response{
				ChunkIndex: jobs[i].ChunkIndex,
				Status:     StatusFailed,
				Err:        context.Canceled,
			}
		}
	}

	return responses, err
}

// processJob runs the retry loop for a single job
func (o *Orchestrator) processJob(ctx context.Context, job Job) Response {
	if o.recorder != nil {
		if err := o.recorder.MarkChunkProcessing(o.runID, job.ChunkIndex); err != nil {
			slog.Error("Failed to mark chunk processing", "chunk", job.ChunkIndex, "error", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return o.fail(job, attempt-1, err)
		}

		text, err := o.callOnce(ctx, job.Payload)
		if err == nil {
			slog.Info("Chunk done", "chunk", job.ChunkIndex, "attempts", attempt)
			return o.succeed(job, attempt, text)
		}
		lastErr = err

		if !llm.IsTransient(err) {
			slog.Error("Chunk failed permanently", "chunk", job.ChunkIndex, "attempt", attempt, "error", err)
			return o.fail(job, attempt, err)
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.backoffDelay(attempt)
		slog.Warn("Chunk call failed, will retry", "chunk", job.ChunkIndex, "attempt", attempt,
			"max_attempts", o.maxAttempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return o.fail(job, attempt, ctx.Err())
		case <-time.After(delay):
		}
	}

	slog.Error("Chunk failed after retries", "chunk", job.ChunkIndex, "attempts", o.maxAttempts, "error", lastErr)
	return o.fail(job, o.maxAttempts, lastErr)
}

// callOnce performs a single backend call under the per-attempt timeout
func (o *Orchestrator) callOnce(ctx context.Context, payload string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.backend.Call(callCtx, payload)
}

func (o *Orchestrator) succeed(job Job, attempts int, text string) Response {
	if o.recorder != nil {
		if err := o.recorder.MarkChunkDone(o.runID, job.ChunkIndex, attempts, text); err != nil {
			slog.Error("Failed to mark chunk done", "chunk", job.ChunkIndex, "error", err)
		}
	}
	return Response{ChunkIndex: job.ChunkIndex, Text: text, Status: StatusDone, Attempts: attempts}
}

func (o *Orchestrator) fail(job Job, attempts int, err error) Response {
	if o.recorder != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if rerr := o.recorder.MarkChunkFailed(o.runID, job.ChunkIndex, attempts, msg); rerr != nil {
			slog.Error("Failed to mark chunk failed", "chunk", job.ChunkIndex, "error", rerr)
		}
	}
	return Response{ChunkIndex: job.ChunkIndex, Status: StatusFailed, Attempts: attempts, Err: err}
}

// backoffDelay computes the delay before retry number attempt+1:
// base doubled per attempt, capped, with up to 25% jitter
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.backoffBase << (attempt - 1)
	if delay > o.backoffCap || delay <= 0 {
		delay = o.backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
