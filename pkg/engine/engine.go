// Package engine wires the pipeline: scan, plan, prompt, dispatch,
// assemble and extract, with run state persisted for resume.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wouteroostervld/sawmill/pkg/assembler"
	"github.com/wouteroostervld/sawmill/pkg/config"
	"github.com/wouteroostervld/sawmill/pkg/extractor"
	"github.com/wouteroostervld/sawmill/pkg/llm"
	"github.com/wouteroostervld/sawmill/pkg/planner"
	"github.com/wouteroostervld/sawmill/pkg/prompt"
	"github.com/wouteroostervld/sawmill/pkg/scanner"
	"github.com/wouteroostervld/sawmill/pkg/store"
	"github.com/wouteroostervld/sawmill/pkg/worker"
)

// Engine runs the pipeline for one configuration
type Engine struct {
	cfg     *config.MergedConfig
	store   *store.Store
	backend llm.Backend
}

// Config holds engine construction parameters. Backend overrides the
// provider the merged config names; tests inject mocks through it.
type Config struct {
	Merged  *config.MergedConfig
	Store   *store.Store
	Backend llm.Backend
}

// Report summarizes a finished run
type Report struct {
	RunID        string
	Mode         string
	Status       string
	Chunks       int
	Done         int
	Failed       int
	DocumentPath string
	OutputDir    string
	Manifest     []store.ManifestEntry
}

// New creates an engine. The store is required; the backend is built
// from the configuration unless one is injected.
func New(cfg Config) (*Engine, error) {
	if cfg.Merged == nil {
		return nil, fmt.Errorf("merged config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	backend := cfg.Backend
	if backend == nil {
		var err error
		backend, err = buildBackend(cfg.Merged)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{cfg: cfg.Merged, store: cfg.Store, backend: backend}, nil
}

// Run executes the full pipeline against inputRoot and returns the report.
// Per-chunk failures degrade the run to partial instead of aborting it;
// the returned error is reserved for failures of the pipeline itself.
func (e *Engine) Run(ctx context.Context, inputRoot string) (*Report, error) {
	absRoot, err := filepath.Abs(inputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input root: %w", err)
	}

	files, err := e.scan(absRoot)
	if err != nil {
		return nil, err
	}

	chunks := planner.Plan(files, planner.Config{
		SizeBudget: e.cfg.SizeBudget,
		SizeUnit:   e.cfg.SizeUnit,
		Overlap:    e.cfg.Overlap,
	})

	runID := uuid.NewString()
	if err := e.store.CreateRun(store.Run{
		ID:             runID,
		Mode:           e.cfg.Mode,
		TargetLanguage: e.cfg.TargetLanguage,
		InputRoot:      absRoot,
		DocumentPath:   e.cfg.Document,
		OutputDir:      e.cfg.OutputDir,
	}); err != nil {
		return nil, err
	}

	records := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = store.ChunkRecord{Idx: c.Index, Paths: chunkLabels(c), EstSize: c.EstSize}
	}
	if err := e.store.InsertChunks(runID, records); err != nil {
		return nil, err
	}

	slog.Info("Run started", "run_id", runID, "mode", e.cfg.Mode,
		"files", len(files), "chunks", len(chunks))

	responses, batchErr := e.dispatch(ctx, runID, chunks, nil)
	return e.finish(ctx, runID, chunks, responses, batchErr)
}

// Resume re-dispatches the pending and failed chunks of an earlier run,
// reusing stored responses for chunks that already completed. The input
// tree must be unchanged; resume re-derives the plan and refuses to
// continue when it no longer matches.
func (e *Engine) Resume(ctx context.Context, runID string) (*Report, error) {
	run, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	if n, err := e.store.ResetStuckProcessing(runID); err != nil {
		return nil, err
	} else if n > 0 {
		slog.Info("Requeued interrupted chunks", "run_id", runID, "count", n)
	}

	files, err := e.scan(run.InputRoot)
	if err != nil {
		return nil, err
	}
	chunks := planner.Plan(files, planner.Config{
		SizeBudget: e.cfg.SizeBudget,
		SizeUnit:   e.cfg.SizeUnit,
		Overlap:    e.cfg.Overlap,
	})

	states, err := e.store.ChunkStates(runID)
	if err != nil {
		return nil, err
	}
	if len(chunks) != len(states) {
		return nil, fmt.Errorf("input tree changed since run %s: %d chunks planned, %d recorded; start a fresh run",
			runID, len(chunks), len(states))
	}

	done := make(map[int]string, len(states))
	for _, st := range states {
		if st.Status == store.ChunkDone {
			done[st.Idx] = st.Response
		}
	}

	slog.Info("Resuming run", "run_id", runID, "chunks", len(chunks), "already_done", len(done))

	responses, batchErr := e.dispatch(ctx, runID, chunks, done)
	return e.finish(ctx, runID, chunks, responses, batchErr)
}

func (e *Engine) scan(root string) ([]scanner.SourceFile, error) {
	s := scanner.New(scanner.Config{
		Exclude:      e.cfg.Exclude,
		Blacklist:    e.cfg.Blacklist,
		Whitelist:    e.cfg.Whitelist,
		UseGitignore: e.cfg.UseGitignore,
	})
	files, err := s.Scan(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no source files found under %s", root)
	}
	return files, nil
}

// dispatch sends every chunk without a reused response through the
// orchestrator and returns one worker response per chunk, in chunk order
func (e *Engine) dispatch(ctx context.Context, runID string, chunks []planner.Chunk, done map[int]string) ([]worker.Response, error) {
	task := prompt.Task{
		Mode:           e.cfg.Mode,
		TargetLanguage: e.cfg.TargetLanguage,
		SystemPrompt:   e.cfg.SystemPrompt,
	}

	var jobs []worker.Job
	for _, c := range chunks {
		if _, ok := done[c.Index]; ok {
			continue
		}
		jobs = append(jobs, worker.Job{ChunkIndex: c.Index, Payload: prompt.Build(c, task)})
	}

	o := worker.New(worker.Config{
		Backend:      e.backend,
		Concurrency:  e.cfg.Concurrency,
		Rate:         e.cfg.RatePerSecond,
		Burst:        e.cfg.RateBurst,
		MaxAttempts:  e.cfg.MaxAttempts,
		BackoffBase:  time.Duration(e.cfg.BackoffBaseMS) * time.Millisecond,
		BackoffCap:   time.Duration(e.cfg.BackoffCapMS) * time.Millisecond,
		Timeout:      time.Duration(e.cfg.TimeoutSeconds) * time.Second,
		AbortOnFatal: e.cfg.AbortOnFatal,
		Recorder:     e.store,
		RunID:        runID,
	})

	dispatched, batchErr := o.Process(ctx, jobs)

	byIdx := make(map[int]worker.Response, len(dispatched))
	for _, r := range dispatched {
		byIdx[r.ChunkIndex] = r
	}

	responses := make([]worker.Response, len(chunks))
	for i, c := range chunks {
		if text, ok := done[c.Index]; ok {
			responses[i] = worker.Response{ChunkIndex: c.Index, Text: text, Status: worker.StatusDone}
			continue
		}
		responses[i] = byIdx[c.Index]
	}
	return responses, batchErr
}

// finish assembles the document, runs extraction and records the
// terminal run state
func (e *Engine) finish(ctx context.Context, runID string, chunks []planner.Chunk, responses []worker.Response, batchErr error) (*Report, error) {
	results := make([]assembler.ChunkResult, len(responses))
	doneCount, failedCount := 0, 0
	for i, r := range responses {
		result := assembler.ChunkResult{ChunkIndex: r.ChunkIndex, Text: r.Text}
		if r.Status != worker.StatusDone {
			result.Failed = true
			result.Paths = chunkLabels(chunks[i])
			if r.Err != nil {
				result.ErrMsg = r.Err.Error()
			}
			failedCount++
		} else {
			doneCount++
		}
		results[i] = result
	}

	doc := assembler.Assemble(results)
	if err := writeDocument(e.cfg.Document, doc); err != nil {
		e.store.FinishRun(runID, store.RunFailed, err.Error())
		return nil, err
	}

	var manifest []store.ManifestEntry
	if e.cfg.ExtractBlocks {
		var err error
		manifest, err = e.extract(runID, responses)
		if err != nil {
			e.store.FinishRun(runID, store.RunFailed, err.Error())
			return nil, err
		}
	}

	status := runStatus(ctx, batchErr, doneCount, failedCount)
	errMsg := ""
	if batchErr != nil {
		errMsg = batchErr.Error()
	} else if failedCount > 0 {
		errMsg = fmt.Sprintf("%d of %d chunks failed", failedCount, len(responses))
	}
	if err := e.store.FinishRun(runID, status, errMsg); err != nil {
		return nil, err
	}

	slog.Info("Run finished", "run_id", runID, "status", status,
		"done", doneCount, "failed", failedCount, "document", e.cfg.Document)

	return &Report{
		RunID:        runID,
		Mode:         e.cfg.Mode,
		Status:       status,
		Chunks:       len(responses),
		Done:         doneCount,
		Failed:       failedCount,
		DocumentPath: e.cfg.Document,
		OutputDir:    e.cfg.OutputDir,
		Manifest:     manifest,
	}, nil
}

// extract reconstructs the file tree from successful chunk responses
func (e *Engine) extract(runID string, responses []worker.Response) ([]store.ManifestEntry, error) {
	ex, err := extractor.New(extractor.Config{
		OutputRoot:     e.cfg.OutputDir,
		ConflictPolicy: e.cfg.ConflictPolicy,
	})
	if err != nil {
		return nil, err
	}

	for _, r := range responses {
		if r.Status != worker.StatusDone {
			continue
		}
		if err := ex.Scan(r.Text, r.ChunkIndex); err != nil {
			return nil, fmt.Errorf("extraction failed on chunk %d: %w", r.ChunkIndex, err)
		}
	}

	entries, err := ex.Write()
	if err != nil {
		return nil, err
	}

	manifest := make([]store.ManifestEntry, len(entries))
	for i, en := range entries {
		manifest[i] = store.ManifestEntry{Path: en.Path, Status: en.Status, Reason: en.Reason, ChunkIdx: en.ChunkIdx}
	}
	if err := e.store.AddManifestEntries(runID, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeDocument(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func runStatus(ctx context.Context, batchErr error, done, failed int) string {
	switch {
	case ctx.Err() != nil:
		return store.RunCancelled
	case batchErr != nil:
		return store.RunFailed
	case failed == 0:
		return store.RunCompleted
	case done == 0:
		return store.RunFailed
	default:
		return store.RunPartial
	}
}

// chunkLabels names a chunk's contents for the store and for failure
// placeholders in the document
func chunkLabels(c planner.Chunk) []string {
	labels := make([]string, len(c.Files))
	for i, ref := range c.Files {
		if ref.IsFragment() {
			labels[i] = fmt.Sprintf("%s (part %d/%d)", ref.RelPath, ref.FragmentIndex+1, ref.FragmentCount)
		} else {
			labels[i] = ref.RelPath
		}
	}
	return labels
}
