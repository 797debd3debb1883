package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenInitializesSchema(t *testing.T) {
	s := openTestStore(t)

	version, err := s.GetMeta(MetaKeySchemaVersion)
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %q, want %q", version, SchemaVersion)
	}

	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run := Run{
		ID:           "run-1",
		Mode:         "analyze",
		InputRoot:    "/src/project",
		DocumentPath: "/out/sawmill.md",
		OutputDir:    "/out",
	}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil for existing run")
	}
	if got.Status != RunRunning {
		t.Errorf("new run status = %q, want %q", got.Status, RunRunning)
	}
	if got.FinishedAt != nil {
		t.Errorf("new run has finished_at set")
	}

	if err := s.FinishRun("run-1", RunPartial, "2 chunks failed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun after finish failed: %v", err)
	}
	if got.Status != RunPartial {
		t.Errorf("finished run status = %q, want %q", got.Status, RunPartial)
	}
	if got.ErrorMessage != "2 chunks failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.FinishedAt == nil {
		t.Error("finished run missing finished_at")
	}
}

func TestFinishRunMissing(t *testing.T) {
	s := openTestStore(t)

	if err := s.FinishRun("no-such-run", RunCompleted, ""); err == nil {
		t.Error("expected error finishing unknown run")
	}
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetRun("absent")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing run, got %+v", got)
	}
}

func TestLatestRunAndList(t *testing.T) {
	s := openTestStore(t)

	latest, err := s.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun on empty store failed: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil latest run on empty store")
	}

	for _, id := range []string{"run-a", "run-b"} {
		err := s.CreateRun(Run{
			ID: id, Mode: "convert", TargetLanguage: "go",
			InputRoot: "/src", DocumentPath: "/out/doc.md", OutputDir: "/out",
		})
		if err != nil {
			t.Fatalf("CreateRun %s failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
}

func TestChunkQueue(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun(Run{ID: "r1", Mode: "analyze", InputRoot: "/src", DocumentPath: "/out/doc.md", OutputDir: "/out"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	chunks := []ChunkRecord{
		{Idx: 0, Paths: []string{"main.go", "util.go"}, EstSize: 4000},
		{Idx: 1, Paths: []string{"big.go"}, EstSize: 90000},
		{Idx: 2, Paths: []string{"small.go"}, EstSize: 120},
	}
	if err := s.InsertChunks("r1", chunks); err != nil {
		t.Fatalf("InsertChunks failed: %v", err)
	}

	pending, err := s.PendingChunks("r1")
	if err != nil {
		t.Fatalf("PendingChunks failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %v, want 3 entries", pending)
	}

	if err := s.MarkChunkProcessing("r1", 0); err != nil {
		t.Fatalf("MarkChunkProcessing failed: %v", err)
	}
	if err := s.MarkChunkDone("r1", 0, 1, "# Overview\n\nresponse text"); err != nil {
		t.Fatalf("MarkChunkDone failed: %v", err)
	}
	if err := s.MarkChunkFailed("r1", 1, 3, "rate limited"); err != nil {
		t.Fatalf("MarkChunkFailed failed: %v", err)
	}

	// failed chunks count as pending for resume
	pending, err = s.PendingChunks("r1")
	if err != nil {
		t.Fatalf("PendingChunks failed: %v", err)
	}
	if len(pending) != 2 || pending[0] != 1 || pending[1] != 2 {
		t.Errorf("pending after updates = %v, want [1 2]", pending)
	}

	states, err := s.ChunkStates("r1")
	if err != nil {
		t.Fatalf("ChunkStates failed: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("ChunkStates returned %d records", len(states))
	}
	if states[0].Status != ChunkDone || states[0].Response == "" {
		t.Errorf("chunk 0 = %+v, want done with response", states[0])
	}
	if got := states[0].Paths; len(got) != 2 || got[0] != "main.go" || got[1] != "util.go" {
		t.Errorf("chunk 0 paths = %v", got)
	}
	if states[1].Status != ChunkFailed || states[1].ErrorMessage != "rate limited" || states[1].Attempts != 3 {
		t.Errorf("chunk 1 = %+v", states[1])
	}

	counts, err := s.CountChunksByStatus("r1")
	if err != nil {
		t.Fatalf("CountChunksByStatus failed: %v", err)
	}
	want := map[string]int{ChunkDone: 1, ChunkFailed: 1, ChunkPending: 1}
	for status, n := range want {
		if counts[status] != n {
			t.Errorf("count[%s] = %d, want %d", status, counts[status], n)
		}
	}
}

func TestResetStuckProcessing(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun(Run{ID: "r1", Mode: "analyze", InputRoot: "/src", DocumentPath: "/out/doc.md", OutputDir: "/out"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := s.InsertChunks("r1", []ChunkRecord{
		{Idx: 0, Paths: []string{"a.go"}, EstSize: 10},
		{Idx: 1, Paths: []string{"b.go"}, EstSize: 10},
	}); err != nil {
		t.Fatalf("InsertChunks failed: %v", err)
	}

	if err := s.MarkChunkProcessing("r1", 0); err != nil {
		t.Fatalf("MarkChunkProcessing failed: %v", err)
	}

	n, err := s.ResetStuckProcessing("r1")
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d chunks, want 1", n)
	}

	pending, err := s.PendingChunks("r1")
	if err != nil {
		t.Fatalf("PendingChunks failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %v, want both chunks", pending)
	}
}

func TestManifest(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun(Run{ID: "r1", Mode: "convert", TargetLanguage: "go", InputRoot: "/src", DocumentPath: "/out/doc.md", OutputDir: "/out"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	entries := []ManifestEntry{
		{Path: "cmd/main.go", Status: FileWritten, ChunkIdx: 0},
		{Path: "_quarantine/001_passwd", Status: FileQuarantined, Reason: "path escapes output root", ChunkIdx: 1},
		{Path: "cmd/dup.go", Status: FileConflict, Reason: "duplicate path, first occurrence kept", ChunkIdx: 2},
	}
	if err := s.AddManifestEntries("r1", entries); err != nil {
		t.Fatalf("AddManifestEntries failed: %v", err)
	}

	got, err := s.ManifestEntries("r1")
	if err != nil {
		t.Fatalf("ManifestEntries failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	// ordered by path
	if got[0].Path != "_quarantine/001_passwd" || got[0].Status != FileQuarantined {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[0].Reason == "" {
		t.Error("quarantine entry missing reason")
	}

	// re-adding the same path updates in place
	if err := s.AddManifestEntries("r1", []ManifestEntry{
		{Path: "cmd/main.go", Status: FileConflict, Reason: "rewritten", ChunkIdx: 5},
	}); err != nil {
		t.Fatalf("AddManifestEntries upsert failed: %v", err)
	}
	got, err = s.ManifestEntries("r1")
	if err != nil {
		t.Fatalf("ManifestEntries failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("upsert changed entry count to %d", len(got))
	}
}
