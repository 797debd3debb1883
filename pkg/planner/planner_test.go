package planner

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/wouteroostervld/sawmill/pkg/scanner"
)

func inv(files ...scanner.SourceFile) []scanner.SourceFile { return files }

func src(path string, size int) scanner.SourceFile {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte('a' + (i % 26))
	}
	return scanner.SourceFile{RelPath: path, Content: content, Size: size}
}

func TestPlanGreedyFirstFit(t *testing.T) {
	files := inv(
		src("a.go", 40),
		src("b.go", 50),
		src("c.go", 30), // does not fit with a+b under budget 100
		src("d.go", 60),
	)

	chunks := Plan(files, Config{SizeBudget: 100, SizeUnit: UnitBytes, Overlap: 8})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	wantPaths := [][]string{{"a.go", "b.go"}, {"c.go", "d.go"}}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
		if len(chunk.Files) != len(wantPaths[i]) {
			t.Fatalf("chunk %d has %d files, want %d", i, len(chunk.Files), len(wantPaths[i]))
		}
		for j, ref := range chunk.Files {
			if ref.RelPath != wantPaths[i][j] {
				t.Errorf("chunk %d file %d = %q, want %q", i, j, ref.RelPath, wantPaths[i][j])
			}
		}
	}
}

func TestPlanBudgetRespected(t *testing.T) {
	files := inv(
		src("a", 30), src("b", 30), src("c", 30), src("d", 30),
		src("big", 350), src("e", 30),
	)
	budget := 100

	chunks := Plan(files, Config{SizeBudget: budget, SizeUnit: UnitBytes, Overlap: 10})

	for _, chunk := range chunks {
		if chunk.EstSize > budget {
			t.Errorf("chunk %d estimate %d exceeds budget %d", chunk.Index, chunk.EstSize, budget)
		}
	}
}

func TestPlanExactBudgetFileNotSplit(t *testing.T) {
	files := inv(src("before", 10), src("exact", 100), src("after", 10))

	chunks := Plan(files, Config{SizeBudget: 100, SizeUnit: UnitBytes})

	var exactChunk *Chunk
	for i := range chunks {
		for _, ref := range chunks[i].Files {
			if ref.RelPath == "exact" {
				exactChunk = &chunks[i]
			}
		}
	}

	if exactChunk == nil {
		t.Fatal("exact file missing from plan")
	}
	if len(exactChunk.Files) != 1 {
		t.Errorf("exact-budget file should form a chunk alone, got %d files", len(exactChunk.Files))
	}
	if exactChunk.Files[0].IsFragment() {
		t.Error("exact-budget file must not be split")
	}
}

func TestPlanOversizedFileFragmentRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		budget  int
		overlap int
	}{
		{name: "no overlap", size: 1000, budget: 128, overlap: 0},
		{name: "small overlap", size: 1000, budget: 128, overlap: 16},
		{name: "overlap larger than budget clamps", size: 500, budget: 64, overlap: 200},
		{name: "barely oversized", size: 101, budget: 100, overlap: 10},
		{name: "many fragments", size: 10000, budget: 100, overlap: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := src("huge.py", tt.size)
			chunks := Plan(inv(file), Config{SizeBudget: tt.budget, SizeUnit: UnitBytes, Overlap: tt.overlap})

			var frags []FileRef
			for _, chunk := range chunks {
				if len(chunk.Files) != 1 {
					t.Fatalf("fragment chunk %d carries %d files", chunk.Index, len(chunk.Files))
				}
				ref := chunk.Files[0]
				if len(ref.Content) > tt.budget {
					t.Errorf("fragment %d is %d bytes, budget %d", ref.FragmentIndex, len(ref.Content), tt.budget)
				}
				frags = append(frags, ref)
			}

			if len(frags) < 2 {
				t.Fatalf("expected multiple fragments, got %d", len(frags))
			}

			for i, frag := range frags {
				if frag.FragmentIndex != i {
					t.Errorf("fragment %d has index %d", i, frag.FragmentIndex)
				}
				if frag.FragmentCount != len(frags) {
					t.Errorf("fragment %d count = %d, want %d", i, frag.FragmentCount, len(frags))
				}
			}

			got := ReassembleFragments(frags)
			if !bytes.Equal(got, file.Content) {
				t.Errorf("reassembly mismatch: got %d bytes, want %d", len(got), len(file.Content))
			}
		})
	}
}

func TestPlanEveryByteInExactlyOneFragmentSet(t *testing.T) {
	// Mixed inventory: each source file must appear in exactly one chunk's
	// fragment set and reassemble byte for byte.
	files := inv(
		src("small/a.go", 50),
		src("big/long.rs", 900),
		src("small/b.go", 70),
		src("big/longer.c", 2500),
		src("empty.txt", 0),
	)
	cfg := Config{SizeBudget: 200, SizeUnit: UnitBytes, Overlap: 32}

	chunks := Plan(files, cfg)

	byPath := make(map[string][]FileRef)
	for _, chunk := range chunks {
		for _, ref := range chunk.Files {
			byPath[ref.RelPath] = append(byPath[ref.RelPath], ref)
		}
	}

	for _, f := range files {
		frags, ok := byPath[f.RelPath]
		if !ok {
			t.Errorf("%s missing from plan", f.RelPath)
			continue
		}
		if got := ReassembleFragments(frags); !bytes.Equal(got, f.Content) {
			t.Errorf("%s does not reassemble: got %d bytes, want %d", f.RelPath, len(got), len(f.Content))
		}
		if frags[0].FragmentCount != len(frags) {
			t.Errorf("%s fragment count %d, have %d fragments", f.RelPath, frags[0].FragmentCount, len(frags))
		}
	}

	if len(byPath) != len(files) {
		t.Errorf("plan has %d distinct paths, want %d", len(byPath), len(files))
	}
}

func TestPlanTokenUnit(t *testing.T) {
	// 1000 bytes ~= 250 tokens; budget 100 tokens forces fragmentation at
	// 400-byte boundaries.
	file := src("big.go", 1000)
	chunks := Plan(inv(file), Config{SizeBudget: 100, SizeUnit: UnitTokens, Overlap: 0})

	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want >= 3", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.EstSize > 100 {
			t.Errorf("chunk %d token estimate %d exceeds budget", chunk.Index, chunk.EstSize)
		}
	}
}

func TestPlanChunkOrderMatchesScanOrder(t *testing.T) {
	var files []scanner.SourceFile
	for i := 0; i < 20; i++ {
		files = append(files, src(fmt.Sprintf("f%02d.go", i), 40))
	}

	chunks := Plan(files, Config{SizeBudget: 100, SizeUnit: UnitBytes})

	var seen []string
	for _, chunk := range chunks {
		for _, ref := range chunk.Files {
			seen = append(seen, ref.RelPath)
		}
	}

	for i, path := range seen {
		want := fmt.Sprintf("f%02d.go", i)
		if path != want {
			t.Fatalf("position %d: got %q, want %q", i, path, want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
