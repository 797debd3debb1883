package planner

import (
	"log/slog"

	"github.com/wouteroostervld/sawmill/pkg/scanner"
)

// FileRef is one file (or one fragment of an oversized file) inside a chunk
type FileRef struct {
	RelPath  string
	Language string
	Content  []byte

	// Fragment bookkeeping. Whole files have FragmentCount == 1.
	FragmentIndex int // 0-based position within the file
	FragmentCount int
	Overlap       int // bytes at the start repeated from the previous fragment's tail
}

// IsFragment reports whether this ref is a slice of a larger file
func (f FileRef) IsFragment() bool { return f.FragmentCount > 1 }

// Chunk is a size-bounded unit of source content dispatched as one backend
// request. Index is monotonically increasing in scan order.
type Chunk struct {
	Index   int
	Files   []FileRef
	EstSize int // estimated size in the configured unit
}

// Config holds planner configuration
type Config struct {
	SizeBudget int    // max estimated size per chunk
	SizeUnit   string // "bytes" or "tokens"
	Overlap    int    // fragment overlap in bytes
}

// Plan groups the inventory into an ordered chunk sequence. Greedy first-fit
// in scan order: a file joins the current chunk when it fits, otherwise the
// chunk closes. Files are never reordered, which preserves directory
// locality. A file whose own estimate exceeds the budget is split into
// fragments, each forming a chunk of its own. There is no failure mode:
// any input yields chunks, an oversized file just yields more of them.
func Plan(files []scanner.SourceFile, cfg Config) []Chunk {
	est := newEstimator(cfg.SizeUnit)

	var chunks []Chunk
	var current []FileRef
	currentSize := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Files:   current,
			EstSize: currentSize,
		})
		current = nil
		currentSize = 0
	}

	for _, f := range files {
		size := est.estimate(len(f.Content))

		if size > cfg.SizeBudget {
			// Oversized file: close the open chunk, then emit one chunk
			// per fragment.
			flush()
			for _, frag := range splitFile(f, cfg, est) {
				chunks = append(chunks, Chunk{
					Index:   len(chunks),
					Files:   []FileRef{frag},
					EstSize: est.estimate(len(frag.Content)),
				})
			}
			continue
		}

		if currentSize+size > cfg.SizeBudget {
			flush()
		}

		current = append(current, FileRef{
			RelPath:       f.RelPath,
			Language:      f.Language,
			Content:       f.Content,
			FragmentIndex: 0,
			FragmentCount: 1,
		})
		currentSize += size
	}
	flush()

	slog.Info("Plan complete", "files", len(files), "chunks", len(chunks), "budget", cfg.SizeBudget, "unit", cfg.SizeUnit)
	return chunks
}

// splitFile slices an oversized file into fragments whose estimates each
// respect the budget. Every fragment after the first begins with the last
// Overlap bytes of its predecessor so the model keeps cross-fragment
// context; reassembly strips those bytes again.
func splitFile(f scanner.SourceFile, cfg Config, est estimator) []FileRef {
	maxBytes := est.bytesForBudget(cfg.SizeBudget)
	overlap := cfg.Overlap
	if overlap >= maxBytes {
		overlap = maxBytes / 4
	}

	stride := maxBytes - overlap

	content := f.Content
	total := len(content)

	// Fragment starts: 0, stride, 2*stride, ...
	var starts []int
	for pos := 0; pos < total; pos += stride {
		starts = append(starts, pos)
		if pos+maxBytes >= total {
			break
		}
	}

	frags := make([]FileRef, 0, len(starts))
	for i, start := range starts {
		end := min(start+maxBytes, total)
		fragOverlap := 0
		if i > 0 {
			fragOverlap = overlap
		}
		frags = append(frags, FileRef{
			RelPath:       f.RelPath,
			Language:      f.Language,
			Content:       content[start:end],
			FragmentIndex: i,
			FragmentCount: len(starts),
			Overlap:       fragOverlap,
		})
	}

	return frags
}

// ReassembleFragments concatenates a file's fragments in order, stripping
// each fragment's leading overlap, reproducing the original bytes exactly.
// Fragments must belong to the same file and be passed in fragment order.
func ReassembleFragments(frags []FileRef) []byte {
	var out []byte
	for _, frag := range frags {
		content := frag.Content
		if frag.Overlap > 0 && frag.Overlap <= len(content) {
			content = content[frag.Overlap:]
		}
		out = append(out, content...)
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
