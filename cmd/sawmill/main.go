package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wouteroostervld/sawmill/pkg/config"
	"github.com/wouteroostervld/sawmill/pkg/engine"
	"github.com/wouteroostervld/sawmill/pkg/extractor"
	"github.com/wouteroostervld/sawmill/pkg/store"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sawmill [init|run|resume|status|extract|watch|version]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		handleInit()
	case "run":
		handleRun()
	case "resume":
		handleResume()
	case "status":
		handleStatus()
	case "extract":
		handleExtract()
	case "watch":
		handleWatch()
	case "version":
		fmt.Printf("sawmill version %s\n", version)
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func sawmillHome() string {
	return filepath.Join(os.Getenv("HOME"), ".sawmill")
}

func defaultConfigPath() string {
	return filepath.Join(sawmillHome(), "config.yaml")
}

func defaultStorePath() string {
	return filepath.Join(sawmillHome(), "sawmill.db")
}

func handleInit() {
	configPath := defaultConfigPath()
	os.MkdirAll(sawmillHome(), 0700)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists at", configPath)
	} else {
		data, err := yaml.Marshal(createDefaultConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(configPath, data, 0600); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Config written to", configPath)
	}

	st, err := store.Open(store.Config{Path: defaultStorePath()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	fmt.Println("✓ Run store initialized at", st.Path())
}

func createDefaultConfig() *config.GlobalConfig {
	return &config.GlobalConfig{
		Version:       "1.0",
		ActiveProfile: "default",
		Profiles: map[string]*config.Profile{
			"default": {
				Mode:        config.ModeAnalyze,
				Exclude:     []string{".git", "node_modules", "vendor"},
				Blacklist:   []string{`/\.git/`},
				LLMProvider: "ollama",
				Model:       "qwen2.5-coder:14b",
				SizeBudget:  100000,
				Overlap:     256,
			},
			"convert-go": {
				Mode:           config.ModeConvert,
				TargetLanguage: "go",
				Exclude:        []string{".git", "node_modules", "vendor"},
				Blacklist:      []string{`/\.git/`},
				LLMProvider:    "ollama",
				Model:          "qwen2.5-coder:14b",
				SizeBudget:     100000,
				Overlap:        256,
			},
		},
	}
}

// runFlags are the flags shared by run and watch
type runFlags struct {
	configPath string
	profile    string
	logLevel   string
	debounce   time.Duration
}

func parseRunFlags(name string, args []string) (*runFlags, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	rf := &runFlags{}
	fs.StringVar(&rf.configPath, "config", defaultConfigPath(), "Path to the global config file")
	fs.StringVar(&rf.profile, "profile", "", "Profile to use (default: active_profile from config)")
	fs.StringVar(&rf.logLevel, "loglevel", "", "Log level: debug, info, warn, error")
	fs.DurationVar(&rf.debounce, "debounce", 2*time.Second, "Delay before a change triggers a rerun (watch only)")
	fs.Parse(args)
	return rf, fs.Args()
}

// loadMerged resolves the full runtime config for an input root
func loadMerged(rf *runFlags, inputRoot string) *config.MergedConfig {
	fsys := &config.RealFileSystem{}
	loader := config.NewLoader(fsys)

	global, err := loader.LoadGlobalFromPath(rf.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'sawmill init' to create a default config.")
		os.Exit(1)
	}
	if rf.profile != "" {
		global.ActiveProfile = rf.profile
	}

	merged, err := loader.MergeForRun(global, inputRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if rf.logLevel != "" {
		merged.LogLevel = rf.logLevel
	}
	if err := config.Validate(merged); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(merged.LogLevel)
	return merged
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func openStore() *store.Store {
	st, err := store.Open(store.Config{Path: defaultStorePath()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run store: %v\n", err)
		os.Exit(1)
	}
	return st
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func handleRun() {
	rf, args := parseRunFlags("run", os.Args[2:])
	if len(args) < 1 {
		fmt.Println("Usage: sawmill run [-config path] [-profile name] [-loglevel level] <path>")
		os.Exit(1)
	}
	inputRoot := args[0]

	merged := loadMerged(rf, inputRoot)
	st := openStore()
	defer st.Close()

	eng, err := engine.New(engine.Config{Merged: merged, Store: st})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("🪚 Processing %s (%s mode)\n", inputRoot, merged.Mode)
	start := time.Now()

	report, err := eng.Run(ctx, inputRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printReport(report, time.Since(start))
	if report.Status != store.RunCompleted {
		os.Exit(1)
	}
}

func handleResume() {
	rf, args := parseRunFlags("resume", os.Args[2:])

	st := openStore()
	defer st.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	} else {
		latest, err := st.LatestRun()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if latest == nil {
			fmt.Println("No runs to resume")
			os.Exit(1)
		}
		runID = latest.ID
	}

	run, err := st.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if run == nil {
		fmt.Fprintf(os.Stderr, "Run not found: %s\n", runID)
		os.Exit(1)
	}

	merged := loadMerged(rf, run.InputRoot)
	eng, err := engine.New(engine.Config{Merged: merged, Store: st})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("🪚 Resuming run %s\n", runID)
	start := time.Now()

	report, err := eng.Resume(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printReport(report, time.Since(start))
	if report.Status != store.RunCompleted {
		os.Exit(1)
	}
}

func handleWatch() {
	rf, args := parseRunFlags("watch", os.Args[2:])
	if len(args) < 1 {
		fmt.Println("Usage: sawmill watch [-config path] [-profile name] [-debounce 2s] <path>")
		os.Exit(1)
	}
	inputRoot := args[0]

	st := openStore()
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// Config changes restart the session with a freshly merged config
	cw, err := config.NewFsnotifyWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cw.Close()
	if err := cw.Watch(rf.configPath); err != nil {
		slog.Warn("Config file not watched", "path", rf.configPath, "error", err)
	}

	for {
		merged := loadMerged(rf, inputRoot)
		eng, err := engine.New(engine.Config{Merged: merged, Store: st})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		sessionCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- eng.Watch(sessionCtx, inputRoot, rf.debounce) }()

		fmt.Printf("👀 Watching %s (%s mode), press Ctrl-C to stop\n", inputRoot, merged.Mode)

		select {
		case <-ctx.Done():
			stop()
			<-done
			return
		case ev := <-cw.Events():
			slog.Info("Config changed, reloading", "path", ev.Path, "op", ev.Operation)
			stop()
			<-done
		case err := <-done:
			stop()
			if err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
}

func handleStatus() {
	st := openStore()
	defer st.Close()

	runs, err := st.ListRuns(10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Sawmill Status")
	fmt.Println("==============")
	fmt.Printf("Store:  %s\n\n", st.Path())

	if len(runs) == 0 {
		fmt.Println("No runs yet")
		return
	}

	for _, run := range runs {
		counts, err := st.CountChunksByStatus(run.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		total := 0
		for _, n := range counts {
			total += n
		}

		fmt.Printf("Run %s\n", run.ID)
		fmt.Printf("  Mode:     %s", run.Mode)
		if run.TargetLanguage != "" {
			fmt.Printf(" → %s", run.TargetLanguage)
		}
		fmt.Println()
		fmt.Printf("  Input:    %s\n", run.InputRoot)
		fmt.Printf("  Status:   %s\n", run.Status)
		fmt.Printf("  Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
		fmt.Printf("  Chunks:   %d total", total)
		if n := counts[store.ChunkDone]; n > 0 {
			fmt.Printf(", %d done", n)
		}
		if n := counts[store.ChunkPending]; n > 0 {
			fmt.Printf(", %d pending", n)
		}
		if n := counts[store.ChunkProcessing]; n > 0 {
			fmt.Printf(", %d processing", n)
		}
		if n := counts[store.ChunkFailed]; n > 0 {
			fmt.Printf(", %d failed", n)
		}
		fmt.Println()
		if run.ErrorMessage != "" {
			fmt.Printf("  Error:    %s\n", run.ErrorMessage)
		}
		fmt.Println()
	}
}

// handleExtract reconstructs a file tree without calling the backend:
// from an assembled markdown document, or from the stored responses of a
// run when the argument is a run ID (or omitted, meaning the latest run)
func handleExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outDir := fs.String("out", "", "Output directory (default: the run's output_dir)")
	policy := fs.String("conflicts", "", "Conflict policy: first-wins or fail-fast")
	fs.Parse(os.Args[2:])
	args := fs.Args()

	// A document path on disk wins over run-id lookup
	if len(args) > 0 {
		if info, err := os.Stat(args[0]); err == nil && info.Mode().IsRegular() {
			extractDocument(args[0], *outDir, *policy)
			return
		}
	}

	st := openStore()
	defer st.Close()

	var run *store.Run
	var err error
	if len(args) > 0 {
		run, err = st.GetRun(args[0])
	} else {
		run, err = st.LatestRun()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if run == nil {
		fmt.Fprintln(os.Stderr, "Run not found")
		os.Exit(1)
	}

	target := run.OutputDir
	if *outDir != "" {
		target = *outDir
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "Run has no output directory; pass -out")
		os.Exit(1)
	}

	states, err := st.ChunkStates(run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ex, err := extractor.New(extractor.Config{OutputRoot: target, ConflictPolicy: *policy})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	scanned := 0
	for _, chunk := range states {
		if chunk.Status != store.ChunkDone {
			continue
		}
		if err := ex.Scan(chunk.Response, chunk.Idx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		scanned++
	}

	entries, err := ex.Write()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	manifest := make([]store.ManifestEntry, len(entries))
	written, quarantined, conflicts := 0, 0, 0
	for i, e := range entries {
		manifest[i] = store.ManifestEntry{Path: e.Path, Status: e.Status, Reason: e.Reason, ChunkIdx: e.ChunkIdx}
		switch e.Status {
		case store.FileWritten:
			written++
		case store.FileQuarantined:
			quarantined++
		case store.FileConflict:
			conflicts++
		}
	}
	if err := st.AddManifestEntries(run.ID, manifest); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Extracted %d chunks into %s\n", scanned, target)
	fmt.Printf("  Written: %d", written)
	if quarantined > 0 {
		fmt.Printf(", quarantined: %d", quarantined)
	}
	if conflicts > 0 {
		fmt.Printf(", conflicts: %d", conflicts)
	}
	fmt.Println()
}

// extractDocument runs the extractor over an assembled markdown file
func extractDocument(docPath, outDir, policy string) {
	if outDir == "" {
		outDir = strings.TrimSuffix(docPath, filepath.Ext(docPath)) + "_files"
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ex, err := extractor.New(extractor.Config{OutputRoot: outDir, ConflictPolicy: policy})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := ex.Scan(string(data), 0); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	entries, err := ex.Write()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	written := 0
	for _, e := range entries {
		if e.Status == extractor.StatusWritten {
			written++
		}
	}
	fmt.Printf("✓ Extracted %d files from %s into %s\n", written, docPath, outDir)
	if written < len(entries) {
		fmt.Printf("  %d entries quarantined or in conflict\n", len(entries)-written)
	}
}

func printReport(r *engine.Report, elapsed time.Duration) {
	fmt.Printf("\n✓ Run %s finished in %v\n", r.RunID, elapsed.Round(time.Millisecond))
	fmt.Printf("  Status:   %s\n", r.Status)
	fmt.Printf("  Chunks:   %d total, %d done, %d failed\n", r.Chunks, r.Done, r.Failed)
	fmt.Printf("  Document: %s\n", r.DocumentPath)

	if len(r.Manifest) > 0 {
		written, quarantined, conflicts := 0, 0, 0
		for _, e := range r.Manifest {
			switch e.Status {
			case store.FileWritten:
				written++
			case store.FileQuarantined:
				quarantined++
			case store.FileConflict:
				conflicts++
			}
		}
		fmt.Printf("  Files:    %d written under %s", written, r.OutputDir)
		if quarantined > 0 {
			fmt.Printf(", %d quarantined", quarantined)
		}
		if conflicts > 0 {
			fmt.Printf(", %d conflicts", conflicts)
		}
		fmt.Println()
	}

	if r.Failed > 0 {
		fmt.Println("\n💡 Failed chunks are marked in the document. Retry them with: sawmill resume", r.RunID)
	}
}
