package store

// Schema version for migration tracking
const SchemaVersion = "1.0.0"

// DDL statements for database initialization
const (
	// Meta table stores configuration and version info
	createMetaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	// Runs table tracks one row per pipeline run
	createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    target_language TEXT,
    input_root TEXT NOT NULL,
    document_path TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    error_message TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);`

	createRunsStatusIndex = `
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at);`

	// Chunks table tracks per-chunk dispatch state and the raw response,
	// which is what makes resume possible after a crash or cancellation
	createChunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
    run_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    paths TEXT NOT NULL,
    est_size INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    response TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, idx),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);`

	createChunksStatusIndex = `
CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks(run_id, status);`

	// Manifest table records the extraction outcome per reconstructed file
	createManifestTable = `
CREATE TABLE IF NOT EXISTS manifest (
    run_id TEXT NOT NULL,
    path TEXT NOT NULL,
    status TEXT NOT NULL,
    reason TEXT,
    chunk_idx INTEGER,
    PRIMARY KEY (run_id, path),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);`

	// Enable WAL mode for concurrent reads/writes
	enableWALMode = `PRAGMA journal_mode=WAL;`

	// Set reasonable WAL checkpoint parameters
	setWALCheckpoint = `PRAGMA wal_autocheckpoint=1000;`

	// Enable foreign key constraints
	enableForeignKeys = `PRAGMA foreign_keys=ON;`
)

// MetaKeys are standard keys stored in the meta table
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyCreatedAt     = "created_at"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Chunk statuses
const (
	ChunkPending    = "pending"
	ChunkProcessing = "processing"
	ChunkDone       = "done"
	ChunkFailed     = "failed"
)

// Manifest entry statuses
const (
	FileWritten     = "written"
	FileQuarantined = "quarantined"
	FileConflict    = "conflict"
)
