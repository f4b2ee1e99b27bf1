package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"safe-delete/internal/deletion"
)

// DeletionDB manages the SQLite database for deletion history
type DeletionDB struct {
	db *sql.DB
}

// DeletionRecord represents a single finished delete request
type DeletionRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"` // DELETE or ERROR
	Path         string    `json:"path"`
	FileName     string    `json:"file_name"`
	ObjectType   string    `json:"object_type"` // file or directory
	Kind         string    `json:"kind"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

// NewDeletionDB creates a new database connection and initializes schema
func NewDeletionDB(dbPath string) (*DeletionDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping does not create the file; a real statement does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	ddb := &DeletionDB{db: db}
	if err = ddb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ddb, nil
}

func (d *DeletionDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deletions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		object_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		error_message TEXT,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON deletions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON deletions(action);
	CREATE INDEX IF NOT EXISTS idx_path ON deletions(path);
	CREATE INDEX IF NOT EXISTS idx_kind ON deletions(kind);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_request_id ON deletions(request_id);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// DeletionFinished records a finished request. It implements deletion.Observer.
func (d *DeletionDB) DeletionFinished(ev deletion.Event) error {
	return d.RecordDeletion(ev)
}

// RecordDeletion inserts a deletion event into the database
func (d *DeletionDB) RecordDeletion(ev deletion.Event) error {
	var errMsg sql.NullString
	if !ev.Outcome.OK() {
		errMsg = sql.NullString{String: ev.Outcome.Message, Valid: true}
	}

	_, err := d.db.Exec(`
	INSERT INTO deletions (
		request_id, timestamp, action, path, file_name,
		object_type, kind, error_message, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.RequestID,
		ev.StartedAt,
		ev.Action(),
		ev.Request.Path,
		filepath.Base(ev.Request.Path),
		ev.Request.ObjectType(),
		ev.Outcome.Kind.String(),
		errMsg,
		ev.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record deletion %s: %w", ev.RequestID, err)
	}
	return nil
}

// Ping checks the connection. Used by the health checker.
func (d *DeletionDB) Ping() error {
	return d.db.Ping()
}

// Close closes the database connection
func (d *DeletionDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *DeletionDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
