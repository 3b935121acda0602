// Package history journals pipeline runs in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"ApkDisguise/pkg/types"
)

// DBName is the journal file inside the data directory
const DBName = "runs.db"

const schemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source_apk TEXT NOT NULL,
    prefix TEXT NOT NULL,
    new_package TEXT NOT NULL,
    device_id TEXT,
    install INTEGER DEFAULT 0,
    success INTEGER DEFAULT 0,
    step TEXT,
    message TEXT,
    output_path TEXT,
    error TEXT,
    start_time INTEGER NOT NULL,
    duration_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(start_time DESC);
CREATE INDEX IF NOT EXISTS idx_runs_device ON runs(device_id, start_time DESC);
`

const selectColumns = `
	SELECT id, source_apk, prefix, new_package, device_id, install, success,
		step, message, output_path, error, start_time, duration_ms
	FROM runs
`

// Store is the run journal
type Store struct {
	db     *sql.DB
	dbPath string

	stmtInsert *sql.Stmt
}

// Open creates dataDir if needed and opens the journal inside it
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT INTO runs (
			id, source_apk, prefix, new_package, device_id, install, success,
			step, message, output_path, error, start_time, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, stmtInsert: stmt}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database
func (s *Store) Close() error {
	if s.stmtInsert != nil {
		s.stmtInsert.Close()
	}
	return s.db.Close()
}

// Record inserts rec, assigning an ID and start time when missing
func (s *Store) Record(rec *types.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartTime == 0 {
		rec.StartTime = time.Now().UnixMilli()
	}

	_, err := s.stmtInsert.Exec(
		rec.ID, rec.SourceAPK, rec.Prefix, rec.NewPackage, nullString(rec.DeviceID),
		boolToInt(rec.Install), boolToInt(rec.Success),
		nullString(string(rec.Step)), rec.Message, nullString(rec.OutputPath), nullString(rec.Error),
		rec.StartTime, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// List returns the newest runs first. limit <= 0 means all.
func (s *Store) List(limit int) ([]types.RunRecord, error) {
	query := selectColumns + ` ORDER BY start_time DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// Get returns the run with id, or nil when none exists
func (s *Store) Get(id string) (*types.RunRecord, error) {
	row := s.db.QueryRow(selectColumns+` WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Prune deletes runs older than maxAge and returns how many went
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	result, err := s.db.Exec(`DELETE FROM runs WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*types.RunRecord, error) {
	var rec types.RunRecord
	var deviceID, step, message, outputPath, errText sql.NullString
	var install, success int

	err := row.Scan(
		&rec.ID, &rec.SourceAPK, &rec.Prefix, &rec.NewPackage, &deviceID,
		&install, &success, &step, &message, &outputPath, &errText,
		&rec.StartTime, &rec.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	rec.DeviceID = deviceID.String
	rec.Install = install != 0
	rec.Success = success != 0
	rec.Step = types.Stage(step.String)
	rec.Message = message.String
	rec.OutputPath = outputPath.String
	rec.Error = errText.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
