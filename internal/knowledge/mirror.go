package knowledge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"mnemos/internal/types"
)

// Mirror keeps a queryable SQLite copy of the knowledge store for review
// tooling. It is never the source of truth: a failed refresh is logged
// and the JSON store carries on.
type Mirror struct {
	db   *sql.DB
	path string
}

// OpenMirror creates or opens the review mirror database.
func OpenMirror(path string) (*Mirror, error) {
	if path == "" {
		return nil, fmt.Errorf("mirror path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify mirror connection: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_records (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		confidence REAL NOT NULL,
		source TEXT,
		origin_file TEXT,
		learned_at DATETIME,
		semantic_id TEXT,
		waived INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_source ON knowledge_records(source);
	CREATE INDEX IF NOT EXISTS idx_knowledge_origin ON knowledge_records(origin_file);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mirror schema: %w", err)
	}

	return &Mirror{db: db, path: path}, nil
}

// ReplaceAll rewrites the mirror to match the given records.
func (m *Mirror) ReplaceAll(records []types.KnowledgeRecord) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("mirror not initialized")
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin mirror transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM knowledge_records`); err != nil {
		return fmt.Errorf("failed to clear mirror: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO knowledge_records
			(id, question, answer, confidence, source, origin_file, learned_at, semantic_id, waived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		waived := 0
		if r.SafetyReview != nil && r.SafetyReview.Waived {
			waived = 1
		}
		if _, err := stmt.Exec(r.ID, r.Question, r.Answer, r.Confidence,
			r.Source, r.OriginFile, r.LearnedAt, r.SemanticID, waived); err != nil {
			return fmt.Errorf("failed to insert mirror row: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of mirrored records.
func (m *Mirror) Count() (int, error) {
	if m == nil || m.db == nil {
		return 0, fmt.Errorf("mirror not initialized")
	}
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM knowledge_records`).Scan(&n)
	return n, err
}

// Close closes the mirror database.
func (m *Mirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
