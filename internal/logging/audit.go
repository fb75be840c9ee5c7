// Audit trails are append-only newline-delimited JSON files. The decision
// engine and staging queue use them for the validation, removal, and
// waiver logs; unlike the category logs above they are part of the
// pipeline's durable contract and are written regardless of debug mode.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AuditTrail appends JSON lines to a single file. Safe for concurrent use.
type AuditTrail struct {
	path string
	mu   sync.Mutex
}

// NewAuditTrail creates an append-only trail at path, creating parent
// directories as needed.
func NewAuditTrail(path string) (*AuditTrail, error) {
	if path == "" {
		return nil, fmt.Errorf("audit trail path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &AuditTrail{path: path}, nil
}

// Append marshals v and appends it as one line. Marshal or write errors
// are returned but callers typically log and continue; a failed audit
// write must never abort the pipeline step that produced it.
func (t *AuditTrail) Append(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Path returns the trail's file path.
func (t *AuditTrail) Path() string {
	return t.path
}
