// Package staging holds quarantined candidates pending curator review.
// The queue is a newline-delimited JSON file: appends for new items,
// full rewrite when a status changes. Approval merges into the
// knowledge store and then re-runs the threat scan as a second gate, so
// a quarantine bypass cannot become a silent backdoor.
package staging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mnemos/internal/logging"
	"mnemos/internal/types"
)

const (
	queueFile   = "staging.ndjson"
	waiverFile  = "waivers.ndjson"
	removalFile = "removals.ndjson"

	// Recently-staged window for duplicate suppression: the same
	// content quarantined again within this window is silently dropped.
	dupWindow   = 10 * time.Minute
	dupLookback = 50
)

// RejectReasonAutoSafety marks rejections produced by the post-merge
// safety gate rather than a curator.
const RejectReasonAutoSafety = "auto_safety"

// Queue is the durable quarantine queue.
type Queue struct {
	mu    sync.Mutex
	dir   string
	items []types.StagingItem

	waivers  *logging.AuditTrail
	removals *logging.AuditTrail
}

// Open loads (or creates) the staging queue under dir. Unparseable
// lines are skipped, not fatal: one corrupt entry must not take the
// whole queue down.
func Open(dir string) (*Queue, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging directory required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	q := &Queue{dir: dir}

	waivers, err := logging.NewAuditTrail(filepath.Join(dir, waiverFile))
	if err != nil {
		return nil, err
	}
	removals, err := logging.NewAuditTrail(filepath.Join(dir, removalFile))
	if err != nil {
		return nil, err
	}
	q.waivers = waivers
	q.removals = removals

	q.items = loadItems(filepath.Join(dir, queueFile))
	logging.Staging("staging queue opened: %d items", len(q.items))
	return q, nil
}

func loadItems(path string) []types.StagingItem {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var items []types.StagingItem
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var item types.StagingItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			logging.Get(logging.CategoryStaging).Warn("skipping corrupt staging line: %v", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// signature is the dedup key over candidate content.
func signature(question, answer string) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(question) + "\x00" + norm(answer)
}

// Quarantine canonicalizes a candidate into a staging item and appends
// it. Returns the item and false when suppressed as a recent duplicate.
func (q *Queue) Quarantine(cand types.Candidate, originFile string, report types.ThreatReport, message string) (types.StagingItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	sig := signature(cand.Question, cand.Answer)

	// Scan only the tail: the same file content resurfaces across
	// scans, and old history should not suppress a genuine re-review.
	start := len(q.items) - dupLookback
	if start < 0 {
		start = 0
	}
	for _, item := range q.items[start:] {
		if item.Path == originFile &&
			signature(item.Question, item.Answer) == sig &&
			now.Sub(item.Date) < dupWindow {
			logging.Get(logging.CategoryStaging).Debug("suppressing duplicate staging of %.60s", cand.Question)
			return types.StagingItem{}, false, nil
		}
	}

	item := types.StagingItem{
		ID:         uuid.New().String(),
		Path:       originFile,
		Date:       now,
		Message:    message,
		Severity:   severityFor(report.Score),
		Status:     types.StatusQuarantined,
		Threat:     report,
		Question:   cand.Question,
		Answer:     cand.Answer,
		Confidence: cand.Confidence,
	}

	if err := q.appendLocked(item); err != nil {
		return types.StagingItem{}, false, err
	}
	q.items = append(q.items, item)

	logging.Staging("quarantined %.60s (score=%.1f, origin=%s)", cand.Question, report.Score, originFile)
	return item, true, nil
}

func severityFor(score float64) string {
	switch {
	case score >= 20:
		return "high"
	case score >= 10:
		return "medium"
	default:
		return "low"
	}
}

// ListPending returns reviewable items: status quarantined or unset,
// deduplicated by content signature keeping the most recent.
func (q *Queue) ListPending() []types.StagingItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	latest := make(map[string]types.StagingItem)
	var order []string
	for _, item := range q.items {
		if item.Status != "" && item.Status != types.StatusQuarantined {
			continue
		}
		sig := signature(item.Question, item.Answer)
		if prev, ok := latest[sig]; ok {
			if item.Date.After(prev.Date) {
				latest[sig] = item
			}
			continue
		}
		latest[sig] = item
		order = append(order, sig)
	}

	out := make([]types.StagingItem, 0, len(order))
	for _, sig := range order {
		out = append(out, latest[sig])
	}
	return out
}

// Get returns an item by ID.
func (q *Queue) Get(id string) (types.StagingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.ID == id {
			return item, true
		}
	}
	return types.StagingItem{}, false
}

// Len returns the total number of entries, including resolved ones.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// removalRecord is one line in the removal ledger.
type removalRecord struct {
	Time     time.Time `json:"time"`
	ItemID   string    `json:"item_id"`
	Path     string    `json:"path"`
	Question string    `json:"question"`
	Reason   string    `json:"reason"`
	Score    float64   `json:"score,omitempty"`
	Reasons  []string  `json:"threat_reasons,omitempty"`
}

// waiverRecord is one line in the waiver ledger.
type waiverRecord struct {
	Time    time.Time `json:"time"`
	ItemID  string    `json:"item_id"`
	Editor  string    `json:"editor"`
	Score   float64   `json:"score"`
	Reasons []string  `json:"reasons"`
}

// Reject marks an item rejected. Terminal; the knowledge store is not
// touched.
func (q *Queue) Reject(id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.findPendingLocked(id)
	if idx < 0 {
		return fmt.Errorf("no pending staging item: %s", id)
	}

	q.items[idx].Status = types.StatusRejected
	if reason != "" {
		q.items[idx].Tags = append(q.items[idx].Tags, "reject:"+reason)
	}

	if err := q.removals.Append(removalRecord{
		Time:     time.Now().UTC(),
		ItemID:   id,
		Path:     q.items[idx].Path,
		Question: q.items[idx].Question,
		Reason:   reason,
	}); err != nil {
		logging.Get(logging.CategoryStaging).Warn("failed to append removal record: %v", err)
	}

	logging.Staging("rejected %s (reason=%s)", id, reason)
	return q.rewriteLocked()
}

func (q *Queue) findPendingLocked(id string) int {
	for i, item := range q.items {
		if item.ID == id && (item.Status == "" || item.Status == types.StatusQuarantined) {
			return i
		}
	}
	return -1
}

// appendLocked appends one item as a JSON line.
func (q *Queue) appendLocked(item types.StagingItem) error {
	path := filepath.Join(q.dir, queueFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open staging queue: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal staging item: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append staging item: %w", err)
	}
	return nil
}

// rewriteLocked rewrites the whole queue file; used for status updates.
func (q *Queue) rewriteLocked() error {
	path := filepath.Join(q.dir, queueFile)
	tmp := path + ".tmp"

	var buf strings.Builder
	for _, item := range q.items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal staging item: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(tmp, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write staging queue: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace staging queue: %w", err)
	}
	return nil
}
