// Package types defines the canonical record shapes shared across the
// knowledge pipeline. Legacy field aliases from older store formats are
// accepted only at the extraction boundary (see internal/extract); every
// other package works with these structs.
package types

import "time"

// Candidate is an unvalidated (question, answer, confidence) triple
// proposed for knowledge storage.
type Candidate struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// SafetyReview records a curator's explicit override for a record that
// failed the post-merge safety re-scan.
type SafetyReview struct {
	Waived     bool      `json:"waived"`
	Editor     string    `json:"editor,omitempty"`
	Reasons    []string  `json:"reasons,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// KnowledgeRecord is a stored unit of learned knowledge.
// Question and Answer are non-empty after sanitization, and OriginFile
// never contains an absolute host path.
type KnowledgeRecord struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	Answer       string        `json:"answer"`
	Confidence   float64       `json:"confidence"`
	Source       string        `json:"source"`
	OriginFile   string        `json:"origin_file"`
	LearnedAt    time.Time     `json:"learned_at"`
	SemanticID   string        `json:"semantic_id"`
	SafetyReview *SafetyReview `json:"safety_review,omitempty"`
}

// Staging item status values. Quarantined is the creation default;
// approved and rejected are terminal.
const (
	StatusQuarantined = "quarantined"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// ThreatReport is the result of a safety scan over candidate text.
type ThreatReport struct {
	Score      float64  `json:"score"`
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons"`
}

// StagingItem is a quarantined candidate awaiting curator review.
type StagingItem struct {
	ID       string       `json:"id"`
	Path     string       `json:"path"`
	Date     time.Time    `json:"date"`
	Line     int          `json:"line,omitempty"`
	Message  string       `json:"message"`
	Severity string       `json:"severity"`
	Status   string       `json:"status,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Threat   ThreatReport `json:"threat"`

	// Candidate payload carried through quarantine so approval can
	// reconstruct the knowledge record.
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Decision is the terminal outcome the decision engine assigns to a
// candidate. Quarantined items may later transition via the curator.
type Decision string

const (
	DecisionAutoMerged  Decision = "auto_merged"
	DecisionQuarantined Decision = "quarantined"
	DecisionRejected    Decision = "rejected"
)
