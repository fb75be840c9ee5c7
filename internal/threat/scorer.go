// Package threat scores candidate knowledge for dangerous content before
// it can reach the knowledge store. Scoring is pattern-based: a table of
// weighted regex categories, with dampening for clearly educational
// context so explanations of dangerous techniques are not punished like
// the techniques themselves.
package threat

import (
	"regexp"
	"strings"

	"mnemos/internal/logging"
	"mnemos/internal/types"
)

// category is one weighted pattern group. All patterns compile at init;
// a match contributes Severity once per pattern.
type category struct {
	Name     string
	Severity float64
	Patterns []*regexp.Regexp
}

var categories = []category{
	{
		Name:     "destructive_command",
		Severity: 15,
		Patterns: compile(
			`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)[a-z]*\s`,
			`(?i)\bmkfs(\.\w+)?\b`,
			`(?i)\bdd\s+if=/dev/(zero|random|urandom)`,
			`(?i)\bformat\s+[a-z]:\\?`,
			`(?i):\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`,
			`(?i)\bdel\s+/[sfq]\s`,
		),
	},
	{
		Name:     "remote_code_execution",
		Severity: 15,
		Patterns: compile(
			`(?i)(curl|wget)[^\n|;]*\|\s*(ba)?sh\b`,
			`(?i)(curl|wget)[^\n|;]*\|\s*python\d?\b`,
			`(?i)\bnc\s+(-[a-z]+\s+)*-e\s`,
			`(?i)powershell[^\n]*-enc(odedcommand)?\s`,
			`(?i)\binvoke-webrequest\b[^\n]*\|\s*iex\b`,
		),
	},
	{
		Name:     "dynamic_evaluation",
		Severity: 10,
		Patterns: compile(
			`(?i)\beval\s*\(`,
			`(?i)\bexec\s*\(\s*["'`+"`"+`]`,
			`(?i)new\s+Function\s*\(`,
			`(?i)\bsetTimeout\s*\(\s*["']`,
		),
	},
	{
		Name:     "script_injection",
		Severity: 10,
		Patterns: compile(
			`(?i)<script[^>]*>`,
			`(?i)\bjavascript:\s*\S`,
			`(?i)\bon(error|load|click)\s*=\s*["']`,
			`(?i)document\.(write|cookie)\s*[(=]`,
		),
	},
	{
		Name:     "sql_injection",
		Severity: 8,
		Patterns: compile(
			`(?i)('|\b)or\s+1\s*=\s*1\b`,
			`(?i);\s*drop\s+table\b`,
			`(?i)union\s+select\b.*\bfrom\b`,
			`(?i)';\s*--`,
		),
	},
	{
		Name:     "prompt_injection",
		Severity: 12,
		Patterns: compile(
			`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|prompts)`,
			`(?i)disregard\s+(your|the)\s+(instructions|guidelines|system\s+prompt)`,
			`(?i)you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak)\s*mode`,
			`(?i)reveal\s+(your|the)\s+system\s+prompt`,
			`(?i)pretend\s+(you\s+have|there\s+are)\s+no\s+(rules|restrictions)`,
		),
	},
	{
		Name:     "obfuscation",
		Severity: 5,
		Patterns: compile(
			`(?i)\bbase64\s+(-d|--decode)\b`,
			`(?i)atob\s*\(`,
			`(?i)String\.fromCharCode\s*\(`,
			`(?i)\\x[0-9a-f]{2}(\\x[0-9a-f]{2}){7,}`,
			`(?i)chr\s*\(\s*\d+\s*\)\s*(\+|\.)\s*chr`,
		),
	},
}

var educationalMarkers = compile(
	`(?i)\bexplain(s|ed|ing)?\b`,
	`(?i)\bhow\s+does\b.{0,60}\bwork\b`,
	`(?i)\bwhat\s+is\b`,
	`(?i)\bfor\s+(example|learning|educational)\b`,
	`(?i)\bunderstand(ing)?\b`,
	`(?i)\bdocumentation\b`,
)

var exploitationMarkers = compile(
	`(?i)\bbypass(es|ing)?\b`,
	`(?i)\bexploit(s|ed|ing)?\b`,
	`(?i)\bwithout\s+(detection|being\s+detected|permission)\b`,
	`(?i)\bundetect(able|ed)\b`,
	`(?i)\bpayload\b`,
	`(?i)\bvictim\b`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// educationalDampening is the weight applied to matched severities when
// the text reads as an explanation rather than an exploitation recipe.
const educationalDampening = 0.4

// Scorer scans question/answer text against the category table.
type Scorer struct {
	// SuspicionScore is the score at or above which text is flagged
	// suspicious. Independent of the decision engine's merge threshold.
	SuspicionScore float64
}

// NewScorer creates a scorer with the given suspicion threshold
// (default 5 when non-positive).
func NewScorer(suspicionScore float64) *Scorer {
	if suspicionScore <= 0 {
		suspicionScore = 5
	}
	return &Scorer{SuspicionScore: suspicionScore}
}

// Scan scores the combined question and answer text. Reasons are
// category names, deduplicated and in table order.
func (s *Scorer) Scan(question, answer string) types.ThreatReport {
	text := question + "\n" + answer

	dampen := hasAny(educationalMarkers, text) && !hasAny(exploitationMarkers, text)

	var score float64
	var reasons []string
	seen := make(map[string]bool)

	for _, cat := range categories {
		matched := false
		for _, re := range cat.Patterns {
			if re.MatchString(text) {
				sev := cat.Severity
				if dampen {
					sev *= educationalDampening
				}
				score += sev
				matched = true
			}
		}
		if matched && !seen[cat.Name] {
			seen[cat.Name] = true
			reasons = append(reasons, cat.Name)
		}
	}

	report := types.ThreatReport{
		Score:      score,
		Suspicious: score >= s.SuspicionScore,
		Reasons:    reasons,
	}
	if report.Suspicious {
		logging.Threat("suspicious content: score=%.1f reasons=%s",
			score, strings.Join(reasons, ","))
	}
	return report
}

func hasAny(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
