// Package extract turns raw signals and generator responses into
// structured knowledge candidates. Generator output is free text that
// only usually contains JSON, so parsing is an ordered chain of
// attempts; when every strategy fails a small heuristic still produces
// a couple of low-confidence candidates instead of none.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"mnemos/internal/logging"
	"mnemos/internal/types"
)

// Legacy field aliases accepted at this boundary only. Older store
// formats used q/a and input/output; everything downstream sees the
// canonical Candidate struct.
var (
	questionAliases = []string{"question", "q", "input"}
	answerAliases   = []string{"answer", "a", "output"}
	confAliases     = []string{"confidence", "conf", "score"}
)

// NormalizeCandidate converts a loosely-shaped map into a canonical
// Candidate. Returns false when either the question or answer is
// missing or blank under every alias.
func NormalizeCandidate(raw map[string]interface{}) (types.Candidate, bool) {
	q := firstString(raw, questionAliases)
	a := firstString(raw, answerAliases)
	if q == "" || a == "" {
		return types.Candidate{}, false
	}

	c := types.Candidate{
		Question:   q,
		Answer:     a,
		Confidence: firstFloat(raw, confAliases, 0.5),
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return c, true
}

// FromSignal extracts candidates from a signal payload. A signal-derived
// candidate requires both a question and an answer; absent either, the
// result is empty.
func FromSignal(signal map[string]interface{}) []types.Candidate {
	c, ok := NormalizeCandidate(signal)
	if !ok {
		return nil
	}
	return []types.Candidate{c}
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	bracketRe     = regexp.MustCompile(`(?s)\[.*\]`)
)

// ParseGenerated parses generator output into candidates. Strategies in
// order: direct JSON array parse, extraction from a fenced code block,
// extraction of the first [...] span. If all fail, Heuristic supplies a
// fallback from the original file content when provided.
func ParseGenerated(text, fileContent string) []types.Candidate {
	for _, attempt := range []func(string) ([]types.Candidate, bool){
		parseDirect,
		parseFenced,
		parseBracketSpan,
	} {
		if cands, ok := attempt(text); ok {
			return cands
		}
	}

	logging.Get(logging.CategoryGenerator).Debug(
		"all parse strategies failed (%d bytes), falling back to heuristic", len(text))
	return Heuristic(fileContent)
}

func parseDirect(text string) ([]types.Candidate, bool) {
	return tryUnmarshal(strings.TrimSpace(text))
}

func parseFenced(text string) ([]types.Candidate, bool) {
	m := fencedBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return tryUnmarshal(strings.TrimSpace(m[1]))
}

func parseBracketSpan(text string) ([]types.Candidate, bool) {
	m := bracketRe.FindString(text)
	if m == "" {
		return nil, false
	}
	return tryUnmarshal(m)
}

// tryUnmarshal decodes a JSON array of loosely-shaped objects. Objects
// missing a question or answer are dropped rather than failing the
// whole array.
func tryUnmarshal(s string) ([]types.Candidate, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, false
	}

	var out []types.Candidate
	for _, row := range rows {
		if c, ok := NormalizeCandidate(row); ok {
			out = append(out, c)
		}
	}
	return out, true
}

// heuristicConfidence marks candidates produced without the generator.
const heuristicConfidence = 0.3

var (
	headingRe   = regexp.MustCompile(`(?m)^\s*(?:#{1,4}\s+|//+\s+|"""\s*|'''\s*)(.{8,160})$`)
	todoRe      = regexp.MustCompile(`(?mi)^.*\b(?:TODO|FIXME)[:\s]+(.{4,160})$`)
)

// Heuristic produces at most two low-confidence candidates from raw
// file content: the first heading or docstring line and the first TODO
// line. Better than silently learning nothing from a file the
// generator could not help with.
func Heuristic(content string) []types.Candidate {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var out []types.Candidate
	if m := headingRe.FindStringSubmatch(content); m != nil {
		line := strings.TrimSpace(m[1])
		out = append(out, types.Candidate{
			Question:   "What is this section about?",
			Answer:     line,
			Confidence: heuristicConfidence,
			Source:     "heuristic",
		})
	}
	if m := todoRe.FindStringSubmatch(content); m != nil {
		line := strings.TrimSpace(m[1])
		out = append(out, types.Candidate{
			Question:   "What work is still outstanding here?",
			Answer:     line,
			Confidence: heuristicConfidence,
			Source:     "heuristic",
		})
	}
	return out
}
