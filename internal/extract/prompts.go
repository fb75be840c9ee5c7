package extract

import "fmt"

// Analysis passes for deep mode, in execution order. A file's passes
// always complete in this order and are never skipped.
const (
	PassBasic         = "basic"
	PassRelationships = "relationships"
	PassEdgeCases     = "edge_cases"
	PassArchitecture  = "architecture"
	PassOptimization  = "optimization"
)

// DeepPasses is the ordered pass list for multi-pass (deep) mode.
var DeepPasses = []string{
	PassBasic,
	PassRelationships,
	PassEdgeCases,
	PassArchitecture,
	PassOptimization,
}

var passFocus = map[string]string{
	PassBasic:         "the main purpose of the file and what each significant function or section does",
	PassRelationships: "how this file relates to other modules: imports, call sites, data passed between components",
	PassEdgeCases:     "error handling, boundary conditions, and failure modes the code accounts for or misses",
	PassArchitecture:  "the design patterns and architectural decisions visible in this file and why they were chosen",
	PassOptimization:  "performance characteristics, hot paths, and opportunities for optimization",
}

const promptTemplate = `You are building a knowledge base about a codebase.
Analyze the file below and extract question/answer pairs about %s.

Respond with ONLY a JSON array, no prose:
[{"q": "...", "a": "...", "confidence": 0.0-1.0}]

Extract at most 5 pairs. Skip anything you are unsure about.

File: %s
---
%s
---`

// PromptForPass builds the extraction prompt for one analysis pass.
// Unknown pass names fall back to the basic focus.
func PromptForPass(pass, filename, content string) string {
	focus, ok := passFocus[pass]
	if !ok {
		focus = passFocus[PassBasic]
	}
	return fmt.Sprintf(promptTemplate, focus, filename, content)
}
