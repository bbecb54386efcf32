package migrate

import (
	"go.uber.org/multierr"

	"github.com/mesh-intelligence/cardshelf/internal/cycles"
	"github.com/mesh-intelligence/cardshelf/internal/versions"
)

// StepResult is the outcome of one table in one phase.
type StepResult struct {
	Phase         State  `json:"phase"`
	Table         string `json:"table"`
	SourceVersion int    `json:"source_version"`
	Rows          int    `json:"rows"`
	Failed        bool   `json:"failed"`
	Errors        int    `json:"errors,omitempty"`
}

// Report describes one upgrade attempt.
type Report struct {
	RunID          string                  `json:"run_id"`
	OK             bool                    `json:"ok"`
	State          State                   `json:"state"`
	Classification versions.Classification `json:"classification"`
	Steps          []StepResult            `json:"steps"`
	Messages       []string                `json:"messages,omitempty"`
	// StagedCycles lists cycles found in the staged card sets.
	StagedCycles []cycles.Repair `json:"staged_cycles,omitempty"`
	// Warning is set when the live store may have been left inconsistent.
	Warning string `json:"warning,omitempty"`
}

// addErrors appends one message per accumulated error, flattening both
// multierr groups and errors wrapped with several %w verbs.
func (r *Report) addErrors(err error) {
	for _, e := range multierr.Errors(err) {
		if group, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range group.Unwrap() {
				r.addErrors(inner)
			}
			continue
		}
		r.Messages = append(r.Messages, e.Error())
	}
}

// FailedTables returns the tables with a failed step.
func (r *Report) FailedTables() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range r.Steps {
		if s.Failed && !seen[s.Table] {
			seen[s.Table] = true
			out = append(out, s.Table)
		}
	}
	return out
}
