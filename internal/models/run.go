package models

import "time"

// Run is a stored validation pass over one dataset snapshot
type Run struct {
	ID           string    `json:"id"`
	DatasetName  string    `json:"dataset_name"`
	Fingerprint  string    `json:"fingerprint"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
	Score        int       `json:"score"`
	Cached       bool      `json:"cached"`
	Findings     []Finding `json:"findings"`
	CreatedAt    time.Time `json:"created_at"`
}

// Valid reports whether the run produced no errors
func (r *Run) Valid() bool {
	return r.ErrorCount == 0
}

// RunFilters contains filters for listing runs
type RunFilters struct {
	DatasetName string
	Fingerprint string
	Limit       int
	Offset      int
}

// ValidateRequest is the body of an inline validation request
type ValidateRequest struct {
	Name    string  `json:"name,omitempty"`
	Dataset Dataset `json:"dataset"`
}

// FindingFilter narrows a finding list for display
type FindingFilter struct {
	Severity Severity
	Entity   EntityKind
	Check    string
}

// Apply returns the findings matching every non-empty filter field
func (f FindingFilter) Apply(findings []Finding) []Finding {
	if f.Severity == "" && f.Entity == "" && f.Check == "" {
		return findings
	}
	out := make([]Finding, 0, len(findings))
	for _, fd := range findings {
		if f.Severity != "" && fd.Severity != f.Severity {
			continue
		}
		if f.Entity != "" && fd.Entity != f.Entity {
			continue
		}
		if f.Check != "" && fd.Check != f.Check {
			continue
		}
		out = append(out, fd)
	}
	return out
}
