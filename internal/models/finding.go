package models

// Severity distinguishes must-fix findings from should-review ones
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// EntityKind names the collection a finding points into
type EntityKind string

const (
	EntityClients EntityKind = "clients"
	EntityWorkers EntityKind = "workers"
	EntityTasks   EntityKind = "tasks"
)

// Finding is one validation outcome tied to a record or rule and the check
// that produced it. ID is stable across runs on unchanged input.
type Finding struct {
	ID         string     `json:"id"`
	Check      string     `json:"check"`
	Severity   Severity   `json:"severity"`
	Entity     EntityKind `json:"entity"`
	EntityID   string     `json:"entity_id"`
	Field      string     `json:"field,omitempty"`
	RuleID     string     `json:"rule_id,omitempty"`
	Message    string     `json:"message"`
	Suggestion string     `json:"suggestion,omitempty"`
}

// IsError reports whether the finding must be fixed
func (f *Finding) IsError() bool {
	return f.Severity == SeverityError
}
