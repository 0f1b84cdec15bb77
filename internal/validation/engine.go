// Package validation certifies that a dataset of clients, workers, tasks and
// business rules is internally consistent and operationally feasible.
//
// The engine is a pure function of its input: it never mutates the dataset,
// keeps no state between calls, and returns findings in check-declaration
// order so that repeated runs produce identical lists and identical IDs.
package validation

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// Check names, in the order their findings are reported
const (
	CheckRequiredFields        = "required-fields"
	CheckMalformedLists        = "malformed-lists"
	CheckValueRanges           = "value-ranges"
	CheckMalformedAttributes   = "malformed-attributes"
	CheckDuplicateIDs          = "duplicate-ids"
	CheckUnknownTaskReferences = "unknown-task-references"
	CheckCoRunCycles           = "co-run-cycles"
	CheckPhaseWindowConflicts  = "phase-window-conflicts"
	CheckRuleReferences        = "rule-references"
	CheckWorkerOverload        = "worker-overload"
	CheckPhaseSaturation       = "phase-saturation"
	CheckSkillCoverage         = "skill-coverage"
	CheckConcurrencyQualified  = "concurrency-qualified"
	CheckConcurrencyAvailable  = "concurrency-available"
)

// check is one independent pass over the shared snapshot
type check struct {
	name string
	run  func(s *snapshot) []models.Finding
}

var checks = []check{
	{CheckRequiredFields, checkRequiredFields},
	{CheckMalformedLists, checkMalformedLists},
	{CheckValueRanges, checkValueRanges},
	{CheckMalformedAttributes, checkMalformedAttributes},
	{CheckDuplicateIDs, checkDuplicateIDs},
	{CheckUnknownTaskReferences, checkUnknownTaskReferences},
	{CheckCoRunCycles, checkCoRunCycles},
	{CheckPhaseWindowConflicts, checkPhaseWindowConflicts},
	{CheckRuleReferences, checkRuleReferences},
	{CheckWorkerOverload, checkWorkerOverload},
	{CheckPhaseSaturation, checkPhaseSaturation},
	{CheckSkillCoverage, checkSkillCoverage},
	{CheckConcurrencyQualified, checkConcurrencyQualified},
	{CheckConcurrencyAvailable, checkConcurrencyAvailable},
}

// CheckNames returns the declared checks in reporting order
func CheckNames() []string {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.name
	}
	return names
}

// Engine runs the check pipeline
type Engine struct {
	parallel   bool
	maxWorkers int
}

// Option configures an Engine
type Option func(*Engine)

// WithParallel runs checks concurrently. Output order is unaffected.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

// WithMaxWorkers bounds the number of checks running at once in parallel mode
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// New creates an Engine
func New(opts ...Option) *Engine {
	e := &Engine{maxWorkers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parallel reports whether checks run concurrently
func (e *Engine) Parallel() bool {
	return e.parallel
}

// Validate runs every check against ds and returns the concatenated findings
func (e *Engine) Validate(ds models.Dataset) []models.Finding {
	snap := newSnapshot(&ds)
	results := make([][]models.Finding, len(checks))

	if e.parallel {
		var g errgroup.Group
		g.SetLimit(e.maxWorkers)
		for i, c := range checks {
			i, c := i, c
			g.Go(func() error {
				results[i] = c.run(snap)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, c := range checks {
			results[i] = c.run(snap)
		}
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]models.Finding, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	assignIDs(out)
	return out
}

// Validate runs the sequential engine over ds
func Validate(ds models.Dataset) []models.Finding {
	return New().Validate(ds)
}

var findingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/terra-clan/dataset-validator/findings"))

// assignIDs replaces each finding's derivation key with a UUIDv5. Keys that
// repeat (records sharing a duplicated primary key) get an occurrence suffix.
func assignIDs(findings []models.Finding) {
	seen := make(map[string]int, len(findings))
	for i := range findings {
		key := findings[i].ID
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		findings[i].ID = uuid.NewSHA1(findingNamespace, []byte(key)).String()
	}
}
