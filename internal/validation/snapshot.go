package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// snapshot is the read-only view shared by every check. It is built once per
// Validate call and never written after newSnapshot returns.
type snapshot struct {
	ds *models.Dataset

	// tasks maps each task ID to its first record
	tasks map[string]*models.Task

	// windows holds explicit phase-window restrictions per task; several
	// windows on one task are intersected
	windows map[string]map[int]struct{}

	coRuns []coRunGroup

	// graph is the undirected membership graph of co-run rules: task nodes
	// ("t:<id>") link to the rule nodes ("r:<index>") that list them
	graph map[string][]string
}

type coRunGroup struct {
	rule  *models.BusinessRule
	ref   string
	node  string
	tasks []string
}

func newSnapshot(ds *models.Dataset) *snapshot {
	s := &snapshot{
		ds:      ds,
		tasks:   make(map[string]*models.Task, len(ds.Tasks)),
		windows: make(map[string]map[int]struct{}),
		graph:   make(map[string][]string),
	}

	for i := range ds.Tasks {
		t := &ds.Tasks[i]
		if key := t.Key(); key != "" {
			if _, ok := s.tasks[key]; !ok {
				s.tasks[key] = t
			}
		}
	}

	for i := range ds.Rules {
		r := &ds.Rules[i]
		switch p := r.Params.(type) {
		case models.CoRunParams:
			g := coRunGroup{
				rule:  r,
				ref:   ruleRef(r, i),
				node:  "r:" + strconv.Itoa(i),
				tasks: uniqueTrimmed(p.Tasks),
			}
			for _, task := range g.tasks {
				tn := taskNode(task)
				s.graph[g.node] = append(s.graph[g.node], tn)
				s.graph[tn] = append(s.graph[tn], g.node)
			}
			s.coRuns = append(s.coRuns, g)
		case models.PhaseWindowParams:
			task := strings.TrimSpace(p.TaskID)
			if task == "" {
				continue
			}
			valid := p.AllowedPhases.Valid()
			if len(valid) == 0 {
				// an unusable window is reported by the rule reference check
				continue
			}
			allowed := make(map[int]struct{}, len(valid))
			for _, ph := range valid {
				allowed[ph] = struct{}{}
			}
			if prev, ok := s.windows[task]; ok {
				allowed = intersect(prev, allowed)
			}
			s.windows[task] = allowed
		}
	}

	return s
}

// allowedPhases resolves the phases a task may run in. An explicit window
// wins over the task's own preference; with neither the task is unrestricted.
func (s *snapshot) allowedPhases(task string) (phases map[int]struct{}, source string, restricted bool) {
	if w, ok := s.windows[task]; ok {
		return w, "phase window", true
	}
	if t, ok := s.tasks[task]; ok {
		if valid := t.PreferredPhases.Valid(); len(valid) > 0 {
			set := make(map[int]struct{}, len(valid))
			for _, p := range valid {
				set[p] = struct{}{}
			}
			return set, "preferred phases", true
		}
	}
	return nil, "", false
}

func taskNode(id string) string {
	return "t:" + id
}

// findingKey is the derivation key later hashed into a finding ID
func findingKey(kind models.EntityKind, entityID, check string, qualifiers ...string) string {
	parts := append([]string{string(kind), entityID, check}, qualifiers...)
	return strings.Join(parts, "/")
}

// recordRef names a record by key, or by position when the key is blank
func recordRef(key string, index int) string {
	if key != "" {
		return key
	}
	return fmt.Sprintf("row-%d", index+1)
}

func ruleRef(r *models.BusinessRule, index int) string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return fmt.Sprintf("rule-%d", index+1)
}

func singular(kind models.EntityKind) string {
	switch kind {
	case models.EntityClients:
		return "Client"
	case models.EntityWorkers:
		return "Worker"
	default:
		return "Task"
	}
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func intersect(a, b map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func sortedPhases(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
