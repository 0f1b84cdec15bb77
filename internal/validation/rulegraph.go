package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// frame is one entry of the explicit DFS recursion stack
type frame struct {
	node   string
	parent string
	next   int
}

// cycleSearch is the outcome of one per-rule traversal
type cycleSearch struct {
	// path holds the stack from the rule node to the node closing the cycle
	path []string
	// cyclic is set when any back edge was seen, through the rule or not
	cyclic  bool
	visited map[string]bool
}

// searchCycleThrough walks the co-run membership graph from rule node root
// and stops at the first back edge into root. Bookkeeping is local to the call.
func (s *snapshot) searchCycleThrough(root string) cycleSearch {
	res := cycleSearch{visited: map[string]bool{root: true}}
	onStack := map[string]bool{root: true}
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		neighbors := s.graph[top.node]
		if top.next >= len(neighbors) {
			delete(onStack, top.node)
			stack = stack[:len(stack)-1]
			continue
		}

		next := neighbors[top.next]
		top.next++
		if next == top.parent {
			continue
		}

		if onStack[next] {
			res.cyclic = true
			if next == root {
				res.path = make([]string, len(stack))
				for i, f := range stack {
					res.path[i] = f.node
				}
				return res
			}
			continue
		}
		if res.visited[next] {
			continue
		}

		res.visited[next] = true
		onStack[next] = true
		stack = append(stack, frame{node: next, parent: top.node})
	}

	return res
}

// checkCoRunCycles flags each co-run rule that lies on a cycle of partially
// overlapping groups, e.g. {T1,T2}, {T2,T3}, {T3,T1}. A single group is never
// a cycle by itself. Each rule is reported at most once. Components proven
// acyclic are remembered so later rules inside them are not searched again.
func checkCoRunCycles(s *snapshot) []models.Finding {
	var out []models.Finding
	cleared := make(map[string]bool)

	for _, g := range s.coRuns {
		if len(g.tasks) < 2 {
			continue
		}
		if allCleared(cleared, g.tasks) {
			continue
		}

		res := s.searchCycleThrough(g.node)
		if res.path != nil {
			out = append(out, s.cycleFinding(g, res.path))
			continue
		}
		if !res.cyclic {
			for node := range res.visited {
				cleared[node] = true
			}
		}
	}

	return out
}

func allCleared(cleared map[string]bool, tasks []string) bool {
	for _, t := range tasks {
		if !cleared[taskNode(t)] {
			return false
		}
	}
	return true
}

func (s *snapshot) cycleFinding(g coRunGroup, path []string) models.Finding {
	var tasks, rules []string
	for _, node := range path {
		switch {
		case strings.HasPrefix(node, "t:"):
			tasks = append(tasks, strings.TrimPrefix(node, "t:"))
		case strings.HasPrefix(node, "r:") && node != g.node:
			idx, _ := strconv.Atoi(strings.TrimPrefix(node, "r:"))
			rules = append(rules, s.ds.Rules[idx].DisplayName())
		}
	}
	if len(tasks) > 0 {
		tasks = append(tasks, tasks[0])
	}

	return models.Finding{
		ID:       findingKey(models.EntityTasks, g.ref, CheckCoRunCycles),
		Check:    CheckCoRunCycles,
		Severity: models.SeverityError,
		Entity:   models.EntityTasks,
		EntityID: g.ref,
		Field:    "parameters.tasks",
		RuleID:   g.ref,
		Message: fmt.Sprintf("Co-run rule %q closes a circular grouping %s through rules %s",
			g.rule.DisplayName(), strings.Join(tasks, " -> "), strings.Join(rules, ", ")),
		Suggestion: "Merge the overlapping co-run rules into one group or remove the shared tasks",
	}
}

// checkPhaseWindowConflicts reports co-run groups whose members share no
// phase in which all of them may run.
func checkPhaseWindowConflicts(s *snapshot) []models.Finding {
	var out []models.Finding

	for _, g := range s.coRuns {
		var common map[int]struct{}
		var details []string

		for _, task := range g.tasks {
			phases, source, restricted := s.allowedPhases(task)
			if !restricted {
				continue
			}
			details = append(details, fmt.Sprintf("%s {%s} (%s)", task, joinInts(sortedPhases(phases)), source))
			if common == nil {
				common = make(map[int]struct{}, len(phases))
				for p := range phases {
					common[p] = struct{}{}
				}
				continue
			}
			common = intersect(common, phases)
		}

		if common == nil || len(common) > 0 {
			continue
		}

		out = append(out, models.Finding{
			ID:       findingKey(models.EntityTasks, g.ref, CheckPhaseWindowConflicts),
			Check:    CheckPhaseWindowConflicts,
			Severity: models.SeverityError,
			Entity:   models.EntityTasks,
			EntityID: g.ref,
			Field:    "parameters.tasks",
			RuleID:   g.ref,
			Message: fmt.Sprintf("Co-run rule %q groups tasks %s that share no common phase: %s",
				g.rule.DisplayName(), strings.Join(g.tasks, ", "), strings.Join(details, "; ")),
			Suggestion: "Widen a phase window or the preferred phases so every grouped task shares at least one phase",
		})
	}

	return out
}
