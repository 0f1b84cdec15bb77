package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/terra-clan/dataset-validator/internal/models"
)

func ruleFinding(r *models.BusinessRule, ref string, kind models.EntityKind, sev models.Severity, qualifier, field, msg, suggestion string) models.Finding {
	return models.Finding{
		ID:         findingKey(kind, ref, CheckRuleReferences, qualifier),
		Check:      CheckRuleReferences,
		Severity:   sev,
		Entity:     kind,
		EntityID:   ref,
		Field:      field,
		RuleID:     ref,
		Message:    fmt.Sprintf("Rule %q: %s", r.DisplayName(), msg),
		Suggestion: suggestion,
	}
}

// checkRuleReferences verifies that rule parameters point at things that
// exist and are well formed.
func checkRuleReferences(s *snapshot) []models.Finding {
	var out []models.Finding

	workerGroups := make(map[string]struct{})
	for i := range s.ds.Workers {
		if g := strings.TrimSpace(s.ds.Workers[i].WorkerGroup); g != "" {
			workerGroups[g] = struct{}{}
		}
	}
	clientGroups := make(map[string]struct{})
	for i := range s.ds.Clients {
		if g := strings.TrimSpace(s.ds.Clients[i].GroupTag); g != "" {
			clientGroups[g] = struct{}{}
		}
	}
	ruleIDs := make(map[string]struct{}, len(s.ds.Rules))
	for i := range s.ds.Rules {
		if id := strings.TrimSpace(s.ds.Rules[i].ID); id != "" {
			ruleIDs[id] = struct{}{}
		}
	}

	for i := range s.ds.Rules {
		r := &s.ds.Rules[i]
		ref := ruleRef(r, i)

		switch p := r.Params.(type) {
		case models.CoRunParams:
			tasks := uniqueTrimmed(p.Tasks)
			if len(tasks) < 2 {
				out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityWarning, "size", "parameters.tasks",
					fmt.Sprintf("co-run group lists %d distinct task(s)", len(tasks)),
					"A co-run group needs at least two tasks"))
			}
			for _, t := range tasks {
				if _, ok := s.tasks[t]; !ok {
					out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, t, "parameters.tasks",
						fmt.Sprintf("references unknown task %q", t),
						fmt.Sprintf("Remove %q from the group or add the task", t)))
				}
			}

		case models.PhaseWindowParams:
			t := strings.TrimSpace(p.TaskID)
			if _, ok := s.tasks[t]; !ok {
				out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, "task", "parameters.task_id",
					fmt.Sprintf("references unknown task %q", t),
					"Point the phase window at an existing task"))
			}
			if p.AllowedPhases.IsEmpty() {
				out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, "empty", "parameters.allowed_phases",
					"phase window allows no phases",
					"List at least one phase in allowed_phases or remove the rule"))
			}
			for _, ph := range p.AllowedPhases.Phases {
				if ph < 1 {
					out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, "phases", "parameters.allowed_phases",
						fmt.Sprintf("allows phase %d, phases are numbered from 1", ph),
						"Remove non-positive phases from the window"))
					break
				}
			}
			if len(p.AllowedPhases.Malformed) > 0 {
				out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, "malformed", "parameters.allowed_phases",
					fmt.Sprintf("allowed_phases has unparsable entries %s", strings.Join(p.AllowedPhases.Malformed, ", ")),
					"Use whole phase numbers such as 1,2 or a range like 1-3"))
			}

		case models.LoadLimitParams:
			g := strings.TrimSpace(p.WorkerGroup)
			if _, ok := workerGroups[g]; !ok {
				out = append(out, ruleFinding(r, ref, models.EntityWorkers, models.SeverityWarning, "group", "parameters.worker_group",
					fmt.Sprintf("no worker belongs to group %q", g),
					"Check the worker group name"))
			}
			if p.MaxSlotsPerPhase < 1 {
				out = append(out, ruleFinding(r, ref, models.EntityWorkers, models.SeverityError, "limit", "parameters.max_slots_per_phase",
					fmt.Sprintf("max_slots_per_phase is %d, expected at least 1", p.MaxSlotsPerPhase),
					"Set max_slots_per_phase to 1 or more"))
			}

		case models.SlotRestrictionParams:
			kind, group, known := models.EntityWorkers, strings.TrimSpace(p.WorkerGroup), workerGroups
			if cg := strings.TrimSpace(p.ClientGroup); cg != "" {
				kind, group, known = models.EntityClients, cg, clientGroups
			}
			if _, ok := known[group]; !ok {
				out = append(out, ruleFinding(r, ref, kind, models.SeverityWarning, "group", "parameters",
					fmt.Sprintf("no %s belong to group %q", kind, group),
					"Check the group name"))
			}
			if p.MinCommonSlots < 1 {
				out = append(out, ruleFinding(r, ref, kind, models.SeverityError, "slots", "parameters.min_common_slots",
					fmt.Sprintf("min_common_slots is %d, expected at least 1", p.MinCommonSlots),
					"Set min_common_slots to 1 or more"))
			}

		case models.PatternMatchParams:
			if _, err := regexp.Compile(p.Regex); err != nil {
				out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityError, "regex", "parameters.regex",
					fmt.Sprintf("regex %q does not compile: %v", p.Regex, err),
					"Fix the regular expression"))
			}

		case models.PrecedenceOverrideParams:
			for _, id := range uniqueTrimmed(p.RuleIDs) {
				if _, ok := ruleIDs[id]; !ok {
					out = append(out, ruleFinding(r, ref, models.EntityTasks, models.SeverityWarning, id, "parameters.rule_ids",
						fmt.Sprintf("orders unknown rule %q", id),
						"Remove the unknown rule from the precedence list"))
				}
			}
		}
	}

	return out
}
