package validation

import (
	"fmt"
	"sort"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// Capacity findings are warnings: they flag scheduling risk, not invalid data.

// defaultPhase receives the demand of tasks without preferred phases
const defaultPhase = 1

func checkWorkerOverload(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		if !w.MaxLoadPerPhase.Valid() {
			continue
		}
		slots := len(w.AvailableSlots.Valid())
		maxLoad := w.MaxLoadPerPhase.Value
		if slots >= maxLoad {
			continue
		}

		ref := recordRef(w.Key(), i)
		out = append(out, models.Finding{
			ID:       findingKey(models.EntityWorkers, ref, CheckWorkerOverload, "max_load_per_phase"),
			Check:    CheckWorkerOverload,
			Severity: models.SeverityWarning,
			Entity:   models.EntityWorkers,
			EntityID: ref,
			Field:    "max_load_per_phase",
			Message: fmt.Sprintf("Worker %s has max_load_per_phase %d but only %d available slot(s)",
				ref, maxLoad, slots),
			Suggestion: "Lower max_load_per_phase or add available slots",
		})
	}

	return out
}

// taskPhases returns the phases a task's demand is attributed to
func taskPhases(t *models.Task) []int {
	if phases := t.PreferredPhases.Valid(); len(phases) > 0 {
		return phases
	}
	return []int{defaultPhase}
}

func checkPhaseSaturation(s *snapshot) []models.Finding {
	available := make(map[int]int)
	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		if !w.MaxLoadPerPhase.Valid() || w.MaxLoadPerPhase.Value < 1 {
			continue
		}
		for _, p := range w.AvailableSlots.Valid() {
			available[p] += w.MaxLoadPerPhase.Value
		}
	}

	required := make(map[int]int)
	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		if !t.Duration.Valid() || t.Duration.Value < 1 {
			continue
		}
		for _, p := range taskPhases(t) {
			required[p] += t.Duration.Value
		}
	}

	phases := make([]int, 0, len(required))
	for p := range required {
		phases = append(phases, p)
	}
	sort.Ints(phases)

	var out []models.Finding
	for _, p := range phases {
		if required[p] <= available[p] {
			continue
		}
		ref := fmt.Sprintf("phase-%d", p)
		out = append(out, models.Finding{
			ID:         findingKey(models.EntityTasks, ref, CheckPhaseSaturation),
			Check:      CheckPhaseSaturation,
			Severity:   models.SeverityWarning,
			Entity:     models.EntityTasks,
			EntityID:   ref,
			Field:      "preferred_phases",
			Message:    fmt.Sprintf("Phase %d is saturated: required %d, available %d", p, required[p], available[p]),
			Suggestion: fmt.Sprintf("Move tasks out of phase %d or add worker capacity in it", p),
		})
	}

	return out
}

func checkSkillCoverage(s *snapshot) []models.Finding {
	skills := make(map[string]struct{})
	for i := range s.ds.Workers {
		for _, sk := range s.ds.Workers[i].Skills {
			skills[sk] = struct{}{}
		}
	}

	var out []models.Finding
	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		ref := recordRef(t.Key(), i)
		for _, sk := range uniqueTrimmed(t.RequiredSkills) {
			if _, ok := skills[sk]; ok {
				continue
			}
			out = append(out, models.Finding{
				ID:         findingKey(models.EntityTasks, ref, CheckSkillCoverage, sk),
				Check:      CheckSkillCoverage,
				Severity:   models.SeverityWarning,
				Entity:     models.EntityTasks,
				EntityID:   ref,
				Field:      "required_skills",
				Message:    fmt.Sprintf("Task %s requires skill %q that no worker has", ref, sk),
				Suggestion: fmt.Sprintf("Add a worker with %q or drop it from the task", sk),
			})
		}
	}

	return out
}

// qualifiedWorkers returns the workers whose skills cover the task's requirements
func (s *snapshot) qualifiedWorkers(t *models.Task) []*models.Worker {
	var out []*models.Worker
	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		if w.HasSkills(t.RequiredSkills) {
			out = append(out, w)
		}
	}
	return out
}

func checkConcurrencyQualified(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		if !t.MaxConcurrent.Valid() || t.MaxConcurrent.Value < 1 {
			continue
		}
		want := t.MaxConcurrent.Value
		qualified := len(s.qualifiedWorkers(t))
		if want <= qualified {
			continue
		}

		ref := recordRef(t.Key(), i)
		out = append(out, models.Finding{
			ID:       findingKey(models.EntityTasks, ref, CheckConcurrencyQualified, "max_concurrent"),
			Check:    CheckConcurrencyQualified,
			Severity: models.SeverityWarning,
			Entity:   models.EntityTasks,
			EntityID: ref,
			Field:    "max_concurrent",
			Message: fmt.Sprintf("Task %s has max_concurrent %d but only %d qualified worker(s)",
				ref, want, qualified),
			Suggestion: "Lower max_concurrent or add workers with the required skills",
		})
	}

	return out
}

// checkConcurrencyAvailable narrows qualified workers to those free in at
// least one of the task's preferred phases; a task without preferred phases
// accepts any worker with an available slot.
func checkConcurrencyAvailable(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		if !t.MaxConcurrent.Valid() || t.MaxConcurrent.Value < 1 {
			continue
		}
		want := t.MaxConcurrent.Value
		preferred := t.PreferredPhases.Valid()

		available := 0
		for _, w := range s.qualifiedWorkers(t) {
			slots := w.AvailableSlots.Valid()
			if len(preferred) == 0 {
				if len(slots) > 0 {
					available++
				}
				continue
			}
			for _, p := range preferred {
				if w.AvailableSlots.Contains(p) {
					available++
					break
				}
			}
		}
		if want <= available {
			continue
		}

		ref := recordRef(t.Key(), i)
		where := "in any phase"
		if len(preferred) > 0 {
			where = "in preferred phases " + joinInts(preferred)
		}
		out = append(out, models.Finding{
			ID:       findingKey(models.EntityTasks, ref, CheckConcurrencyAvailable, "max_concurrent"),
			Check:    CheckConcurrencyAvailable,
			Severity: models.SeverityWarning,
			Entity:   models.EntityTasks,
			EntityID: ref,
			Field:    "max_concurrent",
			Message: fmt.Sprintf("Task %s has max_concurrent %d but only %d qualified worker(s) are available %s",
				ref, want, available, where),
			Suggestion: "Lower max_concurrent, widen the preferred phases, or free up qualified workers",
		})
	}

	return out
}
