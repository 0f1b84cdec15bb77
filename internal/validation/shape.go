package validation

import (
	"fmt"
	"strings"

	"github.com/terra-clan/dataset-validator/internal/models"
)

func missingField(kind models.EntityKind, ref, field string) models.Finding {
	return models.Finding{
		ID:         findingKey(kind, ref, CheckRequiredFields, field),
		Check:      CheckRequiredFields,
		Severity:   models.SeverityError,
		Entity:     kind,
		EntityID:   ref,
		Field:      field,
		Message:    fmt.Sprintf("%s %s is missing required field %s", singular(kind), ref, field),
		Suggestion: fmt.Sprintf("Provide a value for %s", field),
	}
}

func checkRequiredFields(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Clients {
		c := &s.ds.Clients[i]
		ref := recordRef(c.Key(), i)
		if c.Key() == "" {
			out = append(out, missingField(models.EntityClients, ref, "client_id"))
		}
		if strings.TrimSpace(c.ClientName) == "" {
			out = append(out, missingField(models.EntityClients, ref, "client_name"))
		}
		if !c.PriorityLevel.Set {
			out = append(out, missingField(models.EntityClients, ref, "priority_level"))
		}
	}

	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		ref := recordRef(w.Key(), i)
		if w.Key() == "" {
			out = append(out, missingField(models.EntityWorkers, ref, "worker_id"))
		}
		if strings.TrimSpace(w.WorkerName) == "" {
			out = append(out, missingField(models.EntityWorkers, ref, "worker_name"))
		}
		if len(w.Skills) == 0 {
			out = append(out, missingField(models.EntityWorkers, ref, "skills"))
		}
		if w.AvailableSlots.IsEmpty() {
			out = append(out, missingField(models.EntityWorkers, ref, "available_slots"))
		}
		if !w.MaxLoadPerPhase.Set {
			out = append(out, missingField(models.EntityWorkers, ref, "max_load_per_phase"))
		}
	}

	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		ref := recordRef(t.Key(), i)
		if t.Key() == "" {
			out = append(out, missingField(models.EntityTasks, ref, "task_id"))
		}
		if strings.TrimSpace(t.TaskName) == "" {
			out = append(out, missingField(models.EntityTasks, ref, "task_name"))
		}
		if !t.Duration.Set {
			out = append(out, missingField(models.EntityTasks, ref, "duration"))
		}
		if len(t.RequiredSkills) == 0 {
			out = append(out, missingField(models.EntityTasks, ref, "required_skills"))
		}
	}

	return out
}

func malformedList(kind models.EntityKind, ref, field string, bad []string) models.Finding {
	return models.Finding{
		ID:       findingKey(kind, ref, CheckMalformedLists, field),
		Check:    CheckMalformedLists,
		Severity: models.SeverityError,
		Entity:   kind,
		EntityID: ref,
		Field:    field,
		Message: fmt.Sprintf("%s %s has non-numeric entries in %s: %s",
			singular(kind), ref, field, strings.Join(bad, ", ")),
		Suggestion: "Use whole phase numbers such as 1, 2 or ranges such as 1-3",
	}
}

func checkMalformedLists(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		if len(w.AvailableSlots.Malformed) > 0 {
			out = append(out, malformedList(models.EntityWorkers, recordRef(w.Key(), i), "available_slots", w.AvailableSlots.Malformed))
		}
	}

	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		if len(t.PreferredPhases.Malformed) > 0 {
			out = append(out, malformedList(models.EntityTasks, recordRef(t.Key(), i), "preferred_phases", t.PreferredPhases.Malformed))
		}
	}

	return out
}

// intBounds reports a non-integer value or one outside [lo, hi].
// hi <= 0 means no upper bound. Absent fields are left to checkRequiredFields.
func intBounds(kind models.EntityKind, ref, field string, f models.IntField, lo, hi int) []models.Finding {
	base := models.Finding{
		ID:       findingKey(kind, ref, CheckValueRanges, field),
		Check:    CheckValueRanges,
		Severity: models.SeverityError,
		Entity:   kind,
		EntityID: ref,
		Field:    field,
	}

	switch {
	case !f.Set:
		return nil
	case f.Raw != "":
		base.Message = fmt.Sprintf("%s %s has a non-integer %s: %q", singular(kind), ref, field, f.Raw)
		base.Suggestion = fmt.Sprintf("Set %s to a whole number", field)
	case f.Value < lo || (hi > 0 && f.Value > hi):
		if hi > 0 {
			base.Message = fmt.Sprintf("%s %s has %s %d outside the range %d-%d", singular(kind), ref, field, f.Value, lo, hi)
			base.Suggestion = fmt.Sprintf("Set %s between %d and %d", field, lo, hi)
		} else {
			base.Message = fmt.Sprintf("%s %s has %s %d, expected at least %d", singular(kind), ref, field, f.Value, lo)
			base.Suggestion = fmt.Sprintf("Set %s to %d or more", field, lo)
		}
	default:
		return nil
	}

	return []models.Finding{base}
}

func phaseBounds(kind models.EntityKind, ref, field string, p models.PhaseList) []models.Finding {
	var bad []int
	for _, n := range p.Phases {
		if n < 1 {
			bad = append(bad, n)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return []models.Finding{{
		ID:         findingKey(kind, ref, CheckValueRanges, field),
		Check:      CheckValueRanges,
		Severity:   models.SeverityError,
		Entity:     kind,
		EntityID:   ref,
		Field:      field,
		Message:    fmt.Sprintf("%s %s lists phase numbers below 1 in %s: %s", singular(kind), ref, field, joinInts(bad)),
		Suggestion: "Phases are numbered from 1",
	}}
}

func checkValueRanges(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Clients {
		c := &s.ds.Clients[i]
		ref := recordRef(c.Key(), i)
		out = append(out, intBounds(models.EntityClients, ref, "priority_level", c.PriorityLevel, 1, 5)...)
	}

	for i := range s.ds.Workers {
		w := &s.ds.Workers[i]
		ref := recordRef(w.Key(), i)
		out = append(out, phaseBounds(models.EntityWorkers, ref, "available_slots", w.AvailableSlots)...)
		out = append(out, intBounds(models.EntityWorkers, ref, "max_load_per_phase", w.MaxLoadPerPhase, 1, 0)...)
		if w.QualificationLevel.Set && w.QualificationLevel.Raw != "" {
			out = append(out, intBounds(models.EntityWorkers, ref, "qualification_level", w.QualificationLevel, 0, 0)...)
		}
	}

	for i := range s.ds.Tasks {
		t := &s.ds.Tasks[i]
		ref := recordRef(t.Key(), i)
		out = append(out, intBounds(models.EntityTasks, ref, "duration", t.Duration, 1, 0)...)
		out = append(out, phaseBounds(models.EntityTasks, ref, "preferred_phases", t.PreferredPhases)...)
		out = append(out, intBounds(models.EntityTasks, ref, "max_concurrent", t.MaxConcurrent, 1, 0)...)
	}

	return out
}

func checkMalformedAttributes(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Clients {
		c := &s.ds.Clients[i]
		if strings.TrimSpace(c.Attributes.Raw) == "" {
			continue
		}
		if _, err := c.Attributes.Parse(); err != nil {
			ref := recordRef(c.Key(), i)
			out = append(out, models.Finding{
				ID:         findingKey(models.EntityClients, ref, CheckMalformedAttributes, "attributes"),
				Check:      CheckMalformedAttributes,
				Severity:   models.SeverityError,
				Entity:     models.EntityClients,
				EntityID:   ref,
				Field:      "attributes",
				Message:    fmt.Sprintf("Client %s has malformed attributes JSON: %v", ref, err),
				Suggestion: `Provide a JSON object, for example {"location": "north"}`,
			})
		}
	}

	return out
}
