package validation

import (
	"fmt"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// duplicateKeys returns each key that occurs more than once, in order of first
// appearance, with its occurrence count. Blank keys are skipped.
func duplicateKeys(keys []string) ([]string, map[string]int) {
	counts := make(map[string]int, len(keys))
	var order []string
	for _, k := range keys {
		if k == "" {
			continue
		}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	var dups []string
	for _, k := range order {
		if counts[k] > 1 {
			dups = append(dups, k)
		}
	}
	return dups, counts
}

func duplicateFindings(kind models.EntityKind, field string, keys []string) []models.Finding {
	dups, counts := duplicateKeys(keys)
	out := make([]models.Finding, 0, len(dups))
	for _, k := range dups {
		out = append(out, models.Finding{
			ID:         findingKey(kind, k, CheckDuplicateIDs, field),
			Check:      CheckDuplicateIDs,
			Severity:   models.SeverityError,
			Entity:     kind,
			EntityID:   k,
			Field:      field,
			Message:    fmt.Sprintf("Duplicate %s %q appears %d times", field, k, counts[k]),
			Suggestion: fmt.Sprintf("Give each record a unique %s", field),
		})
	}
	return out
}

func checkDuplicateIDs(s *snapshot) []models.Finding {
	clientKeys := make([]string, len(s.ds.Clients))
	for i := range s.ds.Clients {
		clientKeys[i] = s.ds.Clients[i].Key()
	}
	workerKeys := make([]string, len(s.ds.Workers))
	for i := range s.ds.Workers {
		workerKeys[i] = s.ds.Workers[i].Key()
	}
	taskKeys := make([]string, len(s.ds.Tasks))
	for i := range s.ds.Tasks {
		taskKeys[i] = s.ds.Tasks[i].Key()
	}

	var out []models.Finding
	out = append(out, duplicateFindings(models.EntityClients, "client_id", clientKeys)...)
	out = append(out, duplicateFindings(models.EntityWorkers, "worker_id", workerKeys)...)
	out = append(out, duplicateFindings(models.EntityTasks, "task_id", taskKeys)...)
	return out
}
