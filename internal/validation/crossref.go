package validation

import (
	"fmt"

	"github.com/terra-clan/dataset-validator/internal/models"
)

// checkUnknownTaskReferences reports every requested task ID that matches no
// task exactly. A client naming the same missing ID twice is reported once.
func checkUnknownTaskReferences(s *snapshot) []models.Finding {
	var out []models.Finding

	for i := range s.ds.Clients {
		c := &s.ds.Clients[i]
		ref := recordRef(c.Key(), i)
		for _, id := range uniqueTrimmed(c.RequestedTaskIDs) {
			if _, ok := s.tasks[id]; ok {
				continue
			}
			out = append(out, models.Finding{
				ID:         findingKey(models.EntityClients, ref, CheckUnknownTaskReferences, id),
				Check:      CheckUnknownTaskReferences,
				Severity:   models.SeverityError,
				Entity:     models.EntityClients,
				EntityID:   ref,
				Field:      "requested_task_ids",
				Message:    fmt.Sprintf("Client %s requests unknown task %q", ref, id),
				Suggestion: fmt.Sprintf("Remove %q from requested_task_ids or add a task with that ID", id),
			})
		}
	}

	return out
}
