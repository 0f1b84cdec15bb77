package validation

import "github.com/terra-clan/dataset-validator/internal/models"

// Summary aggregates a finding list for display
type Summary struct {
	Total    int                       `json:"total"`
	Errors   int                       `json:"errors"`
	Warnings int                       `json:"warnings"`
	Score    int                       `json:"score"`
	ByEntity map[models.EntityKind]int `json:"by_entity"`
	ByCheck  map[string]int            `json:"by_check"`
}

// Summarize counts findings by severity, entity and check
func Summarize(findings []models.Finding) Summary {
	s := Summary{
		Total:    len(findings),
		ByEntity: make(map[models.EntityKind]int),
		ByCheck:  make(map[string]int),
	}
	for i := range findings {
		f := &findings[i]
		if f.IsError() {
			s.Errors++
		} else {
			s.Warnings++
		}
		s.ByEntity[f.Entity]++
		s.ByCheck[f.Check]++
	}
	s.Score = QualityScore(s.Errors)
	return s
}

// QualityScore maps an error count onto 0-100, charging each error one
// check's share of the total.
func QualityScore(errors int) int {
	score := 100 - errors*100/len(checks)
	if score < 0 {
		return 0
	}
	return score
}
