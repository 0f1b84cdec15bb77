package models

import "strings"

// Client is a customer record requesting tasks
type Client struct {
	ClientID         string     `json:"client_id" yaml:"client_id"`
	ClientName       string     `json:"client_name" yaml:"client_name"`
	PriorityLevel    IntField   `json:"priority_level" yaml:"priority_level"`
	RequestedTaskIDs TagList    `json:"requested_task_ids" yaml:"requested_task_ids"`
	GroupTag         string     `json:"group_tag,omitempty" yaml:"group_tag,omitempty"`
	Attributes       Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Key returns the trimmed primary key
func (c *Client) Key() string {
	return strings.TrimSpace(c.ClientID)
}

// Worker is a person or resource that can be assigned to tasks
type Worker struct {
	WorkerID           string    `json:"worker_id" yaml:"worker_id"`
	WorkerName         string    `json:"worker_name" yaml:"worker_name"`
	Skills             TagList   `json:"skills" yaml:"skills"`
	AvailableSlots     PhaseList `json:"available_slots" yaml:"available_slots"`
	MaxLoadPerPhase    IntField  `json:"max_load_per_phase" yaml:"max_load_per_phase"`
	WorkerGroup        string    `json:"worker_group,omitempty" yaml:"worker_group,omitempty"`
	QualificationLevel IntField  `json:"qualification_level" yaml:"qualification_level"`
}

// Key returns the trimmed primary key
func (w *Worker) Key() string {
	return strings.TrimSpace(w.WorkerID)
}

// HasSkills reports whether the worker holds every skill in required
func (w *Worker) HasSkills(required TagList) bool {
	have := w.Skills.Set()
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Task is a unit of work with a duration measured in phases
type Task struct {
	TaskID          string    `json:"task_id" yaml:"task_id"`
	TaskName        string    `json:"task_name" yaml:"task_name"`
	Category        string    `json:"category,omitempty" yaml:"category,omitempty"`
	Duration        IntField  `json:"duration" yaml:"duration"`
	RequiredSkills  TagList   `json:"required_skills" yaml:"required_skills"`
	PreferredPhases PhaseList `json:"preferred_phases" yaml:"preferred_phases"`
	MaxConcurrent   IntField  `json:"max_concurrent" yaml:"max_concurrent"`
}

// Key returns the trimmed primary key
func (t *Task) Key() string {
	return strings.TrimSpace(t.TaskID)
}

// Dataset is one immutable snapshot handed to the validation engine
type Dataset struct {
	Clients []Client       `json:"clients" yaml:"clients"`
	Workers []Worker       `json:"workers" yaml:"workers"`
	Tasks   []Task         `json:"tasks" yaml:"tasks"`
	Rules   []BusinessRule `json:"rules" yaml:"rules"`
}

// DatasetInfo summarizes a loaded dataset for listings
type DatasetInfo struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Clients int    `json:"clients"`
	Workers int    `json:"workers"`
	Tasks   int    `json:"tasks"`
	Rules   int    `json:"rules"`
}
