package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnknownRuleType is returned when a rule's type has no parameter shape
var ErrUnknownRuleType = errors.New("unknown rule type")

// RuleType identifies the kind of business rule
type RuleType string

const (
	RuleCoRun              RuleType = "co-run"
	RuleSlotRestriction    RuleType = "slot-restriction"
	RuleLoadLimit          RuleType = "load-limit"
	RulePhaseWindow        RuleType = "phase-window"
	RulePatternMatch       RuleType = "pattern-match"
	RulePrecedenceOverride RuleType = "precedence-override"
)

// RuleTypes lists every supported rule type
func RuleTypes() []RuleType {
	return []RuleType{
		RuleCoRun,
		RuleSlotRestriction,
		RuleLoadLimit,
		RulePhaseWindow,
		RulePatternMatch,
		RulePrecedenceOverride,
	}
}

// RuleParams is the type-specific payload of a BusinessRule. The set of
// implementations is closed; each one reports the RuleType it belongs to.
type RuleParams interface {
	RuleType() RuleType
}

// CoRunParams groups tasks that must be scheduled together
type CoRunParams struct {
	Tasks TagList `json:"tasks" yaml:"tasks"`
}

// SlotRestrictionParams requires a group to share a minimum number of slots
type SlotRestrictionParams struct {
	ClientGroup    string `json:"client_group,omitempty" yaml:"client_group,omitempty"`
	WorkerGroup    string `json:"worker_group,omitempty" yaml:"worker_group,omitempty"`
	MinCommonSlots int    `json:"min_common_slots" yaml:"min_common_slots"`
}

// LoadLimitParams caps how many slots per phase a worker group may take
type LoadLimitParams struct {
	WorkerGroup      string `json:"worker_group" yaml:"worker_group"`
	MaxSlotsPerPhase int    `json:"max_slots_per_phase" yaml:"max_slots_per_phase"`
}

// PhaseWindowParams restricts a task to an explicit set of phases
type PhaseWindowParams struct {
	TaskID        string    `json:"task_id" yaml:"task_id"`
	AllowedPhases PhaseList `json:"allowed_phases" yaml:"allowed_phases"`
}

// PatternMatchParams applies a rule template to entities matching a regex
type PatternMatchParams struct {
	Regex    string            `json:"regex" yaml:"regex"`
	Template string            `json:"template" yaml:"template"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// PrecedenceOverrideParams orders other rules by priority
type PrecedenceOverrideParams struct {
	RuleIDs []string `json:"rule_ids" yaml:"rule_ids"`
	Scope   string   `json:"scope,omitempty" yaml:"scope,omitempty"`
}

func (CoRunParams) RuleType() RuleType              { return RuleCoRun }
func (SlotRestrictionParams) RuleType() RuleType    { return RuleSlotRestriction }
func (LoadLimitParams) RuleType() RuleType          { return RuleLoadLimit }
func (PhaseWindowParams) RuleType() RuleType        { return RulePhaseWindow }
func (PatternMatchParams) RuleType() RuleType       { return RulePatternMatch }
func (PrecedenceOverrideParams) RuleType() RuleType { return RulePrecedenceOverride }

// BusinessRule is a user-authored constraint in its structured form.
// Active is carried through untouched; callers filter inactive rules.
type BusinessRule struct {
	ID     string
	Type   RuleType
	Name   string
	Active bool
	Params RuleParams
}

// decodeRuleParams builds the parameter value for t using decode to fill it.
func decodeRuleParams(t RuleType, decode func(interface{}) error) (RuleParams, error) {
	switch t {
	case RuleCoRun:
		var p CoRunParams
		err := decode(&p)
		return p, err
	case RuleSlotRestriction:
		var p SlotRestrictionParams
		err := decode(&p)
		return p, err
	case RuleLoadLimit:
		var p LoadLimitParams
		err := decode(&p)
		return p, err
	case RulePhaseWindow:
		var p PhaseWindowParams
		err := decode(&p)
		return p, err
	case RulePatternMatch:
		var p PatternMatchParams
		err := decode(&p)
		return p, err
	case RulePrecedenceOverride:
		var p PrecedenceOverrideParams
		err := decode(&p)
		return p, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, t)
	}
}

type ruleJSON struct {
	ID         string          `json:"id"`
	Type       RuleType        `json:"type"`
	Name       string          `json:"name"`
	Active     bool            `json:"active"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// UnmarshalJSON decodes parameters according to the rule type
func (r *BusinessRule) UnmarshalJSON(data []byte) error {
	var aux ruleJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	params, err := decodeRuleParams(aux.Type, func(v interface{}) error {
		if len(aux.Parameters) == 0 || string(aux.Parameters) == "null" {
			return nil
		}
		return json.Unmarshal(aux.Parameters, v)
	})
	if err != nil {
		return fmt.Errorf("rule %q: %w", aux.ID, err)
	}

	*r = BusinessRule{
		ID:     aux.ID,
		Type:   aux.Type,
		Name:   aux.Name,
		Active: aux.Active,
		Params: params,
	}
	return nil
}

// MarshalJSON writes the rule with its parameters object
func (r BusinessRule) MarshalJSON() ([]byte, error) {
	var params json.RawMessage
	if r.Params != nil {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return nil, err
		}
		params = b
	}
	return json.Marshal(ruleJSON{
		ID:         r.ID,
		Type:       r.Type,
		Name:       r.Name,
		Active:     r.Active,
		Parameters: params,
	})
}

type ruleYAML struct {
	ID         string    `yaml:"id"`
	Type       RuleType  `yaml:"type"`
	Name       string    `yaml:"name"`
	Active     bool      `yaml:"active"`
	Parameters yaml.Node `yaml:"parameters"`
}

// UnmarshalYAML decodes parameters according to the rule type
func (r *BusinessRule) UnmarshalYAML(node *yaml.Node) error {
	var aux ruleYAML
	if err := node.Decode(&aux); err != nil {
		return err
	}

	params, err := decodeRuleParams(aux.Type, func(v interface{}) error {
		if aux.Parameters.Kind == 0 {
			return nil
		}
		return aux.Parameters.Decode(v)
	})
	if err != nil {
		return fmt.Errorf("rule %q: %w", aux.ID, err)
	}

	*r = BusinessRule{
		ID:     aux.ID,
		Type:   aux.Type,
		Name:   aux.Name,
		Active: aux.Active,
		Params: params,
	}
	return nil
}

// DisplayName returns the rule name, falling back to its ID
func (r *BusinessRule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
