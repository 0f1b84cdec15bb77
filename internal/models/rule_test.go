package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBusinessRule_UnmarshalJSON(t *testing.T) {
	src := `[
		{"id": "R1", "type": "co-run", "name": "pair", "active": true, "parameters": {"tasks": ["T1", "T2"]}},
		{"id": "R2", "type": "phase-window", "parameters": {"task_id": "T1", "allowed_phases": [1, 2]}},
		{"id": "R3", "type": "load-limit", "parameters": {"worker_group": "ops", "max_slots_per_phase": 2}}
	]`

	var rules []BusinessRule
	require.NoError(t, json.Unmarshal([]byte(src), &rules))
	require.Len(t, rules, 3)

	assert.Equal(t, CoRunParams{Tasks: TagList{"T1", "T2"}}, rules[0].Params)
	assert.True(t, rules[0].Active)
	assert.Equal(t, PhaseWindowParams{TaskID: "T1", AllowedPhases: Phases(1, 2)}, rules[1].Params)
	assert.Equal(t, LoadLimitParams{WorkerGroup: "ops", MaxSlotsPerPhase: 2}, rules[2].Params)
	assert.False(t, rules[2].Active)
}

func TestBusinessRule_LenientPhaseWindow(t *testing.T) {
	var r BusinessRule
	require.NoError(t, json.Unmarshal([]byte(`{"id": "W", "type": "phase-window", "parameters": {"task_id": "T1", "allowed_phases": "1,2,x"}}`), &r))

	p, ok := r.Params.(PhaseWindowParams)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, p.AllowedPhases.Phases)
	assert.Equal(t, []string{"x"}, p.AllowedPhases.Malformed)

	require.NoError(t, yaml.Unmarshal([]byte("id: W\ntype: phase-window\nparameters:\n  task_id: T1\n  allowed_phases: 2-3\n"), &r))
	assert.Equal(t, []int{2, 3}, r.Params.(PhaseWindowParams).AllowedPhases.Phases)
}

func TestBusinessRule_UnknownType(t *testing.T) {
	var r BusinessRule
	err := json.Unmarshal([]byte(`{"id": "X", "type": "teleport"}`), &r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRuleType))

	err = yaml.Unmarshal([]byte("id: X\ntype: teleport\n"), &r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRuleType))
}

func TestBusinessRule_EveryTypeDecodes(t *testing.T) {
	for _, rt := range RuleTypes() {
		t.Run(string(rt), func(t *testing.T) {
			var r BusinessRule
			require.NoError(t, json.Unmarshal([]byte(`{"id": "R", "type": "`+string(rt)+`"}`), &r))
			require.NotNil(t, r.Params)
			assert.Equal(t, rt, r.Params.RuleType())
		})
	}
}

func TestBusinessRule_JSONRoundTrip(t *testing.T) {
	in := BusinessRule{
		ID:     "R9",
		Type:   RulePatternMatch,
		Name:   "night shifts",
		Active: true,
		Params: PatternMatchParams{Regex: "^N-", Template: "phase-window", Params: map[string]string{"phases": "4"}},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out BusinessRule
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestBusinessRule_UnmarshalYAML(t *testing.T) {
	src := `
- id: R1
  type: slot-restriction
  active: true
  parameters:
    client_group: vip
    min_common_slots: 2
- id: R2
  type: precedence-override
  parameters:
    rule_ids: [R1]
    scope: global
`
	var rules []BusinessRule
	require.NoError(t, yaml.Unmarshal([]byte(src), &rules))
	require.Len(t, rules, 2)

	assert.Equal(t, SlotRestrictionParams{ClientGroup: "vip", MinCommonSlots: 2}, rules[0].Params)
	assert.Equal(t, PrecedenceOverrideParams{RuleIDs: []string{"R1"}, Scope: "global"}, rules[1].Params)
}

func TestBusinessRule_DisplayName(t *testing.T) {
	assert.Equal(t, "pair", (&BusinessRule{ID: "R1", Name: "pair"}).DisplayName())
	assert.Equal(t, "R1", (&BusinessRule{ID: "R1"}).DisplayName())
}

func TestFindingFilter_Apply(t *testing.T) {
	findings := []Finding{
		{Check: "a", Severity: SeverityError, Entity: EntityTasks},
		{Check: "b", Severity: SeverityWarning, Entity: EntityTasks},
		{Check: "a", Severity: SeverityWarning, Entity: EntityWorkers},
	}

	assert.Len(t, FindingFilter{}.Apply(findings), 3)
	assert.Len(t, FindingFilter{Severity: SeverityWarning}.Apply(findings), 2)
	assert.Len(t, FindingFilter{Severity: SeverityWarning, Entity: EntityTasks}.Apply(findings), 1)
	assert.Len(t, FindingFilter{Check: "a"}.Apply(findings), 2)
}

func TestApiClient_HasPermission(t *testing.T) {
	c := &ApiClient{IsActive: true, Permissions: []string{"runs:*", PermDatasetsRead}}
	assert.True(t, c.HasPermission(PermRunsWrite))
	assert.True(t, c.HasPermission(PermDatasetsRead))
	assert.False(t, c.HasPermission("datasets:write"))

	admin := &ApiClient{IsActive: true, Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission("anything"))

	disabled := &ApiClient{Permissions: []string{"*"}}
	assert.False(t, disabled.HasPermission(PermRunsRead))
}
