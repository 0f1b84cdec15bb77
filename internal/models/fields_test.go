package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIntField_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want IntField
	}{
		{`3`, Int(3)},
		{`"4"`, Int(4)},
		{`2.0`, Int(2)},
		{`" 5 "`, Int(5)},
		{`null`, IntField{}},
		{`""`, IntField{}},
		{`"high"`, IntField{Set: true, Raw: "high"}},
		{`2.5`, IntField{Set: true, Raw: "2.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f IntField
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestIntField_Valid(t *testing.T) {
	assert.True(t, Int(0).Valid())
	assert.False(t, IntField{}.Valid())
	assert.False(t, IntField{Set: true, Raw: "x"}.Valid())
}

func TestIntField_MissingKey(t *testing.T) {
	var c Client
	require.NoError(t, json.Unmarshal([]byte(`{"client_id": "C1"}`), &c))
	assert.False(t, c.PriorityLevel.Set)
}

func TestPhaseList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		phases    []int
		malformed []string
	}{
		{"array", `[1, 2, 3]`, []int{1, 2, 3}, nil},
		{"string list", `"1,2"`, []int{1, 2}, nil},
		{"bracketed string", `"[2, 4]"`, []int{2, 4}, nil},
		{"range", `"1-3"`, []int{1, 2, 3}, nil},
		{"mixed array", `[1, "two", "3"]`, []int{1, 3}, []string{"two"}},
		{"single number", `7`, []int{7}, nil},
		{"whole floats", `[1.0, "2.0", 3]`, []int{1, 2, 3}, nil},
		{"float range", `"1.0-2"`, []int{1, 2}, nil},
		{"fractional", `[1.5]`, nil, []string{"1.5"}},
		{"null", `null`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PhaseList
			require.NoError(t, json.Unmarshal([]byte(tt.in), &p))
			assert.Equal(t, tt.phases, p.Phases)
			assert.Equal(t, tt.malformed, p.Malformed)
		})
	}
}

func TestPhaseList_UnmarshalYAML(t *testing.T) {
	var doc struct {
		Slots PhaseList `yaml:"slots"`
		Text  PhaseList `yaml:"text"`
	}
	src := "slots: [3, 1.0, x]\ntext: \"2-3\"\n"

	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))

	assert.Equal(t, []int{3, 1}, doc.Slots.Phases)
	assert.Equal(t, []string{"x"}, doc.Slots.Malformed)
	assert.Equal(t, []int{2, 3}, doc.Text.Phases)
}

func TestPhaseList_Valid(t *testing.T) {
	p := Phases(3, 0, 1, 3, -2)
	assert.Equal(t, []int{1, 3}, p.Valid())
	assert.True(t, p.Contains(0))
	assert.False(t, p.Contains(2))
	assert.True(t, PhaseList{}.IsEmpty())
	assert.False(t, PhaseList{Malformed: []string{"x"}}.IsEmpty())
}

func TestTagList_Unmarshal(t *testing.T) {
	var fromString TagList
	require.NoError(t, json.Unmarshal([]byte(`"go, rust ,,sql"`), &fromString))
	assert.Equal(t, TagList{"go", "rust", "sql"}, fromString)

	var fromArray TagList
	require.NoError(t, json.Unmarshal([]byte(`["go", 42, " sql "]`), &fromArray))
	assert.Equal(t, TagList{"go", "42", "sql"}, fromArray)

	var fromYAML TagList
	require.NoError(t, yaml.Unmarshal([]byte("[a, b]"), &fromYAML))
	assert.Equal(t, TagList{"a", "b"}, fromYAML)
}

func TestAttributes(t *testing.T) {
	var obj Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"region": "north"}`), &obj))
	values, err := obj.Parse()
	require.NoError(t, err)
	assert.Equal(t, "north", values["region"])

	var str Attributes
	require.NoError(t, json.Unmarshal([]byte(`"{\"tier\": 2}"`), &str))
	values, err = str.Parse()
	require.NoError(t, err)
	assert.Equal(t, float64(2), values["tier"])

	bad := Attributes{Raw: "{tier: 2"}
	_, err = bad.Parse()
	assert.Error(t, err)

	assert.True(t, Attributes{}.IsEmpty())
}

func TestWorker_HasSkills(t *testing.T) {
	w := Worker{Skills: TagList{"go", "sql"}}
	assert.True(t, w.HasSkills(TagList{"go"}))
	assert.True(t, w.HasSkills(nil))
	assert.False(t, w.HasSkills(TagList{"go", "rust"}))
}
