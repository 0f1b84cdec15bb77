package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spreadsheet-derived records arrive with loosely typed cells. The field types
// below decode leniently and remember what could not be parsed, so the
// record-shape checks can report it instead of the decoder failing.

// IntField is an integer cell that may be absent or unparsable.
type IntField struct {
	Value int
	Set   bool   // a value was supplied
	Raw   string // supplied text that is not an integer
}

// Int returns a set, valid IntField.
func Int(v int) IntField {
	return IntField{Value: v, Set: true}
}

// Valid reports whether the field holds a usable integer.
func (f IntField) Valid() bool {
	return f.Set && f.Raw == ""
}

func (f *IntField) setText(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = IntField{}
		return
	}
	if n, ok := parseWhole(s); ok {
		*f = Int(n)
		return
	}
	*f = IntField{Set: true, Raw: s}
}

// parseWhole accepts "3" and whole floats such as "3.0" from spreadsheet exports.
func parseWhole(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && math.Abs(fl) < math.MaxInt32 {
		return int(fl), true
	}
	return 0, false
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (f *IntField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = IntField{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.setText(s)
		return nil
	}
	f.setText(string(data))
	return nil
}

// MarshalJSON writes null, the integer, or the unparsable text.
func (f IntField) MarshalJSON() ([]byte, error) {
	switch {
	case !f.Set:
		return []byte("null"), nil
	case f.Raw != "":
		return json.Marshal(f.Raw)
	default:
		return []byte(strconv.Itoa(f.Value)), nil
	}
}

// UnmarshalYAML accepts any scalar.
func (f *IntField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*f = IntField{Set: true, Raw: fmt.Sprintf("<%s>", nodeKindName(node.Kind))}
		return nil
	}
	if node.Tag == "!!null" {
		*f = IntField{}
		return nil
	}
	f.setText(node.Value)
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (f IntField) MarshalYAML() (interface{}, error) {
	switch {
	case !f.Set:
		return nil, nil
	case f.Raw != "":
		return f.Raw, nil
	default:
		return f.Value, nil
	}
}

// PhaseList is a list of phase numbers. Entries that are not integers are
// kept verbatim in Malformed.
type PhaseList struct {
	Phases    []int
	Malformed []string
}

// Phases builds a PhaseList from integers.
func Phases(p ...int) PhaseList {
	return PhaseList{Phases: p}
}

// IsEmpty reports whether nothing at all was supplied.
func (p PhaseList) IsEmpty() bool {
	return len(p.Phases) == 0 && len(p.Malformed) == 0
}

// Valid returns the distinct phases >= 1 in ascending order.
func (p PhaseList) Valid() []int {
	seen := make(map[int]struct{}, len(p.Phases))
	out := make([]int, 0, len(p.Phases))
	for _, n := range p.Phases {
		if n < 1 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Contains reports whether phase n is listed.
func (p PhaseList) Contains(n int) bool {
	for _, v := range p.Phases {
		if v == n {
			return true
		}
	}
	return false
}

// addToken parses "3", "1-3" or records the token as malformed.
func (p *PhaseList) addToken(tok string) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return
	}
	if n, ok := parseWhole(tok); ok {
		p.Phases = append(p.Phases, n)
		return
	}
	if i := strings.Index(tok, "-"); i > 0 {
		lo, okLo := parseWhole(strings.TrimSpace(tok[:i]))
		hi, okHi := parseWhole(strings.TrimSpace(tok[i+1:]))
		if okLo && okHi && lo <= hi && hi-lo < 1000 {
			for n := lo; n <= hi; n++ {
				p.Phases = append(p.Phases, n)
			}
			return
		}
	}
	p.Malformed = append(p.Malformed, tok)
}

// parseText handles "1,2,3", "[1, 2]" and "2-4".
func (p *PhaseList) parseText(s string) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	for _, tok := range strings.Split(s, ",") {
		p.addToken(tok)
	}
}

// UnmarshalJSON accepts an array of numbers or strings, a string, or null.
func (p *PhaseList) UnmarshalJSON(data []byte) error {
	*p = PhaseList{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.parseText(s)
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				p.addToken(s)
				continue
			}
			p.addToken(string(bytes.TrimSpace(item)))
		}
		return nil
	default:
		p.addToken(string(data))
		return nil
	}
}

// MarshalJSON writes valid phases as numbers followed by malformed entries as strings.
func (p PhaseList) MarshalJSON() ([]byte, error) {
	out := make([]interface{}, 0, len(p.Phases)+len(p.Malformed))
	for _, n := range p.Phases {
		out = append(out, n)
	}
	for _, s := range p.Malformed {
		out = append(out, s)
	}
	return json.Marshal(out)
}

// UnmarshalYAML accepts a sequence of scalars or a single scalar.
func (p *PhaseList) UnmarshalYAML(node *yaml.Node) error {
	*p = PhaseList{}
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				p.Malformed = append(p.Malformed, fmt.Sprintf("<%s>", nodeKindName(item.Kind)))
				continue
			}
			p.addToken(item.Value)
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			p.parseText(node.Value)
		}
	default:
		p.Malformed = append(p.Malformed, fmt.Sprintf("<%s>", nodeKindName(node.Kind)))
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (p PhaseList) MarshalYAML() (interface{}, error) {
	out := make([]interface{}, 0, len(p.Phases)+len(p.Malformed))
	for _, n := range p.Phases {
		out = append(out, n)
	}
	for _, s := range p.Malformed {
		out = append(out, s)
	}
	return out, nil
}

// TagList is a list of identifiers or skill tags; a comma-separated string is
// split. Blank entries are dropped and the rest trimmed.
type TagList []string

func (t *TagList) addText(s string) {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*t = append(*t, part)
		}
	}
}

// UnmarshalJSON accepts an array of scalars, a string, or null.
func (t *TagList) UnmarshalJSON(data []byte) error {
	*t = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.addText(s)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("tag list: %w", err)
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			t.addText(s)
			continue
		}
		t.addText(string(bytes.TrimSpace(item)))
	}
	return nil
}

// UnmarshalYAML accepts a sequence of scalars or a single scalar.
func (t *TagList) UnmarshalYAML(node *yaml.Node) error {
	*t = nil
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				t.addText(item.Value)
			}
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			t.addText(node.Value)
		}
	default:
		return fmt.Errorf("tag list: unexpected %s", nodeKindName(node.Kind))
	}
	return nil
}

// Set returns the tags as a set.
func (t TagList) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(t))
	for _, v := range t {
		out[v] = struct{}{}
	}
	return out
}

// Attributes is a client's free-form key/value payload. It is either an
// object (Values) or a serialized JSON string that has not been parsed yet (Raw).
type Attributes struct {
	Values map[string]interface{}
	Raw    string
}

// IsEmpty reports whether no payload was supplied.
func (a Attributes) IsEmpty() bool {
	return len(a.Values) == 0 && strings.TrimSpace(a.Raw) == ""
}

// Parse returns the payload as a map, decoding Raw when needed.
func (a Attributes) Parse() (map[string]interface{}, error) {
	if strings.TrimSpace(a.Raw) == "" {
		return a.Values, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(a.Raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnmarshalJSON accepts an object, a string, or null.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = Attributes{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.Raw)
	}
	if data[0] == '{' {
		return json.Unmarshal(data, &a.Values)
	}
	a.Raw = string(data)
	return nil
}

// MarshalJSON writes Raw as a string when present, otherwise the object.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a.Raw != "" {
		return json.Marshal(a.Raw)
	}
	if a.Values == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.Values)
}

// UnmarshalYAML accepts a mapping or a scalar string.
func (a *Attributes) UnmarshalYAML(node *yaml.Node) error {
	*a = Attributes{}
	switch node.Kind {
	case yaml.MappingNode:
		return node.Decode(&a.Values)
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			a.Raw = node.Value
		}
		return nil
	default:
		a.Raw = fmt.Sprintf("<%s>", nodeKindName(node.Kind))
		return nil
	}
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "scalar"
	}
}
