// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ChangeType classifies one field mutation in a ConfigChange.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ConfigChange records one field-level mutation to a project config.
type ConfigChange struct {
	FieldPath   string      `json:"field_path"`
	OldValue    interface{} `json:"old_value"`
	NewValue    interface{} `json:"new_value"`
	ChangeType  ChangeType  `json:"change_type"`
	Timestamp   string      `json:"timestamp"`
	Description string      `json:"description,omitempty"`
}

// ConfigChangeSet groups related changes that must apply atomically.
type ConfigChangeSet struct {
	Changes     []ConfigChange `json:"changes"`
	Description string         `json:"description"`
	UserIntent  string         `json:"user_intent,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

// AddChange appends a change to the set.
func (cs *ConfigChangeSet) AddChange(c ConfigChange) {
	cs.Changes = append(cs.Changes, c)
}

// ConfigFieldInfo describes one top-level config field for LLM-facing introspection.
type ConfigFieldInfo struct {
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Description  string        `json:"description,omitempty"`
	Required     bool          `json:"required"`
	DefaultValue interface{}   `json:"default_value,omitempty"`
	Examples     []interface{} `json:"examples,omitempty"`
	Constraints  map[string]any `json:"constraints,omitempty"`
	EnumValues   []string      `json:"enum_values,omitempty"`
	Guidance     string        `json:"llm_guidance,omitempty"`
}

// SchemaIntrospector derives ConfigFieldInfo entries from ProjectConfig's
// exported fields and yaml tags, by reflection over the zero-value type
// rather than a parsed schema document.
type SchemaIntrospector struct {
	fields []ConfigFieldInfo
}

// NewSchemaIntrospector builds an introspector over ProjectConfig's shape.
func NewSchemaIntrospector() *SchemaIntrospector {
	return &SchemaIntrospector{}
}

// GetAllFields returns field info for every top-level field of ProjectConfig,
// computing it once and caching the result.
func (s *SchemaIntrospector) GetAllFields() []ConfigFieldInfo {
	if s.fields == nil {
		s.fields = buildFieldInfo(reflect.TypeOf(ProjectConfig{}))
	}
	return s.fields
}

func buildFieldInfo(t reflect.Type) []ConfigFieldInfo {
	fields := make([]ConfigFieldInfo, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		required := !strings.Contains(tag, "omitempty")
		fields = append(fields, ConfigFieldInfo{
			Name:        name,
			Type:        goTypeName(f.Type),
			Required:    required,
			Guidance:    fieldGuidance(name),
			EnumValues:  fieldEnumValues(name),
			Constraints: fieldConstraints(name),
		})
	}
	return fields
}

func goTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Ptr:
		return goTypeName(t.Elem())
	case reflect.Slice:
		return "array<" + goTypeName(t.Elem()) + ">"
	case reflect.Struct:
		return "object"
	default:
		return t.Kind().String()
	}
}

var fieldGuidanceText = map[string]string{
	"name":      "a short, path-separator-free identifier for this project",
	"namespace": "the multi-tenant namespace this project belongs to",
	"runtime":   "the set of models this project can route chat/completion requests to",
	"prompts":   "named, reusable chat-template message bundles",
	"rag":       "retrieval databases and ingestion strategies available to this project",
	"datasets":  "datasets bound to a rag database and processing strategy",
	"mcp":       "MCP servers the chat orchestrator may call as tools",
}

func fieldGuidance(name string) string {
	return fieldGuidanceText[name]
}

func fieldEnumValues(name string) []string {
	if name == "provider" {
		return []string{ProviderOpenAI, ProviderOllama, ProviderLemonade, ProviderUniversal}
	}
	return nil
}

func fieldConstraints(name string) map[string]any {
	switch name {
	case "name", "namespace":
		return map[string]any{"pattern": identifierPattern.String()}
	default:
		return nil
	}
}

// Manipulator wraps a loaded ProjectConfig and lets callers validate,
// apply, and diff field-level changes against it, grounded on the
// load/validate/apply_change/apply_changeset/diff contract of a dotted-path
// config editor operating on a decoded document rather than the typed struct
// directly, so arbitrary nested paths can be addressed uniformly.
type Manipulator struct {
	original map[string]any
	current  map[string]any
	history  []ConfigChangeSet
	now      func() string
}

// NewManipulator wraps cfg for field-level editing. now defaults to returning
// an empty timestamp if nil; callers typically pass a clock function since
// this package cannot call time.Now() directly in generated code paths that
// must stay deterministic for tests.
func NewManipulator(cfg *ProjectConfig, now func() string) (*Manipulator, error) {
	if now == nil {
		now = func() string { return "" }
	}
	asMap, err := toMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("manipulator: %w", err)
	}
	asMapCopy, err := toMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("manipulator: %w", err)
	}
	return &Manipulator{original: asMap, current: asMapCopy, now: now}, nil
}

func toMap(cfg *ProjectConfig) (map[string]any, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return deepCopyMap(m), nil
}

func fromMap(m map[string]any) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, err
	}
	return cfg, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// CurrentConfig decodes the in-memory working document back into a typed ProjectConfig.
func (m *Manipulator) CurrentConfig() (*ProjectConfig, error) {
	return fromMap(m.current)
}

// ValidateChange checks whether applying newValue at fieldPath would yield a
// valid ProjectConfig, without mutating the manipulator's state.
func (m *Manipulator) ValidateChange(fieldPath string, newValue any) (bool, error) {
	trial := deepCopyMap(m.current)
	if err := setNestedField(trial, fieldPath, newValue); err != nil {
		return false, err
	}
	cfg, err := fromMap(trial)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", fieldPath, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("field %q: %w", fieldPath, err)
	}
	return true, nil
}

// ApplyChange validates then applies a single field mutation, returning the
// resulting ConfigChange record. It does not persist to disk; call ProjectStore.Save for that.
func (m *Manipulator) ApplyChange(fieldPath string, newValue any, description string) (*ConfigChange, error) {
	if ok, err := m.ValidateChange(fieldPath, newValue); !ok {
		return nil, err
	}
	oldValue, _ := getNestedField(m.current, fieldPath)
	if err := setNestedField(m.current, fieldPath, newValue); err != nil {
		return nil, err
	}
	changeType := ChangeUpdate
	if oldValue == nil {
		changeType = ChangeCreate
	}
	return &ConfigChange{
		FieldPath:   fieldPath,
		OldValue:    oldValue,
		NewValue:    newValue,
		ChangeType:  changeType,
		Timestamp:   m.now(),
		Description: description,
	}, nil
}

// ApplyChangeset applies every change in cs. If any change fails to validate
// or apply, the manipulator's working document is rolled back to its
// pre-changeset state and the error is returned; either all changes land or none do.
func (m *Manipulator) ApplyChangeset(cs ConfigChangeSet) error {
	backup := deepCopyMap(m.current)
	for _, ch := range cs.Changes {
		if _, err := m.ApplyChange(ch.FieldPath, ch.NewValue, ch.Description); err != nil {
			m.current = backup
			return fmt.Errorf("changeset %q rolled back: %w", cs.Description, err)
		}
	}
	m.history = append(m.history, cs)
	return nil
}

// GetChanges diffs the as-loaded config against the current in-memory state.
func (m *Manipulator) GetChanges() []ConfigChange {
	var changes []ConfigChange
	findChanges(m.original, m.current, "", &changes, m.now())
	return changes
}

// RollbackToOriginal discards all in-memory edits.
func (m *Manipulator) RollbackToOriginal() {
	m.current = deepCopyMap(m.original)
}

func findChanges(original, current map[string]any, path string, changes *[]ConfigChange, ts string) {
	keys := make(map[string]bool, len(original)+len(current))
	for k := range original {
		keys[k] = true
	}
	for k := range current {
		keys[k] = true
	}
	for k := range keys {
		fieldPath := k
		if path != "" {
			fieldPath = path + "." + k
		}
		oldVal, hadOld := original[k]
		newVal, hasNew := current[k]

		switch {
		case hadOld && !hasNew:
			*changes = append(*changes, ConfigChange{FieldPath: fieldPath, OldValue: oldVal, ChangeType: ChangeDelete, Timestamp: ts})
		case !hadOld && hasNew:
			*changes = append(*changes, ConfigChange{FieldPath: fieldPath, NewValue: newVal, ChangeType: ChangeCreate, Timestamp: ts})
		default:
			oldMap, oldIsMap := oldVal.(map[string]any)
			newMap, newIsMap := newVal.(map[string]any)
			if oldIsMap && newIsMap {
				findChanges(oldMap, newMap, fieldPath, changes, ts)
				continue
			}
			if !reflect.DeepEqual(oldVal, newVal) {
				*changes = append(*changes, ConfigChange{
					FieldPath: fieldPath, OldValue: oldVal, NewValue: newVal,
					ChangeType: ChangeUpdate, Timestamp: ts,
				})
			}
		}
	}
}

// getNestedField resolves a dotted path (with optional [index] segments, e.g.
// "rag.databases[0].name") against a decoded document.
func getNestedField(doc map[string]any, path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	var cur any = doc
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg.key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg.key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setNestedField writes newValue at path, auto-vivifying intermediate maps.
// It walks maps only: a path that passes through a list (an index segment
// such as rag.databases[0].name) returns an error.
func setNestedField(doc map[string]any, path string, newValue any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("empty field path")
	}
	node := doc
	for i, seg := range segments[:len(segments)-1] {
		next, ok := node[seg.key]
		if !ok || next == nil {
			next = map[string]any{}
			node[seg.key] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("field path %q: segment %q is not an object", path, segments[i].key)
		}
		node = nextMap
	}
	node[segments[len(segments)-1].key] = newValue
	return nil
}

type pathSegment struct{ key string }

// splitPath turns "rag.databases[0].name" into [rag, databases, 0, name].
// Array indices are folded in as their own segment so getNestedField can
// address list elements without a separate code path; setNestedField does not
// write through lists.
func splitPath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				segs = append(segs, pathSegment{key: part})
				part = ""
				continue
			}
			if open > 0 {
				segs = append(segs, pathSegment{key: part[:open]})
			}
			shut := strings.IndexByte(part[open:], ']')
			if shut == -1 {
				return nil, fmt.Errorf("malformed field path %q", path)
			}
			idx := part[open+1 : open+shut]
			segs = append(segs, pathSegment{key: idx})
			part = part[open+shut+1:]
		}
	}
	return segs, nil
}
