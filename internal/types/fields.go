package types

import "encoding/json"

// FieldKind tags the payload carried by a FieldValue, mirroring the
// value kinds a field schema can declare: text, enum, number, date,
// list, boolean. "date" is represented as text (RFC3339) rather than
// its own Go kind; the schema is what interprets it as a date.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldList   FieldKind = "list"
	FieldMap    FieldKind = "map"
)

// FieldValue is a tagged value in an issue's fields bag. Only one of
// the payload fields is meaningful, selected by Kind.
type FieldValue struct {
	Kind FieldKind
	Text string
	Num  float64
	Bool bool
	List []string
	Map  map[string]FieldValue
}

func Text(s string) FieldValue             { return FieldValue{Kind: FieldText, Text: s} }
func Number(n float64) FieldValue          { return FieldValue{Kind: FieldNumber, Num: n} }
func Bool(b bool) FieldValue               { return FieldValue{Kind: FieldBool, Bool: b} }
func List(items ...string) FieldValue      { return FieldValue{Kind: FieldList, List: items} }
func Map(m map[string]FieldValue) FieldValue { return FieldValue{Kind: FieldMap, Map: m} }

// IsEmpty reports whether the value should be treated as "not set" for
// required-field gating: an empty string, an empty list, or a zero map.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case FieldText:
		return v.Text == ""
	case FieldList:
		return len(v.List) == 0
	case FieldMap:
		return len(v.Map) == 0
	default:
		return false
	}
}

// MarshalJSON renders a FieldValue as the plain JSON value it
// represents (a string, number, bool, array, or object), matching the
// "unstructured JSON blob" the fields column stores on disk — the Kind
// tag itself is not persisted, it's reconstructed on read from the
// JSON token's shape.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case FieldNumber:
		return json.Marshal(v.Num)
	case FieldBool:
		return json.Marshal(v.Bool)
	case FieldList:
		return json.Marshal(v.List)
	case FieldMap:
		return json.Marshal(v.Map)
	default:
		return json.Marshal(v.Text)
	}
}

// UnmarshalJSON reconstructs Kind from the JSON token's shape.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw any) FieldValue {
	switch val := raw.(type) {
	case string:
		return Text(val)
	case float64:
		return Number(val)
	case bool:
		return Bool(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, it := range val {
			if s, ok := it.(string); ok {
				items = append(items, s)
			}
		}
		return List(items...)
	case map[string]any:
		m := make(map[string]FieldValue, len(val))
		for k, v := range val {
			m[k] = fromAny(v)
		}
		return Map(m)
	default:
		return Text("")
	}
}

// Fields is the JSON-like extension bag attached to an issue.
type Fields map[string]FieldValue

// Clone returns a shallow copy safe to mutate independently.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// MergeFields applies the update bag onto base with the shallow-merge
// semantics the data model requires: new keys replace same-keyed
// entries one level deep (a map value replaces its whole previous
// subtree rather than merging recursively), and keys absent from update
// are preserved. A FieldValue with Kind FieldText and an empty Text
// clears that key (sets it to the empty string) rather than deleting
// it, matching "passing an empty string for a scalar field clears it."
func MergeFields(base, update Fields) Fields {
	if base == nil && update == nil {
		return nil
	}
	out := base.Clone()
	if out == nil {
		out = make(Fields, len(update))
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}
