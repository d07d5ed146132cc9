package property

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"assetmig-go/internal/assetref"
)

var (
	// ErrKindMismatch is returned when a value is assigned over one of a different kind
	ErrKindMismatch = errors.New("value kind does not match destination")

	// ErrNoSuchField is returned when a struct has no field with the requested name
	ErrNoSuchField = errors.New("struct field not found")
)

// Value is one host-side property value. Exactly one group of fields is
// meaningful, selected by Kind:
//
//	bool            Bool
//	number          Number
//	string          Str
//	enum            Type (enum type), Str (variant name)
//	asset, class    Str (path; empty means null reference)
//	tag             Str (dotted tag name)
//	struct          Type (struct type), Fields
//	map             Entries
//	list            Type (element kind name), Items
//	opaque          Blob
//
// Values are passed by copy. Struct, map and list accessors never hand out
// slices shared with the receiver, so a field read out of a struct must be
// written back with SetField to take effect.
type Value struct {
	Kind    Kind    `json:"kind"`
	Bool    bool    `json:"bool,omitempty"`
	Number  float64 `json:"number,omitempty"`
	Str     string  `json:"str,omitempty"`
	Type    string  `json:"type,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
	Items   []Value `json:"items,omitempty"`
	Entries []Entry `json:"entries,omitempty"`
	Blob    []byte  `json:"blob,omitempty"`
}

// Field is a named struct member
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Entry is one key/value pair of a map value
type Entry struct {
	Key   Value `json:"key"`
	Value Value `json:"value"`
}

func BoolValue(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func NumberValue(f float64) Value      { return Value{Kind: KindNumber, Number: f} }
func StringValue(s string) Value       { return Value{Kind: KindString, Str: s} }
func AssetValue(path string) Value     { return Value{Kind: KindAsset, Str: path} }
func ClassValue(path string) Value     { return Value{Kind: KindClass, Str: path} }
func TagValue(name string) Value       { return Value{Kind: KindTag, Str: name} }
func OpaqueValue(blob []byte) Value    { return Value{Kind: KindOpaque, Blob: bytes.Clone(blob)} }
func EnumValue(typ, name string) Value { return Value{Kind: KindEnum, Type: typ, Str: name} }

// StructValue builds a struct of the given type
func StructValue(typ string, fields ...Field) Value {
	v := Value{Kind: KindStruct, Type: typ}
	for _, f := range fields {
		v.Fields = append(v.Fields, Field{Name: f.Name, Value: f.Value.Clone()})
	}
	return v
}

// MapValue builds a map from entries; later duplicates replace earlier keys.
func MapValue(entries ...Entry) Value {
	v := Value{Kind: KindMap}
	for _, e := range entries {
		v = v.Put(e.Key, e.Value)
	}
	return v
}

// ListValue builds a list whose elements are of kind elem
func ListValue(elem Kind, items ...Value) Value {
	v := Value{Kind: KindList}
	if elem != KindInvalid {
		v.Type = elem.String()
	}
	for _, it := range items {
		v.Items = append(v.Items, it.Clone())
	}
	return v
}

// F is shorthand for a struct field literal
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

// IsValid reports whether the value carries a kind
func (v Value) IsValid() bool { return v.Kind != KindInvalid }

// IsNull reports whether the value is a null object or class reference
func (v Value) IsNull() bool {
	return (v.Kind == KindAsset || v.Kind == KindClass) && v.Str == ""
}

// ElemKind returns the declared element kind of a list value
func (v Value) ElemKind() Kind {
	if v.Kind != KindList {
		return KindInvalid
	}
	k, err := ParseKind(v.Type)
	if err != nil {
		return KindInvalid
	}
	if k == KindInvalid && len(v.Items) > 0 {
		return v.Items[0].Kind
	}
	return k
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	out := v
	if v.Fields != nil {
		out.Fields = make([]Field, len(v.Fields))
		for i, f := range v.Fields {
			out.Fields[i] = Field{Name: f.Name, Value: f.Value.Clone()}
		}
	}
	if v.Items != nil {
		out.Items = make([]Value, len(v.Items))
		for i, it := range v.Items {
			out.Items[i] = it.Clone()
		}
	}
	if v.Entries != nil {
		out.Entries = make([]Entry, len(v.Entries))
		for i, e := range v.Entries {
			out.Entries[i] = Entry{Key: e.Key.Clone(), Value: e.Value.Clone()}
		}
	}
	if v.Blob != nil {
		out.Blob = bytes.Clone(v.Blob)
	}
	return out
}

// FieldNames lists struct field names in declaration order
func (v Value) FieldNames() []string {
	names := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		names = append(names, f.Name)
	}
	return names
}

// HasField reports whether a struct declares the named field (exact spelling)
func (v Value) HasField(name string) bool {
	for _, f := range v.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Field returns a copy of the named struct field
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value.Clone(), true
		}
	}
	return Value{}, false
}

// SetField returns a copy of the struct with the named field replaced. The
// receiver is left untouched.
func (v Value) SetField(name string, fv Value) (Value, error) {
	if v.Kind != KindStruct {
		return v, fmt.Errorf("set field %q on %s: %w", name, v.Kind, ErrKindMismatch)
	}
	for i, f := range v.Fields {
		if f.Name != name {
			continue
		}
		if err := fv.AssignableTo(f.Value); err != nil {
			return v, fmt.Errorf("field %q: %w", name, err)
		}
		out := v.Clone()
		out.Fields[i].Value = fv.Clone()
		return out, nil
	}
	return v, fmt.Errorf("%s.%s: %w", v.Type, name, ErrNoSuchField)
}

// Lookup returns a copy of the map entry value stored under key
func (v Value) Lookup(key Value) (Value, bool) {
	for _, e := range v.Entries {
		if e.Key.Equal(key) {
			return e.Value.Clone(), true
		}
	}
	return Value{}, false
}

// Put returns a copy of the map with key set to val, appending new keys.
func (v Value) Put(key, val Value) Value {
	out := v.Clone()
	out.Kind = KindMap
	for i, e := range out.Entries {
		if e.Key.Equal(key) {
			out.Entries[i].Value = val.Clone()
			return out
		}
	}
	out.Entries = append(out.Entries, Entry{Key: key.Clone(), Value: val.Clone()})
	return out
}

// AssignableTo reports whether v may be written over dst. Kinds must agree
// and, when both sides name one, enum and struct types must agree too.
func (v Value) AssignableTo(dst Value) error {
	if !dst.IsValid() {
		return nil
	}
	if v.Kind != dst.Kind {
		return fmt.Errorf("%s over %s: %w", v.Kind, dst.Kind, ErrKindMismatch)
	}
	switch v.Kind {
	case KindStruct, KindEnum:
		if v.Type != "" && dst.Type != "" && v.Type != dst.Type {
			return fmt.Errorf("%s %s over %s: %w", v.Kind, v.Type, dst.Type, ErrKindMismatch)
		}
	case KindList:
		vk, dk := v.ElemKind(), dst.ElemKind()
		if vk != KindInvalid && dk != KindInvalid && vk != dk {
			return fmt.Errorf("list of %s over list of %s: %w", vk, dk, ErrKindMismatch)
		}
	}
	return nil
}

// Equal compares by the equality of the value's kind. Asset references
// compare by object path, tag lists compare as sets and maps compare by key
// regardless of entry order. Struct fields are matched by name.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInvalid:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Number == o.Number || (math.IsNaN(v.Number) && math.IsNaN(o.Number))
	case KindString, KindClass, KindTag:
		return v.Str == o.Str
	case KindAsset:
		return assetref.ObjectPath(v.Str) == assetref.ObjectPath(o.Str)
	case KindEnum:
		return strings.EqualFold(v.Str, o.Str) && (v.Type == "" || o.Type == "" || v.Type == o.Type)
	case KindOpaque:
		return bytes.Equal(v.Blob, o.Blob)
	case KindStruct:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for _, f := range v.Fields {
			of, ok := o.Field(f.Name)
			if !ok || !f.Value.Equal(of) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Entries) != len(o.Entries) {
			return false
		}
		for _, e := range v.Entries {
			ov, ok := o.Lookup(e.Key)
			if !ok || !e.Value.Equal(ov) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.Items) != len(o.Items) {
			return false
		}
		if v.ElemKind() == KindTag {
			return sameSet(v.Items, o.Items)
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func sameSet(a, b []Value) bool {
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && x.Equal(y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Zero returns the default value for a kind. Struct defaults need the host's
// struct registry and are not produced here.
func Zero(k Kind, typ string) Value {
	switch k {
	case KindStruct:
		return Value{Kind: KindStruct, Type: typ}
	case KindList:
		return Value{Kind: KindList, Type: typ}
	case KindEnum:
		return Value{Kind: KindEnum, Type: typ}
	}
	return Value{Kind: k}
}

// String renders the value for log lines
func (v Value) String() string {
	switch v.Kind {
	case KindInvalid:
		return "<invalid>"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindEnum:
		if v.Type != "" {
			return v.Type + "::" + v.Str
		}
		return v.Str
	case KindAsset, KindClass:
		if v.Str == "" {
			return "None"
		}
		return v.Str
	case KindTag:
		return "(" + v.Str + ")"
	case KindStruct:
		parts := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			parts = append(parts, f.Name+"="+f.Value.String())
		}
		return v.Type + "{" + strings.Join(parts, ", ") + "}"
	case KindMap:
		parts := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			parts = append(parts, e.Key.String()+": "+e.Value.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindList:
		parts := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			parts = append(parts, it.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindOpaque:
		return fmt.Sprintf("<%d bytes>", len(v.Blob))
	}
	return v.Kind.String()
}
