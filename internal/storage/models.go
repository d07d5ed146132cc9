package storage

import (
	"encoding/json"
	"strings"
	"time"

	"assetmig-go/internal/property"
)

// Bucket names for bbolt database
const (
	AssetsBucket  = "assets"
	ClassesBucket = "classes"
	StructsBucket = "structs"
	EnumsBucket   = "enums"
	TagsBucket    = "tags"
	MetaBucket    = "meta"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
)

// Current schema version
const CurrentSchemaVersion = 1

// PropertySchema declares one property of a class or one field of a struct.
// Type is the declared host-side type; reparenting compares it to decide
// whether an authored value survives.
type PropertySchema struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Default property.Value `json:"default"`
}

// ClassRecord represents a native or generated class
type ClassRecord struct {
	Path       string           `json:"path"`
	Parent     string           `json:"parent,omitempty"`
	Native     bool             `json:"native,omitempty"`
	Properties []PropertySchema `json:"properties,omitempty"`
}

// StructRecord represents a struct type usable in property values
type StructRecord struct {
	Type   string           `json:"type"`
	Fields []PropertySchema `json:"fields,omitempty"`
}

// EnumRecord represents an enum type. Display names map a variant to the
// label shown in the editor, which older caches sometimes stored instead.
type EnumRecord struct {
	Type         string            `json:"type"`
	Variants     []string          `json:"variants"`
	DisplayNames map[string]string `json:"display_names,omitempty"`
}

// TagRecord represents a registered gameplay tag
type TagRecord struct {
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// PropertyRecord is an authored property value on an asset. Own marks
// variables declared by the asset itself rather than inherited from its class.
type PropertyRecord struct {
	Name  string         `json:"name"`
	Type  string         `json:"type,omitempty"`
	Own   bool           `json:"own,omitempty"`
	Value property.Value `json:"value"`
}

// AssetRecord represents an asset in the content tree
type AssetRecord struct {
	Path       string           `json:"path"`
	Class      string           `json:"class"`
	Properties []PropertyRecord `json:"properties,omitempty"`
	Created    time.Time        `json:"created"`
	Updated    time.Time        `json:"updated"`
}

// TypeOf derives the declared type string of a value: the kind, qualified by
// the enum or struct type, or by the element kind for lists.
func TypeOf(v property.Value) string {
	if v.Type == "" {
		return v.Kind.String()
	}
	return v.Kind.String() + ":" + v.Type
}

// declaredType returns the schema type, deriving it from the value when the
// record does not name one
func (p PropertyRecord) declaredType() string {
	if strings.TrimSpace(p.Type) != "" {
		return p.Type
	}
	return TypeOf(p.Value)
}

func (s PropertySchema) declaredType() string {
	if strings.TrimSpace(s.Type) != "" {
		return s.Type
	}
	return TypeOf(s.Default)
}

// Clone returns a deep copy of the asset record
func (a *AssetRecord) Clone() *AssetRecord {
	out := *a
	out.Properties = make([]PropertyRecord, len(a.Properties))
	for i, p := range a.Properties {
		out.Properties[i] = PropertyRecord{Name: p.Name, Type: p.Type, Own: p.Own, Value: p.Value.Clone()}
	}
	return &out
}

// MarshalBinary implements encoding.BinaryMarshaler
func (a *AssetRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (a *AssetRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (c *ClassRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (c *ClassRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (s *StructRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (s *StructRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (e *EnumRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (e *EnumRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// MarshalBinary implements encoding.BinaryMarshaler
func (t *TagRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (t *TagRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, t)
}
