package property

import (
	"fmt"
	"strings"
)

// Kind identifies the variant held by a Value or declared by a Descriptor.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
	KindEnum
	KindAsset
	KindClass
	KindTag
	KindStruct
	KindMap
	KindList
	KindOpaque
)

var kindNames = [...]string{
	KindInvalid: "",
	KindBool:    "bool",
	KindNumber:  "number",
	KindString:  "string",
	KindEnum:    "enum",
	KindAsset:   "asset",
	KindClass:   "class",
	KindTag:     "tag",
	KindStruct:  "struct",
	KindMap:     "map",
	KindList:    "list",
	KindOpaque:  "opaque",
}

// kindAliases accepts the spellings used in hand-written job files.
var kindAliases = map[string]Kind{
	"float":     KindNumber,
	"double":    KindNumber,
	"int":       KindNumber,
	"integer":   KindNumber,
	"boolean":   KindBool,
	"text":      KindString,
	"name":      KindString,
	"object":    KindAsset,
	"ref":       KindAsset,
	"asset_ref": KindAsset,
	"class_ref": KindClass,
	"tags":      KindList,
	"array":     KindList,
	"container": KindList,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && k != KindInvalid {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsScalar reports whether the kind is written by direct assignment.
func (k Kind) IsScalar() bool {
	return k == KindBool || k == KindNumber || k == KindString
}

// IsReference reports whether values of the kind are resolved through the host.
func (k Kind) IsReference() bool {
	return k == KindAsset || k == KindClass || k == KindTag || k == KindEnum
}

// ParseKind converts a textual kind name. The empty string yields KindInvalid
// without error, meaning "infer".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindInvalid, nil
	}
	for k, name := range kindNames {
		if name != "" && name == s {
			return Kind(k), nil
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return KindInvalid, fmt.Errorf("unknown property kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if k == KindInvalid {
		return []byte{}, nil
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
