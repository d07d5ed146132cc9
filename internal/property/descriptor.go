package property

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor declares one managed property: where it lives on the asset, what
// kind of value it holds and, for containers, how to interpret the contents.
// The same declaration drives both extraction and application.
type Descriptor struct {
	// Name is the key used in the cache file entry.
	Name string `json:"name" mapstructure:"name"`

	// Path is the chain of field names from the asset to the value. Empty
	// means the top-level property called Name.
	Path []string `json:"path,omitempty" mapstructure:"path"`

	Kind    Kind     `json:"kind,omitempty" mapstructure:"kind"`
	Aliases []string `json:"aliases,omitempty" mapstructure:"aliases"`

	EnumType   string `json:"enum_type,omitempty" mapstructure:"enum_type"`
	StructType string `json:"struct_type,omitempty" mapstructure:"struct_type"`

	// KeyKind is the kind of map keys (tag, asset, class, enum or string).
	KeyKind Kind `json:"key_kind,omitempty" mapstructure:"key_kind"`

	// Elem describes map values and list elements.
	Elem *Descriptor `json:"elem,omitempty" mapstructure:"elem"`

	// Fields restricts a struct to the listed members, recursively.
	Fields []Descriptor `json:"fields,omitempty" mapstructure:"fields"`
}

// Chain returns the field chain leading to the value
func (d *Descriptor) Chain() []string {
	if len(d.Path) > 0 {
		return d.Path
	}
	return []string{d.Name}
}

// ImpliedKind returns the declared kind, or the kind the other declared
// attributes imply. A nil descriptor implies nothing.
func (d *Descriptor) ImpliedKind() Kind {
	switch {
	case d == nil:
		return KindInvalid
	case d.Kind != KindInvalid:
		return d.Kind
	case d.KeyKind != KindInvalid:
		return KindMap
	case d.StructType != "" || len(d.Fields) > 0:
		return KindStruct
	case d.EnumType != "":
		return KindEnum
	}
	return KindInvalid
}

// Matches reports whether key names this descriptor under the name
// equivalence rule
func (d *Descriptor) Matches(key string) bool {
	if SameName(d.Name, key) {
		return true
	}
	for _, a := range d.Aliases {
		if SameName(a, key) {
			return true
		}
	}
	return false
}

// Field returns the child descriptor declared for a struct member
func (d *Descriptor) Field(key string) *Descriptor {
	if d == nil {
		return nil
	}
	for i := range d.Fields {
		if d.Fields[i].Matches(key) {
			return &d.Fields[i]
		}
	}
	return nil
}

// Validate checks the declaration for internal consistency
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("descriptor name is required")
	}
	for _, link := range d.Path {
		if strings.TrimSpace(link) == "" {
			return fmt.Errorf("descriptor %q: empty link in path", d.Name)
		}
	}
	if len(d.Fields) > 0 && d.Kind != KindInvalid && d.Kind != KindStruct {
		return fmt.Errorf("descriptor %q: fields declared on %s", d.Name, d.Kind)
	}
	if d.KeyKind != KindInvalid {
		if d.Kind != KindMap && d.Kind != KindInvalid {
			return fmt.Errorf("descriptor %q: key_kind declared on %s", d.Name, d.Kind)
		}
		switch d.KeyKind {
		case KindTag, KindAsset, KindClass, KindEnum, KindString:
		default:
			return fmt.Errorf("descriptor %q: unsupported map key kind %s", d.Name, d.KeyKind)
		}
	}
	if d.Elem != nil {
		if k := d.ImpliedKind(); k != KindInvalid && k != KindMap && k != KindList {
			return fmt.Errorf("descriptor %q: elem declared on %s", d.Name, k)
		}
		elem := *d.Elem
		if elem.Name == "" {
			elem.Name = d.Name
		}
		if err := elem.Validate(); err != nil {
			return fmt.Errorf("descriptor %q elem: %w", d.Name, err)
		}
	}
	for i := range d.Fields {
		if err := d.Fields[i].Validate(); err != nil {
			return fmt.Errorf("descriptor %q: %w", d.Name, err)
		}
	}
	return nil
}

// SetDefaults names anonymous element descriptors after their container
func (d *Descriptor) SetDefaults() {
	if d.Elem != nil {
		if d.Elem.Name == "" {
			d.Elem.Name = d.Name
		}
		d.Elem.SetDefaults()
	}
	for i := range d.Fields {
		d.Fields[i].SetDefaults()
	}
}

// Descriptors is an ordered declaration set
type Descriptors []Descriptor

// Lookup finds the descriptor for a cache key
func (ds Descriptors) Lookup(key string) *Descriptor {
	for i := range ds {
		if ds[i].Matches(key) {
			return &ds[i]
		}
	}
	return nil
}

// SetDefaults fills the defaults of every descriptor
func (ds Descriptors) SetDefaults() {
	for i := range ds {
		ds[i].SetDefaults()
	}
}

// Validate validates every descriptor and rejects duplicate names
func (ds Descriptors) Validate() error {
	seen := make(map[string]string, len(ds))
	for i := range ds {
		if err := ds[i].Validate(); err != nil {
			return err
		}
		c := Canonical(ds[i].Name)
		if prev, ok := seen[c]; ok {
			return fmt.Errorf("descriptors %q and %q name the same property", prev, ds[i].Name)
		}
		seen[c] = ds[i].Name
	}
	return nil
}

// Named builds bare descriptors, one per property name
func Named(names ...string) Descriptors {
	ds := make(Descriptors, 0, len(names))
	for _, n := range names {
		ds = append(ds, Descriptor{Name: n})
	}
	return ds
}
