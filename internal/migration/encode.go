package migration

import (
	"fmt"
	"math"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/property"
)

// encode converts a host value into a JSON tree. A descriptor with Fields
// restricts structs to the declared members, which are then keyed by their
// declared names.
func encode(v property.Value, d *property.Descriptor) (any, error) {
	switch v.Kind {
	case property.KindBool:
		return v.Bool, nil
	case property.KindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return nil, kindErrorf(ErrSerializationFailed, "%g has no JSON form", v.Number)
		}
		return v.Number, nil
	case property.KindString, property.KindTag:
		return v.Str, nil
	case property.KindEnum:
		return v.Str, nil
	case property.KindAsset, property.KindClass:
		if v.IsNull() {
			return assetref.None, nil
		}
		return v.Str, nil
	case property.KindStruct:
		return encodeStruct(v, d)
	case property.KindMap:
		return encodeMap(v, d)
	case property.KindList:
		var elem *property.Descriptor
		if d != nil {
			elem = d.Elem
		}
		items := make([]any, 0, len(v.Items))
		for i, it := range v.Items {
			tree, err := encode(it, elem)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items = append(items, tree)
		}
		return items, nil
	case property.KindOpaque:
		return nil, kindErrorf(ErrSerializationFailed, "opaque value (%d bytes)", len(v.Blob))
	}
	return nil, kindErrorf(ErrSerializationFailed, "unsupported value kind %s", v.Kind)
}

func encodeStruct(v property.Value, d *property.Descriptor) (any, error) {
	obj := cachefile.NewObject()
	if d == nil || len(d.Fields) == 0 {
		for _, f := range v.Fields {
			tree, err := encode(f.Value, nil)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			obj.Set(f.Name, tree)
		}
		return obj, nil
	}

	for i := range d.Fields {
		fd := &d.Fields[i]
		name, ok := property.Resolve(fd.Name, fd.Aliases, v.HasField)
		if !ok {
			return nil, kindErrorf(ErrPropertyMissing, "%s has no field %s", v.Type, fd.Name)
		}
		fv, _ := v.Field(name)
		tree, err := encode(fv, fd)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		obj.Set(fd.Name, tree)
	}
	return obj, nil
}

func encodeMap(v property.Value, d *property.Descriptor) (any, error) {
	var elem *property.Descriptor
	if d != nil {
		elem = d.Elem
	}

	obj := cachefile.NewObject()
	for _, e := range v.Entries {
		key, err := encodeKey(e.Key)
		if err != nil {
			return nil, err
		}
		if _, dup := obj.Get(key); dup {
			return nil, kindErrorf(ErrSerializationFailed, "map keys collide on %q", key)
		}
		tree, err := encode(e.Value, elem)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		obj.Set(key, tree)
	}
	return obj, nil
}

func encodeKey(k property.Value) (string, error) {
	switch k.Kind {
	case property.KindString, property.KindTag, property.KindEnum:
		return k.Str, nil
	case property.KindAsset, property.KindClass:
		if k.IsNull() {
			return assetref.None, nil
		}
		return k.Str, nil
	}
	return "", kindErrorf(ErrSerializationFailed, "map key of kind %s has no JSON form", k.Kind)
}
