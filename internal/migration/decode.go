package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/host"
	"assetmig-go/internal/property"
)

// errLeaveDefault marks a cached "None" or empty reference: nothing is
// written and nothing failed
var errLeaveDefault = errors.New("leave default")

// decoder turns cached JSON trees into host values for one asset. Failures
// below the property level (a struct field, a map entry) do not abort the
// enclosing value; they are collected in nested.
type decoder struct {
	ctx    context.Context
	host   host.Host
	asset  string
	nested []Failure
}

func (dc *decoder) nestedFail(kind error, chain []string, err error) {
	dc.nested = append(dc.nested, Failure{
		Kind:     kind,
		Asset:    dc.asset,
		Property: strings.Join(chain, "."),
		Err:      err,
	})
}

// applyProperty writes one cached value onto the asset
func (dc *decoder) applyProperty(a host.Asset, key string, d *property.Descriptor, raw any) error {
	top, _, next, err := dc.decodeProperty(a, key, d, raw)
	if err != nil {
		return err
	}
	if err := a.SetProperty(top, next); err != nil {
		if errors.Is(err, host.ErrPropertyNotFound) {
			return withKind(ErrPropertyMissingOnNewParent, err)
		}
		return withKind(ErrTypeMismatch, err)
	}
	return nil
}

// decodeProperty computes what applying one cached value would make of the
// asset's top-level property, without writing it. The chain from the asset
// to the value is read out link by link, the leaf is decoded over the
// innermost copy, and every enclosing struct is reassigned outward. It
// returns the top-level name with its current and new values.
func (dc *decoder) decodeProperty(a host.Asset, key string, d *property.Descriptor, raw any) (string, property.Value, property.Value, error) {
	var none property.Value

	links := []string{key}
	var aliases []string
	if d != nil {
		aliases = d.Aliases
		if len(d.Path) > 0 {
			links = d.Path
			aliases = nil
		}
	}

	top, ok := property.Resolve(links[0], aliases, func(n string) bool { return host.HasProperty(a, n) })
	if !ok {
		return "", none, none, kindErrorf(ErrPropertyMissingOnNewParent, "%s does not expose %s", a.ClassPath(), links[0])
	}
	v, err := a.Property(top)
	if err != nil {
		return "", none, none, withKind(ErrPropertyMissingOnNewParent, err)
	}

	vals := []property.Value{v}
	names := []string{top}
	for i, link := range links[1:] {
		parent := vals[len(vals)-1]
		if parent.Kind != property.KindStruct {
			return "", none, none, kindErrorf(ErrTypeMismatch, "link %d of %d (%s): %s is %s, not a struct",
				i+2, len(links), link, strings.Join(names, "."), parent.Kind)
		}
		name, ok := property.Resolve(link, nil, parent.HasField)
		if !ok {
			return "", none, none, kindErrorf(ErrPropertyMissingOnNewParent, "link %d of %d (%s) not found on %s",
				i+2, len(links), link, parent.Type)
		}
		fv, _ := parent.Field(name)
		vals = append(vals, fv)
		names = append(names, name)
	}

	leaf, err := dc.decode(raw, d, vals[len(vals)-1], names)
	if err != nil {
		return "", none, none, err
	}

	for i := len(vals) - 1; i > 0; i-- {
		parent, err := vals[i-1].SetField(names[i], leaf)
		if err != nil {
			return "", none, none, withKind(ErrTypeMismatch, err)
		}
		leaf = parent
	}
	return top, v, leaf, nil
}

// selectKind picks the kind a cached value is decoded as: the descriptor's,
// else the destination's current kind, else one inferred from the JSON shape
func selectKind(raw any, d *property.Descriptor, dst property.Value) property.Kind {
	if k := d.ImpliedKind(); k != property.KindInvalid {
		return k
	}
	if dst.IsValid() {
		return dst.Kind
	}
	return inferKind(raw)
}

func inferKind(raw any) property.Kind {
	switch v := raw.(type) {
	case bool:
		return property.KindBool
	case float64:
		return property.KindNumber
	case string:
		if !assetref.IsAbsolute(v) {
			return property.KindString
		}
		if assetref.IsGeneratedClass(v) {
			return property.KindClass
		}
		return property.KindAsset
	case *cachefile.Object:
		return property.KindStruct
	case []any:
		return property.KindList
	}
	return property.KindInvalid
}

func mismatch(raw any, kind property.Kind) error {
	return kindErrorf(ErrTypeMismatch, "cached %s cannot be written as %s", cachefile.Shape(raw), kind)
}

func (dc *decoder) decode(raw any, d *property.Descriptor, dst property.Value, chain []string) (property.Value, error) {
	if raw == nil {
		return property.Value{}, errLeaveDefault
	}

	kind := selectKind(raw, d, dst)
	switch kind {
	case property.KindBool:
		if b, ok := raw.(bool); ok {
			return property.BoolValue(b), nil
		}
	case property.KindNumber:
		if f, ok := raw.(float64); ok {
			return property.NumberValue(f), nil
		}
	case property.KindString:
		if s, ok := raw.(string); ok {
			return property.StringValue(s), nil
		}
	case property.KindEnum:
		if s, ok := raw.(string); ok {
			enumType := dst.Type
			if d != nil && d.EnumType != "" {
				enumType = d.EnumType
			}
			return dc.resolveEnum(enumType, s)
		}
	case property.KindAsset:
		if s, ok := raw.(string); ok {
			if assetref.IsNone(s) {
				return property.Value{}, errLeaveDefault
			}
			return dc.resolveAsset(s)
		}
	case property.KindClass:
		if s, ok := raw.(string); ok {
			if assetref.IsNone(s) {
				return property.Value{}, errLeaveDefault
			}
			return dc.resolveClass(s)
		}
	case property.KindTag:
		if s, ok := raw.(string); ok {
			if assetref.IsNone(s) {
				return property.Value{}, errLeaveDefault
			}
			return dc.resolveTag(s)
		}
	case property.KindStruct:
		if obj, ok := raw.(*cachefile.Object); ok {
			return dc.decodeStruct(obj, d, dst, chain)
		}
	case property.KindMap:
		if obj, ok := raw.(*cachefile.Object); ok {
			return dc.decodeMap(obj, d, dst, chain)
		}
	case property.KindList:
		if items, ok := raw.([]any); ok {
			return dc.decodeList(items, d, dst, chain)
		}
	}
	return property.Value{}, mismatch(raw, kind)
}

func (dc *decoder) resolveAsset(s string) (property.Value, error) {
	a, err := dc.host.LoadAsset(dc.ctx, assetref.ObjectPath(s))
	if err != nil {
		return property.Value{}, withKind(ErrValueResolutionFailed, err)
	}
	return property.AssetValue(assetref.Reference(a.Path())), nil
}

func (dc *decoder) resolveClass(s string) (property.Value, error) {
	v, err := dc.host.LoadClass(dc.ctx, assetref.ClassPath(s))
	if err != nil {
		return property.Value{}, withKind(ErrValueResolutionFailed, err)
	}
	return v, nil
}

func (dc *decoder) resolveTag(s string) (property.Value, error) {
	v, err := dc.host.RequestTag(dc.ctx, strings.TrimSpace(s))
	if err != nil {
		return property.Value{}, withKind(ErrValueResolutionFailed, err)
	}
	return v, nil
}

func (dc *decoder) resolveEnum(enumType, s string) (property.Value, error) {
	v, err := dc.host.ResolveEnum(dc.ctx, enumType, s)
	if err != nil {
		return property.Value{}, withKind(ErrValueResolutionFailed, err)
	}
	return v, nil
}

func (dc *decoder) newStruct(structType string) (property.Value, error) {
	if structType == "" {
		return property.Value{}, kindErrorf(ErrTypeMismatch, "struct type unknown, declare struct_type")
	}
	v, err := dc.host.NewStruct(dc.ctx, structType)
	if err != nil {
		return property.Value{}, withKind(ErrValueResolutionFailed, err)
	}
	return v, nil
}

// decodeStruct merges the cached fields into dst. Fields the cache does not
// mention keep their current values.
func (dc *decoder) decodeStruct(obj *cachefile.Object, d *property.Descriptor, dst property.Value, chain []string) (property.Value, error) {
	base := dst
	switch {
	case base.Kind == property.KindStruct:
		if d != nil && d.StructType != "" && base.Type != "" && d.StructType != base.Type {
			return property.Value{}, kindErrorf(ErrTypeMismatch, "cached %s over %s", d.StructType, base.Type)
		}
	case base.IsValid():
		return property.Value{}, mismatch(obj, base.Kind)
	default:
		var typ string
		if d != nil {
			typ = d.StructType
		}
		v, err := dc.newStruct(typ)
		if err != nil {
			return property.Value{}, err
		}
		base = v
	}

	seen := make(map[string]string, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		sub := append(chain[:len(chain):len(chain)], key)

		c := property.Canonical(key)
		if first, dup := seen[c]; dup {
			dc.nestedFail(ErrDuplicateProperty, sub, fmt.Errorf("same field as %s, first occurrence kept", first))
			continue
		}
		seen[c] = key

		fd := d.Field(key)
		var aliases []string
		if fd != nil {
			aliases = fd.Aliases
		}
		name, ok := property.Resolve(key, aliases, base.HasField)
		if !ok {
			dc.nestedFail(ErrPropertyMissingOnNewParent, sub, fmt.Errorf("%s has no field %s", base.Type, key))
			continue
		}

		cur, _ := base.Field(name)
		fv, err := dc.decode(pair.Value, fd, cur, sub)
		if errors.Is(err, errLeaveDefault) {
			continue
		}
		if err != nil {
			dc.nestedFail(kindOf(err, ErrTypeMismatch), sub, causeOf(err))
			continue
		}

		next, err := base.SetField(name, fv)
		if err != nil {
			dc.nestedFail(ErrTypeMismatch, sub, err)
			continue
		}
		base = next
	}
	return base, nil
}

// decodeMap upserts the cached entries into dst; existing entries not in the
// cache are kept
func (dc *decoder) decodeMap(obj *cachefile.Object, d *property.Descriptor, dst property.Value, chain []string) (property.Value, error) {
	base := dst
	if base.Kind != property.KindMap {
		if base.IsValid() {
			return property.Value{}, mismatch(obj, base.Kind)
		}
		base = property.MapValue()
	}

	var elem *property.Descriptor
	keyKind := property.KindInvalid
	enumType := ""
	if d != nil {
		elem = d.Elem
		keyKind = d.KeyKind
		enumType = d.EnumType
	}
	if len(base.Entries) > 0 {
		sample := base.Entries[0].Key
		if keyKind == property.KindInvalid {
			keyKind = sample.Kind
		}
		if enumType == "" && sample.Kind == property.KindEnum {
			enumType = sample.Type
		}
	}

	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		sub := entryChain(chain, pair.Key)

		k, err := dc.resolveKey(pair.Key, keyKind, enumType)
		if errors.Is(err, errLeaveDefault) {
			continue
		}
		if err != nil {
			dc.nestedFail(kindOf(err, ErrValueResolutionFailed), sub, causeOf(err))
			continue
		}

		cur, ok := base.Lookup(k)
		if !ok {
			if cur, err = dc.newElem(elem, base); err != nil {
				dc.nestedFail(kindOf(err, ErrValueResolutionFailed), sub, causeOf(err))
				continue
			}
		}

		v, err := dc.decode(pair.Value, elem, cur, sub)
		if errors.Is(err, errLeaveDefault) {
			continue
		}
		if err != nil {
			dc.nestedFail(kindOf(err, ErrTypeMismatch), sub, causeOf(err))
			continue
		}
		base = base.Put(k, v)
	}
	return base, nil
}

func (dc *decoder) resolveKey(s string, kind property.Kind, enumType string) (property.Value, error) {
	if kind == property.KindInvalid {
		kind = inferKind(s)
	}
	switch kind {
	case property.KindTag:
		return dc.resolveTag(s)
	case property.KindAsset:
		if assetref.IsNone(s) {
			return property.Value{}, errLeaveDefault
		}
		return dc.resolveAsset(s)
	case property.KindClass:
		if assetref.IsNone(s) {
			return property.Value{}, errLeaveDefault
		}
		return dc.resolveClass(s)
	case property.KindEnum:
		return dc.resolveEnum(enumType, s)
	case property.KindString:
		return property.StringValue(s), nil
	}
	return property.Value{}, kindErrorf(ErrTypeMismatch, "map key %q cannot be read as %s", s, kind)
}

// newElem builds the starting value of a map entry the destination does not
// have yet
func (dc *decoder) newElem(elem *property.Descriptor, base property.Value) (property.Value, error) {
	switch k := elem.ImpliedKind(); k {
	case property.KindInvalid:
	case property.KindStruct:
		return dc.newStruct(elem.StructType)
	default:
		return property.Zero(k, elem.EnumType), nil
	}

	if len(base.Entries) > 0 {
		sample := base.Entries[0].Value
		if sample.Kind == property.KindStruct {
			return dc.newStruct(sample.Type)
		}
		return property.Zero(sample.Kind, sample.Type), nil
	}
	return property.Value{}, nil
}

// decodeList replaces dst with the cached items. Any item failing fails the
// whole list.
func (dc *decoder) decodeList(items []any, d *property.Descriptor, dst property.Value, chain []string) (property.Value, error) {
	if dst.IsValid() && dst.Kind != property.KindList {
		return property.Value{}, mismatch(items, dst.Kind)
	}

	var elem *property.Descriptor
	if d != nil {
		elem = d.Elem
	}
	elemKind := elem.ImpliedKind()
	if elemKind == property.KindInvalid {
		elemKind = dst.ElemKind()
	}
	elemType := ""
	if elem != nil {
		elemType = elem.StructType
		if elemType == "" {
			elemType = elem.EnumType
		}
	}
	if elemType == "" && len(dst.Items) > 0 {
		elemType = dst.Items[0].Type
	}

	out := property.Value{Kind: property.KindList, Type: dst.Type, Items: make([]property.Value, 0, len(items))}
	if out.Type == "" && elemKind != property.KindInvalid {
		out.Type = elemKind.String()
	}

	for i, raw := range items {
		sub := entryChain(chain, fmt.Sprint(i))

		var cur property.Value
		switch {
		case elemKind == property.KindStruct:
			v, err := dc.newStruct(elemType)
			if err != nil {
				return property.Value{}, fmt.Errorf("item %d: %w", i, err)
			}
			cur = v
		case elemKind != property.KindInvalid:
			cur = property.Zero(elemKind, elemType)
		}

		v, err := dc.decode(raw, elem, cur, sub)
		if errors.Is(err, errLeaveDefault) {
			if elemKind == property.KindInvalid {
				continue
			}
			v, err = cur, nil
		}
		if err != nil {
			return property.Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		out.Items = append(out.Items, v)
	}

	if out.Type == "" && len(out.Items) > 0 {
		out.Type = out.Items[0].Kind.String()
	}
	return out, nil
}

func entryChain(chain []string, key string) []string {
	out := append([]string(nil), chain...)
	if len(out) == 0 {
		return []string{"[" + key + "]"}
	}
	out[len(out)-1] += "[" + key + "]"
	return out
}
