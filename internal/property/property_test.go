package property

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpellings(t *testing.T) {
	assert.Equal(t, []string{"DisplayName", "display_name", "displayName"}, Spellings("DisplayName"))
	assert.Equal(t, []string{"display_name", "DisplayName", "displayName"}, Spellings("display_name"))

	got := Spellings("bIsTwoHanded")
	assert.Contains(t, got, "is_two_handed")
	assert.Contains(t, got, "IsTwoHanded")
	assert.Equal(t, "bIsTwoHanded", got[0])
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "displayname", Canonical("DisplayName"))
	assert.True(t, SameName("display_name", "DisplayName"))
	assert.True(t, SameName("bHidden", "hidden"))
	assert.False(t, SameName("bonus", "onus"))
	assert.False(t, SameName("speed", "speeds"))
}

func TestResolve(t *testing.T) {
	props := map[string]bool{"display_name": true, "icon_texture": true}
	has := func(s string) bool { return props[s] }

	name, ok := Resolve("DisplayName", nil, has)
	require.True(t, ok)
	assert.Equal(t, "display_name", name)

	name, ok = Resolve("Icon", []string{"IconTexture"}, has)
	require.True(t, ok)
	assert.Equal(t, "icon_texture", name)

	_, ok = Resolve("Missing", nil, has)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Float ")
	require.NoError(t, err)
	assert.Equal(t, KindNumber, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindInvalid, k)

	_, err = ParseKind("quaternion")
	assert.Error(t, err)

	var parsed Kind
	require.NoError(t, parsed.UnmarshalText([]byte("tag")))
	assert.Equal(t, KindTag, parsed)
	text, err := KindMap.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "map", string(text))
}

func TestValue_SetFieldCopies(t *testing.T) {
	inner := StructValue("Sockets", F("left", StringValue("l")))
	outer := StructValue("Equipment", F("sockets", inner), F("weight", NumberValue(3)))

	updated, err := outer.SetField("weight", NumberValue(4))
	require.NoError(t, err)
	w, _ := outer.Field("weight")
	assert.Equal(t, 3.0, w.Number, "receiver untouched")
	w, _ = updated.Field("weight")
	assert.Equal(t, 4.0, w.Number)

	sockets, ok := updated.Field("sockets")
	require.True(t, ok)
	sockets, err = sockets.SetField("left", StringValue("hand_l"))
	require.NoError(t, err)
	// a field read out must be written back
	left, _ := updated.Fields[0].Value.Field("left")
	assert.Equal(t, "l", left.Str)

	updated, err = updated.SetField("sockets", sockets)
	require.NoError(t, err)
	left, _ = updated.Fields[0].Value.Field("left")
	assert.Equal(t, "hand_l", left.Str)

	_, err = outer.SetField("weight", StringValue("heavy"))
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = outer.SetField("colour", NumberValue(1))
	assert.ErrorIs(t, err, ErrNoSuchField)
	_, err = NumberValue(1).SetField("x", NumberValue(1))
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, AssetValue("/Game/T_A").Equal(AssetValue("/Game/T_A.T_A")))
	assert.False(t, AssetValue("/Game/T_A").Equal(AssetValue("/Game/T_B")))
	assert.True(t, EnumValue("EType", "Bow").Equal(EnumValue("", "bow")))
	assert.False(t, EnumValue("EType", "Bow").Equal(EnumValue("EOther", "Bow")))

	tags := ListValue(KindTag, TagValue("A"), TagValue("B"))
	assert.True(t, tags.Equal(ListValue(KindTag, TagValue("B"), TagValue("A"))), "tag lists compare as sets")
	assets := ListValue(KindAsset, AssetValue("/A"), AssetValue("/B"))
	assert.False(t, assets.Equal(ListValue(KindAsset, AssetValue("/B"), AssetValue("/A"))))

	m1 := MapValue(Entry{Key: TagValue("X"), Value: NumberValue(1)}, Entry{Key: TagValue("Y"), Value: NumberValue(2)})
	m2 := MapValue(Entry{Key: TagValue("Y"), Value: NumberValue(2)}, Entry{Key: TagValue("X"), Value: NumberValue(1)})
	assert.True(t, m1.Equal(m2))
	assert.False(t, m1.Equal(m2.Put(TagValue("X"), NumberValue(5))))

	s1 := StructValue("S", F("a", NumberValue(1)), F("b", BoolValue(true)))
	s2 := StructValue("S", F("b", BoolValue(true)), F("a", NumberValue(1)))
	assert.True(t, s1.Equal(s2))
	assert.False(t, s1.Equal(NumberValue(1)))
}

func TestValue_MapPut(t *testing.T) {
	m := MapValue()
	m = m.Put(AssetValue("/Game/A"), NumberValue(1))
	m = m.Put(AssetValue("/Game/A.A"), NumberValue(2))
	m = m.Put(AssetValue("/Game/B"), NumberValue(3))

	require.Len(t, m.Entries, 2)
	v, ok := m.Lookup(AssetValue("/Game/A"))
	require.True(t, ok)
	assert.Equal(t, 2.0, v.Number)
}

func TestValue_Assignable(t *testing.T) {
	assert.NoError(t, NumberValue(1).AssignableTo(Value{}))
	assert.NoError(t, EnumValue("", "A").AssignableTo(EnumValue("E", "B")))
	assert.ErrorIs(t, EnumValue("F", "A").AssignableTo(EnumValue("E", "B")), ErrKindMismatch)
	assert.ErrorIs(t, ListValue(KindTag).AssignableTo(ListValue(KindAsset)), ErrKindMismatch)
	assert.NoError(t, ListValue(KindInvalid).AssignableTo(ListValue(KindAsset)))
	assert.True(t, AssetValue("").IsNull())
	assert.False(t, StringValue("").IsNull())
}

func TestDescriptor_Validate(t *testing.T) {
	ds := Descriptors{
		{Name: "stats", KeyKind: KindTag, Elem: &Descriptor{StructType: "Stat"}},
		{Name: "item", Fields: []Descriptor{{Name: "equipment", Fields: []Descriptor{{Name: "slot"}}}}},
	}
	require.NoError(t, ds.Validate())
	assert.Empty(t, ds[0].Elem.Name, "validation leaves the declaration untouched")
	ds.SetDefaults()
	assert.Equal(t, "stats", ds[0].Elem.Name)
	assert.Equal(t, KindMap, ds[0].ImpliedKind())
	assert.Equal(t, KindStruct, ds[0].Elem.ImpliedKind())
	assert.Equal(t, KindStruct, ds[1].ImpliedKind())
	assert.NotNil(t, ds.Lookup("Item"))
	assert.NotNil(t, ds[1].Field("Equipment"))
	assert.Equal(t, []string{"item"}, ds[1].Chain())

	bad := []Descriptors{
		{{Name: " "}},
		{{Name: "a", Path: []string{"x", ""}}},
		{{Name: "a", Kind: KindNumber, Fields: []Descriptor{{Name: "b"}}}},
		{{Name: "a", KeyKind: KindStruct}},
		{{Name: "a", Kind: KindString, Elem: &Descriptor{}}},
		{{Name: "DisplayName"}, {Name: "display_name"}},
	}
	for _, b := range bad {
		assert.Error(t, b.Validate(), "%+v", b)
	}
}
