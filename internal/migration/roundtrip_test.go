package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/property"
	"assetmig-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func extract(t *testing.T, m *storage.Manager, set AssetSet, props property.Descriptors) (string, *ExtractResult) {
	t.Helper()

	out := filepath.Join(t.TempDir(), "migration_cache", "test_data.json")
	result, err := NewExtractor(m, zap.NewNop()).Extract(context.Background(), set, props, out)
	require.NoError(t, err)
	return out, result
}

func TestRoundTrip_Scalars(t *testing.T) {
	orig := baseTree()
	orig.Assets = append(orig.Assets, asset("/X/Foo", "/Script/Game.Item",
		prop("speed", num(12.5)),
		prop("enabled", property.BoolValue(true)),
	))
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Foo", "/Script/Game.NativeItem",
		prop("speed", num(0)),
		prop("enabled", property.BoolValue(false)),
	))
	src, dst := openTree(t, orig), openTree(t, rewrite)

	cachePath, result := extract(t, src, AssetSet{Paths: []string{"/X/Foo"}}, property.Named("speed", "enabled"))
	assert.Equal(t, 1, result.AssetsWritten)
	assert.Equal(t, 2, result.PropertiesRead)
	assert.Empty(t, result.Failures)

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Foo": {"path": "/X/Foo", "speed": 12.5, "enabled": true}}`, string(data))
	assert.Equal(t, "{\n  \"Foo\": {\n    \"path\": \"/X/Foo\",\n    \"speed\": 12.5,\n    \"enabled\": true\n  }\n}\n", string(data))

	logger, logs := observedLogger()
	summary, err := NewApplier(dst, logger).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AssetsApplied)
	assert.Equal(t, 2, summary.PropertiesApplied)
	assert.True(t, summary.OK())
	assert.Equal(t, 0, logs.Len())

	assert.Equal(t, 12.5, readProp(t, dst, "/X/Foo", "speed").Number)
	assert.True(t, readProp(t, dst, "/X/Foo", "enabled").Bool)
}

func TestRoundTrip_AssetReferenceNormalised(t *testing.T) {
	orig := baseTree()
	orig.Assets = append(orig.Assets, asset("/X/Bar", "/Script/Game.Item",
		prop("icon", property.AssetValue("/X/Textures/T_A.T_A")),
	))
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Bar", "/Script/Game.NativeItem",
		prop("icon", none),
	))
	src, dst := openTree(t, orig), openTree(t, rewrite)

	cachePath, _ := extract(t, src, AssetSet{Paths: []string{"/X/Bar"}}, property.Named("icon"))

	f, err := cachefile.Read(cachePath)
	require.NoError(t, err)
	icon, ok := f.Lookup("Bar").Get("icon")
	require.True(t, ok)
	assert.Equal(t, "/X/Textures/T_A.T_A", icon)

	summary, err := NewApplier(dst, zap.NewNop()).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PropertiesApplied)

	got := readProp(t, dst, "/X/Bar", "icon")
	assert.Equal(t, "/X/Textures/T_A", assetref.ObjectPath(got.Str))
	assert.True(t, got.Equal(property.AssetValue("/X/Textures/T_A.T_A")))
}

func TestRoundTrip_TagSet(t *testing.T) {
	slots := property.ListValue(property.KindTag, tag("Slot.RightHand"), tag("Slot.LeftHand"))

	orig := baseTree()
	orig.Assets = append(orig.Assets, asset("/X/Sword", "/Script/Game.Weapon", prop("equipSlots", slots)))
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Sword", "/Script/Game.NativeWeapon",
		prop("equip_slots", property.ListValue(property.KindTag)),
	))
	src, dst := openTree(t, orig), openTree(t, rewrite)

	cachePath, _ := extract(t, src, AssetSet{Paths: []string{"/X/Sword"}}, property.Named("equipSlots"))

	f, err := cachefile.Read(cachePath)
	require.NoError(t, err)
	cached, _ := f.Lookup("Sword").Get("equipSlots")
	assert.Equal(t, []any{"Slot.RightHand", "Slot.LeftHand"}, cached)

	summary, err := NewApplier(dst, zap.NewNop()).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	assert.True(t, summary.OK())

	got := readProp(t, dst, "/X/Sword", "equip_slots")
	assert.True(t, got.Equal(slots))
	assert.True(t, got.Equal(property.ListValue(property.KindTag, tag("Slot.LeftHand"), tag("Slot.RightHand"))))
}

func TestRoundTrip_NestedStruct(t *testing.T) {
	orig := baseTree()
	orig.Assets = append(orig.Assets, asset("/X/Armor", "/Script/Game.Item",
		prop("item", itemInfo("hand_l", "hand_r", "legs", 3)),
	))
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Armor", "/Script/Game.NativeItem",
		prop("item", itemInfo("", "", "chest", 7)),
	))
	src, dst := openTree(t, orig), openTree(t, rewrite)

	props := property.Descriptors{{
		Name: "sockets",
		Path: []string{"item", "equipment", "sockets"},
		Kind: property.KindStruct,
	}}
	cachePath, result := extract(t, src, AssetSet{Paths: []string{"/X/Armor"}}, props)
	require.Equal(t, 1, result.PropertiesRead)

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Armor": {"path": "/X/Armor", "sockets": {"left_name": "hand_l", "right_name": "hand_r"}}}`, string(data))

	summary, err := NewApplier(dst, zap.NewNop()).Apply(context.Background(), cachePath, props)
	require.NoError(t, err)
	assert.True(t, summary.OK())
	assert.Equal(t, 1, summary.PropertiesApplied)

	got := readProp(t, dst, "/X/Armor", "item")
	assert.True(t, got.Equal(itemInfo("hand_l", "hand_r", "chest", 7)), "got %s", got)
}

func TestRoundTrip_WholeStructMerges(t *testing.T) {
	orig := baseTree()
	orig.Assets = append(orig.Assets, asset("/X/Armor", "/Script/Game.Item",
		prop("item", itemInfo("hand_l", "hand_r", "legs", 3)),
	))
	src := openTree(t, orig)

	cachePath, _ := extract(t, src, AssetSet{Paths: []string{"/X/Armor"}}, property.Named("ItemInformation"))
	f, err := cachefile.Read(cachePath)
	require.NoError(t, err)
	require.Len(t, f.Entries, 0, "ItemInformation is not a spelling of item")

	cachePath = writeCache(t, `{
  "Armor": {
    "path": "/X/Armor",
    "item": {"equipment": {"Sockets": {"LeftName": "hand_l"}}}
  }
}`)

	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Armor", "/Script/Game.NativeItem",
		prop("item", itemInfo("old_l", "old_r", "chest", 7)),
	))
	dst := openTree(t, rewrite)

	summary, err := NewApplier(dst, zap.NewNop()).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	assert.True(t, summary.OK())

	got := readProp(t, dst, "/X/Armor", "item")
	assert.True(t, got.Equal(itemInfo("hand_l", "old_r", "chest", 7)), "got %s", got)
}

func TestApply_MissingPropertyTolerated(t *testing.T) {
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Foo", "/Script/Game.NativeItem",
		prop("speed", num(0)),
		prop("enabled", property.BoolValue(false)),
	))
	dst := openTree(t, rewrite)

	cachePath := writeCache(t, `{
  "Foo": {
    "path": "/X/Foo",
    "obsolete_field": 42,
    "speed": 3,
    "enabled": true
  }
}`)

	logger, logs := observedLogger()
	summary, err := NewApplier(dst, logger).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "obsolete_field", logs.All()[0].ContextMap()["property"])
	assert.Equal(t, 1, summary.PropertiesFailed)
	assert.Equal(t, 2, summary.PropertiesApplied)
	assert.Equal(t, 1, summary.AssetsApplied)
	assert.Equal(t, 1, summary.Count(ErrPropertyMissingOnNewParent))
	assert.ErrorIs(t, summary.Failures[0], ErrPropertyMissingOnNewParent)

	assert.Equal(t, 3.0, readProp(t, dst, "/X/Foo", "speed").Number)
	assert.True(t, readProp(t, dst, "/X/Foo", "enabled").Bool)
}

func TestApply_CaseSpellingEquivalence(t *testing.T) {
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets, asset("/X/Hero", "/Script/Game.NativeHero",
		prop("display_name", str("")),
	))
	dst := openTree(t, rewrite)

	cachePath := writeCache(t, `{"Hero": {"path": "/X/Hero", "DisplayName": "Knight"}}`)

	logger, logs := observedLogger()
	summary, err := NewApplier(dst, logger).Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, 1, summary.PropertiesApplied)
	assert.Equal(t, "Knight", readProp(t, dst, "/X/Hero", "display_name").Str)
}

func TestApply_Idempotent(t *testing.T) {
	rewrite := baseTree()
	rewrite.Assets = append(rewrite.Assets,
		asset("/X/Foo", "/Script/Game.NativeItem",
			prop("speed", num(0)),
			prop("equip_slots", property.ListValue(property.KindTag, tag("Slot.LeftHand"))),
			prop("item", itemInfo("", "", "chest", 7)),
		),
	)
	dst := openTree(t, rewrite)

	cachePath := writeCache(t, `{
  "Foo": {
    "path": "/X/Foo",
    "speed": 5,
    "equipSlots": ["Slot.RightHand"],
    "item": {"equipment": {"sockets": {"left_name": "hand_l"}}, "display_name": "Plate"}
  }
}`)

	ap := NewApplier(dst, zap.NewNop())
	_, err := ap.Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	first, err := dst.GetAssetRecord("/X/Foo")
	require.NoError(t, err)

	_, err = ap.Apply(context.Background(), cachePath, nil)
	require.NoError(t, err)
	second, err := dst.GetAssetRecord("/X/Foo")
	require.NoError(t, err)

	require.Len(t, second.Properties, len(first.Properties))
	for i := range first.Properties {
		assert.Equal(t, first.Properties[i].Name, second.Properties[i].Name)
		assert.True(t, first.Properties[i].Value.Equal(second.Properties[i].Value), first.Properties[i].Name)
	}
}

func TestApply_OrderIndependent(t *testing.T) {
	newTree := func() *storage.Manager {
		tree := baseTree()
		tree.Assets = append(tree.Assets,
			asset("/X/A", "/Script/Game.NativeItem", prop("speed", num(0)), prop("icon", none)),
			asset("/X/B", "/Script/Game.NativeItem", prop("speed", num(0)), prop("icon", none)),
		)
		return openTree(t, tree)
	}

	forward := writeCache(t, `{
  "A": {"path": "/X/A", "speed": 1, "icon": "/X/Textures/T_A.T_A"},
  "B": {"path": "/X/B", "speed": 2, "icon": "/X/Textures/T_B"}
}`)
	reversed := writeCache(t, `{
  "B": {"path": "/X/B", "speed": 2, "icon": "/X/Textures/T_B"},
  "A": {"path": "/X/A", "speed": 1, "icon": "/X/Textures/T_A.T_A"}
}`)

	one, two := newTree(), newTree()
	_, err := NewApplier(one, zap.NewNop()).Apply(context.Background(), forward, nil)
	require.NoError(t, err)
	_, err = NewApplier(two, zap.NewNop()).Apply(context.Background(), reversed, nil)
	require.NoError(t, err)

	for _, p := range []string{"/X/A", "/X/B"} {
		for _, name := range []string{"speed", "icon"} {
			assert.True(t, readProp(t, one, p, name).Equal(readProp(t, two, p, name)), "%s %s", p, name)
		}
	}
}

func TestRoundTrip_AfterReparent(t *testing.T) {
	tree := baseTree()
	tree.Classes = []storage.ClassRecord{
		{Path: "/Script/Game.OldItem", Properties: []storage.PropertySchema{
			{Name: "speed", Type: "number", Default: num(1)},
			{Name: "rarity", Type: "string", Default: str("common")},
			{Name: "legacy", Type: "bool", Default: property.BoolValue(false)},
		}},
		{Path: "/Script/Game.NativeItem", Properties: []storage.PropertySchema{
			{Name: "speed", Type: "number", Default: num(1)},
			{Name: "rarity", Type: "enum:EWeaponType", Default: property.EnumValue("EWeaponType", "Sword")},
			{Name: "weapon_class", Type: "class", Default: property.ClassValue("")},
		}},
	}
	tree.Assets = append(tree.Assets, asset("/X/BP_Bow", "/Script/Game.OldItem",
		prop("speed", num(4)),
		prop("rarity", str("Long Bow")),
		prop("legacy", property.BoolValue(true)),
	))
	m := openTree(t, tree)
	ctx := context.Background()

	props := property.Named("speed", "rarity", "legacy")
	cachePath, _ := extract(t, m, AssetSet{Root: "/X", Prefix: "BP_", Recursive: true}, props)

	result, err := m.ReparentAsset(ctx, "/X/BP_Bow", "/Script/Game.NativeItem")
	require.NoError(t, err)
	assert.Equal(t, []string{"speed"}, result.Kept)
	assert.Equal(t, []string{"rarity"}, result.Reset)
	assert.Equal(t, []string{"legacy"}, result.Dropped)
	assert.Equal(t, []string{"weapon_class"}, result.Added)
	assert.Equal(t, "Sword", readProp(t, m, "/X/BP_Bow", "rarity").Str)

	logger, logs := observedLogger()
	summary, err := NewApplier(m, logger).Apply(ctx, cachePath, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.Len(), "legacy no longer exists")
	assert.Equal(t, 2, summary.PropertiesApplied)
	assert.Equal(t, 1, summary.Count(ErrPropertyMissingOnNewParent))
	assert.True(t, readProp(t, m, "/X/BP_Bow", "rarity").Equal(property.EnumValue("EWeaponType", "Bow")))
	assert.Equal(t, 4.0, readProp(t, m, "/X/BP_Bow", "speed").Number)
}
