package migration

import (
	"context"
	"path/filepath"
	"testing"

	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/property"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedFailure struct {
	kind, asset, property string
}

type failureRecorder struct {
	got []recordedFailure
}

func (r *failureRecorder) Record(kind, asset, prop string, _ error) {
	r.got = append(r.got, recordedFailure{kind, asset, prop})
}

func TestExtract_SkipsAndReports(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets,
		asset("/X/Items/Foo", "/Script/Game.Item",
			prop("speed", num(2)),
			prop("thumbnail", property.OpaqueValue([]byte{1, 2, 3})),
		),
		asset("/X/Items/Empty", "/Script/Game.Item"),
	)
	m := openTree(t, tree)

	logger, logs := observedLogger()
	rec := &failureRecorder{}
	ex := NewExtractor(m, logger)
	ex.SetFailureSink(rec)

	out := filepath.Join(t.TempDir(), "nested", "dir", "items_data.json")
	result, err := ex.Extract(context.Background(),
		AssetSet{Paths: []string{"/X/Items/Foo", "/X/Items/Gone", "/X/Items/Empty"}},
		property.Named("speed", "thumbnail", "missing"),
		out)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AssetsWritten)
	assert.Equal(t, 2, result.AssetsSkipped)
	assert.Equal(t, 1, result.PropertiesRead)
	assert.Equal(t, 5, result.PropertiesSkipped)

	kinds := map[string]int{}
	for _, f := range rec.got {
		kinds[f.kind]++
	}
	assert.Equal(t, map[string]int{
		"AssetLoadFailed":     1,
		"SerializationFailed": 1,
		"PropertyMissing":     4,
	}, kinds)
	assert.Equal(t, len(rec.got), logs.Len())

	f, err := cachefile.Read(out)
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, "Foo", f.Entries[0].Name)
	assert.Equal(t, "/X/Items/Foo", f.Entries[0].Path)
	assert.Equal(t, 1, f.Entries[0].Len())
}

func TestExtract_AssetSetListing(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets,
		asset("/X/Items/DA_Sword", "/Script/Game.Item", prop("speed", num(1))),
		asset("/X/Items/DA_Axe", "/Script/Game.Item", prop("speed", num(2))),
		asset("/X/Items/Deep/DA_Bow", "/Script/Game.Item", prop("speed", num(3))),
		asset("/X/Items/BP_Helper", "/Script/Game.Item", prop("speed", num(4))),
	)
	m := openTree(t, tree)
	ctx := context.Background()

	paths, err := AssetSet{Root: "/X/Items", Prefix: "DA_"}.Resolve(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"/X/Items/DA_Axe", "/X/Items/DA_Sword"}, paths)

	paths, err = AssetSet{
		Paths:     []string{"/X/Items/BP_Helper.BP_Helper", "/X/Items/DA_Sword"},
		Root:      "/X/Items",
		Prefix:    "DA_",
		Recursive: true,
	}.Resolve(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/X/Items/BP_Helper",
		"/X/Items/DA_Sword",
		"/X/Items/DA_Axe",
		"/X/Items/Deep/DA_Bow",
	}, paths)
}

func TestExtract_DuplicateShortName(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets,
		asset("/X/A/Shield", "/Script/Game.Item", prop("speed", num(1))),
		asset("/X/B/Shield", "/Script/Game.Item", prop("speed", num(2))),
	)
	m := openTree(t, tree)

	out, result := extract(t, m, AssetSet{Root: "/X", Recursive: true, Prefix: "Shield"}, property.Named("speed"))
	assert.Equal(t, 1, result.AssetsWritten)
	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0], ErrDuplicateAsset)

	f, err := cachefile.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "/X/A/Shield", f.Lookup("Shield").Path)
}

func TestExtract_SpellingsOfOneField(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets, asset("/X/Hero", "/Script/Game.Hero", prop("display_name", str("Knight"))))
	m := openTree(t, tree)

	core, logs := observer.New(zapcore.InfoLevel)
	out := filepath.Join(t.TempDir(), "migration_cache", "test_data.json")
	result, err := NewExtractor(m, zap.New(core)).Extract(context.Background(),
		AssetSet{Paths: []string{"/X/Hero"}}, property.Named("DisplayName", "display_name"), out)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PropertiesRead)
	assert.Equal(t, 1, result.PropertiesSkipped)
	assert.Empty(t, result.Failures)

	skipped := logs.FilterMessageSnippet("another spelling").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "display_name", skipped[0].ContextMap()["property"])

	f, err := cachefile.Read(out)
	require.NoError(t, err)
	v, ok := f.Lookup("Hero").Get("DisplayName")
	require.True(t, ok)
	assert.Equal(t, "Knight", v)
}

func TestExtract_ChainReportsPosition(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets, asset("/X/Armor", "/Script/Game.Item",
		prop("item", itemInfo("l", "r", "legs", 1)),
	))
	m := openTree(t, tree)

	props := property.Descriptors{{Name: "grip", Path: []string{"item", "equipment", "grip"}}}
	_, result := extract(t, m, AssetSet{Paths: []string{"/X/Armor"}}, props)

	require.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures[0], ErrPropertyMissing)
	assert.Contains(t, result.Failures[0].Error(), "link 3 of 3 (grip)")
}

func TestExtract_NullsAndFieldSubsets(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets, asset("/X/Armor", "/Script/Game.Item",
		prop("icon", none),
		prop("weapon_class", property.ClassValue("/X/BP_Sword.BP_Sword_C")),
		prop("kind", property.EnumValue("EWeaponType", "Axe")),
		prop("item", itemInfo("l", "r", "legs", 1)),
		prop("stats", property.MapValue(property.Entry{
			Key:   tag("Stat.Strength"),
			Value: property.StructValue("EquipmentStat", fld("delta", num(5)), fld("percent", property.BoolValue(false))),
		})),
	))
	m := openTree(t, tree)

	props := property.Descriptors{
		{Name: "icon"},
		{Name: "WeaponClass"},
		{Name: "kind"},
		{Name: "item", Fields: []property.Descriptor{
			{Name: "Equipment", Fields: []property.Descriptor{{Name: "Slot"}}},
		}},
		{Name: "stats"},
	}
	out, result := extract(t, m, AssetSet{Paths: []string{"/X/Armor"}}, props)
	require.Empty(t, result.Failures)

	f, err := cachefile.Read(out)
	require.NoError(t, err)
	e := f.Lookup("Armor")
	require.NotNil(t, e)

	icon, _ := e.Get("icon")
	assert.Equal(t, "None", icon)
	class, _ := e.Get("WeaponClass")
	assert.Equal(t, "/X/BP_Sword.BP_Sword_C", class)
	kind, _ := e.Get("kind")
	assert.Equal(t, "Axe", kind)

	item, _ := e.Get("item")
	obj, ok := item.(*cachefile.Object)
	require.True(t, ok)
	assert.Equal(t, 1, obj.Len())
	equipment, _ := obj.Get("Equipment")
	slot, _ := equipment.(*cachefile.Object).Get("Slot")
	assert.Equal(t, "legs", slot)

	stats, _ := e.Get("stats")
	strength, ok := stats.(*cachefile.Object).Get("Stat.Strength")
	require.True(t, ok)
	delta, _ := strength.(*cachefile.Object).Get("delta")
	assert.Equal(t, 5.0, delta)
}
