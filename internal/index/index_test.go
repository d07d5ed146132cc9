package index

import (
	"context"
	"path/filepath"
	"testing"

	"assetmig-go/internal/host"
	"assetmig-go/internal/property"
	"assetmig-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func seedTree(t *testing.T) *storage.Manager {
	t.Helper()

	m, err := storage.NewManager(filepath.Join(t.TempDir(), "tree.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	stats := property.MapValue(property.Entry{
		Key:   property.TagValue("Stat.Damage"),
		Value: property.StructValue("EquipmentStat", property.F("icon", property.AssetValue("/Game/Textures/T_Shared.T_Shared"))),
	})

	_, err = m.Import(&storage.Tree{
		Tags: []string{"Slot.RightHand", "Stat.Damage"},
		Assets: []storage.AssetRecord{
			{Path: "/Game/Items/Sword", Class: "/Script/Game.Weapon", Properties: []storage.PropertyRecord{
				{Name: "icon", Value: property.AssetValue("/Game/Textures/T_Sword.T_Sword")},
				{Name: "slot", Value: property.TagValue("Slot.RightHand")},
				{Name: "display_name", Value: property.StringValue("Rusty Blade")},
				{Name: "projectile", Value: property.ClassValue("/Game/BP_Arrow.BP_Arrow_C")},
				{Name: "stance", Value: property.EnumValue("EStance", "Low")},
				{Name: "stat_changes", Value: stats},
				{Name: "mesh", Value: property.AssetValue("None")},
			}},
			{Path: "/Game/Items/Shield", Class: "/Script/Game.Armor", Properties: []storage.PropertyRecord{
				{Name: "icon", Value: property.AssetValue("/Game/Textures/T_Shared.T_Shared")},
				{Name: "display_name", Value: property.StringValue("Oak Shield")},
			}},
			{Path: "/Game/Textures/T_Sword", Class: "/Script/Engine.Texture2D"},
		},
	})
	require.NoError(t, err)
	return m
}

func paths(results []*SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

func TestNewAssetDocument(t *testing.T) {
	tree := seedTree(t)
	a, err := tree.LoadAsset(context.Background(), "/Game/Items/Sword")
	require.NoError(t, err)

	doc, err := NewAssetDocument(a)
	require.NoError(t, err)
	assert.Equal(t, "/Game/Items/Sword", doc.Path)
	assert.Equal(t, "Sword", doc.Name)
	assert.Equal(t, "/Game/Items", doc.Folder)
	assert.Equal(t, "/Script/Game.Weapon", doc.Class)
	assert.Len(t, doc.Properties, 7)
	assert.Equal(t, []string{"/Game/Textures/T_Sword", "/Game/BP_Arrow", "/Game/Textures/T_Shared"}, doc.References,
		"None is skipped and generated classes point at their asset")
	assert.Equal(t, []string{"/Game/BP_Arrow.BP_Arrow_C"}, doc.ClassRefs)
	assert.Equal(t, []string{"Slot.RightHand", "Stat.Damage"}, doc.Tags)
	assert.Equal(t, "Rusty Blade Low", doc.Text)
}

func TestManager_BuildAndFind(t *testing.T) {
	tree := seedTree(t)
	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	n, err := m.Build(context.Background(), tree, "/Game")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := m.GetDocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	refs, err := m.FindReferences("/Game/Textures/T_Shared.T_Shared", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/Game/Items/Sword", "/Game/Items/Shield"}, paths(refs))

	refs, err = m.Find("refs", "/Game/BP_Arrow", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Game/Items/Sword"}, paths(refs))

	byClass, err := m.Find("class", "/Script/Game.Armor", 10)
	require.NoError(t, err)
	require.Len(t, byClass, 1)
	assert.Equal(t, "/Game/Items/Shield", byClass[0].Path)
	assert.Equal(t, "/Script/Game.Armor", byClass[0].Class)

	byTag, err := m.Find("tag", "Stat.Damage", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Game/Items/Sword"}, paths(byTag))

	text, err := m.Find("text", "rusty", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Game/Items/Sword"}, paths(text))

	byName, err := m.Search("name:shield", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Game/Items/Shield"}, paths(byName))

	empty, err := m.Search("  ", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = m.Find("colour", "red", 10)
	assert.Error(t, err)

	require.NoError(t, m.DeleteAsset("/Game/Items/Shield.Shield"))
	refs, err = m.FindReferences("/Game/Textures/T_Shared", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Game/Items/Sword"}, paths(refs))

	stats, err := m.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats["document_count"])
}

type brokenHost struct {
	host.Host
	broken string
}

func (b brokenHost) LoadAsset(ctx context.Context, path string) (host.Asset, error) {
	if path == b.broken {
		return nil, host.ErrAssetNotFound
	}
	return b.Host.LoadAsset(ctx, path)
}

func TestManager_BuildSkipsUnloadable(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m, err := NewManager(zap.New(core))
	require.NoError(t, err)
	defer m.Close()

	n, err := m.Build(context.Background(), brokenHost{Host: seedTree(t), broken: "/Game/Items/Shield"}, "/Game/Items")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/Game/Items/Shield", logs.All()[0].ContextMap()["asset"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Build(ctx, seedTree(t), "/Game")
	assert.ErrorIs(t, err, context.Canceled)
}
