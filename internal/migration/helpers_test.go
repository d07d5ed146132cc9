package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"assetmig-go/internal/property"
	"assetmig-go/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	num  = property.NumberValue
	str  = property.StringValue
	tag  = property.TagValue
	fld  = property.F
	none = property.AssetValue("")
)

func openTree(t *testing.T, tree *storage.Tree) *storage.Manager {
	t.Helper()

	m, err := storage.NewManager(filepath.Join(t.TempDir(), "tree.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	_, err = m.Import(tree)
	require.NoError(t, err)
	return m
}

// observedLogger records warnings and errors only
func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func asset(path, class string, props ...storage.PropertyRecord) storage.AssetRecord {
	return storage.AssetRecord{Path: path, Class: class, Properties: props}
}

func prop(name string, v property.Value) storage.PropertyRecord {
	return storage.PropertyRecord{Name: name, Value: v}
}

func readProp(t *testing.T, m *storage.Manager, path, name string) property.Value {
	t.Helper()

	a, err := m.LoadAsset(context.Background(), path)
	require.NoError(t, err)
	v, err := a.Property(name)
	require.NoError(t, err)
	return v
}

func writeCache(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cache", "test_data.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// registries shared by the original and rewrite trees
func baseTree() *storage.Tree {
	return &storage.Tree{
		Structs: []storage.StructRecord{
			{Type: "Sockets", Fields: []storage.PropertySchema{
				{Name: "left_name", Default: str("")},
				{Name: "right_name", Default: str("")},
			}},
			{Type: "EquipmentDetails", Fields: []storage.PropertySchema{
				{Name: "sockets", Type: "struct:Sockets"},
				{Name: "slot", Default: str("")},
				{Name: "weight", Default: num(0)},
			}},
			{Type: "ItemInformation", Fields: []storage.PropertySchema{
				{Name: "equipment", Type: "struct:EquipmentDetails"},
				{Name: "display_name", Default: str("")},
			}},
			{Type: "EquipmentStat", Fields: []storage.PropertySchema{
				{Name: "delta", Default: num(0)},
				{Name: "percent", Default: property.BoolValue(false)},
			}},
		},
		Enums: []storage.EnumRecord{
			{
				Type:         "EWeaponType",
				Variants:     []string{"Sword", "Axe", "Bow"},
				DisplayNames: map[string]string{"Bow": "Long Bow"},
			},
		},
		Tags: []string{"Slot.RightHand", "Slot.LeftHand", "Stat.Strength", "Stat.Dexterity"},
		Assets: []storage.AssetRecord{
			asset("/X/Textures/T_A", "/Script/Engine.Texture2D"),
			asset("/X/Textures/T_B", "/Script/Engine.Texture2D"),
			asset("/X/BP_Sword", "/Script/Engine.Blueprint"),
		},
	}
}

func sockets(left, right string) property.Value {
	return property.StructValue("Sockets", fld("left_name", str(left)), fld("right_name", str(right)))
}

func itemInfo(left, right, slot string, weight float64) property.Value {
	return property.StructValue("ItemInformation",
		fld("equipment", property.StructValue("EquipmentDetails",
			fld("sockets", sockets(left, right)),
			fld("slot", str(slot)),
			fld("weight", num(weight)),
		)),
		fld("display_name", str("")),
	)
}
