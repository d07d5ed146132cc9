package migration

import (
	"context"
	"testing"

	"assetmig-go/internal/property"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const verifyBody = `{
  "Foo": {"path": "/X/Foo", "speed": 3, "icon": "/X/Textures/T_A.T_A", "weight": 1, "mesh": "None"},
  "Bar": {"path": "/X/Bar", "speed": 5, "info": {"equipment": {"slot": "Hand"}}},
  "Gone": {"path": "/X/Gone", "speed": 1}
}`

func TestVerify_ReportsPerAsset(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets,
		asset("/X/Foo", "/Script/Game.NativeItem",
			prop("speed", num(3)),
			prop("icon", property.AssetValue("/X/Textures/T_A")),
			prop("mesh", none),
		),
		asset("/X/Bar", "/Script/Game.NativeItem",
			prop("speed", num(1)),
			prop("info", itemInfo("a", "b", "Hand", 2)),
		),
	)
	m := openTree(t, tree)

	rec := &failureRecorder{}
	verifier := NewVerifier(m, zap.NewNop())
	verifier.SetFailureSink(rec)

	cache := writeCache(t, verifyBody)
	report, err := verifier.Verify(context.Background(), cache, nil)
	require.NoError(t, err)

	assert.Equal(t, "checked 2 assets, 1 missing (properties: 3 matched, 1 mismatched, 1 missing, 1 left at default)", report.String())
	assert.False(t, report.OK())

	require.Len(t, report.Assets, 2)
	foo, bar := report.Assets[0], report.Assets[1]
	assert.Equal(t, []string{"speed", "icon"}, foo.Matched)
	assert.Equal(t, []string{"weight"}, foo.Missing)
	assert.Equal(t, []string{"info"}, bar.Matched)
	assert.Equal(t, []string{"speed"}, bar.Mismatched)

	assert.Equal(t, 1, report.Count(ErrValueMismatch))
	assert.Equal(t, 1, report.Count(ErrAssetMissing))
	assert.Contains(t, rec.got, recordedFailure{"ValueMismatch", "/X/Bar", "speed"})
	assert.Equal(t, 1.0, readProp(t, m, "/X/Bar", "speed").Number, "verification saves nothing")

	summary, err := NewApplier(m, zap.NewNop()).Apply(context.Background(), cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AssetsApplied)

	report, err = NewVerifier(m, zap.NewNop()).Verify(context.Background(), cache, nil)
	require.NoError(t, err)
	assert.Zero(t, report.PropertiesMismatched, "an applied cache verifies")
	assert.Equal(t, 4, report.PropertiesMatched)
}

func TestVerify_UndecodableValue(t *testing.T) {
	tree := baseTree()
	tree.Assets = append(tree.Assets, asset("/X/Foo", "/Script/Game.NativeItem",
		prop("icon", property.AssetValue("/X/Textures/T_A")),
	))
	m := openTree(t, tree)

	report, err := NewVerifier(m, zap.NewNop()).Verify(context.Background(),
		writeCache(t, `{"Foo": {"path": "/X/Foo", "icon": "/X/Textures/T_Nope"}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PropertiesMismatched)
	assert.Equal(t, 1, report.Count(ErrValueResolutionFailed))
}
