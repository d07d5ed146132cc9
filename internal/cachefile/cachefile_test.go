package cachefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsOrder(t *testing.T) {
	f, err := Parse([]byte(`{
  "Zeta": {"path": "/Game/Zeta", "b": 1, "a": {"y": true, "x": null}},
  "Alpha": {"path": "/Game/Alpha", "list": [1, "two", [3]]}
}`))
	require.NoError(t, err)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, "Zeta", f.Entries[0].Name)
	assert.Equal(t, "Alpha", f.Entries[1].Name)

	zeta := f.Entries[0]
	assert.Equal(t, "/Game/Zeta", zeta.Path)
	var keys []string
	for pair := zeta.Props.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"b", "a"}, keys)

	a, _ := zeta.Get("a")
	obj, ok := a.(*Object)
	require.True(t, ok)
	assert.Equal(t, "y", obj.Oldest().Key)
	x, ok := obj.Get("x")
	assert.True(t, ok)
	assert.Nil(t, x)

	list, _ := f.Entries[1].Get("list")
	assert.Equal(t, []any{1.0, "two", []any{3.0}}, list)
}

func TestParse_Problems(t *testing.T) {
	f, err := Parse([]byte(`{
  "Number": 5,
  "BadPath": {"path": 7, "speed": 1},
  "Legacy": {"asset_path": "/Game/Legacy"},
  "Both": {"asset_path": "/Game/Old", "path": "/Game/New"}
}`))
	require.NoError(t, err)
	require.Len(t, f.Problems, 2)
	assert.Equal(t, "Number", f.Problems[0].Entry)
	assert.ErrorIs(t, f.Problems[0].Err, ErrInvalidCacheFile)
	assert.Equal(t, "BadPath", f.Problems[1].Entry)

	assert.Nil(t, f.Lookup("BadPath"), "a problem entry is not also an entry")
	assert.Nil(t, f.Lookup("Number"))
	assert.Len(t, f.Entries, 2)

	assert.Equal(t, "/Game/Legacy", f.Lookup("Legacy").Path)
	assert.Equal(t, "/Game/New", f.Lookup("Both").Path)
}

func TestParse_DuplicateKeys(t *testing.T) {
	f, err := Parse([]byte(`{
  "Foo": {"path": "/Game/Foo", "speed": 1},
  "Bar": {"path": "/Game/Bar"},
  "Foo": {"path": "/Game/Foo2", "speed": 2}
}`))
	require.NoError(t, err)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, "Foo", f.Entries[0].Name)
	assert.Equal(t, "/Game/Foo2", f.Entries[0].Path)
	speed, _ := f.Entries[0].Get("speed")
	assert.Equal(t, 2.0, speed)
}

func TestParse_DuplicateKeysWithProblem(t *testing.T) {
	f, err := Parse([]byte(`{
  "Foo": {"path": "/Game/Foo", "speed": 1},
  "Bar": {"path": 3},
  "Foo": {"path": 5, "asset_path": "/Game/Foo"},
  "Bar": {"path": "/Game/Bar"}
}`))
	require.NoError(t, err)

	require.Len(t, f.Problems, 1)
	assert.Equal(t, "Foo", f.Problems[0].Entry)
	assert.Nil(t, f.Lookup("Foo"))

	require.Len(t, f.Entries, 1)
	assert.Equal(t, "/Game/Bar", f.Entries[0].Path)
}

func TestParse_Invalid(t *testing.T) {
	for _, doc := range []string{`[1, 2]`, `"text"`, `{"a": `, ``} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidCacheFile, doc)
	}

	f, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, f.Entries)
}

func TestWrite_Format(t *testing.T) {
	f := &File{}
	e := NewEntry("Sword", "/Game/Items/Sword")
	e.Set("Speed", 2.5)
	e.Set("path", "ignored")
	e.Set("Tags", []any{"A.B"})
	require.NoError(t, f.Add(e))
	require.NoError(t, f.Add(NewEntry("Bare", "/Game/Bare")))
	assert.ErrorIs(t, f.Add(NewEntry("Sword", "/Game/Other/Sword")), ErrDuplicateEntry)

	path := filepath.Join(t.TempDir(), "out", FileName("weapons", ""))
	require.NoError(t, Write(path, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{
  "Sword": {
    "path": "/Game/Items/Sword",
    "Speed": 2.5,
    "Tags": [
      "A.B"
    ]
  },
  "Bare": {
    "path": "/Game/Bare"
  }
}
`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	back, err := Read(path)
	require.NoError(t, err)
	require.Len(t, back.Entries, 2)
	assert.Equal(t, 2, back.Entries[0].Len())
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "weapons_data.json", FileName("weapons", ""))
	assert.Equal(t, "weapons_icons.json", FileName(" weapons ", "icons"))
	assert.Equal(t, filepath.Join("cache", "armor_data.json"), Dir("cache").Path("armor", ""))
	assert.Equal(t, "object", Shape(NewObject()))
	assert.Equal(t, "null", Shape(nil))
}
