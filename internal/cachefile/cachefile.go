// Package cachefile reads and writes migration cache files: JSON documents
// that carry authored property values from an extractor run to an applier
// run.
//
// The on-disk shape is
//
//	{
//	  "<AssetName>": {
//	    "path": "<AssetRef>",
//	    "<PropertyName>": <value>,
//	    ...
//	  }
//	}
//
// Object key order is preserved in both directions.
package cachefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PathKey is the reserved entry key holding the full asset path
const PathKey = "path"

// legacyPathKey is accepted on read for caches written by older tooling
const legacyPathKey = "asset_path"

var (
	// ErrInvalidCacheFile is returned when the document is not a JSON object
	ErrInvalidCacheFile = errors.New("invalid cache file")

	// ErrDuplicateEntry is returned when two entries share a short name
	ErrDuplicateEntry = errors.New("duplicate cache entry")
)

// Object is an insertion-ordered JSON object. Values are JSON trees:
// nil, bool, float64, string, []any or *Object.
type Object = orderedmap.OrderedMap[string, any]

// NewObject creates an empty ordered object
func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// Entry is the cached state of one asset
type Entry struct {
	Name  string
	Path  string
	Props *Object
}

// NewEntry creates an entry with no properties
func NewEntry(name, path string) *Entry {
	return &Entry{Name: name, Path: path, Props: NewObject()}
}

// Set records a property value
func (e *Entry) Set(name string, v any) {
	if e.Props == nil {
		e.Props = NewObject()
	}
	e.Props.Set(name, v)
}

// Get returns a property value
func (e *Entry) Get(name string) (any, bool) {
	if e.Props == nil {
		return nil, false
	}
	return e.Props.Get(name)
}

// Len returns the number of properties, excluding the path
func (e *Entry) Len() int {
	if e.Props == nil {
		return 0
	}
	return e.Props.Len()
}

// Problem records an entry the reader could not interpret
type Problem struct {
	Entry string
	Err   error
}

// File is a whole cache document
type File struct {
	Entries  []*Entry
	Problems []Problem
}

// Add appends an entry. Entry names are unique within a file.
func (f *File) Add(e *Entry) error {
	if f.Lookup(e.Name) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
	}
	f.Entries = append(f.Entries, e)
	return nil
}

// Lookup finds an entry by name
func (f *File) Lookup(name string) *Entry {
	for _, e := range f.Entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (f *File) MarshalJSON() ([]byte, error) {
	root := NewObject()
	for _, e := range f.Entries {
		obj := NewObject()
		obj.Set(PathKey, e.Path)
		if e.Props != nil {
			for pair := e.Props.Oldest(); pair != nil; pair = pair.Next() {
				if pair.Key == PathKey {
					continue
				}
				obj.Set(pair.Key, pair.Value)
			}
		}
		root.Set(e.Name, obj)
	}
	return root.MarshalJSON()
}

// Encode renders the file with two-space indentation and a trailing newline
func Encode(f *File) ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache file: %w", err)
	}
	return append(data, '\n'), nil
}

// Write stores the file at path, creating parent directories and replacing
// any existing file through a rename.
func Write(path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// FileName returns the conventional file name for an asset family and
// optional aspect: <family>_data.json or <family>_<aspect>.json.
func FileName(family, aspect string) string {
	family = strings.TrimSpace(family)
	aspect = strings.TrimSpace(aspect)
	if aspect == "" {
		aspect = "data"
	}
	return family + "_" + aspect + ".json"
}

// Dir is the directory holding every cache file of a migration
type Dir string

// DefaultDir is the conventional cache directory beside the repository root
const DefaultDir Dir = "migration_cache"

// Path resolves the cache file of a family/aspect pair
func (d Dir) Path(family, aspect string) string {
	return filepath.Join(string(d), FileName(family, aspect))
}

// Ensure creates the directory if it is missing
func (d Dir) Ensure() error {
	if err := os.MkdirAll(string(d), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", d, err)
	}
	return nil
}
