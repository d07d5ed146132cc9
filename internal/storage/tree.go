package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Tree is the portable JSON dump of a content tree
type Tree struct {
	Classes []ClassRecord  `json:"classes,omitempty"`
	Structs []StructRecord `json:"structs,omitempty"`
	Enums   []EnumRecord   `json:"enums,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
	Assets  []AssetRecord  `json:"assets,omitempty"`
}

// ImportStats counts the records written by Import
type ImportStats struct {
	Classes int
	Structs int
	Enums   int
	Tags    int
	Assets  int
}

// Import seeds the database from a tree dump. Type registries are written
// before assets so asset property types can be filled from class schemas.
func (m *Manager) Import(t *Tree) (*ImportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &ImportStats{}
	for i := range t.Classes {
		if err := m.db.SaveClass(&t.Classes[i]); err != nil {
			return stats, fmt.Errorf("failed to import class %s: %w", t.Classes[i].Path, err)
		}
		stats.Classes++
	}
	for i := range t.Structs {
		if err := m.db.SaveStruct(&t.Structs[i]); err != nil {
			return stats, fmt.Errorf("failed to import struct %s: %w", t.Structs[i].Type, err)
		}
		stats.Structs++
	}
	for i := range t.Enums {
		if err := m.db.SaveEnum(&t.Enums[i]); err != nil {
			return stats, fmt.Errorf("failed to import enum %s: %w", t.Enums[i].Type, err)
		}
		stats.Enums++
	}
	for _, tag := range t.Tags {
		if err := m.db.SaveTag(tag); err != nil {
			return stats, fmt.Errorf("failed to import tag %s: %w", tag, err)
		}
		stats.Tags++
	}
	for i := range t.Assets {
		if err := m.putAssetLocked(&t.Assets[i]); err != nil {
			return stats, fmt.Errorf("failed to import asset %s: %w", t.Assets[i].Path, err)
		}
		stats.Assets++
	}

	m.logger.Infof("Imported %d classes, %d structs, %d enums, %d tags, %d assets",
		stats.Classes, stats.Structs, stats.Enums, stats.Tags, stats.Assets)
	return stats, nil
}

// Export dumps the whole database in key order
func (m *Manager) Export() (*Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := &Tree{}

	classes, err := m.db.ListClassPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	for _, p := range classes {
		rec, err := m.db.GetClass(p)
		if err != nil {
			return nil, fmt.Errorf("failed to export class %s: %w", p, err)
		}
		t.Classes = append(t.Classes, *rec)
	}

	structs, err := m.db.ListStructTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to list structs: %w", err)
	}
	for _, s := range structs {
		rec, err := m.db.GetStruct(s)
		if err != nil {
			return nil, fmt.Errorf("failed to export struct %s: %w", s, err)
		}
		t.Structs = append(t.Structs, *rec)
	}

	enums, err := m.db.ListEnumTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to list enums: %w", err)
	}
	for _, e := range enums {
		rec, err := m.db.GetEnum(e)
		if err != nil {
			return nil, fmt.Errorf("failed to export enum %s: %w", e, err)
		}
		t.Enums = append(t.Enums, *rec)
	}

	if t.Tags, err = m.db.ListTags(); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	sort.Strings(t.Tags)

	assets, err := m.db.ListAssetPaths("")
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	for _, p := range assets {
		rec, err := m.db.GetAsset(p)
		if err != nil {
			return nil, fmt.Errorf("failed to export asset %s: %w", p, err)
		}
		t.Assets = append(t.Assets, *rec)
	}
	return t, nil
}

// ReadTree loads a tree dump from disk
func ReadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tree file %s: %w", path, err)
	}
	return &t, nil
}

// WriteTree stores a tree dump, replacing any existing file through a rename
func WriteTree(path string, t *Tree) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tree directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write temp tree file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename tree file: %w", err)
	}
	return nil
}
