package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/host"
	"assetmig-go/internal/property"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	_ host.Host       = (*Manager)(nil)
	_ host.Reparenter = (*Manager)(nil)
)

// maxStructDepth bounds default construction of self-referencing struct types
const maxStructDepth = 16

// Manager serves one content tree stored in a bbolt database through the
// host reflection interface
type Manager struct {
	db     *BoltDB
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewManager opens the tree database at dbPath for reading and writing
func NewManager(dbPath string, logger *zap.SugaredLogger) (*Manager, error) {
	return OpenManager(dbPath, nil, logger)
}

// OpenManager opens the tree database with explicit options
func OpenManager(dbPath string, opts *Options, logger *zap.SugaredLogger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := NewBoltDB(dbPath, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt database: %w", err)
	}

	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the storage manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// GetDB returns the underlying BBolt database for direct access
func (m *Manager) GetDB() *bbolt.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.db != nil {
		return m.db.db
	}
	return nil
}

// GetBoltDB returns the wrapped BoltDB instance
func (m *Manager) GetBoltDB() *BoltDB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Backup writes a consistent copy of the tree database to destPath
func (m *Manager) Backup(destPath string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.db.Backup(destPath); err != nil {
		return fmt.Errorf("failed to back up tree database: %w", err)
	}
	m.logger.Infof("Backed up tree database to %s", destPath)
	return nil
}

// Asset operations

// LoadAsset loads an in-memory copy of the asset at path. Object suffixes
// and export-text wrappers are accepted.
func (m *Manager) LoadAsset(ctx context.Context, path string) (host.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := assetref.ObjectPath(path)
	if key == "" || key == assetref.None {
		return nil, fmt.Errorf("empty asset path: %w", host.ErrAssetNotFound)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.db.GetAsset(key)
	if errors.Is(err, errRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", key, host.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", key, err)
	}
	return &assetHandle{rec: rec}, nil
}

// ListAssets enumerates asset paths under root in key order
func (m *Manager) ListAssets(ctx context.Context, root string, recursive bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(assetref.ObjectPath(root), "/") + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys, err := m.db.ListAssetPaths(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets under %s: %w", root, err)
	}

	paths := make([]string, 0, len(keys))
	for _, k := range keys {
		if assetref.Within(k, root, recursive) {
			paths = append(paths, k)
		}
	}
	return paths, nil
}

// SaveAsset persists a handle obtained from LoadAsset
func (m *Manager) SaveAsset(ctx context.Context, a host.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, ok := a.(*assetHandle)
	if !ok {
		return fmt.Errorf("asset %s was not loaded from this tree", a.Path())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h.rec.Updated = time.Now()
	if err := m.db.SaveAsset(h.rec); err != nil {
		return fmt.Errorf("failed to save asset %s: %w", h.rec.Path, err)
	}
	if h.dirty {
		m.logger.Debugf("Saved asset %s", h.rec.Path)
	}
	h.dirty = false
	return nil
}

// PutAsset stores an asset record directly, filling property types from the
// class schema where the record leaves them blank
func (m *Manager) PutAsset(rec *AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAssetLocked(rec)
}

func (m *Manager) putAssetLocked(rec *AssetRecord) error {
	if !assetref.IsAbsolute(rec.Path) {
		return fmt.Errorf("asset path %q is not absolute", rec.Path)
	}
	rec = rec.Clone()
	rec.Path = assetref.ObjectPath(rec.Path)

	now := time.Now()
	if rec.Created.IsZero() {
		rec.Created = now
	}
	rec.Updated = now

	if rec.Class != "" {
		schema, err := m.classSchemaLocked(rec.Class)
		if err == nil {
			for i := range rec.Properties {
				if rec.Properties[i].Type != "" {
					continue
				}
				if s, ok := schema.lookup(rec.Properties[i].Name); ok {
					rec.Properties[i].Type = s.declaredType()
				}
			}
		}
	}
	return m.db.SaveAsset(rec)
}

// GetAssetRecord returns the stored record of an asset
func (m *Manager) GetAssetRecord(path string) (*AssetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.db.GetAsset(assetref.ObjectPath(path))
	if errors.Is(err, errRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", path, host.ErrAssetNotFound)
	}
	return rec, err
}

// Class operations

// LoadClass resolves a class path. Generated classes resolve when the
// visual-script asset they come from exists.
func (m *Manager) LoadClass(ctx context.Context, path string) (property.Value, error) {
	if err := ctx.Err(); err != nil {
		return property.Value{}, err
	}

	p := assetref.ClassPath(path)
	if assetref.IsNone(p) {
		return property.Value{}, fmt.Errorf("empty class path: %w", host.ErrClassNotFound)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.db.GetClass(p); err == nil {
		return property.ClassValue(p), nil
	} else if !errors.Is(err, errRecordNotFound) {
		return property.Value{}, fmt.Errorf("failed to load class %s: %w", p, err)
	}

	if assetref.IsGeneratedClass(p) {
		if _, err := m.db.GetAsset(assetref.ObjectPath(p)); err == nil {
			return property.ClassValue(p), nil
		}
	}
	return property.Value{}, fmt.Errorf("%s: %w", p, host.ErrClassNotFound)
}

// PutClass stores a class record
func (m *Manager) PutClass(rec *ClassRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.SaveClass(rec)
}

// classSchema is the flattened property list of a class and its parents,
// nearest declaration first
type classSchema []PropertySchema

func (s classSchema) lookup(name string) (PropertySchema, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySchema{}, false
}

func (m *Manager) classSchemaLocked(classPath string) (classSchema, error) {
	var out classSchema
	seen := make(map[string]bool)
	for p := assetref.ClassPath(classPath); p != ""; {
		if seen[p] {
			return nil, fmt.Errorf("class %s has a cyclic parent chain", classPath)
		}
		seen[p] = true

		rec, err := m.db.GetClass(p)
		if errors.Is(err, errRecordNotFound) {
			if len(out) == 0 {
				return nil, fmt.Errorf("%s: %w", p, host.ErrClassNotFound)
			}
			m.logger.Warnf("Parent class %s of %s is not registered", p, classPath)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load class %s: %w", p, err)
		}

		for _, prop := range rec.Properties {
			if _, ok := out.lookup(prop.Name); !ok {
				out = append(out, prop)
			}
		}
		p = rec.Parent
	}
	return out, nil
}

// Tag operations

// RequestTag resolves a dotted tag name through the tag registry
func (m *Manager) RequestTag(ctx context.Context, name string) (property.Value, error) {
	if err := ctx.Err(); err != nil {
		return property.Value{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" || name == assetref.None {
		return property.Value{}, fmt.Errorf("empty tag name: %w", host.ErrTagNotFound)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ok, err := m.db.HasTag(name)
	if err != nil {
		return property.Value{}, fmt.Errorf("failed to look up tag %s: %w", name, err)
	}
	if !ok {
		return property.Value{}, fmt.Errorf("%s: %w", name, host.ErrTagNotFound)
	}
	return property.TagValue(name), nil
}

// RegisterTags adds tags to the registry
func (m *Manager) RegisterTags(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if err := m.db.SaveTag(n); err != nil {
			return fmt.Errorf("failed to register tag %s: %w", n, err)
		}
	}
	return nil
}

// Enum operations

// ResolveEnum finds a variant of enumType. Names match exactly, then
// case-insensitively, then against display names; a Type:: qualifier is
// accepted and, when enumType is empty, selects the type.
func (m *Manager) ResolveEnum(ctx context.Context, enumType, name string) (property.Value, error) {
	if err := ctx.Err(); err != nil {
		return property.Value{}, err
	}

	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "::"); i >= 0 {
		if enumType == "" {
			enumType = name[:i]
		}
		name = name[i+2:]
	}
	if enumType == "" {
		return property.Value{}, fmt.Errorf("enum variant %q has no type: %w", name, host.ErrEnumNotFound)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, err := m.db.GetEnum(enumType)
	if errors.Is(err, errRecordNotFound) {
		return property.Value{}, fmt.Errorf("enum type %s: %w", enumType, host.ErrEnumNotFound)
	}
	if err != nil {
		return property.Value{}, fmt.Errorf("failed to load enum %s: %w", enumType, err)
	}

	if variant, ok := rec.match(name); ok {
		return property.EnumValue(rec.Type, variant), nil
	}
	return property.Value{}, fmt.Errorf("%s::%s: %w", enumType, name, host.ErrEnumNotFound)
}

func (e *EnumRecord) match(name string) (string, bool) {
	for _, v := range e.Variants {
		if v == name {
			return v, true
		}
	}
	for _, v := range e.Variants {
		if strings.EqualFold(v, name) {
			return v, true
		}
	}
	for v, display := range e.DisplayNames {
		if strings.EqualFold(display, name) {
			return v, true
		}
	}
	return "", false
}

// PutEnum stores an enum record
func (m *Manager) PutEnum(rec *EnumRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.SaveEnum(rec)
}

// Struct operations

// NewStruct builds a struct value of structType with every field at its
// declared default
func (m *Manager) NewStruct(ctx context.Context, structType string) (property.Value, error) {
	if err := ctx.Err(); err != nil {
		return property.Value{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newStructLocked(structType, 0)
}

func (m *Manager) newStructLocked(structType string, depth int) (property.Value, error) {
	if depth > maxStructDepth {
		return property.Value{}, fmt.Errorf("struct %s nests too deeply", structType)
	}

	rec, err := m.db.GetStruct(structType)
	if errors.Is(err, errRecordNotFound) {
		return property.Value{}, fmt.Errorf("%s: %w", structType, host.ErrStructNotFound)
	}
	if err != nil {
		return property.Value{}, fmt.Errorf("failed to load struct %s: %w", structType, err)
	}

	out := property.StructValue(rec.Type)
	for _, f := range rec.Fields {
		def, err := m.defaultLocked(f, depth+1)
		if err != nil {
			return property.Value{}, fmt.Errorf("struct %s field %s: %w", structType, f.Name, err)
		}
		out.Fields = append(out.Fields, property.F(f.Name, def))
	}
	return out, nil
}

// defaultLocked returns the default of a schema entry, building nested
// struct defaults from the struct registry when none is stored
func (m *Manager) defaultLocked(s PropertySchema, depth int) (property.Value, error) {
	if s.Default.IsValid() {
		if s.Default.Kind == property.KindStruct && len(s.Default.Fields) == 0 && s.Default.Type != "" {
			return m.newStructLocked(s.Default.Type, depth)
		}
		return s.Default.Clone(), nil
	}

	kind, typ := splitType(s.Type)
	if kind == property.KindStruct && typ != "" {
		return m.newStructLocked(typ, depth)
	}
	if kind == property.KindInvalid {
		return property.Value{}, fmt.Errorf("no type or default declared")
	}
	return property.Zero(kind, typ), nil
}

// PutStruct stores a struct type record
func (m *Manager) PutStruct(rec *StructRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.SaveStruct(rec)
}

// splitType parses a declared type string "kind" or "kind:Type"
func splitType(t string) (property.Kind, string) {
	name, typ, _ := strings.Cut(strings.TrimSpace(t), ":")
	k, err := property.ParseKind(name)
	if err != nil {
		return property.KindInvalid, ""
	}
	return k, typ
}

// assetHandle is an in-memory copy of an asset record
type assetHandle struct {
	rec   *AssetRecord
	dirty bool
}

func (h *assetHandle) Path() string      { return h.rec.Path }
func (h *assetHandle) ClassPath() string { return h.rec.Class }

func (h *assetHandle) PropertyNames() []string {
	names := make([]string, 0, len(h.rec.Properties))
	for _, p := range h.rec.Properties {
		names = append(names, p.Name)
	}
	return names
}

func (h *assetHandle) find(name string) int {
	for i, p := range h.rec.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (h *assetHandle) Property(name string) (property.Value, error) {
	i := h.find(name)
	if i < 0 {
		return property.Value{}, fmt.Errorf("%s.%s: %w", h.rec.Path, name, host.ErrPropertyNotFound)
	}
	return h.rec.Properties[i].Value.Clone(), nil
}

// SetProperty replaces a property value. The value must have the stored
// value's kind; enum, struct and list types are inherited when the new value
// leaves them blank.
func (h *assetHandle) SetProperty(name string, v property.Value) error {
	i := h.find(name)
	if i < 0 {
		return fmt.Errorf("%s.%s: %w", h.rec.Path, name, host.ErrPropertyNotFound)
	}

	cur := h.rec.Properties[i].Value
	if err := v.AssignableTo(cur); err != nil {
		return fmt.Errorf("%s.%s: %w", h.rec.Path, name, err)
	}

	v = v.Clone()
	if v.Type == "" && v.Kind == cur.Kind {
		v.Type = cur.Type
	}
	h.rec.Properties[i].Value = v
	h.dirty = true
	return nil
}
