package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/host"
)

// ReparentResult describes what happened to each authored property
type ReparentResult struct {
	Kept    []string
	Reset   []string
	Dropped []string
	Added   []string
}

// Reparent replaces the parent class of an asset and persists the result
func (m *Manager) Reparent(ctx context.Context, assetPath, newParentClass string) error {
	_, err := m.ReparentAsset(ctx, assetPath, newParentClass)
	return err
}

// ReparentAsset reparents and reports per-property outcomes. Values whose
// declared type is unchanged survive, values whose type changed are reset to
// the new class default, values the new class does not expose are dropped
// and properties new on the class are added at their defaults. Variables the
// asset declares itself are kept unless the new class shadows them.
func (m *Manager) ReparentAsset(ctx context.Context, assetPath, newParentClass string) (*ReparentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := assetref.ObjectPath(assetPath)
	classPath := assetref.ClassPath(newParentClass)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.db.GetAsset(key)
	if errors.Is(err, errRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", key, host.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load asset %s: %w", key, err)
	}

	schema, err := m.classSchemaLocked(classPath)
	if err != nil {
		return nil, err
	}

	result := &ReparentResult{}
	props := make([]PropertyRecord, 0, len(rec.Properties)+len(schema))
	present := make(map[string]bool, len(rec.Properties))

	for _, p := range rec.Properties {
		s, declared := schema.lookup(p.Name)
		switch {
		case !declared && p.Own:
			props = append(props, p)
			result.Kept = append(result.Kept, p.Name)
		case !declared:
			result.Dropped = append(result.Dropped, p.Name)
			continue
		case s.declaredType() == p.declaredType():
			p.Own = false
			props = append(props, p)
			result.Kept = append(result.Kept, p.Name)
		default:
			def, err := m.defaultLocked(s, 0)
			if err != nil {
				return nil, fmt.Errorf("class %s property %s: %w", classPath, s.Name, err)
			}
			props = append(props, PropertyRecord{Name: s.Name, Type: s.declaredType(), Value: def})
			result.Reset = append(result.Reset, p.Name)
		}
		present[p.Name] = true
	}

	for _, s := range schema {
		if present[s.Name] {
			continue
		}
		def, err := m.defaultLocked(s, 0)
		if err != nil {
			return nil, fmt.Errorf("class %s property %s: %w", classPath, s.Name, err)
		}
		props = append(props, PropertyRecord{Name: s.Name, Type: s.declaredType(), Value: def})
		result.Added = append(result.Added, s.Name)
	}

	previous := rec.Class
	rec.Class = classPath
	rec.Properties = props
	rec.Updated = time.Now()
	if err := m.db.SaveAsset(rec); err != nil {
		return nil, fmt.Errorf("failed to save reparented asset %s: %w", key, err)
	}

	m.logger.Infof("Reparented %s from %s to %s (kept %d, reset %d, dropped %d, added %d)",
		key, previous, classPath, len(result.Kept), len(result.Reset), len(result.Dropped), len(result.Added))
	return result, nil
}
