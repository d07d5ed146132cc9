package index

import (
	"context"
	"fmt"
	"sync"

	"assetmig-go/internal/host"

	"go.uber.org/zap"
)

// DefaultLimit caps a search when the caller passes no limit
const DefaultLimit = 20

// Manager provides a unified interface for indexing operations
type Manager struct {
	bleveIndex *BleveIndex
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewManager creates a new index manager
func NewManager(logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bleveIndex, err := NewBleveIndex(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Manager{bleveIndex: bleveIndex, logger: logger}, nil
}

// Close closes the index manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bleveIndex.Close()
}

// Build indexes every asset under root. Assets that fail to load are
// skipped and logged; the number of indexed assets is returned.
func (m *Manager) Build(ctx context.Context, h host.Host, root string) (int, error) {
	paths, err := h.ListAssets(ctx, root, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list assets under %s: %w", root, err)
	}

	docs := make([]*AssetDocument, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		a, err := h.LoadAsset(ctx, p)
		if err != nil {
			m.logger.Warn("Skipping asset that failed to load",
				zap.String("asset", p), zap.Error(err))
			continue
		}
		doc, err := NewAssetDocument(a)
		if err != nil {
			m.logger.Warn("Skipping asset that failed to flatten",
				zap.String("asset", p), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	if err := m.BatchIndexAssets(docs); err != nil {
		return 0, err
	}
	m.logger.Info("Asset index built",
		zap.String("root", root),
		zap.Int("listed", len(paths)),
		zap.Int("indexed", len(docs)))
	return len(docs), nil
}

// IndexAsset indexes a single loaded asset
func (m *Manager) IndexAsset(a host.Asset) error {
	doc, err := NewAssetDocument(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bleveIndex.IndexAsset(doc)
}

// BatchIndexAssets indexes documents in one batch
func (m *Manager) BatchIndexAssets(docs []*AssetDocument) error {
	if len(docs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bleveIndex.BatchIndex(docs)
}

// Search runs a free query over names, classes and property text
func (m *Manager) Search(query string, limit int) ([]*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bleveIndex.Search(query, normalizeLimit(limit))
}

// FindReferences returns the assets referencing path
func (m *Manager) FindReferences(path string, limit int) ([]*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bleveIndex.FindReferences(path, normalizeLimit(limit))
}

// FindByClass returns the assets of a class
func (m *Manager) FindByClass(classPath string, limit int) ([]*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bleveIndex.FindByClass(classPath, normalizeLimit(limit))
}

// FindByTag returns the assets holding a tag
func (m *Manager) FindByTag(tag string, limit int) ([]*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bleveIndex.FindByTag(tag, normalizeLimit(limit))
}

// Find dispatches on the kind of lookup: refs, class, tag or text
func (m *Manager) Find(by, term string, limit int) ([]*SearchResult, error) {
	switch by {
	case "refs", "references":
		return m.FindReferences(term, limit)
	case "class":
		return m.FindByClass(term, limit)
	case "tag":
		return m.FindByTag(term, limit)
	case "", "text":
		return m.Search(term, limit)
	}
	return nil, fmt.Errorf("unknown lookup %q: expected refs, class, tag or text", by)
}

// DeleteAsset removes an asset from the index
func (m *Manager) DeleteAsset(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bleveIndex.DeleteAsset(path)
}

// GetDocumentCount returns the number of indexed documents
func (m *Manager) GetDocumentCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bleveIndex.GetDocumentCount()
}

// GetStats returns indexing statistics
func (m *Manager) GetStats() (map[string]interface{}, error) {
	docCount, err := m.GetDocumentCount()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"document_count": docCount,
		"index_type":     "bleve",
		"storage":        "memory",
	}, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
