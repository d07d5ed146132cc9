package index

import (
	"fmt"
	"strings"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/host"
	"assetmig-go/internal/property"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"
)

// AssetDocument is the indexed form of one asset
type AssetDocument struct {
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Folder     string   `json:"folder"`
	Class      string   `json:"class"`
	Properties []string `json:"properties"`
	References []string `json:"references"`
	ClassRefs  []string `json:"class_refs"`
	Tags       []string `json:"tags"`
	Text       string   `json:"text"`
}

// SearchResult is one hit of an index query
type SearchResult struct {
	Path  string
	Class string
	Score float64
}

// BleveIndex is an in-memory full-text index over the assets of one tree
type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewBleveIndex creates an empty in-memory index
func NewBleveIndex(logger *zap.Logger) (*BleveIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx, err := bleve.NewMemOnly(createIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &BleveIndex{index: idx, logger: logger}, nil
}

// createIndexMapping keeps paths and references as single terms and runs
// names and free text through the standard analyzer
func createIndexMapping() mapping.IndexMapping {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	keywordField.Store = true

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	storedText := bleve.NewTextFieldMapping()
	storedText.Analyzer = standard.Name
	storedText.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", keywordField)
	doc.AddFieldMappingsAt("name", storedText)
	doc.AddFieldMappingsAt("folder", keywordField)
	doc.AddFieldMappingsAt("class", keywordField)
	doc.AddFieldMappingsAt("properties", textField)
	doc.AddFieldMappingsAt("references", keywordField)
	doc.AddFieldMappingsAt("class_refs", keywordField)
	doc.AddFieldMappingsAt("tags", keywordField)
	doc.AddFieldMappingsAt("text", textField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Close closes the index
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// IndexAsset adds or replaces one document
func (b *BleveIndex) IndexAsset(doc *AssetDocument) error {
	if err := b.index.Index(doc.Path, doc); err != nil {
		return fmt.Errorf("failed to index asset %s: %w", doc.Path, err)
	}
	return nil
}

// BatchIndex indexes documents in one batch
func (b *BleveIndex) BatchIndex(docs []*AssetDocument) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.Path, doc); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", doc.Path, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	b.logger.Debug("Batch indexed assets", zap.Int("count", len(docs)))
	return nil
}

// DeleteAsset removes an asset from the index
func (b *BleveIndex) DeleteAsset(path string) error {
	return b.index.Delete(assetref.ObjectPath(path))
}

// Search runs a query string query (name:sword class:"/Script/Game.Weapon")
func (b *BleveIndex) Search(q string, limit int) ([]*SearchResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	return b.run(bleve.NewQueryStringQuery(q), limit)
}

// FindReferences returns the assets whose properties point at path
func (b *BleveIndex) FindReferences(path string, limit int) ([]*SearchResult, error) {
	tq := bleve.NewTermQuery(assetref.ObjectPath(path))
	tq.SetField("references")
	return b.run(tq, limit)
}

// FindByClass returns the assets whose class is classPath
func (b *BleveIndex) FindByClass(classPath string, limit int) ([]*SearchResult, error) {
	tq := bleve.NewTermQuery(assetref.ClassPath(classPath))
	tq.SetField("class")
	return b.run(tq, limit)
}

// FindByTag returns the assets holding a gameplay tag
func (b *BleveIndex) FindByTag(tag string, limit int) ([]*SearchResult, error) {
	tq := bleve.NewTermQuery(strings.TrimSpace(tag))
	tq.SetField("tags")
	return b.run(tq, limit)
}

func (b *BleveIndex) run(q query.Query, limit int) ([]*SearchResult, error) {
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"path", "class"}
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &SearchResult{Path: hit.ID, Score: hit.Score}
		if class, ok := hit.Fields["class"].(string); ok {
			r.Class = class
		}
		results = append(results, r)
	}
	return results, nil
}

// GetDocumentCount returns the number of indexed documents
func (b *BleveIndex) GetDocumentCount() (uint64, error) {
	return b.index.DocCount()
}

// NewAssetDocument flattens a loaded asset into its document
func NewAssetDocument(a host.Asset) (*AssetDocument, error) {
	path := assetref.ObjectPath(a.Path())
	doc := &AssetDocument{
		Path:   path,
		Name:   assetref.ShortName(path),
		Folder: folderOf(path),
		Class:  assetref.ClassPath(a.ClassPath()),
	}

	c := &collector{seen: make(map[string]bool)}
	for _, name := range a.PropertyNames() {
		v, err := a.Property(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s.%s: %w", path, name, err)
		}
		doc.Properties = append(doc.Properties, name)
		c.walk(v)
	}
	doc.References = c.refs
	doc.ClassRefs = c.classes
	doc.Tags = c.tags
	doc.Text = strings.Join(c.text, " ")
	return doc, nil
}

func folderOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return "/"
}

// collector gathers the searchable leaves of a property value
type collector struct {
	seen    map[string]bool
	refs    []string
	classes []string
	tags    []string
	text    []string
}

func (c *collector) add(dst *[]string, key, s string) {
	if c.seen[key+s] {
		return
	}
	c.seen[key+s] = true
	*dst = append(*dst, s)
}

func (c *collector) walk(v property.Value) {
	switch v.Kind {
	case property.KindAsset:
		if !assetref.IsNone(v.Str) {
			c.add(&c.refs, "a:", assetref.ObjectPath(v.Str))
		}
	case property.KindClass:
		if assetref.IsNone(v.Str) {
			return
		}
		c.add(&c.classes, "c:", assetref.ClassPath(v.Str))
		if assetref.IsGeneratedClass(v.Str) {
			c.add(&c.refs, "a:", assetref.ObjectPath(v.Str))
		}
	case property.KindTag:
		if v.Str != "" {
			c.add(&c.tags, "t:", v.Str)
		}
	case property.KindString:
		if v.Str != "" {
			c.text = append(c.text, v.Str)
		}
	case property.KindEnum:
		c.text = append(c.text, v.Str)
	case property.KindStruct:
		for _, f := range v.Fields {
			c.walk(f.Value)
		}
	case property.KindMap:
		for _, e := range v.Entries {
			c.walk(e.Key)
			c.walk(e.Value)
		}
	case property.KindList:
		for _, item := range v.Items {
			c.walk(item)
		}
	}
}
