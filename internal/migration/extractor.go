package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/host"
	"assetmig-go/internal/property"

	"go.uber.org/zap"
)

// ExtractResult counts what an extraction read and skipped
type ExtractResult struct {
	AssetsWritten     int
	AssetsSkipped     int
	PropertiesRead    int
	PropertiesSkipped int
	Failures          []Failure
}

// Extractor snapshots authored property values of a set of assets into a
// cache file
type Extractor struct {
	host     host.Host
	logger   *zap.Logger
	failures FailureSink
}

// NewExtractor creates an extractor reading from h
func NewExtractor(h host.Host, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		host:   h,
		logger: logger.Named("extract"),
	}
}

// SetFailureSink sets a sink that receives every failure
func (e *Extractor) SetFailureSink(sink FailureSink) {
	e.failures = sink
}

// Extract reads props from every asset of set and writes the cache file at
// outputPath. Per-asset and per-property problems are skipped and reported in
// the result; only failing to write the file is returned as an error.
func (e *Extractor) Extract(ctx context.Context, set AssetSet, props property.Descriptors, outputPath string) (*ExtractResult, error) {
	for i := range props {
		if err := props[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid property descriptor: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	result := &ExtractResult{}

	paths, err := set.Resolve(ctx, e.host)
	if err != nil {
		e.fail(result, Failure{Kind: ErrAssetLoadFailed, Asset: set.Root, Err: err})
	}
	e.logger.Info("Extracting properties",
		zap.Int("assets", len(paths)),
		zap.Int("properties", len(props)),
		zap.String("output", outputPath))

	file := &cachefile.File{}
	for _, path := range paths {
		if ctx.Err() != nil {
			e.logger.Warn("Extraction interrupted", zap.Error(ctx.Err()))
			break
		}
		e.extractAsset(ctx, path, props, file, result)
	}

	if err := cachefile.Write(outputPath, file); err != nil {
		e.logger.Error("Failed to write cache file", zap.String("path", outputPath), zap.Error(err))
		return result, err
	}

	e.logger.Info("Extraction complete",
		zap.String("output", outputPath),
		zap.Int("assets_written", result.AssetsWritten),
		zap.Int("assets_skipped", result.AssetsSkipped),
		zap.Int("properties_read", result.PropertiesRead),
		zap.Int("properties_skipped", result.PropertiesSkipped))
	return result, nil
}

func (e *Extractor) extractAsset(ctx context.Context, path string, props property.Descriptors, file *cachefile.File, result *ExtractResult) {
	a, err := e.host.LoadAsset(ctx, path)
	if err != nil {
		result.AssetsSkipped++
		e.fail(result, Failure{Kind: ErrAssetLoadFailed, Asset: path, Err: err})
		return
	}

	name := assetref.ShortName(a.Path())
	if file.Lookup(name) != nil {
		result.AssetsSkipped++
		e.fail(result, Failure{
			Kind:  ErrDuplicateAsset,
			Asset: path,
			Err:   fmt.Errorf("an earlier asset already uses the short name %s", name),
		})
		return
	}

	entry := cachefile.NewEntry(name, assetref.ObjectPath(a.Path()))
	read := make(map[string]string, len(props))

	for i := range props {
		d := &props[i]
		chain, v, err := readChain(a, d)
		if err != nil {
			result.PropertiesSkipped++
			e.fail(result, Failure{Kind: kindOf(err, ErrPropertyMissing), Asset: path, Property: d.Name, Err: causeOf(err)})
			continue
		}

		resolved := strings.Join(chain, ".")
		if first, ok := read[resolved]; ok {
			result.PropertiesSkipped++
			e.logger.Info("Skipping property already recorded under another spelling",
				zap.String("asset", path),
				zap.String("property", d.Name),
				zap.String("recorded_as", first))
			continue
		}

		tree, err := encode(v, d)
		if err != nil {
			result.PropertiesSkipped++
			e.fail(result, Failure{Kind: kindOf(err, ErrSerializationFailed), Asset: path, Property: d.Name, Err: causeOf(err)})
			continue
		}

		read[resolved] = d.Name
		entry.Set(d.Name, tree)
		result.PropertiesRead++
	}

	if entry.Len() == 0 {
		result.AssetsSkipped++
		e.logger.Info("No properties read, asset omitted", zap.String("asset", path))
		return
	}

	if err := file.Add(entry); err != nil {
		result.AssetsSkipped++
		e.fail(result, Failure{Kind: ErrDuplicateAsset, Asset: path, Err: err})
		return
	}
	result.AssetsWritten++
	e.logger.Debug("Extracted asset", zap.String("asset", path), zap.Int("properties", entry.Len()))
}

// readChain follows the descriptor's field chain from the asset to the
// value, resolving each link by name equivalence
func readChain(a host.Asset, d *property.Descriptor) ([]string, property.Value, error) {
	links := d.Chain()
	aliases := d.Aliases
	if len(d.Path) > 0 {
		aliases = nil
	}

	top, ok := property.Resolve(links[0], aliases, func(n string) bool { return host.HasProperty(a, n) })
	if !ok {
		return nil, property.Value{}, kindErrorf(ErrPropertyMissing, "link 1 of %d (%s) not found", len(links), links[0])
	}
	v, err := a.Property(top)
	if err != nil {
		return nil, property.Value{}, withKind(ErrPropertyMissing, err)
	}

	chain := []string{top}
	for i, link := range links[1:] {
		if v.Kind != property.KindStruct {
			return nil, property.Value{}, kindErrorf(ErrPropertyMissing,
				"link %d of %d (%s): %s is %s, not a struct", i+2, len(links), link, strings.Join(chain, "."), v.Kind)
		}
		name, ok := property.Resolve(link, nil, v.HasField)
		if !ok {
			return nil, property.Value{}, kindErrorf(ErrPropertyMissing,
				"link %d of %d (%s) not found on %s", i+2, len(links), link, v.Type)
		}
		v, _ = v.Field(name)
		chain = append(chain, name)
	}
	return chain, v, nil
}

func (e *Extractor) fail(result *ExtractResult, f Failure) {
	result.Failures = append(result.Failures, f)
	fields := []zap.Field{
		zap.String("kind", KindName(f.Kind)),
		zap.String("asset", f.Asset),
	}
	if f.Property != "" {
		fields = append(fields, zap.String("property", f.Property))
	}
	fields = append(fields, zap.Error(f.Err))
	e.logger.Warn("Skipped during extraction", fields...)

	if e.failures != nil {
		e.failures.Record(KindName(f.Kind), f.Asset, f.Property, f.Err)
	}
}
