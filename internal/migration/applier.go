package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetmig-go/internal/cachefile"
	"assetmig-go/internal/host"
	"assetmig-go/internal/property"

	"go.uber.org/zap"
)

// Applier writes cached property values back onto assets
type Applier struct {
	host     host.Host
	logger   *zap.Logger
	failures FailureSink
}

// NewApplier creates an applier writing to h
func NewApplier(h host.Host, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		host:   h,
		logger: logger.Named("apply"),
	}
}

// SetFailureSink sets a sink that receives every failure
func (ap *Applier) SetFailureSink(sink FailureSink) {
	ap.failures = sink
}

// Apply reads the cache file at cachePath and applies it. Descriptors are
// optional; without one a value is decoded by the destination's current kind
// or, failing that, by its JSON shape. Only an unreadable cache file is
// returned as an error.
func (ap *Applier) Apply(ctx context.Context, cachePath string, props property.Descriptors) (*Summary, error) {
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("invalid property descriptors: %w", err)
	}

	f, err := cachefile.Read(cachePath)
	if err != nil {
		ap.logger.Error("Failed to read cache file", zap.String("path", cachePath), zap.Error(err))
		return nil, err
	}

	ap.logger.Info("Applying cache file",
		zap.String("path", cachePath),
		zap.Int("entries", len(f.Entries)))
	return ap.ApplyFile(ctx, f, props), nil
}

// ApplyFile applies an already parsed cache file. Entries are applied in
// file order and properties in entry order; every asset that was located is
// saved regardless of how many of its properties failed.
func (ap *Applier) ApplyFile(ctx context.Context, f *cachefile.File, props property.Descriptors) *Summary {
	s := &Summary{}

	for _, p := range f.Problems {
		s.AssetsFailed++
		ap.fail(s, Failure{Kind: ErrAssetMissing, Asset: p.Entry, Err: p.Err})
	}

	for _, entry := range f.Entries {
		if ctx.Err() != nil {
			ap.logger.Warn("Apply interrupted", zap.Error(ctx.Err()))
			break
		}
		ap.applyEntry(ctx, entry, props, s)
	}

	ap.logger.Info("Apply complete", zap.String("summary", s.String()))
	return s
}

func (ap *Applier) applyEntry(ctx context.Context, entry *cachefile.Entry, props property.Descriptors, s *Summary) {
	if strings.TrimSpace(entry.Path) == "" {
		s.AssetsFailed++
		ap.fail(s, Failure{Kind: ErrAssetMissing, Asset: entry.Name, Err: fmt.Errorf("entry has no %q field", cachefile.PathKey)})
		return
	}

	a, err := ap.host.LoadAsset(ctx, entry.Path)
	if err != nil {
		s.AssetsFailed++
		ap.fail(s, Failure{Kind: ErrAssetMissing, Asset: entry.Path, Err: err})
		return
	}

	seen := make(map[string]string, entry.Len())
	if entry.Props != nil {
		for pair := entry.Props.Oldest(); pair != nil; pair = pair.Next() {
			key := pair.Key

			c := property.Canonical(key)
			if first, dup := seen[c]; dup {
				s.PropertiesFailed++
				ap.fail(s, Failure{
					Kind:     ErrDuplicateProperty,
					Asset:    entry.Path,
					Property: key,
					Err:      fmt.Errorf("same field as %s, first occurrence kept", first),
				})
				continue
			}
			seen[c] = key

			dc := &decoder{ctx: ctx, host: ap.host, asset: entry.Path}
			err := dc.applyProperty(a, key, props.Lookup(key), pair.Value)
			for _, nf := range dc.nested {
				s.PropertiesFailed++
				ap.fail(s, nf)
			}

			switch {
			case errors.Is(err, errLeaveDefault):
				s.PropertiesDefaults++
				ap.logger.Debug("Left at default", zap.String("asset", entry.Path), zap.String("property", key))
			case err != nil:
				s.PropertiesFailed++
				ap.fail(s, Failure{Kind: kindOf(err, ErrTypeMismatch), Asset: entry.Path, Property: key, Err: causeOf(err)})
			default:
				s.PropertiesApplied++
			}
		}
	}

	if err := ap.host.SaveAsset(ctx, a); err != nil {
		s.AssetsFailed++
		ap.fail(s, Failure{Kind: ErrSaveFailed, Asset: entry.Path, Err: err})
		return
	}
	s.AssetsApplied++
	ap.logger.Debug("Applied asset", zap.String("asset", entry.Path))
}

func (ap *Applier) fail(s *Summary, f Failure) {
	s.Failures = append(s.Failures, f)

	fields := []zap.Field{
		zap.String("kind", KindName(f.Kind)),
		zap.String("asset", f.Asset),
	}
	if f.Property != "" {
		fields = append(fields, zap.String("property", f.Property))
	}
	fields = append(fields, zap.Error(f.Err))

	if errors.Is(f.Kind, ErrSaveFailed) {
		ap.logger.Error("Save failed", fields...)
	} else {
		ap.logger.Warn("Skipped during apply", fields...)
	}

	if ap.failures != nil {
		ap.failures.Record(KindName(f.Kind), f.Asset, f.Property, f.Err)
	}
}
