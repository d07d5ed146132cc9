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

// AssetCheck lists how each cached property of one asset compares with the
// tree
type AssetCheck struct {
	Path       string
	Matched    []string
	Mismatched []string
	Missing    []string
}

// OK reports whether every checked property matched
func (c *AssetCheck) OK() bool {
	return len(c.Mismatched) == 0 && len(c.Missing) == 0
}

// Report is the outcome of one verification run
type Report struct {
	Assets               []*AssetCheck
	AssetsMissing        int
	PropertiesMatched    int
	PropertiesMismatched int
	PropertiesMissing    int
	PropertiesDefaults   int
	Failures             []Failure
}

// String renders the final report line
func (r *Report) String() string {
	return fmt.Sprintf("checked %d assets, %d missing (properties: %d matched, %d mismatched, %d missing, %d left at default)",
		len(r.Assets), r.AssetsMissing, r.PropertiesMatched, r.PropertiesMismatched, r.PropertiesMissing, r.PropertiesDefaults)
}

// Count returns the number of failures of one kind
func (r *Report) Count(kind error) int {
	n := 0
	for _, f := range r.Failures {
		if errors.Is(f.Kind, kind) {
			n++
		}
	}
	return n
}

// OK reports whether the tree holds every cached value
func (r *Report) OK() bool {
	return r.AssetsMissing == 0 && r.PropertiesMismatched == 0 && r.PropertiesMissing == 0
}

// Verifier checks that a tree holds the values of a cache file. Each cached
// value is decoded exactly as the applier would decode it, then compared
// with the tree's current value; nothing is saved.
type Verifier struct {
	host     host.Host
	logger   *zap.Logger
	failures FailureSink
}

// NewVerifier creates a verifier reading from h
func NewVerifier(h host.Host, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		host:   h,
		logger: logger.Named("verify"),
	}
}

// SetFailureSink sets a sink that receives every mismatch
func (v *Verifier) SetFailureSink(sink FailureSink) {
	v.failures = sink
}

// Verify reads the cache file at cachePath and checks it against the tree
func (v *Verifier) Verify(ctx context.Context, cachePath string, props property.Descriptors) (*Report, error) {
	if err := props.Validate(); err != nil {
		return nil, fmt.Errorf("invalid property descriptors: %w", err)
	}

	f, err := cachefile.Read(cachePath)
	if err != nil {
		v.logger.Error("Failed to read cache file", zap.String("path", cachePath), zap.Error(err))
		return nil, err
	}
	return v.VerifyFile(ctx, f, props), nil
}

// VerifyFile checks an already parsed cache file
func (v *Verifier) VerifyFile(ctx context.Context, f *cachefile.File, props property.Descriptors) *Report {
	r := &Report{}

	for _, p := range f.Problems {
		r.AssetsMissing++
		v.fail(r, Failure{Kind: ErrAssetMissing, Asset: p.Entry, Err: p.Err})
	}

	for _, entry := range f.Entries {
		if ctx.Err() != nil {
			v.logger.Warn("Verification interrupted", zap.Error(ctx.Err()))
			break
		}
		v.verifyEntry(ctx, entry, props, r)
	}

	v.logger.Info("Verification complete", zap.String("report", r.String()))
	return r
}

func (v *Verifier) verifyEntry(ctx context.Context, entry *cachefile.Entry, props property.Descriptors, r *Report) {
	if strings.TrimSpace(entry.Path) == "" {
		r.AssetsMissing++
		v.fail(r, Failure{Kind: ErrAssetMissing, Asset: entry.Name, Err: fmt.Errorf("entry has no %q field", cachefile.PathKey)})
		return
	}

	a, err := v.host.LoadAsset(ctx, entry.Path)
	if err != nil {
		r.AssetsMissing++
		v.fail(r, Failure{Kind: ErrAssetMissing, Asset: entry.Path, Err: err})
		return
	}

	check := &AssetCheck{Path: entry.Path}
	r.Assets = append(r.Assets, check)

	seen := make(map[string]bool, entry.Len())
	if entry.Props == nil {
		return
	}
	for pair := entry.Props.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		c := property.Canonical(key)
		if seen[c] {
			v.logger.Info("Skipping later spelling of a checked property",
				zap.String("asset", entry.Path),
				zap.String("property", key))
			continue
		}
		seen[c] = true

		dc := &decoder{ctx: ctx, host: v.host, asset: entry.Path}
		_, current, want, err := dc.decodeProperty(a, key, props.Lookup(key), pair.Value)
		kind := kindOf(err, ErrTypeMismatch)
		if err == nil && len(dc.nested) > 0 {
			// a field that cannot be decoded cannot be checked
			nf := dc.nested[0]
			kind, err = nf.Kind, fmt.Errorf("%s: %w", nf.Property, nf.Err)
		}

		switch {
		case errors.Is(err, errLeaveDefault):
			r.PropertiesDefaults++
		case err != nil && kind == ErrPropertyMissingOnNewParent:
			r.PropertiesMissing++
			check.Missing = append(check.Missing, key)
			v.fail(r, Failure{Kind: kind, Asset: entry.Path, Property: key, Err: causeOf(err)})
		case err != nil:
			r.PropertiesMismatched++
			check.Mismatched = append(check.Mismatched, key)
			v.fail(r, Failure{Kind: kind, Asset: entry.Path, Property: key, Err: causeOf(err)})
		case !want.Equal(current):
			r.PropertiesMismatched++
			check.Mismatched = append(check.Mismatched, key)
			v.fail(r, Failure{
				Kind:     ErrValueMismatch,
				Asset:    entry.Path,
				Property: key,
				Err:      fmt.Errorf("expected %s, found %s", want, current),
			})
		default:
			r.PropertiesMatched++
			check.Matched = append(check.Matched, key)
		}
	}
}

func (v *Verifier) fail(r *Report, f Failure) {
	r.Failures = append(r.Failures, f)

	fields := []zap.Field{
		zap.String("kind", KindName(f.Kind)),
		zap.String("asset", f.Asset),
	}
	if f.Property != "" {
		fields = append(fields, zap.String("property", f.Property))
	}
	v.logger.Warn("Verification failed", append(fields, zap.Error(f.Err))...)

	if v.failures != nil {
		v.failures.Record(KindName(f.Kind), f.Asset, f.Property, f.Err)
	}
}
