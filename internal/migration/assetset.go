package migration

import (
	"context"
	"fmt"
	"strings"

	"assetmig-go/internal/assetref"
	"assetmig-go/internal/host"
)

// AssetSet selects the assets an extraction covers: literal paths, a
// subtree listing filtered by short-name prefix, or both.
type AssetSet struct {
	Paths     []string `json:"paths,omitempty" mapstructure:"paths"`
	Root      string   `json:"root,omitempty" mapstructure:"root"`
	Prefix    string   `json:"prefix,omitempty" mapstructure:"prefix"`
	Recursive bool     `json:"recursive,omitempty" mapstructure:"recursive"`
}

// IsEmpty reports whether the set selects nothing
func (s AssetSet) IsEmpty() bool {
	return len(s.Paths) == 0 && strings.TrimSpace(s.Root) == ""
}

// Resolve expands the set into asset paths. Literal paths come first in the
// order given, then listed paths; duplicates keep their first position.
func (s AssetSet) Resolve(ctx context.Context, h host.Host) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = assetref.ObjectPath(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, p := range s.Paths {
		add(p)
	}

	if strings.TrimSpace(s.Root) != "" {
		listed, err := h.ListAssets(ctx, s.Root, s.Recursive)
		if err != nil {
			return out, fmt.Errorf("failed to list assets under %s: %w", s.Root, err)
		}
		for _, p := range listed {
			if s.Prefix != "" && !strings.HasPrefix(assetref.ShortName(p), s.Prefix) {
				continue
			}
			add(p)
		}
	}
	return out, nil
}
