// Package host declares the editor reflection capabilities the migration
// core depends on. Any content tree that can load assets by path, read and
// write named properties, resolve classes, tags and enums, and save assets
// can act as a host.
package host

import (
	"context"
	"errors"

	"assetmig-go/internal/property"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrClassNotFound    = errors.New("class not found")
	ErrTagNotFound      = errors.New("gameplay tag not registered")
	ErrEnumNotFound     = errors.New("enum variant not found")
	ErrStructNotFound   = errors.New("struct type not found")

	// ErrTypeMismatch aliases property.ErrKindMismatch so errors.Is works on
	// failures raised by either layer.
	ErrTypeMismatch = property.ErrKindMismatch
)

// Asset is a loaded asset handle. Property returns a copy: changes made to a
// struct read from an asset only take effect once written back with
// SetProperty.
type Asset interface {
	Path() string
	ClassPath() string
	PropertyNames() []string
	Property(name string) (property.Value, error)
	SetProperty(name string, v property.Value) error
}

// Host is the reflection surface of one content tree
type Host interface {
	// LoadAsset resolves a path to a live asset or ErrAssetNotFound.
	LoadAsset(ctx context.Context, path string) (Asset, error)

	// ListAssets enumerates asset paths under root, never folders.
	ListAssets(ctx context.Context, root string, recursive bool) ([]string, error)

	// LoadClass resolves a class path to a class reference value.
	LoadClass(ctx context.Context, path string) (property.Value, error)

	// RequestTag resolves a dotted tag name through the tag registry.
	RequestTag(ctx context.Context, name string) (property.Value, error)

	// ResolveEnum resolves a variant of enumType by name.
	ResolveEnum(ctx context.Context, enumType, name string) (property.Value, error)

	// NewStruct constructs a default value of a struct type.
	NewStruct(ctx context.Context, structType string) (property.Value, error)

	// SaveAsset persists a modified asset.
	SaveAsset(ctx context.Context, a Asset) error
}

// Reparenter replaces the declared parent class of a visual-script asset.
// On success the asset stays at the same path; properties whose declared type
// changed are reset to the new default and properties the new parent does not
// expose are dropped.
type Reparenter interface {
	Reparent(ctx context.Context, assetPath, newParentClass string) error
}

// HasProperty reports whether the asset exposes name with exactly this spelling
func HasProperty(a Asset, name string) bool {
	for _, n := range a.PropertyNames() {
		if n == name {
			return true
		}
	}
	return false
}
