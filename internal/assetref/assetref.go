// Package assetref holds the path conventions for assets and classes in a
// content tree.
//
// An asset path looks like /Game/Items/Sword01 and may carry an object suffix
// (/Game/Items/Sword01.Sword01). Generated classes carry a _C suffix on the
// object name (/Game/Items/BP_Sword.BP_Sword_C). Exported text wraps a path
// in its type: Texture2D'/Game/T_A.T_A'.
package assetref

import (
	"path"
	"strings"
)

// GeneratedClassSuffix marks a class synthesised from a visual-script asset
const GeneratedClassSuffix = "_C"

// None is the host's spelling of a null reference
const None = "None"

// Clean trims whitespace and unwraps an export-text reference.
func Clean(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexByte(p, '\''); i >= 0 && strings.HasSuffix(p, "'") && i < len(p)-1 {
		p = p[i+1 : len(p)-1]
	}
	return strings.Trim(p, "\"")
}

// IsNone reports whether a cached reference means "leave the default"
func IsNone(p string) bool {
	p = Clean(p)
	return p == "" || p == None
}

// ObjectPath strips the object suffix after the final '/' so the result can
// be used for an asset load.
func ObjectPath(p string) string {
	p = Clean(p)
	slash := strings.LastIndexByte(p, '/')
	if dot := strings.IndexByte(p[slash+1:], '.'); dot >= 0 {
		p = p[:slash+1+dot]
	}
	// sub-object references (Pkg.Obj:Sub) resolve to their package too
	if colon := strings.IndexByte(p[slash+1:], ':'); colon >= 0 {
		p = p[:slash+1+colon]
	}
	return p
}

// Reference returns the full object reference of an asset path:
// /Game/T_A becomes /Game/T_A.T_A. Paths that already carry a suffix are
// returned cleaned.
func Reference(p string) string {
	p = Clean(p)
	if p == "" || p == None || ObjectPath(p) != p {
		return p
	}
	return p + "." + path.Base(p)
}

// ClassPath cleans a class reference, keeping its object and _C suffix
func ClassPath(p string) string {
	return Clean(p)
}

// ShortName returns the last path segment without any object suffix. It is
// the top-level key of a cache file entry.
func ShortName(p string) string {
	return path.Base(ObjectPath(p))
}

// IsGeneratedClass reports whether a class path names a generated class
func IsGeneratedClass(p string) bool {
	return strings.HasSuffix(Clean(p), GeneratedClassSuffix)
}

// GeneratedClassPath returns the generated class path for a visual-script
// asset path: /Game/BP_Foo becomes /Game/BP_Foo.BP_Foo_C.
func GeneratedClassPath(assetPath string) string {
	obj := ObjectPath(assetPath)
	return obj + "." + path.Base(obj) + GeneratedClassSuffix
}

// IsAbsolute reports whether p looks like a content tree path
func IsAbsolute(p string) bool {
	return strings.HasPrefix(Clean(p), "/")
}

// Within reports whether p lies under root. When recursive is false only
// immediate children match.
func Within(p, root string, recursive bool) bool {
	root = strings.TrimSuffix(ObjectPath(root), "/")
	p = ObjectPath(p)
	if !strings.HasPrefix(p, root+"/") {
		return false
	}
	if recursive {
		return true
	}
	return !strings.Contains(p[len(root)+1:], "/")
}
