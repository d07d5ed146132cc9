package property

import (
	"strings"
	"unicode"

	"github.com/ettle/strcase"
)

// Spellings returns the candidate spellings of a property name in the order
// they are tried against a host: the literal spelling, the snake_case form
// used by the reflection API, then the PascalCase and camelCase forms used on
// disk. Boolean fields authored as bFoo are also tried without the prefix,
// which is how the reflection API exposes them.
func Spellings(name string) []string {
	out := make([]string, 0, 6)
	seen := make(map[string]struct{}, 6)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(name)
	add(strcase.ToSnake(name))
	add(strcase.ToPascal(name))
	add(strcase.ToCamel(name))
	if stripped, ok := stripBoolPrefix(name); ok {
		add(strcase.ToSnake(stripped))
		add(stripped)
	}
	return out
}

// Canonical folds a name so that every spelling of the same logical field
// compares equal.
func Canonical(name string) string {
	if stripped, ok := stripBoolPrefix(name); ok {
		name = stripped
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// SameName reports whether two spellings denote the same field
func SameName(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Resolve finds the first spelling of key (or of one of its aliases) for
// which has returns true.
func Resolve(key string, aliases []string, has func(string) bool) (string, bool) {
	for _, s := range Spellings(key) {
		if has(s) {
			return s, true
		}
	}
	for _, alias := range aliases {
		for _, s := range Spellings(alias) {
			if has(s) {
				return s, true
			}
		}
	}
	return "", false
}

func stripBoolPrefix(name string) (string, bool) {
	if len(name) < 2 || name[0] != 'b' {
		return "", false
	}
	r := rune(name[1])
	if !unicode.IsUpper(r) {
		return "", false
	}
	return name[1:], true
}
