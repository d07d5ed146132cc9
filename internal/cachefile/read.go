package cachefile

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// Read loads a cache file. Entries that are not objects, or whose path is not
// a string, are reported in File.Problems and left out of File.Entries;
// a document that is not a JSON object yields ErrInvalidCacheFile.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a cache document held in memory
func Parse(data []byte) (*File, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidCacheFile)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidCacheFile)
	}

	// duplicate top-level keys: the later body wins, the first position is kept
	type parsed struct {
		entry *Entry
		err   error
	}
	var order []string
	byName := make(map[string]parsed)
	root.ForEach(func(key, val gjson.Result) bool {
		name := key.String()
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		entry, err := parseEntry(name, val)
		byName[name] = parsed{entry: entry, err: err}
		return true
	})

	f := &File{}
	for _, name := range order {
		p := byName[name]
		if p.err != nil {
			f.Problems = append(f.Problems, Problem{Entry: name, Err: p.err})
			continue
		}
		f.Entries = append(f.Entries, p.entry)
	}
	return f, nil
}

// parseEntry decodes one entry body. An entry is either usable or a problem,
// never both.
func parseEntry(name string, val gjson.Result) (*Entry, error) {
	if !val.IsObject() {
		return nil, fmt.Errorf("%w: entry is %s, not an object", ErrInvalidCacheFile, val.Type)
	}

	entry := NewEntry(name, "")
	var err error
	val.ForEach(func(k, v gjson.Result) bool {
		prop := k.String()
		switch prop {
		case PathKey, legacyPathKey:
			if v.Type != gjson.String {
				err = fmt.Errorf("%w: %q is %s, not a string", ErrInvalidCacheFile, prop, v.Type)
				return false
			}
			if prop == PathKey || entry.Path == "" {
				entry.Path = v.String()
			}
		default:
			entry.Set(prop, FromResult(v))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// FromResult converts a parsed gjson value into a JSON tree, keeping object
// key order.
func FromResult(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	}

	if r.IsArray() {
		items := make([]any, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			items = append(items, FromResult(v))
			return true
		})
		return items
	}

	obj := NewObject()
	r.ForEach(func(k, v gjson.Result) bool {
		obj.Set(k.String(), FromResult(v))
		return true
	})
	return obj
}

// Shape names the JSON type of a tree value for log lines
func Shape(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case *Object:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
