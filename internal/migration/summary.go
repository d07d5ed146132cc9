package migration

import (
	"errors"
	"fmt"
)

// Summary is the outcome of one applier run. An asset counts as applied
// when it was located and saved, even if some of its properties failed.
type Summary struct {
	AssetsApplied      int
	AssetsFailed       int
	PropertiesApplied  int
	PropertiesFailed   int
	PropertiesDefaults int
	Failures           []Failure
}

// String renders the final summary line
func (s *Summary) String() string {
	return fmt.Sprintf("applied %d, failed %d (properties: %d applied, %d failed, %d left at default)",
		s.AssetsApplied, s.AssetsFailed, s.PropertiesApplied, s.PropertiesFailed, s.PropertiesDefaults)
}

// Count returns the number of failures of one kind
func (s *Summary) Count(kind error) int {
	n := 0
	for _, f := range s.Failures {
		if errors.Is(f.Kind, kind) {
			n++
		}
	}
	return n
}

// OK reports whether nothing failed
func (s *Summary) OK() bool {
	return s.AssetsFailed == 0 && s.PropertiesFailed == 0
}
