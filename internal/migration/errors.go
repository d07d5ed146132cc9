package migration

import (
	"errors"
	"fmt"
)

// Failure kinds. Every per-item failure recorded by the extractor, the
// applier or the verifier wraps exactly one of these.
var (
	ErrAssetLoadFailed            = errors.New("asset load failed")
	ErrPropertyMissing            = errors.New("property missing")
	ErrSerializationFailed        = errors.New("serialization failed")
	ErrDuplicateAsset             = errors.New("duplicate asset name")
	ErrAssetMissing               = errors.New("asset missing")
	ErrPropertyMissingOnNewParent = errors.New("property missing on new parent")
	ErrValueResolutionFailed      = errors.New("value resolution failed")
	ErrTypeMismatch               = errors.New("type mismatch")
	ErrDuplicateProperty          = errors.New("duplicate property")
	ErrSaveFailed                 = errors.New("save failed")
	ErrValueMismatch              = errors.New("value mismatch")
)

var kindNames = map[error]string{
	ErrAssetLoadFailed:            "AssetLoadFailed",
	ErrPropertyMissing:            "PropertyMissing",
	ErrSerializationFailed:        "SerializationFailed",
	ErrDuplicateAsset:             "DuplicateAsset",
	ErrAssetMissing:               "AssetMissing",
	ErrPropertyMissingOnNewParent: "PropertyMissingOnNewParent",
	ErrValueResolutionFailed:      "ValueResolutionFailed",
	ErrTypeMismatch:               "TypeMismatch",
	ErrDuplicateProperty:          "DuplicateProperty",
	ErrSaveFailed:                 "SaveFailed",
	ErrValueMismatch:              "ValueMismatch",
}

// KindName returns the short name of a failure kind
func KindName(kind error) string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return "Unknown"
}

// Failure is one skipped asset or property. Property is the dotted chain
// from the asset to the value and is empty for asset-level failures.
type Failure struct {
	Kind     error
	Asset    string
	Property string
	Err      error
}

func (f Failure) Error() string {
	target := f.Asset
	if f.Property != "" {
		target += " " + f.Property
	}
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", KindName(f.Kind), target)
	}
	return fmt.Sprintf("%s: %s: %v", KindName(f.Kind), target, f.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is
func (f Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// FailureSink receives every failure as it happens, for example to append it
// to a review log
type FailureSink interface {
	Record(kind, asset, property string, err error)
}

// kindError pairs a failure kind with its cause while a value is decoded
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

func kindErrorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

func withKind(kind, err error) error {
	return &kindError{kind: kind, err: err}
}

// kindOf returns the failure kind carried by err, or fallback
func kindOf(err, fallback error) error {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return fallback
}

// causeOf strips a top-level kind wrapper so log lines do not repeat it.
// A wrapped kind error keeps its outer context, such as a list position.
func causeOf(err error) error {
	if ke, ok := err.(*kindError); ok && ke.err != nil {
		return ke.err
	}
	return err
}
