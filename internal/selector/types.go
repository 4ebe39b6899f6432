package selector

import (
	metaerrors "github.com/chronodb/metasrv/internal/errors"
)

// Type names a selection strategy in configuration
type Type string

const (
	// LeaseBased rotates over live peers ignoring load
	LeaseBased Type = "LeaseBased"
	// LoadBased picks the least-loaded live peers
	LoadBased Type = "LoadBased"
)

// DefaultType is used when no strategy is configured
const DefaultType = LeaseBased

// ParseType converts a configuration string into a Type. Matching is exact
// and case-sensitive.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case LeaseBased, LoadBased:
		return Type(s), nil
	default:
		return "", metaerrors.UnsupportedSelectorType(s)
	}
}

func (t Type) String() string {
	return string(t)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
