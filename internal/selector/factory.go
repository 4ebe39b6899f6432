package selector

import (
	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"go.uber.org/zap"
)

// Options carries strategy-specific construction parameters
type Options struct {
	Scorer *Scorer
	Logger *zap.Logger
}

// New maps a strategy Type to a Selector reading from registry
func New(t Type, registry LeaseReader, opts Options) (Selector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch t {
	case LeaseBased:
		return NewLeaseBasedSelector(registry, logger), nil
	case LoadBased:
		return NewLoadBasedSelector(registry, opts.Scorer, logger), nil
	default:
		return nil, metaerrors.UnsupportedSelectorType(string(t))
	}
}
