package selector

import (
	"context"
	"time"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/model"
)

// Recorder receives the outcome of every selection
type Recorder interface {
	RecordSelection(selector, namespace, outcome string, duration float64)
}

// Selection outcomes reported to a Recorder.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeNoPeer  = "no_peer"
	OutcomeError   = "error"
)

// Instrumented wraps a Selector and reports each call to a Recorder
type Instrumented struct {
	next     Selector
	recorder Recorder
}

var _ Selector = (*Instrumented)(nil)

// NewInstrumented decorates next with outcome and latency reporting
func NewInstrumented(next Selector, recorder Recorder) *Instrumented {
	return &Instrumented{next: next, recorder: recorder}
}

// Type implements Selector
func (i *Instrumented) Type() Type {
	return i.next.Type()
}

// Select implements Selector
func (i *Instrumented) Select(ctx context.Context, ns model.Namespace, sctx *Context) (*Selection, error) {
	start := time.Now()
	sel, err := i.next.Select(ctx, ns, sctx)
	i.recorder.RecordSelection(i.next.Type().String(), ns.String(), outcome(err), time.Since(start).Seconds())
	return sel, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case metaerrors.GetCode(err) == metaerrors.ErrCodePartialAllocation:
		return OutcomePartial
	case metaerrors.GetCode(err) == metaerrors.ErrCodeNoAvailablePeer:
		return OutcomeNoPeer
	default:
		return OutcomeError
	}
}
