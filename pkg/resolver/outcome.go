package resolver

import (
	"context"
	"errors"

	"github.com/coolbeans/lagen/pkg/sfs"
)

// Status classifies the result of resolving one identifier.
type Status string

const (
	// StatusResolved means every base act the identifier belongs to is current.
	StatusResolved Status = "resolved"
	// StatusStale means at least one base act's text lags the identifier.
	StatusStale Status = "stale"
	// StatusNotFound means the register knows nothing of the identifier.
	StatusNotFound Status = "not_found"
	// StatusNonCanonical means the identifier is outside the regular SFS series.
	StatusNonCanonical Status = "non_canonical"
	// StatusError means a transport or storage failure interrupted resolution.
	StatusError Status = "error"
)

// Outcome is the result of Resolve.
type Outcome struct {
	Identifier sfs.Identifier
	Status     Status
	BaseActs   []sfs.Identifier
	Err        error
}

// Resolve runs ResolveBase and then EnsureCurrent for every base act found.
// All base acts are checked even when one of them is stale, so each gets a
// fresh download.
func (resolver *Resolver) Resolve(ctx context.Context, identifier sfs.Identifier) Outcome {
	outcome := Outcome{Identifier: identifier}

	baseActs, err := resolver.ResolveBase(ctx, identifier)
	if err != nil {
		outcome.Status, outcome.Err = classify(err), err
		return outcome
	}
	outcome.BaseActs = baseActs

	var staleness error
	for _, base := range baseActs {
		err := resolver.EnsureCurrent(ctx, base, identifier)
		switch {
		case err == nil:
		case errors.Is(err, sfs.ErrStale):
			staleness = err
		default:
			outcome.Status, outcome.Err = classify(err), err
			return outcome
		}
	}

	if staleness != nil {
		outcome.Status, outcome.Err = StatusStale, staleness
		return outcome
	}
	outcome.Status = StatusResolved
	return outcome
}

func classify(err error) Status {
	switch {
	case errors.Is(err, sfs.ErrNonCanonical):
		return StatusNonCanonical
	case errors.Is(err, sfs.ErrStale):
		return StatusStale
	case errors.Is(err, sfs.ErrNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}
