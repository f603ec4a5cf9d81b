package sfs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the acquisition and consolidation pipeline. Components
// return these wrapped (or one of the typed errors below, which unwrap to
// them) so callers can branch with errors.Is.
//
//   - ErrNotFound: the identifier has no base act in the register at all.
//   - ErrStale: stored base-act text lags the change register; retry later.
//   - ErrNonCanonical: the identifier belongs to another numbering authority.
//   - ErrExpired: the act is repealed and expired acts are being skipped.
//   - ErrExtraction: the act text could not be structurally parsed.
var (
	ErrNotFound     = errors.New("no such act")
	ErrStale        = errors.New("act text not updated")
	ErrNonCanonical = errors.New("not a regular SFS number")
	ErrExpired      = errors.New("act has expired")
	ErrExtraction   = errors.New("act text could not be extracted")
)

// NotFoundError reports an identifier the register knows nothing about.
type NotFoundError struct {
	Identifier Identifier
}

func (notFound *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", notFound.Identifier, ErrNotFound)
}

// Unwrap returns ErrNotFound.
func (notFound *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StalenessError reports that a base act's text is only updated through an
// earlier amendment than the one requested.
type StalenessError struct {
	// Base is the base act whose text is behind.
	Base Identifier
	// Requested is the identifier to queue for a later retry.
	Requested Identifier
	// UpdatedThrough is the marker found in the stored text.
	UpdatedThrough Identifier
}

func (stale *StalenessError) Error() string {
	return fmt.Sprintf("%s: text of %s updated through %s, not %s",
		stale.Requested, stale.Base, stale.UpdatedThrough, stale.Requested)
}

// Unwrap returns ErrStale.
func (stale *StalenessError) Unwrap() error {
	return ErrStale
}

// NonCanonical returns an ErrNonCanonical error for identifier.
func NonCanonical(identifier Identifier) error {
	return fmt.Errorf("%s: %w", identifier, ErrNonCanonical)
}
