// Package resolver decides, for a single SFS number, which base acts it
// belongs to and whether the locally stored text of those acts is current.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/storage"
)

// Register is the subset of the register client the resolver needs.
type Register interface {
	LookupBaseAct(ctx context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error)
	LookupAmendmentChain(ctx context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error)
	FetchDocument(ctx context.Context, identifier sfs.Identifier) ([]byte, error)
	FetchChangeRegister(ctx context.Context, identifier sfs.Identifier) ([]byte, error)
	DocumentURL(identifier sfs.Identifier) string
}

// Invalidator is implemented by registers that cache pages. Forced refreshes
// drop the cached pages of the base act first.
type Invalidator interface {
	Invalidate(identifier sfs.Identifier)
}

// TextStore is where downloaded act text and register pages are kept.
type TextStore interface {
	HasText(identifier sfs.Identifier, version *sfs.VersionTag) bool
	ReadText(identifier sfs.Identifier, version *sfs.VersionTag) ([]byte, error)
	WriteText(identifier sfs.Identifier, data []byte) (storage.TextWrite, error)
	WriteRegister(identifier sfs.Identifier, data []byte) error
}

// Resolver resolves identifiers against the register and keeps base act text
// current in the store.
type Resolver struct {
	register Register
	texts    TextStore
	entries  storage.EntryStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(resolver *Resolver) {
		if logger != nil {
			resolver.logger = logger
		}
	}
}

// WithClock replaces time.Now for fetch bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(resolver *Resolver) {
		if now != nil {
			resolver.now = now
		}
	}
}

// New creates a Resolver. entries may be nil, in which case no document
// entries are recorded.
func New(register Register, texts TextStore, entries storage.EntryStore, options ...Option) *Resolver {
	resolver := &Resolver{
		register: register,
		texts:    texts,
		entries:  entries,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, option := range options {
		option(resolver)
	}
	return resolver
}

// ResolveBase returns the base acts identifier belongs to: itself when it is a
// base act, otherwise the base acts it amends. An identifier the register
// knows neither way fails with an *sfs.NotFoundError.
func (resolver *Resolver) ResolveBase(ctx context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error) {
	if !identifier.IsCanonical() {
		return nil, sfs.NonCanonical(identifier)
	}

	baseActs, err := resolver.register.LookupBaseAct(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("base act lookup of %s: %w", identifier, err)
	}
	if len(baseActs) > 0 {
		return baseActs, nil
	}

	baseActs, err = resolver.register.LookupAmendmentChain(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("change register lookup of %s: %w", identifier, err)
	}
	if len(baseActs) > 0 {
		return baseActs, nil
	}
	return nil, &sfs.NotFoundError{Identifier: identifier}
}

// EnsureCurrent makes sure the stored text of base incorporates requested.
// The text is downloaded when missing, and refreshed whenever requested is an
// amendment. When the text's "updated through" marker is still behind
// requested the result is an *sfs.StalenessError, unless the text declares
// the act repealed by an act later than that marker. A base act the register
// lists without a text is current for itself and stale for its amendments.
func (resolver *Resolver) EnsureCurrent(ctx context.Context, base, requested sfs.Identifier) error {
	stored := resolver.texts.HasText(base, nil)
	if !stored || requested != base {
		if invalidator, ok := resolver.register.(Invalidator); ok && stored {
			invalidator.Invalidate(base)
		}
		if _, err := resolver.Download(ctx, base); err != nil {
			return err
		}
	}

	text, err := resolver.texts.ReadText(base, nil)
	if err != nil {
		return err
	}

	if requested == base {
		return nil
	}

	markers := sfs.ReadMarkers(text)
	updatedThrough := markers.UpdatedThroughOr(base)
	if !updatedThrough.Before(requested) {
		return nil
	}

	if markers.RepealedBy != nil && updatedThrough.Before(*markers.RepealedBy) {
		resolver.logger.Info("text behind requested amendment but act is repealed",
			"sfs", requested.String(),
			"base", base.String(),
			"updated_through", updatedThrough.String(),
			"repealed_by", markers.RepealedBy.String())
		return nil
	}

	return &sfs.StalenessError{Base: base, Requested: requested, UpdatedThrough: updatedThrough}
}

// Download fetches the current text and change register of a base act and
// stores both. A superseded text is archived by the store. When the register
// lists the act but has no text for it, the register's "no hits" page stands
// in as the text until a real one is published; an act that has neither
// fails with an *sfs.NotFoundError.
func (resolver *Resolver) Download(ctx context.Context, base sfs.Identifier) (storage.TextWrite, error) {
	document, documentErr := resolver.register.FetchDocument(ctx, base)
	textMissing := errors.Is(documentErr, sfs.ErrNotFound)
	if documentErr != nil && !textMissing {
		return storage.TextWrite{}, fmt.Errorf("download text of %s: %w", base, documentErr)
	}

	changeRegister, err := resolver.register.FetchChangeRegister(ctx, base)
	registerFound := err == nil
	switch {
	case errors.Is(err, sfs.ErrNotFound) && textMissing:
		return storage.TextWrite{}, fmt.Errorf("download text of %s: %w", base, documentErr)
	case errors.Is(err, sfs.ErrNotFound):
		resolver.logger.Warn("no change register for base act", "sfs", base.String())
	case err != nil:
		return storage.TextWrite{}, fmt.Errorf("download register of %s: %w", base, err)
	}

	var (
		written  storage.TextWrite
		writeErr error
	)
	switch {
	case !textMissing:
		written, writeErr = resolver.texts.WriteText(base, document)
	case resolver.texts.HasText(base, nil):
		resolver.logger.Warn("register has no text for base act, keeping stored text", "sfs", base.String())
	default:
		resolver.logger.Warn("register has no text for base act", "sfs", base.String())
		written, writeErr = resolver.texts.WriteText(base, missingTextPage)
	}
	if writeErr != nil {
		return written, writeErr
	}
	if written.Archived != nil {
		resolver.logger.Info("archived superseded text", "sfs", base.String(), "version", written.Archived.String())
	}

	if registerFound {
		if err := resolver.texts.WriteRegister(base, changeRegister); err != nil {
			return written, err
		}
	}

	if resolver.entries != nil {
		if _, err := storage.RecordFetch(ctx, resolver.entries, base, resolver.register.DocumentURL(base), written.Changed, resolver.now()); err != nil {
			return written, err
		}
	}
	return written, nil
}

// missingTextPage is stored for a base act whose text the register does not
// have. It is the page the register itself answers with.
var missingTextPage = []byte("<html><body>" + sfs.NoResultsMarker + "</body></html>")
