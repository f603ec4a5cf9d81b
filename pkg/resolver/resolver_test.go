package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/storage"
)

var errConnectionReset = errors.New("connection reset by peer")

// memoryRegister is an in-memory Register. Documents and registers are keyed
// by base act; changes map amending acts to the base acts they amend.
type memoryRegister struct {
	documents map[string]string
	registers map[string]string
	changes   map[string][]string
	broken    map[string]bool
	fetches   int
	// invalidated lists the base acts whose cached pages were dropped.
	invalidated []string
}

func (register *memoryRegister) Invalidate(identifier sfs.Identifier) {
	register.invalidated = append(register.invalidated, identifier.String())
}

func (register *memoryRegister) LookupBaseAct(_ context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error) {
	if register.broken[identifier.String()] {
		return nil, errConnectionReset
	}
	if _, found := register.registers[identifier.String()]; found {
		return []sfs.Identifier{identifier}, nil
	}
	return nil, nil
}

func (register *memoryRegister) LookupAmendmentChain(_ context.Context, identifier sfs.Identifier) ([]sfs.Identifier, error) {
	var baseActs []sfs.Identifier
	for _, base := range register.changes[identifier.String()] {
		baseActs = append(baseActs, sfs.MustParse(base))
	}
	return baseActs, nil
}

func (register *memoryRegister) FetchDocument(_ context.Context, identifier sfs.Identifier) ([]byte, error) {
	register.fetches++
	document, found := register.documents[identifier.String()]
	if !found {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	return []byte(document), nil
}

func (register *memoryRegister) FetchChangeRegister(_ context.Context, identifier sfs.Identifier) ([]byte, error) {
	page, found := register.registers[identifier.String()]
	if !found {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	return []byte(page), nil
}

func (register *memoryRegister) DocumentURL(identifier sfs.Identifier) string {
	return "http://register.test/sfst/" + identifier.String()
}

func newTestResolver(t *testing.T, register *memoryRegister) (*Resolver, *storage.FileStore, storage.EntryStore) {
	t.Helper()
	rootDir := t.TempDir()
	fileStore, err := storage.NewFileStore(rootDir)
	require.NoError(t, err)
	entries := storage.NewFileEntryStore(rootDir)
	clock := func() time.Time { return time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC) }
	return New(register, fileStore, entries, WithClock(clock)), fileStore, entries
}

const textUpdatedThrough2010_5 = "<pre>Rubrik: Lag (2009:400)\nÄndring införd: t.o.m. SFS 2010:5\n</pre>"

func TestEnsureCurrentStaleWithoutRepeal(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2009:400": textUpdatedThrough2010_5},
		registers: map[string]string{"2009:400": "<b>SFS-nummer:</b> 2009:400"},
	}
	resolver, _, _ := newTestResolver(t, register)

	err := resolver.EnsureCurrent(context.Background(), sfs.MustParse("2009:400"), sfs.MustParse("2012:30"))
	require.ErrorIs(t, err, sfs.ErrStale)

	var stale *sfs.StalenessError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, sfs.MustParse("2012:30"), stale.Requested)
	assert.Equal(t, sfs.MustParse("2010:5"), stale.UpdatedThrough)
}

func TestEnsureCurrentRepealedActIsNotStale(t *testing.T) {
	for _, repealedBy := range []string{"2012:30", "2013:1"} {
		t.Run(repealedBy, func(t *testing.T) {
			register := &memoryRegister{
				documents: map[string]string{
					"2009:400": textUpdatedThrough2010_5 + "<p>Upphävd: 2013-01-01</p><p>Författningen har upphävts genom: SFS " + repealedBy + "</p>",
				},
				registers: map[string]string{"2009:400": ""},
			}
			resolver, _, _ := newTestResolver(t, register)

			err := resolver.EnsureCurrent(context.Background(), sfs.MustParse("2009:400"), sfs.MustParse("2012:30"))
			assert.NoError(t, err)
		})
	}
}

func TestEnsureCurrentMarkerAtOrAheadOfRequested(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2009:400": textUpdatedThrough2010_5},
		registers: map[string]string{"2009:400": ""},
	}
	resolver, _, _ := newTestResolver(t, register)

	assert.NoError(t, resolver.EnsureCurrent(context.Background(), sfs.MustParse("2009:400"), sfs.MustParse("2010:5")))
	assert.NoError(t, resolver.EnsureCurrent(context.Background(), sfs.MustParse("2009:400"), sfs.MustParse("2009:900")))
}

func TestEnsureCurrentBaseIsAlwaysCurrent(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2020:1": "<pre>Rubrik: Lag (2020:1)\n</pre>"},
		registers: map[string]string{"2020:1": ""},
	}
	resolver, fileStore, entries := newTestResolver(t, register)
	base := sfs.MustParse("2020:1")

	require.NoError(t, resolver.EnsureCurrent(context.Background(), base, base))
	require.NoError(t, resolver.EnsureCurrent(context.Background(), base, base))

	assert.Equal(t, 1, register.fetches, "stored text of a base act is not refetched")
	assert.True(t, fileStore.HasText(base, nil))

	entry, err := entries.LoadEntry(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, "http://register.test/sfst/2020:1", entry.URL)
}

func TestEnsureCurrentRefreshesForAmendments(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2009:400": "<pre>Rubrik: Lag (2009:400)\n</pre>"},
		registers: map[string]string{"2009:400": ""},
	}
	resolver, fileStore, _ := newTestResolver(t, register)
	base := sfs.MustParse("2009:400")

	require.NoError(t, resolver.EnsureCurrent(context.Background(), base, base))

	register.documents["2009:400"] = "<pre>Rubrik: Lag (2009:400)\nÄndring införd: t.o.m. SFS 2010:7\n</pre>"
	require.NoError(t, resolver.EnsureCurrent(context.Background(), base, sfs.MustParse("2010:7")))

	assert.Equal(t, 2, register.fetches)
	assert.True(t, fileStore.HasText(base, sfs.FirstVersion()))
	assert.Equal(t, []string{"2009:400"}, register.invalidated, "only the forced refresh drops cached pages")
}

func TestBaseActWithoutTextIsResolved(t *testing.T) {
	register := &memoryRegister{
		registers: map[string]string{"2020:7": "<b>SFS-nummer:</b> 2020:7"},
		changes:   map[string][]string{"2020:8": {"2020:7"}},
	}
	resolver, fileStore, entries := newTestResolver(t, register)
	ctx := context.Background()
	base := sfs.MustParse("2020:7")

	outcome := resolver.Resolve(ctx, base)
	assert.Equal(t, StatusResolved, outcome.Status)
	assert.NoError(t, outcome.Err)

	page, err := fileStore.ReadRegister(base)
	require.NoError(t, err)
	assert.Equal(t, "<b>SFS-nummer:</b> 2020:7", string(page))

	text, err := fileStore.ReadText(base, nil)
	require.NoError(t, err)
	assert.True(t, sfs.HasNoResults(text), "the register's no-hits page stands in for the text")

	_, err = entries.LoadEntry(ctx, base)
	assert.NoError(t, err)

	amended := resolver.Resolve(ctx, sfs.MustParse("2020:8"))
	assert.Equal(t, StatusStale, amended.Status, "amendments wait for the text")
	assert.ErrorIs(t, amended.Err, sfs.ErrStale)

	register.documents = map[string]string{"2020:7": "<pre>Rubrik: Lag (2020:7)\nÄndring införd: t.o.m. SFS 2020:8\n</pre>"}
	amended = resolver.Resolve(ctx, sfs.MustParse("2020:8"))
	assert.Equal(t, StatusResolved, amended.Status)

	versions, err := fileStore.Versions(base)
	require.NoError(t, err)
	assert.Empty(t, versions, "the stand-in page is not archived")
}

func TestDownloadKeepsStoredTextWhenRegisterLosesIt(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2009:400": textUpdatedThrough2010_5},
		registers: map[string]string{"2009:400": ""},
	}
	resolver, fileStore, _ := newTestResolver(t, register)
	base := sfs.MustParse("2009:400")

	_, err := resolver.Download(context.Background(), base)
	require.NoError(t, err)

	delete(register.documents, "2009:400")
	written, err := resolver.Download(context.Background(), base)
	require.NoError(t, err)
	assert.False(t, written.Changed)

	text, err := fileStore.ReadText(base, nil)
	require.NoError(t, err)
	assert.Equal(t, textUpdatedThrough2010_5, string(text))
}

func TestDownloadUnknownActIsNotFound(t *testing.T) {
	resolver, fileStore, _ := newTestResolver(t, &memoryRegister{})
	base := sfs.MustParse("2020:7")

	_, err := resolver.Download(context.Background(), base)
	assert.ErrorIs(t, err, sfs.ErrNotFound)
	assert.False(t, fileStore.HasText(base, nil))
}

func TestResolveBase(t *testing.T) {
	register := &memoryRegister{
		registers: map[string]string{"1998:204": ""},
		changes:   map[string][]string{"2008:605": {"1962:700", "1988:870"}},
	}
	resolver, _, _ := newTestResolver(t, register)
	ctx := context.Background()

	baseActs, err := resolver.ResolveBase(ctx, sfs.MustParse("1998:204"))
	require.NoError(t, err)
	assert.Equal(t, []sfs.Identifier{sfs.MustParse("1998:204")}, baseActs)

	baseActs, err = resolver.ResolveBase(ctx, sfs.MustParse("2008:605"))
	require.NoError(t, err)
	assert.Len(t, baseActs, 2)

	_, err = resolver.ResolveBase(ctx, sfs.MustParse("2008:606"))
	assert.ErrorIs(t, err, sfs.ErrNotFound)

	_, err = resolver.ResolveBase(ctx, sfs.MustParse("N1992:31"))
	assert.ErrorIs(t, err, sfs.ErrNonCanonical)
}

func TestResolveOutcomes(t *testing.T) {
	register := &memoryRegister{
		documents: map[string]string{"2009:400": textUpdatedThrough2010_5, "2020:1": "<pre>Rubrik: Lag (2020:1)\n</pre>"},
		registers: map[string]string{"2009:400": "", "2020:1": ""},
		changes:   map[string][]string{"2012:30": {"2009:400"}},
		broken:    map[string]bool{"2020:9": true},
	}
	resolver, _, _ := newTestResolver(t, register)
	ctx := context.Background()

	testCases := []struct {
		identifier string
		want       Status
	}{
		{"2020:1", StatusResolved},
		{"2012:30", StatusStale},
		{"2020:2", StatusNotFound},
		{"N1992:31", StatusNonCanonical},
		{"2020:9", StatusError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.identifier, func(t *testing.T) {
			outcome := resolver.Resolve(ctx, sfs.MustParse(testCase.identifier))
			assert.Equal(t, testCase.want, outcome.Status)
			if testCase.want == StatusResolved {
				assert.NoError(t, outcome.Err)
			} else {
				assert.Error(t, outcome.Err)
			}
		})
	}
}
