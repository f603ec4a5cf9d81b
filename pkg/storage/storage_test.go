package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/lagen/pkg/sfs"
)

const unamendedText = "<pre>Rubrik: Lag (2009:400)\nUtfärdad: 2009-05-28\n</pre>"
const amendedText = "<pre>Rubrik: Lag (2009:400)\nÄndring införd: t.o.m. SFS 2010:1200\n</pre>"
const reamendedText = "<pre>Rubrik: Lag (2009:400)\nÄndring införd: t.o.m. SFS 2012:30\n</pre>"

func TestWriteTextArchivesSupersededVersions(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	act := sfs.MustParse("2009:400")

	result, err := fileStore.WriteText(act, []byte(unamendedText))
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Nil(t, result.Archived)

	result, err = fileStore.WriteText(act, []byte(amendedText))
	require.NoError(t, err)
	require.NotNil(t, result.Archived)
	assert.True(t, result.Archived.FirstVersion)

	result, err = fileStore.WriteText(act, []byte(reamendedText))
	require.NoError(t, err)
	require.NotNil(t, result.Archived)
	assert.Equal(t, sfs.MustParse("2010:1200"), result.Archived.Through)

	current, err := fileStore.ReadText(act, nil)
	require.NoError(t, err)
	assert.Equal(t, reamendedText, string(current))

	first, err := fileStore.ReadText(act, sfs.FirstVersion())
	require.NoError(t, err)
	assert.Equal(t, unamendedText, string(first))

	versions, err := fileStore.Versions(act)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].FirstVersion)
	assert.Equal(t, "2010:1200", versions[1].String())
}

func TestWriteTextUnchanged(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	act := sfs.MustParse("2009:400")

	_, err = fileStore.WriteText(act, []byte(amendedText))
	require.NoError(t, err)
	result, err := fileStore.WriteText(act, []byte(amendedText))
	require.NoError(t, err)
	assert.False(t, result.Changed)

	versions, err := fileStore.Versions(act)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestArchivedVersionsAreNeverRewritten(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	act := sfs.MustParse("2009:400")
	version := &sfs.VersionTag{Through: sfs.MustParse("2010:1200")}

	written, err := fileStore.WriteVersion(act, version, []byte("original"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = fileStore.WriteVersion(act, version, []byte("replacement"))
	require.NoError(t, err)
	assert.False(t, written)

	data, err := fileStore.ReadText(act, version)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestReadMissingTextIsNotFound(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fileStore.ReadText(sfs.MustParse("1999:1"), nil)
	assert.ErrorIs(t, err, sfs.ErrNotFound)
	_, err = fileStore.ReadRegister(sfs.MustParse("1999:1"))
	assert.ErrorIs(t, err, sfs.ErrNotFound)
}

func TestPathLayout(t *testing.T) {
	rootDir := t.TempDir()
	fileStore, err := NewFileStore(rootDir)
	require.NoError(t, err)
	act := sfs.MustParse("1998:204")

	assert.Equal(t, filepath.Join(rootDir, "downloaded/sfst/1998/204.html"), fileStore.TextPath(act, nil))
	assert.Equal(t, filepath.Join(rootDir, "downloaded/sfst/1998/204-first-version.html"), fileStore.TextPath(act, sfs.FirstVersion()))
	assert.Equal(t, filepath.Join(rootDir, "downloaded/sfst/1998/204-2006-398.html"),
		fileStore.TextPath(act, &sfs.VersionTag{Through: sfs.MustParse("2006:398")}))
	assert.Equal(t, filepath.Join(rootDir, "register/sfsr/1998/204.html"), fileStore.RegisterPath(act))
	assert.Equal(t, filepath.Join(rootDir, "parsed/1998/204.json"), fileStore.OutputPath(act, OutputDocument))
	assert.Equal(t, filepath.Join(rootDir, "distilled/1998/204.ttl"), fileStore.OutputPath(act, OutputGraph))

	padded := sfs.MustParse("1736:0123 2")
	assert.Equal(t, filepath.Join(rootDir, "downloaded/sfst/1736/0123_2.html"), fileStore.TextPath(padded, nil))
	assert.Equal(t, filepath.Join(rootDir, "register/sfsr/1736/0123_2.html"), fileStore.RegisterPath(padded))
}

func TestListTexts(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	identifiers, err := fileStore.ListTexts()
	require.NoError(t, err)
	assert.Empty(t, identifiers)

	for _, text := range []string{"2010:5", "1998:204", "2009:400", "1736:0123 2"} {
		_, err := fileStore.WriteText(sfs.MustParse(text), []byte(text))
		require.NoError(t, err)
	}
	_, err = fileStore.WriteVersion(sfs.MustParse("1998:204"), sfs.FirstVersion(), []byte("old"))
	require.NoError(t, err)

	identifiers, err = fileStore.ListTexts()
	require.NoError(t, err)
	assert.Equal(t, []sfs.Identifier{
		sfs.MustParse("1736:0123 2"),
		sfs.MustParse("1998:204"),
		sfs.MustParse("2009:400"),
		sfs.MustParse("2010:5"),
	}, identifiers)
}

func TestWriteOutputReplaces(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	act := sfs.MustParse("1998:204")

	require.NoError(t, fileStore.WriteOutput(act, OutputDocument, []byte("one")))
	require.NoError(t, fileStore.WriteOutput(act, OutputDocument, []byte("two")))

	data, err := os.ReadFile(fileStore.OutputPath(act, OutputDocument))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func entryStores(t *testing.T) map[string]EntryStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqliteStore, err := NewSQLiteEntryStore(db)
	require.NoError(t, err)

	return map[string]EntryStore{
		"file":   NewFileEntryStore(t.TempDir()),
		"sqlite": sqliteStore,
	}
}

func TestEntryStores(t *testing.T) {
	for name, entries := range entryStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			act := sfs.MustParse("1998:204")

			_, err := entries.LoadEntry(ctx, act)
			require.ErrorIs(t, err, ErrNoEntry)

			firstFetch := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
			entry, err := RecordFetch(ctx, entries, act, "http://example.org/1998:204", false, firstFetch)
			require.NoError(t, err)
			assert.True(t, entry.OrigUpdated.Equal(firstFetch))

			secondFetch := firstFetch.Add(48 * time.Hour)
			_, err = RecordFetch(ctx, entries, act, "http://example.org/1998:204", false, secondFetch)
			require.NoError(t, err)

			loaded, err := entries.LoadEntry(ctx, act)
			require.NoError(t, err)
			assert.Equal(t, act, loaded.Identifier)
			assert.Equal(t, "http://example.org/1998:204", loaded.URL)
			assert.True(t, loaded.OrigUpdated.Equal(firstFetch))
			assert.True(t, loaded.OrigChecked.Equal(secondFetch))

			thirdFetch := secondFetch.Add(time.Hour)
			_, err = RecordFetch(ctx, entries, act, "http://example.org/1998:204", true, thirdFetch)
			require.NoError(t, err)
			loaded, err = entries.LoadEntry(ctx, act)
			require.NoError(t, err)
			assert.True(t, loaded.OrigUpdated.Equal(thirdFetch))
		})
	}
}
