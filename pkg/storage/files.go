// Package storage keeps everything the pipeline downloads and produces on
// disk: raw act text by version, change-register pages, document entries and
// consolidated output.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coolbeans/lagen/pkg/sfs"
)

// OutputKind selects which consolidated artefact a path refers to.
type OutputKind string

const (
	// OutputDocument is the canonical JSON rendering of a consolidated act.
	OutputDocument OutputKind = "parsed"
	// OutputGraph is the Turtle serialization of its provenance graph.
	OutputGraph OutputKind = "distilled"
)

func (kind OutputKind) extension() string {
	if kind == OutputGraph {
		return ".ttl"
	}
	return ".json"
}

// TextWrite describes the effect of storing a new current text.
type TextWrite struct {
	// Changed is false when the stored text was already byte-identical.
	Changed bool
	// Archived is the version tag the superseded text was moved to, or nil
	// when there was no earlier text.
	Archived *sfs.VersionTag
}

// FileStore is the file-backed store for act text, register pages and output.
//
// Layout below the root directory:
//
//	downloaded/sfst/<year>/<seq>.html                current text
//	downloaded/sfst/<year>/<seq>-<year>-<seq>.html   version through an amendment
//	downloaded/sfst/<year>/<seq>-first-version.html  unamended original
//	register/sfsr/<year>/<seq>.html                  change register page
//	parsed/<year>/<seq>.json                         consolidated document
//	distilled/<year>/<seq>.ttl                       provenance graph
type FileStore struct {
	rootDir string
}

// NewFileStore creates a store rooted at rootDir, creating the directory if
// it does not exist.
func NewFileStore(rootDir string) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", rootDir, err)
	}
	return &FileStore{rootDir: rootDir}, nil
}

// Root returns the store's root directory.
func (fileStore *FileStore) Root() string {
	return fileStore.rootDir
}

// TextPath returns where the given version of an act's text is stored. A nil
// version is the current text.
func (fileStore *FileStore) TextPath(identifier sfs.Identifier, version *sfs.VersionTag) string {
	name := fileBase(identifier)
	switch {
	case version == nil:
	case version.FirstVersion:
		name += "-first-version"
	default:
		name += fmt.Sprintf("-%d-%s", version.Through.Year, version.Through.SeqText())
	}
	return filepath.Join(fileStore.rootDir, "downloaded", "sfst", strconv.Itoa(identifier.Year), name+".html")
}

// HasText reports whether the given version of an act's text is stored.
func (fileStore *FileStore) HasText(identifier sfs.Identifier, version *sfs.VersionTag) bool {
	_, err := os.Stat(fileStore.TextPath(identifier, version))
	return err == nil
}

// ReadText returns the stored text. A missing text is an *sfs.NotFoundError.
func (fileStore *FileStore) ReadText(identifier sfs.Identifier, version *sfs.VersionTag) ([]byte, error) {
	data, err := os.ReadFile(fileStore.TextPath(identifier, version))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read text of %s: %w", identifier, err)
	}
	return data, nil
}

// WriteText replaces the current text of an act. When the previous current
// text differs it is first archived under the version named by its own
// "updated through" marker, or as the first version when it declares none.
// Archived versions that already exist are left untouched. A previous text
// that is the register's "no hits" page is replaced without archiving.
func (fileStore *FileStore) WriteText(identifier sfs.Identifier, data []byte) (TextWrite, error) {
	var result TextWrite

	previous, err := os.ReadFile(fileStore.TextPath(identifier, nil))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return result, fmt.Errorf("failed to read current text of %s: %w", identifier, err)
	case bytes.Equal(previous, data):
		return result, nil
	case sfs.HasNoResults(previous):
	default:
		markers := sfs.ReadMarkers(previous)
		version := sfs.VersionFor(identifier, markers.UpdatedThroughOr(identifier))
		if _, err := fileStore.WriteVersion(identifier, version, previous); err != nil {
			return result, err
		}
		result.Archived = version
	}

	if err := WriteFileAtomic(fileStore.TextPath(identifier, nil), data); err != nil {
		return result, fmt.Errorf("failed to write text of %s: %w", identifier, err)
	}
	result.Changed = true
	return result, nil
}

// WriteVersion stores an archived version. It reports false without writing
// when that version already exists.
func (fileStore *FileStore) WriteVersion(identifier sfs.Identifier, version *sfs.VersionTag, data []byte) (bool, error) {
	if version == nil {
		return false, fmt.Errorf("archived text of %s needs a version tag", identifier)
	}
	if fileStore.HasText(identifier, version) {
		return false, nil
	}
	if err := WriteFileAtomic(fileStore.TextPath(identifier, version), data); err != nil {
		return false, fmt.Errorf("failed to archive version %s of %s: %w", version, identifier, err)
	}
	return true, nil
}

var reVersionFile = regexp.MustCompile(`^(.+?)-(?:(\d+)-(\d+)|first-version)\.html$`)

// Versions lists the archived versions of an act, oldest first, with the
// first version leading.
func (fileStore *FileStore) Versions(identifier sfs.Identifier) ([]*sfs.VersionTag, error) {
	directory := filepath.Dir(fileStore.TextPath(identifier, nil))
	dirEntries, err := os.ReadDir(directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", identifier, err)
	}

	base := fileBase(identifier)
	var versions []*sfs.VersionTag
	for _, dirEntry := range dirEntries {
		match := reVersionFile.FindStringSubmatch(dirEntry.Name())
		if match == nil || match[1] != base {
			continue
		}
		if match[2] == "" {
			versions = append(versions, sfs.FirstVersion())
			continue
		}
		through, err := sfs.Parse(match[2] + ":" + match[3])
		if err != nil {
			continue
		}
		versions = append(versions, &sfs.VersionTag{Through: through})
	}

	sort.SliceStable(versions, func(left, right int) bool {
		if versions[left].FirstVersion != versions[right].FirstVersion {
			return versions[left].FirstVersion
		}
		return versions[left].Through.Before(versions[right].Through)
	})
	return versions, nil
}

var reCurrentFile = regexp.MustCompile(`^(\d+)([^-]*)\.html$`)

// ListTexts returns every act with a current text, in identifier order.
func (fileStore *FileStore) ListTexts() ([]sfs.Identifier, error) {
	textRoot := filepath.Join(fileStore.rootDir, "downloaded", "sfst")
	var identifiers []sfs.Identifier

	err := filepath.WalkDir(textRoot, func(path string, dirEntry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if dirEntry.IsDir() {
			return nil
		}
		match := reCurrentFile.FindStringSubmatch(dirEntry.Name())
		if match == nil {
			return nil
		}
		identifier, err := sfs.Parse(filepath.Base(filepath.Dir(path)) + ":" + match[1] + strings.ReplaceAll(match[2], "_", " "))
		if err != nil {
			return nil
		}
		identifiers = append(identifiers, identifier)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stored texts: %w", err)
	}

	sort.Slice(identifiers, func(left, right int) bool {
		return identifiers[left].Before(identifiers[right])
	})
	return identifiers, nil
}

// RegisterPath returns where the change register page of a base act is stored.
func (fileStore *FileStore) RegisterPath(identifier sfs.Identifier) string {
	return filepath.Join(fileStore.rootDir, "register", "sfsr", strconv.Itoa(identifier.Year), fileBase(identifier)+".html")
}

// ReadRegister returns the stored change register page. A missing page is an
// *sfs.NotFoundError.
func (fileStore *FileStore) ReadRegister(identifier sfs.Identifier) ([]byte, error) {
	data, err := os.ReadFile(fileStore.RegisterPath(identifier))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &sfs.NotFoundError{Identifier: identifier}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read register of %s: %w", identifier, err)
	}
	return data, nil
}

// WriteRegister replaces the stored change register page.
func (fileStore *FileStore) WriteRegister(identifier sfs.Identifier, data []byte) error {
	if err := WriteFileAtomic(fileStore.RegisterPath(identifier), data); err != nil {
		return fmt.Errorf("failed to write register of %s: %w", identifier, err)
	}
	return nil
}

// OutputPath returns where an output artefact for identifier is written.
func (fileStore *FileStore) OutputPath(identifier sfs.Identifier, kind OutputKind) string {
	return filepath.Join(fileStore.rootDir, string(kind), strconv.Itoa(identifier.Year), fileBase(identifier)+kind.extension())
}

// WriteOutput replaces an output artefact.
func (fileStore *FileStore) WriteOutput(identifier sfs.Identifier, kind OutputKind, data []byte) error {
	if err := WriteFileAtomic(fileStore.OutputPath(identifier, kind), data); err != nil {
		return fmt.Errorf("failed to write %s output of %s: %w", kind, identifier, err)
	}
	return nil
}

// fileBase is the per-year file name stem of an identifier: its sequence
// number as written followed by any suffix, with spaces replaced by
// underscores.
func fileBase(identifier sfs.Identifier) string {
	return identifier.SeqText() + strings.ReplaceAll(identifier.Suffix, " ", "_")
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	return os.Rename(temporary.Name(), path)
}
