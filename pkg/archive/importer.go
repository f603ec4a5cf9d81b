// Package archive imports act texts from tarballs of a legacy download tree
// into the store.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/storage"
)

// Member naming under downloaded/sfst/<year>/. The sequence part may carry
// legacy suffix characters, which are stripped of '_' and '.' before parsing.
var (
	reCurrentMember  = regexp.MustCompile(`^downloaded/sfst/(\d+)/([\d_s.bih]+)\.html$`)
	reVersionMember  = regexp.MustCompile(`^downloaded/sfst/(\d+)/([\d_s.bih]+)-(\d+)-(\d+)\.html$`)
	reFirstMember    = regexp.MustCompile(`^downloaded/sfst/(\d+)/([\d_s.bih]+)-first-version\.html$`)
	reChecksumMember = regexp.MustCompile(`^downloaded/sfst/(\d+)/([\d_s.bih]+)-(\d+)-(\d+)-checksum-(\w+)\.html$`)
)

// Store is where imported texts are written.
type Store interface {
	WriteText(identifier sfs.Identifier, data []byte) (storage.TextWrite, error)
	WriteVersion(identifier sfs.Identifier, version *sfs.VersionTag, data []byte) (bool, error)
}

// Report counts what an import did with each archive member.
type Report struct {
	Current  int
	Archived int
	// Skipped counts checksum copies and versions already present.
	Skipped int
	// Failed counts members whose names or version tags could not be read.
	Failed int
}

// Format renders the report as a single summary line.
func (report Report) Format() string {
	return fmt.Sprintf("Extracted %d current versions and %d archived versions (skipped %d, failed %d)",
		report.Current, report.Archived, report.Skipped, report.Failed)
}

// Importer reads legacy download archives.
type Importer struct {
	store   Store
	entries storage.EntryStore
	logger  *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(importer *Importer) {
		if logger != nil {
			importer.logger = logger
		}
	}
}

// NewImporter creates an Importer. When entries is non-nil a document entry
// is recorded for every current text, dated by the member's modification
// time.
func NewImporter(store Store, entries storage.EntryStore, options ...Option) *Importer {
	importer := &Importer{
		store:   store,
		entries: entries,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(importer)
	}
	return importer
}

// Import reads a tar or tar.gz archive and stores every act text member.
func (importer *Importer) Import(ctx context.Context, archivePath string) (Report, error) {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer archiveFile.Close()

	return importer.ImportReader(ctx, archiveFile, archivePath)
}

// ImportReader is Import for an already open archive stream. source names
// the archive in document entries and log lines.
func (importer *Importer) ImportReader(ctx context.Context, reader io.Reader, source string) (Report, error) {
	var report Report

	archiveReader, err := decompress(reader)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", source, err)
	}
	tarReader := tar.NewReader(archiveReader)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, fmt.Errorf("tar read error in %s: %w", source, err)
		}
		if header.Typeflag != tar.TypeReg || !strings.HasPrefix(header.Name, "downloaded/sfst") {
			continue
		}

		if err := importer.importMember(ctx, tarReader, header, source, &report); err != nil {
			return report, err
		}
	}

	importer.logger.Info("archive imported", "source", source,
		"current", report.Current, "archived", report.Archived,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (importer *Importer) importMember(ctx context.Context, reader io.Reader, header *tar.Header, source string, report *Report) error {
	member, ok := parseMemberName(header.Name)
	if !ok {
		importer.logger.Warn("cannot parse archive member name", "member", header.Name)
		report.Failed++
		return nil
	}
	if member.checksum {
		report.Skipped++
		return nil
	}

	identifier, err := sfs.Parse(member.year + ":" + member.seq)
	if err != nil {
		importer.logger.Warn("archive member names no valid act", "member", header.Name, "error", err)
		report.Failed++
		return nil
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", header.Name, err)
	}

	if member.current {
		if _, err := importer.store.WriteText(identifier, data); err != nil {
			return err
		}
		report.Current++
		if importer.entries != nil {
			if _, err := storage.RecordFetch(ctx, importer.entries, identifier, source+"#"+header.Name, true, header.ModTime.UTC()); err != nil {
				return fmt.Errorf("failed to record entry of %s: %w", identifier, err)
			}
		}
		return nil
	}

	version, err := member.versionTag(identifier)
	if err != nil {
		importer.logger.Warn("archive member has an invalid version", "member", header.Name, "error", err)
		report.Failed++
		return nil
	}
	written, err := importer.store.WriteVersion(identifier, version, data)
	if err != nil {
		return err
	}
	if !written {
		report.Skipped++
		return nil
	}
	report.Archived++
	return nil
}

type memberName struct {
	year, seq     string
	current       bool
	firstVersion  bool
	checksum      bool
	versionYear   string
	versionNumber string
}

func parseMemberName(name string) (memberName, bool) {
	var member memberName
	switch {
	case matchInto(reCurrentMember, name, &member.year, &member.seq):
		member.current = true
	case matchInto(reVersionMember, name, &member.year, &member.seq, &member.versionYear, &member.versionNumber):
	case matchInto(reFirstMember, name, &member.year, &member.seq):
		member.firstVersion = true
	case matchInto(reChecksumMember, name, &member.year, &member.seq):
		member.checksum = true
	default:
		return member, false
	}
	member.seq = strings.NewReplacer("_", "", ".", "").Replace(member.seq)
	return member, true
}

func (member memberName) versionTag(act sfs.Identifier) (*sfs.VersionTag, error) {
	if member.firstVersion {
		return sfs.FirstVersion(), nil
	}
	version, err := sfs.Parse(member.versionYear + ":" + member.versionNumber)
	if err != nil {
		return nil, err
	}
	return sfs.NewVersionTag(act, version)
}

func matchInto(pattern *regexp.Regexp, text string, targets ...*string) bool {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	for index, target := range targets {
		*target = match[index+1]
	}
	return true
}

// decompress transparently unwraps gzip-compressed archives.
func decompress(reader io.Reader) (io.Reader, error) {
	buffered := bufio.NewReader(reader)
	magic, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return gzip.NewReader(buffered)
	}
	return buffered, nil
}
