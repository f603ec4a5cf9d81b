package sfs

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DateLayout is the date format used throughout the register.
const DateLayout = "2006-01-02"

// NoResultsMarker is the fixed string the register prints when a search has
// no hits.
const NoResultsMarker = "<p>Sökningen gav ingen träff!</p>"

// HasNoResults reports whether a register page is the "no hits" answer.
func HasNoResults(raw []byte) bool {
	return strings.Contains(Decode(raw), NoResultsMarker)
}

// Decode converts a register page to UTF-8. The register serves ISO-8859-1;
// input that is already valid UTF-8 is returned unchanged.
func Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

var (
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reLineBreak  = regexp.MustCompile(`(?i)<(?:br|p|div|tr|hr)[^>]*/?>`)
	reMultiSpace = regexp.MustCompile(`[^\S\n]{2,}`)
)

// PlainText decodes a page, turns block-level tags into newlines, drops all
// other markup and unescapes entities.
func PlainText(raw []byte) string {
	content := Decode(raw)
	content = reLineBreak.ReplaceAllString(content, "\n")
	content = reTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = strings.ReplaceAll(content, "\u00a0", " ")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = reMultiSpace.ReplaceAllString(content, " ")
	return content
}

// Markers holds the metadata an SFST text page declares about itself.
type Markers struct {
	// Title is the act's heading, e.g. "Personuppgiftslag (1998:204)".
	Title string
	// UpdatedThrough is the last amendment incorporated in the text. Nil when
	// the text declares none, i.e. the act is unamended.
	UpdatedThrough *Identifier
	// RepealedBy is the act that repeals this one, when declared.
	RepealedBy *Identifier
	// ExpiresOn is the date the repeal takes effect, when declared.
	ExpiresOn *time.Time
	// EnactedOn is the issuance date (utfärdandedatum) of the act itself.
	EnactedOn *time.Time
}

var (
	reUpdatedThrough = regexp.MustCompile(`Ändring införd:\s*t\.o\.m\.\s*SFS\s*(\d{4}:\s?\d+)`)
	reRepealedBy     = regexp.MustCompile(`(?i)upphävts genom:\s*SFS\s*(\d{4}:\s?\d+)`)
	reExpiresOn      = regexp.MustCompile(`Författningen är upphävd/skall upphävas:\s*(\d{4}-\d{2}-\d{2})`)
	reEnactedOn      = regexp.MustCompile(`Utfärdad:\s*(\d{4}-\d{2}-\d{2})`)
	reTitle          = regexp.MustCompile(`Rubrik:[ \t]*([^\n]+)`)
)

// ReadMarkers scans a raw SFST page for the markers the pipeline relies on.
// Missing or malformed markers are left nil.
func ReadMarkers(raw []byte) Markers {
	text := PlainText(raw)

	var markers Markers
	if match := reTitle.FindStringSubmatch(text); match != nil {
		markers.Title = strings.TrimSpace(match[1])
	}
	markers.UpdatedThrough = findIdentifier(reUpdatedThrough, text)
	markers.RepealedBy = findIdentifier(reRepealedBy, text)
	markers.ExpiresOn = findDate(reExpiresOn, text)
	markers.EnactedOn = findDate(reEnactedOn, text)
	return markers
}

// UpdatedThroughOr returns the updated-through marker, or act when the text
// declares none.
func (markers Markers) UpdatedThroughOr(act Identifier) Identifier {
	if markers.UpdatedThrough == nil {
		return act
	}
	return *markers.UpdatedThrough
}

// Expired reports whether the declared repeal date lies before now.
func (markers Markers) Expired(now time.Time) bool {
	return markers.ExpiresOn != nil && markers.ExpiresOn.Before(now)
}

func findIdentifier(pattern *regexp.Regexp, text string) *Identifier {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	identifier, err := Parse(match[1])
	if err != nil {
		return nil
	}
	return &identifier
}

func findDate(pattern *regexp.Regexp, text string) *time.Time {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	parsed, err := time.Parse(DateLayout, match[1])
	if err != nil {
		return nil
	}
	return &parsed
}
