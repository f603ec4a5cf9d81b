package register

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/coolbeans/lagen/pkg/sfs"
)

// Publisher is the publishing body recorded for every SFS act.
const Publisher = "Regeringskansliet"

// ChainEntry is one row of a base act's change register: the base act itself
// or one of the acts amending it.
type ChainEntry struct {
	Identifier sfs.Identifier
	Title      string
	// Issued is the issuance date, when the register declares one.
	Issued *time.Time
	// InForce is the date the act or amendment took effect.
	InForce *time.Time
	// Scope lists the provisions the amendment touches, e.g. "ändr. 3, 5 §§".
	Scope string
}

// IdentifierText returns the identifier as written in citations, "SFS 2010:5".
func (chainEntry ChainEntry) IdentifierText() string {
	return "SFS " + chainEntry.Identifier.String()
}

var (
	reRowSeparator  = regexp.MustCompile(`(?i)<hr[^>]*>`)
	reRowIdentifier = regexp.MustCompile(`SFS-nummer:[ \t]*([^\n]+)`)
	reRowTitle      = regexp.MustCompile(`Rubrik:[ \t]*([^\n]+)`)
	reRowIssued     = regexp.MustCompile(`Utfärdad:[ \t]*([^\n]+)`)
	reRowInForce    = regexp.MustCompile(`Ikraft:[ \t]*([^\n]+)`)
	reRowScope      = regexp.MustCompile(`Omfattning:[ \t]*([^\n]+)`)
	reRowDate       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// ParseChangeRegister splits an SFSR page into chain rows, in page order.
// Sections without an SFS-nummer field (page headers, navigation) are ignored.
// Rows whose fields cannot be read are dropped and reported in the error list.
func ParseChangeRegister(page []byte) ([]ChainEntry, []error) {
	var (
		entries   []ChainEntry
		rowErrors []error
	)

	for index, section := range reRowSeparator.Split(sfs.Decode(page), -1) {
		text := sfs.PlainText([]byte(section))
		identifierMatch := reRowIdentifier.FindStringSubmatch(text)
		if identifierMatch == nil {
			continue
		}

		chainEntry, err := parseRow(text, identifierMatch[1])
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("register row %d: %w", index, err))
			continue
		}
		entries = append(entries, chainEntry)
	}

	return entries, rowErrors
}

func parseRow(text, identifierText string) (ChainEntry, error) {
	identifier, err := sfs.Parse(identifierText)
	if err != nil {
		return ChainEntry{}, err
	}

	chainEntry := ChainEntry{
		Identifier: identifier,
		Title:      fieldValue(reRowTitle, text),
		Scope:      fieldValue(reRowScope, text),
	}

	if chainEntry.Issued, err = fieldDate(reRowIssued, text); err != nil {
		return ChainEntry{}, fmt.Errorf("%s: issued: %w", identifier, err)
	}
	if chainEntry.InForce, err = fieldDate(reRowInForce, text); err != nil {
		return ChainEntry{}, fmt.Errorf("%s: in force: %w", identifier, err)
	}
	return chainEntry, nil
}

func fieldValue(pattern *regexp.Regexp, text string) string {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// fieldDate reads the first date of a field. An absent or empty field is not
// an error; a field with text but no date is.
func fieldDate(pattern *regexp.Regexp, text string) (*time.Time, error) {
	value := fieldValue(pattern, text)
	if value == "" {
		return nil, nil
	}
	dateText := reRowDate.FindString(value)
	if dateText == "" {
		return nil, fmt.Errorf("no date in %q", value)
	}
	parsed, err := time.Parse(sfs.DateLayout, dateText)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
