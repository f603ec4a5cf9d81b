// Package sfs models identifiers, version tags and errors for acts published
// in the Swedish Code of Statutes (Svensk författningssamling, SFS), together
// with the few markers the pipeline reads out of raw act text.
package sfs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AuthorityForeign is the identifier prefix used when another agency publishes
// in the SFS namespace (e.g. "N1992:31"). Such identifiers are not regular SFS
// numbers and are never consolidated.
const AuthorityForeign = "N"

// Identifier is an SFS number: a (year, sequence) pair with an optional
// trailing suffix. Identifiers are values and are never mutated. They encode
// as their string form in JSON and YAML.
type Identifier struct {
	// Authority is empty for regular SFS numbers.
	Authority string
	Year      int
	Seq       int
	// Suffix is any text following the sequence digits, kept verbatim.
	Suffix string

	// digits holds the sequence as written when it differs from the plain
	// decimal form of Seq, as with leading zeros ("1736:0123").
	digits string
}

var identifierPattern = regexp.MustCompile(`^([A-Z]?)(\d{4}):\s?(\d+)(.*)$`)

// Parse reads an identifier in "YYYY:NNN[suffix]" form. A single space after
// the colon is tolerated, since markers in raw act text are sometimes written
// that way. Leading zeros in the sequence number are kept for String but do
// not affect ordering.
func Parse(text string) (Identifier, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "SFS ")
	match := identifierPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return Identifier{}, fmt.Errorf("invalid SFS identifier %q", text)
	}

	year, err := strconv.Atoi(match[2])
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid year in SFS identifier %q: %w", text, err)
	}
	seq, err := strconv.Atoi(match[3])
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid sequence in SFS identifier %q: %w", text, err)
	}

	identifier := Identifier{
		Authority: match[1],
		Year:      year,
		Seq:       seq,
		Suffix:    match[4],
	}
	if match[3] != strconv.Itoa(seq) {
		identifier.digits = match[3]
	}
	return identifier, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// constants and tests.
func MustParse(text string) Identifier {
	identifier, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return identifier
}

// New returns the canonical identifier year:seq.
func New(year, seq int) Identifier {
	return Identifier{Year: year, Seq: seq}
}

// String serializes the identifier as "YYYY:NNN[suffix]".
func (identifier Identifier) String() string {
	return fmt.Sprintf("%s%d:%s%s", identifier.Authority, identifier.Year, identifier.SeqText(), identifier.Suffix)
}

// SeqText returns the sequence number as it was written.
func (identifier Identifier) SeqText() string {
	if identifier.digits != "" {
		return identifier.digits
	}
	return strconv.Itoa(identifier.Seq)
}

// IsZero reports whether the identifier is the zero value.
func (identifier Identifier) IsZero() bool {
	return identifier == Identifier{}
}

// IsCanonical reports whether the identifier belongs to the regular SFS
// numbering authority.
func (identifier Identifier) IsCanonical() bool {
	return identifier.Authority == ""
}

// Next returns the identifier with the following sequence number in the same
// year. The suffix is dropped.
func (identifier Identifier) Next() Identifier {
	return Identifier{Authority: identifier.Authority, Year: identifier.Year, Seq: identifier.Seq + 1}
}

// Compare orders identifiers by year, then numeric sequence, then suffix. It
// returns -1, 0 or +1. Spellings of the same number ("2010:05" and "2010:5")
// sort by their written form.
func (identifier Identifier) Compare(other Identifier) int {
	switch {
	case identifier.Year != other.Year:
		return compareInts(identifier.Year, other.Year)
	case identifier.Seq != other.Seq:
		return compareInts(identifier.Seq, other.Seq)
	case identifier.Suffix != other.Suffix:
		return strings.Compare(identifier.Suffix, other.Suffix)
	default:
		return strings.Compare(identifier.SeqText(), other.SeqText())
	}
}

// Before reports whether identifier sorts strictly before other.
func (identifier Identifier) Before(other Identifier) bool {
	return identifier.Compare(other) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (identifier Identifier) MarshalText() ([]byte, error) {
	return []byte(identifier.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (identifier *Identifier) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*identifier = parsed
	return nil
}

func compareInts(left, right int) int {
	if left < right {
		return -1
	}
	if left > right {
		return 1
	}
	return 0
}
