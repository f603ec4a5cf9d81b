// Package consolidate builds the consolidated form of a base act: its current
// text, the register of amendments that produced it, and the provenance
// linking the two.
package consolidate

import (
	"strings"
	"time"

	"github.com/coolbeans/lagen/pkg/rdf"
	"github.com/coolbeans/lagen/pkg/register"
	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/sfst"
)

// DefaultBaseURI prefixes every act and consolidation URI.
const DefaultBaseURI = "https://lagen.nu/"

// PlaceholderText is the body of a document whose act text could not be
// extracted.
const PlaceholderText = "Lagtext saknas"

// Register section headings.
const (
	HeadingChanges             = "Ändringar"
	HeadingChangesTransitional = "Ändringar och övergångsbestämmelser"
)

// IssuedMethod records which rule produced a document's issuance date.
type IssuedMethod string

const (
	// IssuedFromEnactment: a never-amended act, dated by its own enactment.
	IssuedFromEnactment IssuedMethod = "enactment"
	// IssuedFromLastAmendment: dated by the last amendment in the register.
	IssuedFromLastAmendment IssuedMethod = "last-amendment"
	// IssuedFromFetchDate: dated by when the text last changed locally.
	IssuedFromFetchDate IssuedMethod = "fetch-date"
)

// RegisterRow is one amendment (or the base act itself) in the register
// section of a consolidated document.
type RegisterRow struct {
	// ID is the terse chain label, "L2010:1842".
	ID         string         `json:"id"`
	URI        string         `json:"uri"`
	Identifier sfs.Identifier `json:"sfs"`
	Title      string         `json:"title,omitempty"`
	Issued     string         `json:"issued,omitempty"`
	InForce    string         `json:"in_force,omitempty"`
	Scope      string         `json:"scope,omitempty"`
	// Transitional is the transitional provision the amendment introduced.
	Transitional string `json:"transitional,omitempty"`
}

// Register is the register section appended to a consolidated body.
type Register struct {
	Heading string        `json:"heading"`
	Rows    []RegisterRow `json:"rows"`
}

// Document is a consolidated act.
type Document struct {
	URI            string         `json:"uri"`
	Basefile       sfs.Identifier `json:"basefile"`
	Identifier     string         `json:"identifier"`
	Title          string         `json:"title,omitempty"`
	Publisher      string         `json:"publisher"`
	UpdatedThrough sfs.Identifier `json:"updated_through"`

	Issued       time.Time    `json:"-"`
	IssuedDate   string       `json:"issued"`
	IssuedMethod IssuedMethod `json:"issued_method"`

	// TextUnavailable marks a document whose body is the placeholder.
	TextUnavailable bool `json:"text_unavailable,omitempty"`

	Body     []sfst.Block `json:"body"`
	Register Register     `json:"register"`

	// Graph is the provenance graph. It is written separately as Turtle.
	Graph *rdf.Graph `json:"-"`
}

// rowID rewrites a citation such as "SFS 2010:5" to the chain label "L2010:5".
func rowID(chainEntry register.ChainEntry) string {
	return strings.Replace(chainEntry.IdentifierText(), "SFS ", "L", 1)
}

// ActURI returns the bare URI of an act.
func ActURI(baseURI string, identifier sfs.Identifier) string {
	return baseURI + identifier.String()
}

// ConsolidatedURI returns the URI of an act consolidated through an amendment.
func ConsolidatedURI(baseURI string, identifier, updatedThrough sfs.Identifier) string {
	return ActURI(baseURI, identifier) + "/konsolidering/" + updatedThrough.String()
}

// RinfoURI returns the legacy rinfo URI of a consolidation issued on issued.
func RinfoURI(identifier sfs.Identifier, issued time.Time) string {
	return "http://rinfo.lagrummet.se/publ/sfs/" + identifier.String() + "/konsolidering/" + issued.Format(sfs.DateLayout)
}
