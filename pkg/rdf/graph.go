// Package rdf holds a small in-memory RDF graph and its Turtle serialization.
package rdf

import (
	"fmt"
	"time"
)

// TermKind distinguishes IRIs from literals.
type TermKind int

const (
	KindIRI TermKind = iota
	KindLiteral
)

// Term is an RDF node: an IRI or a literal with an optional datatype IRI.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
}

// IRI returns an IRI term.
func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

// Literal returns a plain string literal.
func Literal(value string) Term {
	return Term{Kind: KindLiteral, Value: value}
}

// Date returns an xsd:date literal.
func Date(value time.Time) Term {
	return Term{Kind: KindLiteral, Value: value.Format("2006-01-02"), Datatype: XSDDate}
}

// DateTime returns an xsd:dateTime literal in UTC.
func DateTime(value time.Time) Term {
	return Term{Kind: KindLiteral, Value: value.UTC().Format(time.RFC3339), Datatype: XSDDateTime}
}

// IsIRI reports whether the term is an IRI.
func (term Term) IsIRI() bool {
	return term.Kind == KindIRI
}

// String returns the N-Triples form of the term.
func (term Term) String() string {
	if term.IsIRI() {
		return "<" + term.Value + ">"
	}
	if term.Datatype != "" {
		return fmt.Sprintf("%q^^<%s>", term.Value, term.Datatype)
	}
	return fmt.Sprintf("%q", term.Value)
}

// Triple is an RDF statement. Subjects and predicates are always IRIs.
type Triple struct {
	Subject   string
	Predicate string
	Object    Term
}

// NTriples returns the triple in N-Triples format.
func (triple Triple) NTriples() string {
	return fmt.Sprintf("<%s> <%s> %s .", triple.Subject, triple.Predicate, triple.Object)
}

// Graph is an insertion-ordered set of triples. It is not safe for
// concurrent use; each build owns its own graph.
type Graph struct {
	triples []Triple
	seen    map[Triple]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{seen: make(map[Triple]struct{})}
}

// Add inserts a triple. Duplicates are ignored.
func (graph *Graph) Add(subject, predicate string, object Term) {
	triple := Triple{Subject: subject, Predicate: predicate, Object: object}
	if _, exists := graph.seen[triple]; exists {
		return
	}
	graph.seen[triple] = struct{}{}
	graph.triples = append(graph.triples, triple)
}

// All returns every triple in insertion order.
func (graph *Graph) All() []Triple {
	result := make([]Triple, len(graph.triples))
	copy(result, graph.triples)
	return result
}

// Objects returns the objects of all triples with the given subject and
// predicate, in insertion order.
func (graph *Graph) Objects(subject, predicate string) []Term {
	var objects []Term
	for _, triple := range graph.triples {
		if triple.Subject == subject && triple.Predicate == predicate {
			objects = append(objects, triple.Object)
		}
	}
	return objects
}

// Len returns the number of triples.
func (graph *Graph) Len() int {
	return len(graph.triples)
}
