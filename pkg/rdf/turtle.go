package rdf

import (
	"fmt"
	"sort"
	"strings"
)

// PrefixMapping associates a short prefix label with its full namespace IRI.
type PrefixMapping struct {
	Prefix    string
	Namespace string
}

// DefaultPrefixes are declared at the top of every serialized graph.
var DefaultPrefixes = []PrefixMapping{
	{Prefix: "dcterms", Namespace: NamespaceDCTerms},
	{Prefix: "owl", Namespace: NamespaceOWL},
	{Prefix: "prov", Namespace: NamespacePROV},
	{Prefix: "rdf", Namespace: NamespaceRDF},
	{Prefix: "rinfoex", Namespace: NamespaceRINFOEX},
	{Prefix: "rpubl", Namespace: NamespaceRPUBL},
	{Prefix: "xsd", Namespace: NamespaceXSD},
}

// TurtleSerializer converts a Graph into Turtle.
type TurtleSerializer struct {
	prefixMappings []PrefixMapping
}

// TurtleOption is a functional option for configuring the TurtleSerializer.
type TurtleOption func(*TurtleSerializer)

// WithPrefix adds a prefix mapping.
func WithPrefix(prefix, namespace string) TurtleOption {
	return func(serializer *TurtleSerializer) {
		serializer.prefixMappings = append(serializer.prefixMappings, PrefixMapping{Prefix: prefix, Namespace: namespace})
	}
}

// NewTurtleSerializer creates a serializer with DefaultPrefixes.
func NewTurtleSerializer(options ...TurtleOption) *TurtleSerializer {
	serializer := &TurtleSerializer{
		prefixMappings: append([]PrefixMapping(nil), DefaultPrefixes...),
	}
	for _, option := range options {
		option(serializer)
	}
	sort.Slice(serializer.prefixMappings, func(left, right int) bool {
		return serializer.prefixMappings[left].Prefix < serializer.prefixMappings[right].Prefix
	})
	return serializer
}

// Serialize renders the graph. Subjects appear in order of first use, with
// rdf:type first among their predicates and the rest sorted, so the output of
// a given graph is always byte-identical.
func (serializer *TurtleSerializer) Serialize(graph *Graph) string {
	var builder strings.Builder

	for _, mapping := range serializer.prefixMappings {
		fmt.Fprintf(&builder, "@prefix %s: <%s> .\n", mapping.Prefix, mapping.Namespace)
	}
	if len(serializer.prefixMappings) > 0 {
		builder.WriteString("\n")
	}

	subjects, groups := groupBySubject(graph)
	for subjectIndex, subject := range subjects {
		if subjectIndex > 0 {
			builder.WriteString("\n")
		}
		serializer.writeSubjectGroup(&builder, subject, groups[subject])
	}
	return builder.String()
}

func groupBySubject(graph *Graph) ([]string, map[string]map[string][]Term) {
	var subjects []string
	groups := make(map[string]map[string][]Term)
	for _, triple := range graph.All() {
		predicates, exists := groups[triple.Subject]
		if !exists {
			predicates = make(map[string][]Term)
			groups[triple.Subject] = predicates
			subjects = append(subjects, triple.Subject)
		}
		predicates[triple.Predicate] = append(predicates[triple.Predicate], triple.Object)
	}
	return subjects, groups
}

func (serializer *TurtleSerializer) writeSubjectGroup(builder *strings.Builder, subject string, predicateObjects map[string][]Term) {
	builder.WriteString(serializer.formatIRI(subject))

	for predicateIndex, predicate := range sortPredicatesTypeFirst(predicateObjects) {
		if predicateIndex == 0 {
			builder.WriteString(" ")
		} else {
			builder.WriteString(" ;\n    ")
		}
		if predicate == RDFType {
			builder.WriteString("a")
		} else {
			builder.WriteString(serializer.formatIRI(predicate))
		}

		objects := predicateObjects[predicate]
		formatted := make([]string, len(objects))
		for objectIndex, object := range objects {
			formatted[objectIndex] = serializer.formatTerm(object)
		}
		sort.Strings(formatted)
		for objectIndex, object := range formatted {
			if objectIndex > 0 {
				builder.WriteString(" ,\n        ")
			} else {
				builder.WriteString(" ")
			}
			builder.WriteString(object)
		}
	}
	builder.WriteString(" .\n")
}

func (serializer *TurtleSerializer) formatTerm(term Term) string {
	if term.IsIRI() {
		return serializer.formatIRI(term.Value)
	}
	literal := formatLiteral(term.Value)
	if term.Datatype != "" {
		literal += "^^" + serializer.formatIRI(term.Datatype)
	}
	return literal
}

// formatIRI returns the prefixed form of iri when a namespace matches,
// otherwise the bracketed IRI.
func (serializer *TurtleSerializer) formatIRI(iri string) string {
	bestPrefix, bestNamespace := "", ""
	for _, mapping := range serializer.prefixMappings {
		if strings.HasPrefix(iri, mapping.Namespace) && len(mapping.Namespace) > len(bestNamespace) &&
			isValidLocalName(iri[len(mapping.Namespace):]) {
			bestPrefix, bestNamespace = mapping.Prefix, mapping.Namespace
		}
	}
	if bestNamespace != "" {
		return bestPrefix + ":" + iri[len(bestNamespace):]
	}
	return "<" + escapeIRI(iri) + ">"
}

func sortPredicatesTypeFirst(predicateObjects map[string][]Term) []string {
	predicates := make([]string, 0, len(predicateObjects))
	hasType := false
	for predicate := range predicateObjects {
		if predicate == RDFType {
			hasType = true
			continue
		}
		predicates = append(predicates, predicate)
	}
	sort.Strings(predicates)
	if hasType {
		predicates = append([]string{RDFType}, predicates...)
	}
	return predicates
}

// isValidLocalName accepts letters, digits, '_' and '-'. Anything else is
// written as a full IRI.
func isValidLocalName(localName string) bool {
	if localName == "" {
		return false
	}
	for _, char := range localName {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9', char == '_', char == '-':
		default:
			return false
		}
	}
	return true
}

// formatLiteral wraps a string value in Turtle-compliant double quotes.
func formatLiteral(value string) string {
	var builder strings.Builder
	builder.Grow(len(value) + 2)
	builder.WriteByte('"')
	for _, char := range value {
		switch char {
		case '\\':
			builder.WriteString(`\\`)
		case '"':
			builder.WriteString(`\"`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		default:
			builder.WriteRune(char)
		}
	}
	builder.WriteByte('"')
	return builder.String()
}

// escapeIRI escapes characters not allowed in IRIs within angle brackets.
func escapeIRI(iri string) string {
	replacer := strings.NewReplacer(
		"<", `\u003C`,
		">", `\u003E`,
		`"`, `\u0022`,
		" ", `\u0020`,
		"{", `\u007B`,
		"}", `\u007D`,
	)
	return replacer.Replace(iri)
}
