// Package sparql builds graph-pattern queries from caller-supplied values.
// Values are never spliced in raw: metric names become escaped string
// literals and model identifiers must parse as an IRI or a prefixed name in
// the configured namespace.
package sparql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// RDFSNamespace is the rdf-schema namespace used for labels.
const RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"

var (
	prefixedName = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_\-]*)?:([A-Za-z0-9_](?:[A-Za-z0-9_\-.]*[A-Za-z0-9_\-])?)$`)
	localName    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*$`)
)

// ErrInvalidTerm is returned when a value cannot be used as a graph term.
var ErrInvalidTerm = eris.New("sparql: invalid term")

// Literal quotes s as a SPARQL string literal, escaping every character that
// could close the literal or change the query.
func Literal(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Term is a validated subject/object term, rendered either as <iri> or prefix:local.
type Term string

// Namespace binds the ontology prefix (e.g. "esg") to its IRI.
type Namespace struct {
	Prefix string
	IRI    string
}

// Term validates s as a term usable in subject position. Accepted forms are
// <iri>, a full IRI inside the namespace, and prefix:local where prefix is
// the namespace prefix.
func (ns Namespace) Term(s string) (Term, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", eris.Wrap(ErrInvalidTerm, "empty term")
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		iri := s[1 : len(s)-1]
		if !validIRI(iri) {
			return "", eris.Wrapf(ErrInvalidTerm, "malformed iri %q", s)
		}
		return Term(s), nil
	case ns.IRI != "" && strings.HasPrefix(s, ns.IRI):
		if !validIRI(s) {
			return "", eris.Wrapf(ErrInvalidTerm, "malformed iri %q", s)
		}
		return Term("<" + s + ">"), nil
	}

	m := prefixedName.FindStringSubmatch(s)
	if m == nil {
		return "", eris.Wrapf(ErrInvalidTerm, "malformed prefixed name %q", s)
	}
	if m[1] != ns.Prefix {
		return "", eris.Wrapf(ErrInvalidTerm, "unknown prefix %q in %q", m[1], s)
	}
	return Term(s), nil
}

// Expand returns the full IRI a term denotes.
func (ns Namespace) Expand(t Term) string {
	s := string(t)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return s[1 : len(s)-1]
	}
	if i := strings.Index(s, ":"); i >= 0 && s[:i] == ns.Prefix {
		return ns.IRI + s[i+1:]
	}
	return s
}

func (ns Namespace) prologue(withRDFS bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PREFIX %s: <%s>\n", ns.Prefix, ns.IRI)
	if withRDFS {
		fmt.Fprintf(&b, "PREFIX rdfs: <%s>\n", RDFSNamespace)
	}
	return b.String()
}

// DatasetsQuery selects every ?dataset linked to model by relation whose
// string form contains metric (case-sensitive, unanchored).
func (ns Namespace) DatasetsQuery(model Term, relation, metric string) (string, error) {
	if !localName.MatchString(relation) {
		return "", eris.Wrapf(ErrInvalidTerm, "malformed relation %q", relation)
	}
	return ns.prologue(false) +
		"SELECT ?dataset\nWHERE {\n" +
		fmt.Sprintf("  %s %s:%s ?dataset .\n", model, ns.Prefix, relation) +
		fmt.Sprintf("  FILTER(CONTAINS(STR(?dataset), %s))\n", Literal(metric)) +
		"}\n", nil
}

// ModelsForMetricQuery selects the models a metric is obtained with, plus
// their optional labels.
func (ns Namespace) ModelsForMetricQuery(metric Term) string {
	return ns.prologue(true) +
		"SELECT ?model ?modelLabel\nWHERE {\n" +
		fmt.Sprintf("  %s %s:ObtainUsing ?model .\n", metric, ns.Prefix) +
		fmt.Sprintf("  ?model a %s:model_SC3.0 .\n", ns.Prefix) +
		"  OPTIONAL { ?model rdfs:label ?modelLabel }\n" +
		"}\n"
}

func validIRI(iri string) bool {
	if iri == "" {
		return false
	}
	for _, r := range iri {
		if r <= 0x20 || r == 0x7f {
			return false
		}
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\':
			return false
		}
	}
	return true
}
