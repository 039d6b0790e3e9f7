package annotation

import "strings"

// Kind distinguishes the two record variants.
type Kind string

const (
	KindEntity   Kind = "entity"
	KindRelation Kind = "relation"
)

// Record is one line of a brat annotation file. The only implementations are
// *Entity and *Relation.
type Record interface {
	Tag() string
	Label() string
	Kind() Kind
	sealed()
}

// Entity is a labeled span of the document text.
type Entity struct {
	tag   string
	label string
	start int
	end   int
	text  string
}

// NewEntity returns an Entity. Offsets are stored as given; the parser is
// responsible for checking 0 <= start <= end.
func NewEntity(tag, label string, start, end int, text string) *Entity {
	return &Entity{tag: tag, label: label, start: start, end: end, text: text}
}

func (e *Entity) Tag() string   { return e.tag }
func (e *Entity) Label() string { return e.label }
func (e *Entity) Kind() Kind    { return KindEntity }
func (e *Entity) Start() int    { return e.start }
func (e *Entity) End() int      { return e.end }

// Text is the literal span text from the third field of the entity line.
func (e *Entity) Text() string { return e.text }

func (e *Entity) String() string { return e.text }

func (*Entity) sealed() {}

// Relation is a directed, labeled link between two records. Arguments may be
// entities or other relations.
type Relation struct {
	tag     string
	label   string
	arg1Tag string
	arg2Tag string

	// Set by Set.Resolve. Non-owning: the records belong to the Set.
	arg1 Record
	arg2 Record
}

// NewRelation returns an unresolved Relation.
func NewRelation(tag, label, arg1Tag, arg2Tag string) *Relation {
	return &Relation{tag: tag, label: label, arg1Tag: arg1Tag, arg2Tag: arg2Tag}
}

func (r *Relation) Tag() string     { return r.tag }
func (r *Relation) Label() string   { return r.label }
func (r *Relation) Kind() Kind      { return KindRelation }
func (r *Relation) Arg1Tag() string { return r.arg1Tag }
func (r *Relation) Arg2Tag() string { return r.arg2Tag }

// Arg1 returns the resolved first argument, or nil before resolution.
func (r *Relation) Arg1() Record { return r.arg1 }

// Arg2 returns the resolved second argument, or nil before resolution.
func (r *Relation) Arg2() Record { return r.arg2 }

// Anonymous reports whether the relation came from a "*" line and carries a
// synthetic S<n> tag.
func (r *Relation) Anonymous() bool { return strings.HasPrefix(r.tag, SyntheticPrefix) }

func (r *Relation) String() string { return r.label }

func (*Relation) sealed() {}
