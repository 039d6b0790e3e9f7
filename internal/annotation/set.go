package annotation

import (
	"slices"

	"github.com/dgallion1/bratgest/internal/apperr"
)

// Set maps tags to records and remembers insertion order so iteration and
// error reporting are deterministic.
type Set struct {
	order []string
	byTag map[string]Record
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{byTag: make(map[string]Record)}
}

// Add inserts a record. A tag already present is a structural error.
func (s *Set) Add(r Record) error {
	return s.add(0, r)
}

func (s *Set) add(line int, r Record) error {
	if _, exists := s.byTag[r.Tag()]; exists {
		return apperr.Structural(line, r.Tag(), "duplicate tag")
	}
	s.byTag[r.Tag()] = r
	s.order = append(s.order, r.Tag())
	return nil
}

// Resolve links every relation to its argument records. Tags are looked up in
// s first and then in fallback, which may be nil. A missing argument is a
// structural error.
func (s *Set) Resolve(fallback *Set) error {
	lookup := func(tag string) (Record, bool) {
		if r, ok := s.byTag[tag]; ok {
			return r, true
		}
		if fallback != nil {
			r, ok := fallback.byTag[tag]
			return r, ok
		}
		return nil, false
	}
	for _, tag := range s.order {
		rel, ok := s.byTag[tag].(*Relation)
		if !ok {
			continue
		}
		arg1, ok := lookup(rel.arg1Tag)
		if !ok {
			return apperr.Structural(0, rel.tag, "unknown Arg1 tag %s", rel.arg1Tag)
		}
		arg2, ok := lookup(rel.arg2Tag)
		if !ok {
			return apperr.Structural(0, rel.tag, "unknown Arg2 tag %s", rel.arg2Tag)
		}
		rel.arg1, rel.arg2 = arg1, arg2
	}
	return nil
}

// Len returns the number of records.
func (s *Set) Len() int { return len(s.order) }

// Tags returns all tags in insertion order.
func (s *Set) Tags() []string { return slices.Clone(s.order) }

// Contains reports whether tag is present.
func (s *Set) Contains(tag string) bool {
	_, ok := s.byTag[tag]
	return ok
}

// Get returns the record for tag.
func (s *Set) Get(tag string) (Record, error) {
	r, ok := s.byTag[tag]
	if !ok {
		return nil, apperr.NotFound("tag", tag)
	}
	return r, nil
}

// Remove deletes tag from the set. Relations that point at the removed record
// keep their link; fixing them up is the caller's job.
func (s *Set) Remove(tag string) error {
	if _, ok := s.byTag[tag]; !ok {
		return apperr.NotFound("tag", tag)
	}
	delete(s.byTag, tag)
	s.order = slices.DeleteFunc(s.order, func(t string) bool { return t == tag })
	return nil
}

// Records returns all records in insertion order.
func (s *Set) Records() []Record {
	out := make([]Record, 0, len(s.order))
	for _, tag := range s.order {
		out = append(out, s.byTag[tag])
	}
	return out
}

// Entities returns the entity records in insertion order.
func (s *Set) Entities() []*Entity {
	var out []*Entity
	for _, tag := range s.order {
		if e, ok := s.byTag[tag].(*Entity); ok {
			out = append(out, e)
		}
	}
	return out
}

// Relations returns the relation records in insertion order.
func (s *Set) Relations() []*Relation {
	var out []*Relation
	for _, tag := range s.order {
		if r, ok := s.byTag[tag].(*Relation); ok {
			out = append(out, r)
		}
	}
	return out
}
