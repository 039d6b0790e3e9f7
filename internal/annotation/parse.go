// Package annotation parses brat standoff annotation files into a Set of
// Entity and Relation records with resolved relation arguments.
package annotation

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/bratgest/internal/apperr"
)

// Tag prefixes that select how a line is parsed.
const (
	EntityPrefix    = "T"
	RelationPrefix  = "R"
	AnonymousPrefix = "*"
	SyntheticPrefix = "S"
)

const (
	arg1Role = "Arg1:"
	arg2Role = "Arg2:"
)

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (*Set, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	return Parse(string(raw))
}

// Parse turns the content of a .ann file into a Set. Records are collected
// in file order, then every relation is linked to its argument records.
// Whitespace-only input yields an empty Set.
func Parse(raw string) (*Set, error) {
	set := NewSet()
	if strings.TrimSpace(raw) == "" {
		return set, nil
	}

	// Anonymous relations are numbered per file.
	synthetic := 0

	// Whitespace-only lines at either end are ignored; line numbers still
	// count from the top of the file.
	lines := strings.Split(raw, "\n")
	first, last := 0, len(lines)-1
	for strings.TrimSpace(lines[first]) == "" {
		first++
	}
	for strings.TrimSpace(lines[last]) == "" {
		last--
	}

	for i := first; i <= last; i++ {
		n := i + 1
		line := strings.TrimSuffix(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			return nil, apperr.Structural(n, "", "blank line")
		}

		rec, err := parseLine(n, line, &synthetic)
		if err != nil {
			return nil, err
		}
		if err := set.add(n, rec); err != nil {
			return nil, err
		}
	}

	if err := set.Resolve(nil); err != nil {
		return nil, err
	}
	return set, nil
}

func parseLine(n int, line string, synthetic *int) (Record, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 2 {
		return nil, apperr.Structural(n, "", "expected tab-separated tag and body, got %q", line)
	}
	tag := fields[0]

	switch {
	case strings.HasPrefix(tag, EntityPrefix):
		return parseEntity(n, tag, fields)
	case strings.HasPrefix(tag, RelationPrefix):
		return parseRelation(n, tag, fields, true)
	case strings.HasPrefix(tag, AnonymousPrefix):
		*synthetic++
		return parseRelation(n, fmt.Sprintf("%s%d", SyntheticPrefix, *synthetic), fields, false)
	default:
		return nil, apperr.Structural(n, tag, "tag oversight (%s)", tag)
	}
}

// parseEntity handles "T1\tLabel 0 6\tCopper".
func parseEntity(n int, tag string, fields []string) (Record, error) {
	if len(fields) != 3 {
		return nil, apperr.Structural(n, tag, "entity line has no text field")
	}
	body := strings.Fields(fields[1])
	if len(body) != 3 {
		return nil, apperr.Structural(n, tag, "entity body must be \"label start end\", got %q", fields[1])
	}
	start, err := strconv.Atoi(body[1])
	if err != nil {
		return nil, apperr.Structural(n, tag, "invalid start offset %q", body[1])
	}
	end, err := strconv.Atoi(body[2])
	if err != nil {
		return nil, apperr.Structural(n, tag, "invalid end offset %q", body[2])
	}
	if start < 0 || end < start {
		return nil, apperr.Structural(n, tag, "invalid span %d-%d", start, end)
	}
	return NewEntity(tag, body[0], start, end, fields[2]), nil
}

// parseRelation handles "R1\tLabel Arg1:T1 Arg2:T2" and, with roles false,
// the anonymous form "*\tLabel T1 T2".
func parseRelation(n int, tag string, fields []string, roles bool) (Record, error) {
	if len(fields) == 3 && fields[2] != "" {
		return nil, apperr.Structural(n, tag, "unexpected third field on relation line")
	}
	body := strings.Fields(fields[1])
	if len(body) != 3 {
		return nil, apperr.Structural(n, tag, "relation body must be \"label arg1 arg2\", got %q", fields[1])
	}
	arg1, arg2 := body[1], body[2]
	if roles {
		var ok1, ok2 bool
		arg1, ok1 = strings.CutPrefix(arg1, arg1Role)
		arg2, ok2 = strings.CutPrefix(arg2, arg2Role)
		if !ok1 || !ok2 || arg1 == "" || arg2 == "" {
			return nil, apperr.Structural(n, tag, "relation arguments must be %s<tag> %s<tag>, got %q", arg1Role, arg2Role, fields[1])
		}
	}
	return NewRelation(tag, body[0], arg1, arg2), nil
}
