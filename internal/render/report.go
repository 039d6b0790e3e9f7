package render

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/dataset"
)

type labelKey struct {
	kind  annotation.Kind
	label string
}

// DatasetReport summarizes ds as Markdown: one row per document followed by
// label frequencies across the whole dataset.
func DatasetReport(ds *dataset.Dataset) string {
	var (
		b         strings.Builder
		entities  int
		relations int
		labels    = make(map[labelKey]int)
	)

	b.WriteString("# Dataset report\n\n")
	if ds.Len() == 0 {
		b.WriteString("The dataset is empty.\n")
		return b.String()
	}

	b.WriteString("| Document | Entities | Relations | Anonymous |\n")
	b.WriteString("| --- | ---: | ---: | ---: |\n")
	for _, key := range ds.Keys() {
		doc, err := ds.Get(key)
		if err != nil {
			continue
		}
		ents := doc.Records().Entities()
		rels := doc.Records().Relations()
		anon := 0
		for _, r := range rels {
			if r.Anonymous() {
				anon++
			}
			labels[labelKey{annotation.KindRelation, r.Label()}]++
		}
		for _, e := range ents {
			labels[labelKey{annotation.KindEntity, e.Label()}]++
		}
		entities += len(ents)
		relations += len(rels)
		fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", cell(key), len(ents), len(rels), anon)
	}
	fmt.Fprintf(&b, "| **Total (%d)** | %d | %d | |\n", ds.Len(), entities, relations)

	if len(labels) > 0 {
		b.WriteString("\n## Labels\n\n")
		b.WriteString("| Label | Kind | Count |\n")
		b.WriteString("| --- | --- | ---: |\n")
		keys := slices.SortedFunc(maps.Keys(labels), func(a, b labelKey) int {
			return cmp.Or(
				cmp.Compare(labels[b], labels[a]),
				cmp.Compare(a.kind, b.kind),
				cmp.Compare(a.label, b.label),
			)
		})
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", cell(k.label), k.kind, labels[k])
		}
	}
	return b.String()
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// ReportHTML converts a Markdown report to HTML.
func ReportHTML(w io.Writer, markdown string) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert([]byte(markdown), w); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	return nil
}
