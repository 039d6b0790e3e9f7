// Package render turns documents and datasets into HTML and Markdown views.
package render

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/document"
)

// DocumentHTML writes a standalone HTML page for doc: the text with entity
// spans wrapped in <mark>, followed by a table of relations.
//
// Offsets count runes. Spans that fall outside the text, are empty, or
// overlap an earlier span are left unmarked.
func DocumentHTML(w io.Writer, title string, doc *document.Document) error {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	page := element(atom.Html)
	root.AppendChild(page)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, attr("charset", "utf-8")))
	head.AppendChild(withText(element(atom.Title), title))
	head.AppendChild(withText(element(atom.Style), styles))
	page.AppendChild(head)

	body := element(atom.Body)
	body.AppendChild(withText(element(atom.H1), title))
	body.AppendChild(textBlock(doc))
	if rels := doc.Records().Relations(); len(rels) > 0 {
		body.AppendChild(withText(element(atom.H2), "Relations"))
		body.AppendChild(relationTable(doc.Records(), rels))
	}
	page.AppendChild(body)

	if err := html.Render(w, root); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

const styles = `body{font-family:sans-serif;max-width:60em;margin:2em auto}
.text{white-space:pre-wrap;line-height:1.8}
mark{padding:0 .15em;border-radius:.2em}
mark::after{content:attr(data-label);font-size:.65em;margin-left:.3em;opacity:.7}
table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.2em .6em}
.removed{color:#a00}`

func textBlock(doc *document.Document) *html.Node {
	div := element(atom.Div, attr("class", "text"))
	runes := []rune(doc.Text())
	cursor := 0
	for _, e := range markable(doc.Records().Entities(), len(runes)) {
		if e.Start() > cursor {
			div.AppendChild(text(string(runes[cursor:e.Start()])))
		}
		mark := element(atom.Mark,
			attr("id", e.Tag()),
			attr("data-tag", e.Tag()),
			attr("data-label", e.Label()),
			attr("title", e.Tag()+" "+e.Label()),
		)
		div.AppendChild(withText(mark, string(runes[e.Start():e.End()])))
		cursor = e.End()
	}
	if cursor < len(runes) {
		div.AppendChild(text(string(runes[cursor:])))
	}
	return div
}

// markable returns the entities that can be highlighted, ordered by start.
func markable(entities []*annotation.Entity, textLen int) []*annotation.Entity {
	sorted := slices.Clone(entities)
	slices.SortStableFunc(sorted, func(a, b *annotation.Entity) int {
		return cmp.Or(cmp.Compare(a.Start(), b.Start()), cmp.Compare(b.End(), a.End()))
	})
	out := sorted[:0]
	cursor := 0
	for _, e := range sorted {
		if e.Start() < cursor || e.End() > textLen || e.Start() == e.End() {
			continue
		}
		out = append(out, e)
		cursor = e.End()
	}
	return out
}

func relationTable(set *annotation.Set, rels []*annotation.Relation) *html.Node {
	table := element(atom.Table, attr("class", "relations"))
	header := element(atom.Tr)
	for _, h := range []string{"Tag", "Label", "Arg1", "Arg2"} {
		header.AppendChild(withText(element(atom.Th), h))
	}
	table.AppendChild(header)

	for _, r := range rels {
		row := element(atom.Tr)
		row.AppendChild(withText(element(atom.Td), r.Tag()))
		row.AppendChild(withText(element(atom.Td), r.Label()))
		row.AppendChild(argCell(set, r.Arg1Tag(), r.Arg1()))
		row.AppendChild(argCell(set, r.Arg2Tag(), r.Arg2()))
		table.AppendChild(row)
	}
	return table
}

func argCell(set *annotation.Set, tag string, arg annotation.Record) *html.Node {
	td := element(atom.Td)
	switch {
	case arg == nil:
		return withText(td, tag+" (unresolved)")
	case !set.Contains(tag):
		td.Attr = append(td.Attr, attr("class", "removed"))
		return withText(td, fmt.Sprintf("%s %s (removed)", tag, describe(arg)))
	default:
		a := withText(element(atom.A, attr("href", "#"+tag)), tag)
		td.AppendChild(a)
		td.AppendChild(text(" " + describe(arg)))
		return td
	}
}

func describe(r annotation.Record) string {
	if e, ok := r.(*annotation.Entity); ok {
		return fmt.Sprintf("%s %q", e.Label(), e.Text())
	}
	return r.Label()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func withText(n *html.Node, s string) *html.Node {
	n.AppendChild(text(s))
	return n
}
