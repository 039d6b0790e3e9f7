package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/render"
)

type documentSummary struct {
	Key       string `json:"key"`
	Records   int    `json:"records"`
	Entities  int    `json:"entities"`
	Relations int    `json:"relations"`
}

type recordView struct {
	Tag       string          `json:"tag"`
	Kind      annotation.Kind `json:"kind"`
	Label     string          `json:"label"`
	Start     *int            `json:"start,omitempty"`
	End       *int            `json:"end,omitempty"`
	Text      string          `json:"text,omitempty"`
	Arg1      string          `json:"arg1,omitempty"`
	Arg2      string          `json:"arg2,omitempty"`
	Anonymous bool            `json:"anonymous,omitempty"`
}

func viewOf(r annotation.Record) recordView {
	v := recordView{Tag: r.Tag(), Kind: r.Kind(), Label: r.Label()}
	switch rec := r.(type) {
	case *annotation.Entity:
		start, end := rec.Start(), rec.End()
		v.Start, v.End, v.Text = &start, &end, rec.Text()
	case *annotation.Relation:
		v.Arg1, v.Arg2, v.Anonymous = rec.Arg1Tag(), rec.Arg2Tag(), rec.Anonymous()
	}
	return v
}

// handleListDocuments lists every document in insertion order.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]documentSummary, 0, s.ds.Len())
	for _, key := range s.ds.Keys() {
		doc, err := s.ds.Get(key)
		if err != nil {
			continue
		}
		docs = append(docs, documentSummary{
			Key:       key,
			Records:   doc.Len(),
			Entities:  len(doc.Records().Entities()),
			Relations: len(doc.Records().Relations()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleGetDocument returns the text and every record of one document.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.ds.Get(key)
	if err != nil {
		writeError(w, err)
		return
	}
	records := make([]recordView, 0, doc.Len())
	for _, rec := range doc.Records().Records() {
		records = append(records, viewOf(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":       key,
		"text":      doc.Text(),
		"text_path": doc.TextPath(),
		"ann_path":  doc.AnnPath(),
		"records":   records,
	})
}

// handleDeleteDocument removes a document from the dataset.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	s.mu.Lock()
	err := s.ds.Remove(key)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("document deleted", "key", key)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": key})
}

// handleDocumentHTML renders one document as an HTML page.
func (s *Server) handleDocumentHTML(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.ds.Get(key)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.DocumentHTML(&buf, key, doc); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleGetRecord returns one record of a document. Relations include their
// resolved arguments.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key, tag := chi.URLParam(r, "key"), chi.URLParam(r, "tag")

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.ds.Get(key)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := doc.Get(tag)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"record": viewOf(rec)}
	if rel, ok := rec.(*annotation.Relation); ok {
		if a := rel.Arg1(); a != nil {
			resp["arg1"] = viewOf(a)
		}
		if a := rel.Arg2(); a != nil {
			resp["arg2"] = viewOf(a)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteRecord removes one record. Relations pointing at it keep their
// link.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	key, tag := chi.URLParam(r, "key"), chi.URLParam(r, "tag")

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.ds.Get(key)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := doc.Remove(tag); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("record deleted", "key", key, "tag", tag)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": tag, "records": doc.Len()})
}
