package api

import (
	"bytes"
	"net/http"

	"github.com/dgallion1/bratgest/internal/render"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entities, relations, anonymous int
	for _, key := range s.ds.Keys() {
		doc, err := s.ds.Get(key)
		if err != nil {
			continue
		}
		entities += len(doc.Records().Entities())
		for _, rel := range doc.Records().Relations() {
			relations++
			if rel.Anonymous() {
				anonymous++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": s.ds.Len(),
		"entities":  entities,
		"relations": relations,
		"anonymous": anonymous,
	})
}

// handleReport serves the dataset report as HTML, or as Markdown with
// ?format=md.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	md := render.DatasetReport(s.ds)
	s.mu.RUnlock()

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}
	var buf bytes.Buffer
	if err := render.ReportHTML(&buf, md); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
