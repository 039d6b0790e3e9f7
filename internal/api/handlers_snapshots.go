package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bratgest/internal/dataset"
)

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	snaps, err := dataset.ListSnapshots(ctx, s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store":     s.store.Driver(),
		"snapshots": snaps,
	})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !dataset.ValidSnapshotName(name) {
		jsonError(w, fmt.Sprintf("invalid snapshot name %q", name), http.StatusBadRequest)
		return
	}
	info, err := s.SaveSnapshot(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "snapshot": info})
}

// handleRestoreSnapshot replaces the in-memory dataset with a stored
// snapshot. The dataset is unchanged if the load fails.
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !dataset.ValidSnapshotName(name) {
		jsonError(w, fmt.Sprintf("invalid snapshot name %q", name), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	s.mu.Lock()
	info, err := s.ds.Load(ctx, s.store, name)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "snapshot": info})
}
