package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/dataset"
	"github.com/dgallion1/bratgest/internal/document"
)

// handleUpload parses a text/annotation pair sent as multipart files "text"
// and "ann" and inserts it. The key defaults to the text file's base name
// without extension.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size: two files plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	text, textName, err := s.readPart(r, "text")
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ann, _, err := s.readPart(r, "ann")
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := r.FormValue("key")
	if key == "" {
		key = dataset.KeyFor(sanitizeFilename(textName))
	}
	if !validKey(key) {
		jsonError(w, fmt.Sprintf("invalid document key %q", key), http.StatusBadRequest)
		return
	}

	doc, err := document.New(string(text), string(ann))
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	err = s.ds.Insert(key, doc)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("document uploaded", "key", key, "records", doc.Len())
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     key,
		"records": doc.Len(),
	})
}

// readPart reads one uploaded file, enforcing MaxUploadBytes.
func (s *Server) readPart(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%s file is required: %w", field, err)
	}
	defer file.Close()
	return readLimited(file, header, s.cfg.MaxUploadBytes)
}

func readLimited(file multipart.File, header *multipart.FileHeader, limit int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s", header.Filename)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%s exceeds max size (%d bytes)", header.Filename, limit)
	}
	return data, header.Filename, nil
}

func validKey(key string) bool {
	return key != "" && key != "." && !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrStructural):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrDuplicateKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
