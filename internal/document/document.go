// Package document pairs the raw text of a brat document with its parsed
// annotation records.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/apperr"
)

// Document owns one text buffer and one annotation Set.
type Document struct {
	textPath string // absolute, empty when built from memory
	annPath  string
	text     string
	records  *annotation.Set
}

// Load reads a text/annotation file pair. Both paths must exist; the text
// path is checked first and nothing is parsed if either is missing.
func Load(textPath, annPath string) (*Document, error) {
	textAbs, err := checkFile(textPath)
	if err != nil {
		return nil, err
	}
	annAbs, err := checkFile(annPath)
	if err != nil {
		return nil, err
	}

	text, err := os.ReadFile(textAbs)
	if err != nil {
		return nil, fmt.Errorf("read text %s: %w", textPath, err)
	}
	ann, err := os.ReadFile(annAbs)
	if err != nil {
		return nil, fmt.Errorf("read annotations %s: %w", annPath, err)
	}

	records, err := annotation.Parse(string(ann))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", annPath, err)
	}
	return &Document{textPath: textAbs, annPath: annAbs, text: string(text), records: records}, nil
}

// New parses in-memory content, e.g. an upload.
func New(text, ann string) (*Document, error) {
	records, err := annotation.Parse(ann)
	if err != nil {
		return nil, err
	}
	return &Document{text: text, records: records}, nil
}

// Assemble builds a Document from already resolved records. Used when
// restoring a snapshot.
func Assemble(textPath, annPath, text string, records *annotation.Set) *Document {
	if records == nil {
		records = annotation.NewSet()
	}
	return &Document{textPath: textPath, annPath: annPath, text: text, records: records}
}

func checkFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &apperr.NotFoundError{Resource: "file", ID: path, Err: err}
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return abs, nil
}

func (d *Document) Text() string     { return d.text }
func (d *Document) TextPath() string { return d.textPath }
func (d *Document) AnnPath() string  { return d.annPath }
func (d *Document) String() string   { return d.text }

// Records exposes the underlying Set.
func (d *Document) Records() *annotation.Set { return d.records }

func (d *Document) Tags() []string           { return d.records.Tags() }
func (d *Document) Len() int                 { return d.records.Len() }
func (d *Document) Contains(tag string) bool { return d.records.Contains(tag) }

// Get returns the record for tag.
func (d *Document) Get(tag string) (annotation.Record, error) {
	return d.records.Get(tag)
}

// Remove deletes tag. Relations that referenced it are not updated.
func (d *Document) Remove(tag string) error {
	return d.records.Remove(tag)
}
