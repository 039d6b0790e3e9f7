// Package dataset keeps a keyed collection of parsed brat documents and
// persists it as a single snapshot.
//
// A Dataset is not safe for concurrent use; callers that share one across
// goroutines must guard it themselves.
package dataset

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/document"
	"github.com/dgallion1/bratgest/internal/metrics"
)

// FilePair names one text file and its annotation file.
type FilePair struct {
	Text string `json:"text"`
	Ann  string `json:"ann"`
}

// Dataset maps keys to Documents and remembers insertion order.
type Dataset struct {
	order   []string
	docs    map[string]*document.Document
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dataset) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics reports reads and snapshot operations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dataset) { d.metrics = m }
}

// New returns an empty Dataset.
func New(opts ...Option) *Dataset {
	d := &Dataset{
		docs:   make(map[string]*document.Document),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// KeyFor derives the dataset key of a text path: its base name without the
// final extension.
func KeyFor(textPath string) string {
	base := filepath.Base(textPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Read loads one file pair and inserts it under KeyFor(textPath).
func (d *Dataset) Read(textPath, annPath string) error {
	doc, err := document.Load(textPath, annPath)
	if err != nil {
		d.metrics.DocumentRead(err)
		d.logger.Warn("read document failed", "text", textPath, "ann", annPath, "error", err)
		return err
	}
	key := KeyFor(textPath)
	err = d.Insert(key, doc)
	d.metrics.DocumentRead(err)
	if err != nil {
		return err
	}
	d.metrics.RecordsParsed(string(annotation.KindEntity), len(doc.Records().Entities()))
	d.metrics.RecordsParsed(string(annotation.KindRelation), len(doc.Records().Relations()))
	d.logger.Debug("document read", "key", key, "records", doc.Len())
	return nil
}

// ReadAll reads pairs in order and stops at the first failure. Documents
// read before the failure stay in the dataset.
func (d *Dataset) ReadAll(pairs []FilePair) error {
	for i, p := range pairs {
		if err := d.Read(p.Text, p.Ann); err != nil {
			return fmt.Errorf("pair %d (%s): %w", i, p.Text, err)
		}
	}
	d.logger.Info("dataset read", "pairs", len(pairs), "documents", d.Len())
	return nil
}

// Insert adds doc under key. An existing key is a DuplicateKeyError.
func (d *Dataset) Insert(key string, doc *document.Document) error {
	if _, exists := d.docs[key]; exists {
		return &apperr.DuplicateKeyError{Key: key}
	}
	d.docs[key] = doc
	d.order = append(d.order, key)
	d.metrics.SetDocuments(len(d.order))
	return nil
}

// Len returns the number of documents.
func (d *Dataset) Len() int { return len(d.order) }

// Keys returns all keys in insertion order.
func (d *Dataset) Keys() []string { return slices.Clone(d.order) }

// Contains reports whether key is present.
func (d *Dataset) Contains(key string) bool {
	_, ok := d.docs[key]
	return ok
}

// Get returns the Document stored under key.
func (d *Dataset) Get(key string) (*document.Document, error) {
	doc, ok := d.docs[key]
	if !ok {
		return nil, apperr.NotFound("document", key)
	}
	return doc, nil
}

// Remove deletes key.
func (d *Dataset) Remove(key string) error {
	if _, ok := d.docs[key]; !ok {
		return apperr.NotFound("document", key)
	}
	delete(d.docs, key)
	d.order = slices.DeleteFunc(d.order, func(k string) bool { return k == key })
	d.metrics.SetDocuments(len(d.order))
	return nil
}

// Tags returns the record tags of the document under key.
func (d *Dataset) Tags(key string) ([]string, error) {
	doc, err := d.Get(key)
	if err != nil {
		return nil, err
	}
	return doc.Tags(), nil
}

// replace swaps in restored contents.
func (d *Dataset) replace(order []string, docs map[string]*document.Document) {
	d.order = order
	d.docs = docs
	d.metrics.SetDocuments(len(order))
}

// Discover pairs every *.txt file in dir with the .ann file of the same
// stem, sorted by path. The .ann file is not required to exist; Read
// reports it.
func Discover(dir string) ([]FilePair, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	slices.Sort(matches)
	pairs := make([]FilePair, 0, len(matches))
	for _, m := range matches {
		pairs = append(pairs, FilePair{Text: m, Ann: strings.TrimSuffix(m, ".txt") + ".ann"})
	}
	return pairs, nil
}
