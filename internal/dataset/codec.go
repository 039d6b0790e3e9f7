package dataset

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/document"
)

// SnapshotFormat identifies the envelope layout written by Serialize.
const SnapshotFormat = "bratgest.dataset/v1"

// envelope is the outer JSON object, compressed with xz. Checksum is the
// BLAKE3 hex digest of Payload exactly as written.
type envelope struct {
	Format    string          `json:"format"`
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Checksum  string          `json:"checksum"`
	Documents int             `json:"documents"`
	Payload   json.RawMessage `json:"payload"`
}

type payload struct {
	Documents []docJSON `json:"documents"`
}

type docJSON struct {
	Key      string       `json:"key"`
	TextPath string       `json:"text_path,omitempty"`
	AnnPath  string       `json:"ann_path,omitempty"`
	Text     string       `json:"text"`
	Records  []recordJSON `json:"records"`
	// Detached holds records removed from the document that relations still
	// point at.
	Detached []recordJSON `json:"detached,omitempty"`
}

type recordJSON struct {
	Kind  annotation.Kind `json:"kind"`
	Tag   string          `json:"tag"`
	Label string          `json:"label"`
	Start int             `json:"start,omitempty"`
	End   int             `json:"end,omitempty"`
	Text  string          `json:"text,omitempty"`
	Arg1  string          `json:"arg1,omitempty"`
	Arg2  string          `json:"arg2,omitempty"`
}

// SnapshotInfo describes one serialized snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Documents int       `json:"documents"`
}

// Serialize encodes every document, in key order, as an xz-compressed
// snapshot.
func (d *Dataset) Serialize() ([]byte, error) {
	data, _, err := d.encode()
	return data, err
}

func (d *Dataset) encode() ([]byte, SnapshotInfo, error) {
	p := payload{Documents: make([]docJSON, 0, len(d.order))}
	for _, key := range d.order {
		p.Documents = append(p.Documents, encodeDocument(key, d.docs[key]))
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("encode payload: %w", err)
	}
	sum := blake3.Sum256(raw)
	env := envelope{
		Format:    SnapshotFormat,
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Checksum:  hex.EncodeToString(sum[:]),
		Documents: len(p.Documents),
		Payload:   raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("encode envelope: %w", err)
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, SnapshotInfo{}, fmt.Errorf("compress: %w", err)
	}
	info := SnapshotInfo{ID: env.ID, CreatedAt: env.CreatedAt, Checksum: env.Checksum, Documents: env.Documents}
	return buf.Bytes(), info, nil
}

func encodeDocument(key string, doc *document.Document) docJSON {
	set := doc.Records()
	dj := docJSON{
		Key:      key,
		TextPath: doc.TextPath(),
		AnnPath:  doc.AnnPath(),
		Text:     doc.Text(),
		Records:  make([]recordJSON, 0, set.Len()),
	}
	for _, r := range set.Records() {
		dj.Records = append(dj.Records, encodeRecord(r))
	}
	for _, r := range detachedRecords(set) {
		dj.Detached = append(dj.Detached, encodeRecord(r))
	}
	return dj
}

func encodeRecord(r annotation.Record) recordJSON {
	rj := recordJSON{Kind: r.Kind(), Tag: r.Tag(), Label: r.Label()}
	switch v := r.(type) {
	case *annotation.Entity:
		rj.Start, rj.End, rj.Text = v.Start(), v.End(), v.Text()
	case *annotation.Relation:
		rj.Arg1, rj.Arg2 = v.Arg1Tag(), v.Arg2Tag()
	}
	return rj
}

// detachedRecords collects records reachable from set's relations whose tags
// are no longer in set, following chains through detached relations.
func detachedRecords(set *annotation.Set) []annotation.Record {
	var (
		out  []annotation.Record
		seen = make(map[string]bool)
	)
	var visit func(r annotation.Record)
	visit = func(r annotation.Record) {
		if r == nil || set.Contains(r.Tag()) || seen[r.Tag()] {
			return
		}
		seen[r.Tag()] = true
		out = append(out, r)
		if rel, ok := r.(*annotation.Relation); ok {
			visit(rel.Arg1())
			visit(rel.Arg2())
		}
	}
	for _, rel := range set.Relations() {
		visit(rel.Arg1())
		visit(rel.Arg2())
	}
	return out
}

// Restore replaces the dataset contents with a snapshot produced by
// Serialize. On error the dataset is left unchanged.
func (d *Dataset) Restore(data []byte) error {
	_, err := d.restore(data)
	return err
}

func (d *Dataset) restore(data []byte) (SnapshotInfo, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return SnapshotInfo{}, err
	}
	var p payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return SnapshotInfo{}, apperr.Structural(0, "", "snapshot payload: %v", err)
	}

	order := make([]string, 0, len(p.Documents))
	docs := make(map[string]*document.Document, len(p.Documents))
	for _, dj := range p.Documents {
		if _, dup := docs[dj.Key]; dup {
			return SnapshotInfo{}, apperr.Structural(0, "", "snapshot repeats document key %s", dj.Key)
		}
		doc, err := decodeDocument(dj)
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("document %s: %w", dj.Key, err)
		}
		docs[dj.Key] = doc
		order = append(order, dj.Key)
	}
	d.replace(order, docs)
	return SnapshotInfo{ID: env.ID, CreatedAt: env.CreatedAt, Checksum: env.Checksum, Documents: len(order)}, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return env, apperr.Structural(0, "", "snapshot is not xz data: %v", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return env, apperr.Structural(0, "", "snapshot decompress: %v", err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, apperr.Structural(0, "", "snapshot envelope: %v", err)
	}
	if env.Format != SnapshotFormat {
		return env, apperr.Structural(0, "", "unsupported snapshot format %q", env.Format)
	}
	sum := blake3.Sum256(env.Payload)
	if got := hex.EncodeToString(sum[:]); got != env.Checksum {
		return env, apperr.Structural(0, "", "snapshot checksum mismatch: want %s, got %s", env.Checksum, got)
	}
	return env, nil
}

func decodeDocument(dj docJSON) (*document.Document, error) {
	records, err := buildSet(dj.Records)
	if err != nil {
		return nil, err
	}
	detached, err := buildSet(dj.Detached)
	if err != nil {
		return nil, err
	}
	for _, tag := range detached.Tags() {
		if records.Contains(tag) {
			return nil, apperr.Structural(0, tag, "detached record shadows a live tag")
		}
	}
	if err := records.Resolve(detached); err != nil {
		return nil, err
	}
	if err := detached.Resolve(records); err != nil {
		return nil, err
	}
	return document.Assemble(dj.TextPath, dj.AnnPath, dj.Text, records), nil
}

func buildSet(rjs []recordJSON) (*annotation.Set, error) {
	set := annotation.NewSet()
	for _, rj := range rjs {
		var r annotation.Record
		switch rj.Kind {
		case annotation.KindEntity:
			if rj.Start < 0 || rj.End < rj.Start {
				return nil, apperr.Structural(0, rj.Tag, "invalid offsets %d..%d", rj.Start, rj.End)
			}
			r = annotation.NewEntity(rj.Tag, rj.Label, rj.Start, rj.End, rj.Text)
		case annotation.KindRelation:
			r = annotation.NewRelation(rj.Tag, rj.Label, rj.Arg1, rj.Arg2)
		default:
			return nil, apperr.Structural(0, rj.Tag, "unknown record kind %q", rj.Kind)
		}
		if err := set.Add(r); err != nil {
			return nil, err
		}
	}
	return set, nil
}
