package dataset

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/apperr"
	"github.com/dgallion1/bratgest/internal/store"
)

func twoDocs(t *testing.T) *Dataset {
	t.Helper()
	dir := t.TempDir()
	ds := New()
	if err := ds.ReadAll([]FilePair{
		writePair(t, dir, "copper", copperText, copperAnn),
		writePair(t, dir, "steel", steelText, steelAnn),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ds
}

func relation(t *testing.T, ds *Dataset, key, tag string) *annotation.Relation {
	t.Helper()
	doc, err := ds.Get(key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	rec, err := doc.Get(tag)
	if err != nil {
		t.Fatalf("get %s/%s: %v", key, tag, err)
	}
	rel, ok := rec.(*annotation.Relation)
	if !ok {
		t.Fatalf("%s/%s is %T, not a relation", key, tag, rec)
	}
	return rel
}

func TestSerializeRestore_RoundTrip(t *testing.T) {
	src := twoDocs(t)
	data, err := src.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	dst := New()
	if err := dst.Restore(data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := strings.Join(dst.Keys(), ","); got != "copper,steel" {
		t.Fatalf("expected keys copper,steel, got %s", got)
	}
	for _, key := range src.Keys() {
		a, _ := src.Get(key)
		b, _ := dst.Get(key)
		if a.Text() != b.Text() {
			t.Errorf("%s: text mismatch", key)
		}
		if a.TextPath() != b.TextPath() || a.AnnPath() != b.AnnPath() {
			t.Errorf("%s: path mismatch", key)
		}
		if strings.Join(a.Tags(), ",") != strings.Join(b.Tags(), ",") {
			t.Errorf("%s: expected tags %v, got %v", key, a.Tags(), b.Tags())
		}
	}

	// Links in the restored copy point at records of the restored copy.
	r2 := relation(t, dst, "steel", "R2")
	r1 := relation(t, dst, "steel", "R1")
	if r2.Arg1() != annotation.Record(r1) {
		t.Error("R2.Arg1 does not point at restored R1")
	}
	s1 := relation(t, dst, "steel", "S1")
	if r2.Arg2() != annotation.Record(s1) {
		t.Error("R2.Arg2 does not point at restored S1")
	}
	ent := r1.Arg1().(*annotation.Entity)
	if ent.Tag() != "T2" || ent.Text() != "beams" || ent.Start() != 6 || ent.End() != 11 {
		t.Errorf("unexpected R1.Arg1 %+v", ent)
	}
}

func TestSerializeRestore_AfterRemove(t *testing.T) {
	src := twoDocs(t)
	doc, _ := src.Get("copper")
	if err := doc.Remove("T1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := src.Remove("steel"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := src.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	dst := New()
	if err := dst.Restore(data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := strings.Join(dst.Keys(), ","); got != "copper" {
		t.Fatalf("expected keys copper, got %s", got)
	}
	restored, _ := dst.Get("copper")
	if restored.Contains("T1") {
		t.Error("removed tag came back")
	}
	if got := strings.Join(restored.Tags(), ","); got != "T2,R1" {
		t.Errorf("expected tags T2,R1, got %s", got)
	}
	// The dangling link survives as a detached record.
	r1 := relation(t, dst, "copper", "R1")
	arg2, ok := r1.Arg2().(*annotation.Entity)
	if !ok || arg2.Tag() != "T1" || arg2.Text() != "Copper" {
		t.Errorf("expected detached T1 Copper, got %+v", r1.Arg2())
	}
}

func TestRestore_DetachedRelationChain(t *testing.T) {
	src := twoDocs(t)
	doc, _ := src.Get("steel")
	// R2 -> R1 -> T2; drop R1 and T2 so R2 reaches them only through detached records.
	for _, tag := range []string{"R1", "T2"} {
		if err := doc.Remove(tag); err != nil {
			t.Fatalf("remove %s: %v", tag, err)
		}
	}
	data, err := src.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	dst := New()
	if err := dst.Restore(data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	r2 := relation(t, dst, "steel", "R2")
	r1, ok := r2.Arg1().(*annotation.Relation)
	if !ok || r1.Tag() != "R1" {
		t.Fatalf("expected detached R1, got %+v", r2.Arg1())
	}
	if e, ok := r1.Arg1().(*annotation.Entity); !ok || e.Text() != "beams" {
		t.Errorf("expected detached T2 beams, got %+v", r1.Arg1())
	}
	if e, ok := r1.Arg2().(*annotation.Entity); !ok || e.Text() != "Steel" {
		t.Errorf("expected live T1 Steel, got %+v", r1.Arg2())
	}
}

func TestRestore_ReplacesContents(t *testing.T) {
	empty, err := New().Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	ds := twoDocs(t)
	if err := ds.Restore(empty); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ds.Len() != 0 {
		t.Errorf("expected empty dataset, got %d documents", ds.Len())
	}
}

func TestRestore_CorruptInputLeavesDatasetUnchanged(t *testing.T) {
	good, err := twoDocs(t).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	tampered := recompress(t, bytes.Replace(decompress(t, good), []byte("Copper"), []byte("Bronze"), 1))
	wrongFormat := recompress(t, bytes.Replace(decompress(t, good), []byte(SnapshotFormat), []byte("other/v9"), 1))

	tests := []struct {
		name string
		data []byte
	}{
		{"not xz", []byte("plain text")},
		{"not json", recompress(t, []byte("{not json"))},
		{"checksum mismatch", tampered},
		{"unknown format", wrongFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := twoDocs(t)
			err := ds.Restore(tt.data)
			if !errors.Is(err, apperr.ErrStructural) {
				t.Fatalf("expected ErrStructural, got %v", err)
			}
			if ds.Len() != 2 {
				t.Errorf("dataset changed after failed restore: %d documents", ds.Len())
			}
		})
	}
}

func TestSaveLoad_MemoryStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := twoDocs(t)

	info, err := src.Save(ctx, st, "nightly")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Documents != 2 || info.Checksum == "" || info.ID == "" {
		t.Errorf("unexpected info %+v", info)
	}

	dst := New()
	loaded, err := dst.Load(ctx, st, "nightly")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != info.ID || loaded.Checksum != info.Checksum {
		t.Errorf("expected info %+v, got %+v", info, loaded)
	}
	if dst.Len() != 2 {
		t.Errorf("expected 2 documents, got %d", dst.Len())
	}

	list, err := ListSnapshots(ctx, st)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "nightly" || list[0].Documents != 2 {
		t.Errorf("unexpected snapshot list %+v", list)
	}
}

func TestLoad_MissingSnapshot(t *testing.T) {
	_, err := New().Load(context.Background(), store.NewMemory(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoad_RejectsBadNames(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	for _, name := range []string{"", "../x", "a/b", `a\b`} {
		if _, err := New().Save(ctx, st, name); err == nil {
			t.Errorf("expected save error for %q", name)
		}
		if _, err := New().Load(ctx, st, name); err == nil {
			t.Errorf("expected load error for %q", name)
		}
	}
}

func decompress(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func recompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
