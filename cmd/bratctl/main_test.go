package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/bratgest/internal/apperr"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"copper.txt": "Copper wires were used.",
		"copper.ann": "T1\tMaterial 0 6\tCopper\nT2\tObject 7 12\twires\nR1\tMade-of Arg1:T2 Arg2:T1\n",
		"steel.txt":  "Steel beams",
		"steel.ann":  "T1\tMaterial 0 5\tSteel\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	base := []string{"--env-file", filepath.Join(root, "none.env"), "--driver", "fs", "--fs-root", root, "--log-level", "error"}
	err := run(context.Background(), append(base, args...), &out, &errOut)
	return out.String(), err
}

func TestIngestListShow(t *testing.T) {
	corpus := writeCorpus(t)
	root := t.TempDir()

	out, err := runCLI(t, root, "ingest", corpus, "--snapshot", "demo")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "saved 2 documents to demo") {
		t.Errorf("unexpected ingest output %q", out)
	}

	out, err = runCLI(t, root, "list", "demo")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "copper") || !strings.Contains(out, "steel") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out, err = runCLI(t, root, "show", "demo", "copper", "R1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "R1\tMade-of Arg1:T2 Arg2:T1") || !strings.Contains(out, "Arg1: T2\tObject 7 12\twires") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	out, err = runCLI(t, root, "snapshots")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if !strings.Contains(out, "demo") {
		t.Errorf("unexpected snapshots output:\n%s", out)
	}

	out, err = runCLI(t, root, "report", "demo")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "| copper | 2 | 1 | 0 |") {
		t.Errorf("unexpected report:\n%s", out)
	}

	out, err = runCLI(t, root, "html", "demo", "steel")
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(out, ">Steel</mark>") {
		t.Errorf("unexpected html:\n%s", out)
	}
}

func TestShowMissing(t *testing.T) {
	corpus := writeCorpus(t)
	root := t.TempDir()
	if _, err := runCLI(t, root, "ingest", corpus); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := runCLI(t, root, "show", "default", "brass"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing key, got %v", err)
	}
	if _, err := runCLI(t, root, "list", "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing snapshot, got %v", err)
	}
}

func TestIngestMalformed(t *testing.T) {
	corpus := writeCorpus(t)
	if err := os.WriteFile(filepath.Join(corpus, "steel.ann"), []byte("T1\tMaterial 5 0\tSteel\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	if _, err := runCLI(t, root, "ingest", corpus); !errors.Is(err, apperr.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
	if _, err := runCLI(t, root, "list", "default"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected no snapshot after failed ingest, got %v", err)
	}
}
