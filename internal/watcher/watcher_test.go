package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/tcmkb/internal/config"
)

const (
	kbA = "11111111-1111-1111-1111-111111111111"
	kbB = "22222222-2222-2222-2222-222222222222"
)

type event struct {
	kbID string
	path string
}

type recorder struct {
	mu      sync.Mutex
	ingests []event
	removes []event
}

func (r *recorder) ingest(kbID, path string) {
	r.mu.Lock()
	r.ingests = append(r.ingests, event{kbID, path})
	r.mu.Unlock()
}

func (r *recorder) remove(kbID, path string) {
	r.mu.Lock()
	r.removes = append(r.removes, event{kbID, path})
	r.mu.Unlock()
}

func (r *recorder) ingested(suffix string) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.ingests {
		if strings.HasSuffix(e.path, suffix) {
			return e, true
		}
	}
	return event{}, false
}

func (r *recorder) removed(suffix string) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.removes {
		if strings.HasSuffix(e.path, suffix) {
			return e, true
		}
	}
	return event{}, false
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startWatcher(t *testing.T, dirs []config.WatchDirectory, exts []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(dirs, exts, true, rec.ingest, rec.remove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, nil, []string{".txt"}, &recorder{})

	if err := w.AddDirectory(dir, "", false); err == nil {
		t.Error("expected error without knowledge base id")
	}
	if err := w.AddDirectory(dir, kbA, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, kbB, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0].Path != filepath.Clean(dir) || dirs[0].KnowledgeBaseID != kbA {
		t.Errorf("Directories() = %+v", dirs)
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if got := w.Directories(); len(got) != 0 {
		t.Errorf("after remove: %+v", got)
	}
}

func TestWatcher_IngestAndRemove(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []config.WatchDirectory{{Path: dir, KnowledgeBaseID: kbA}}, []string{".txt"}, rec)

	path := filepath.Join(sub, "病案.txt")
	if err := writeFile(path, "脉浮"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(sub, "skip.log"), "x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ingest callback", func() bool {
		_, ok := rec.ingested("病案.txt")
		return ok
	})
	e, _ := rec.ingested("病案.txt")
	if e.kbID != kbA {
		t.Errorf("knowledge base = %s, want %s", e.kbID, kbA)
	}
	if _, ok := rec.ingested("skip.log"); ok {
		t.Error("skip.log should not be ingested")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove callback", func() bool {
		_, ok := rec.removed("病案.txt")
		return ok
	})
}

func TestWatcher_NestedRootsMapToInnermost(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "金匮")
	if err := os.MkdirAll(inner, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, []config.WatchDirectory{
		{Path: outer, KnowledgeBaseID: kbA},
		{Path: inner, KnowledgeBaseID: kbB},
	}, nil, rec)

	if kb, ok := w.knowledgeBaseFor(filepath.Join(inner, "a.md")); !ok || kb != kbB {
		t.Errorf("inner file maps to %q, %v", kb, ok)
	}
	if kb, ok := w.knowledgeBaseFor(filepath.Join(outer, "b.md")); !ok || kb != kbA {
		t.Errorf("outer file maps to %q, %v", kb, ok)
	}
	if _, ok := w.knowledgeBaseFor("/elsewhere/c.md"); ok {
		t.Error("path outside roots should not map")
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, []config.WatchDirectory{{Path: dir, KnowledgeBaseID: kbA}}, []string{".txt"}, rec)
	w.SyncExistingFiles()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ingests) != 1 || !strings.HasSuffix(rec.ingests[0].path, "a.txt") || rec.ingests[0].kbID != kbA {
		t.Errorf("got %+v", rec.ingests)
	}
}

func TestWatcher_NewDirectoryIsIngested(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []config.WatchDirectory{{Path: dir, KnowledgeBaseID: kbA}}, []string{".txt", ".md"}, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "deep.txt", func() bool {
		_, ok := rec.ingested("deep.txt")
		return ok
	})
}

func TestWatcher_Start_createsMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []config.WatchDirectory{{Path: root, KnowledgeBaseID: kbA}}, nil, &recorder{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.docx", []string{"docx"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
