package fileid

import (
	"testing"

	"github.com/google/uuid"
)

const kb = "6f9619ff-8b86-d011-b42d-00c04fc964ff"

func TestDocumentID(t *testing.T) {
	id1 := DocumentID(kb, "/docs/伤寒论.txt")
	id2 := DocumentID(kb, "/docs/伤寒论.txt")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	u, err := uuid.Parse(id1)
	if err != nil {
		t.Fatalf("ID is not a UUID: %v", err)
	}
	if u.Version() != 5 {
		t.Errorf("version = %d, want 5", u.Version())
	}
}

func TestDocumentID_differentInputs(t *testing.T) {
	base := DocumentID(kb, "/docs/a.txt")
	if base == DocumentID(kb, "/docs/b.txt") {
		t.Error("different paths should give different IDs")
	}
	if base == DocumentID("other-kb", "/docs/a.txt") {
		t.Error("different knowledge bases should give different IDs")
	}
}

func TestDocumentID_normalized(t *testing.T) {
	id1 := DocumentID(kb, "/foo/bar")
	if id1 != DocumentID(kb, "/foo/bar/") {
		t.Error("paths differing only by trailing slash should match")
	}
	if id1 != DocumentID(kb, "/foo/./bar") {
		t.Error("paths with . should normalize")
	}
}
