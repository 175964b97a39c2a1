// Package fileid derives stable document IDs for files ingested in place.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes file document IDs away from random (v4) IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tcmkb:file"))

// DocumentID returns a stable UUID for the file at path within a knowledge base.
// The same knowledge base and cleaned path always yield the same ID, so
// re-ingesting a changed file replaces its previous document.
func DocumentID(kbID, path string) string {
	return uuid.NewSHA1(namespace, []byte(kbID+"\x00"+filepath.Clean(path))).String()
}
