package storage

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// attachmentDir is the namespace under the storage root where uploads live,
// kept separate from any other stored content.
const attachmentDir = "attachments"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// AttachmentStore persists uploaded files and resolves them back for download.
type AttachmentStore interface {
	Save(name string, r io.Reader) (string, error)
	Delete(ref string) error
	Open(ref string) (io.ReadCloser, error)
	Exists(ref string) bool
}

// DiskStore is an AttachmentStore backed by a local directory.
type DiskStore struct {
	root string
}

// NewDiskStore creates a DiskStore rooted at the given directory and makes
// sure the attachment namespace exists.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, attachmentDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Save writes the uploaded file under a sanitized, collision-proof name and
// returns the stored reference. The reference is an opaque relative path such
// as "attachments/report_5f3c…e2.pdf".
func (s *DiskStore) Save(name string, r io.Reader) (string, error) {
	fileName := StoredName(name)
	ref := attachmentDir + "/" + fileName

	f, err := os.Create(filepath.Join(s.root, attachmentDir, fileName))
	if err != nil {
		return "", fmt.Errorf("failed to create attachment file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return ref, nil
}

// Delete removes the backing file. Deleting a reference that no longer
// exists is not an error.
func (s *DiskStore) Delete(ref string) error {
	err := os.Remove(s.path(ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// Open returns a reader over the stored file.
func (s *DiskStore) Open(ref string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, nil
}

// Exists reports whether the backing file is present.
func (s *DiskStore) Exists(ref string) bool {
	_, err := os.Stat(s.path(ref))
	return err == nil
}

func (s *DiskStore) path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// StoredName builds the on-disk filename for a client-supplied name: the name
// portion is sanitized to [A-Za-z0-9._-], the extension is kept, and a UUID
// suffix guarantees uniqueness across uploads of the same name.
func StoredName(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = unsafeChars.ReplaceAllString(stem, "_")
	if stem == "" {
		stem = "file"
	}
	return stem + "_" + uuid.New().String() + ext
}

// BaseName returns the stored filename portion of a reference, used as the
// download filename.
func BaseName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// MimeType derives the content type from the reference's extension.
func MimeType(ref string) string {
	if t := mime.TypeByExtension(filepath.Ext(ref)); t != "" {
		return t
	}
	return "application/octet-stream"
}
