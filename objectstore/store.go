// Package objectstore implements the content-addressed document store: every
// ingested file lives at <root>/<hash[0:2]>/<hash>.bin, addressed by the
// SHA-256 of its bytes, written at most once per hash, and re-verified on
// every read.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"compliance.evalgo.org/canonical"
)

// ErrIntegrity is returned when the bytes read back from storage do not
// hash to the key they were stored under.
var ErrIntegrity = errors.New("objectstore: integrity check failed")

// Store is the content-addressed local filesystem store. It is the system
// of record for document bytes; Mirror optionally layers an off-box copy
// on top of it without changing the addressing contract.
type Store struct {
	root string
}

// New returns a Store rooted at dir. dir is created if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root %q: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) pathFor(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.root, hash, hash+".bin")
	}
	return filepath.Join(s.root, hash[:2], hash+".bin")
}

// Put stores b under its SHA-256 hex digest and returns that digest. If an
// object already exists at the computed hash, Put is a no-op (write-once
// semantics) — it does not rewrite or re-verify the existing file.
func (s *Store) Put(b []byte) (string, error) {
	hash := canonical.SHA256HexBytes(b)
	dest := s.pathFor(hash)

	if _, err := os.Stat(dest); err == nil {
		return hash, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("objectstore: stat %q: %w", dest, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create object dir: %w", err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write temp object: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("objectstore: finalize object: %w", err)
	}
	return hash, nil
}

// Get reads the object stored under hash and re-verifies its digest before
// returning it. A mismatch returns ErrIntegrity rather than the corrupted
// bytes.
func (s *Store) Get(hash string) ([]byte, error) {
	b, err := os.ReadFile(s.pathFor(hash))
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %q: %w", hash, err)
	}
	if got := canonical.SHA256HexBytes(b); got != hash {
		return nil, fmt.Errorf("%w: requested %s, read back %s", ErrIntegrity, hash, got)
	}
	return b, nil
}

// Has reports whether an object with the given hash is present, without
// reading or verifying its contents.
func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.pathFor(hash))
	return err == nil
}

// URI returns the storage_uri value recorded against a DocumentFile row for
// an object in this store (spec §3 DocumentFile.storage_uri).
func (s *Store) URI(hash string) string {
	return "file://" + s.pathFor(hash)
}

// ReadURI loads bytes from a storage_uri previously produced by URI,
// re-hashing and comparing against expectedHash. Used by the evidence-pack
// exporter, which must refuse to ship a document whose bytes have drifted
// from the hash recorded at ingestion time.
func ReadURI(uri string, expectedHash string) ([]byte, error) {
	const filePrefix = "file://"
	if len(uri) < len(filePrefix) || uri[:len(filePrefix)] != filePrefix {
		return nil, fmt.Errorf("objectstore: unsupported storage_uri scheme: %s", uri)
	}
	path := uri[len(filePrefix):]
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %q: %w", path, err)
	}
	if got := canonical.SHA256HexBytes(b); got != expectedHash {
		return nil, fmt.Errorf("%w: expected %s, read back %s", ErrIntegrity, expectedHash, got)
	}
	return b, nil
}

// MirrorUploader is the subset of behavior Mirror needs from an off-box
// backend. The uploader defined in s3mirror.go implements it with an
// Upload method on top of S3Client.
type MirrorUploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
}

// Mirror wraps a Store with a best-effort off-box copy. Reads are always
// served from the local Store; Put additionally uploads to the mirror
// under the same content-addressed key, so losing the mirror never affects
// correctness, only durability.
type Mirror struct {
	*Store
	uploader MirrorUploader
}

// NewMirror wraps store with an uploader. uploader may be nil, in which
// case Mirror behaves exactly like store.
func NewMirror(store *Store, uploader MirrorUploader) *Mirror {
	return &Mirror{Store: store, uploader: uploader}
}

// Put stores b locally (see Store.Put) then, if a mirror uploader is
// configured, uploads it under the same key. A mirror upload failure keeps
// the local copy and still returns the hash, together with the upload
// error wrapped as non-fatal: the local store remains the system of
// record and a missing mirror copy is not a correctness violation, only a
// durability gap the caller's logging should surface.
func (m *Mirror) Put(ctx context.Context, b []byte) (string, error) {
	hash, err := m.Store.Put(b)
	if err != nil {
		return "", err
	}
	if m.uploader == nil {
		return hash, nil
	}
	if err := m.uploader.Upload(ctx, hash, bytes.NewReader(b)); err != nil {
		return hash, fmt.Errorf("objectstore: mirror upload (non-fatal): %w", err)
	}
	return hash, nil
}
