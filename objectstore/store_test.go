package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hash, err := store.Put([]byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("unexpected content: %s", got)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h1, err := store.Put([]byte("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := store.Put([]byte("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %s vs %s", h1, h2)
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hash, err := store.Put([]byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.pathFor(hash), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = store.Get(hash)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

type fakeUploader struct {
	uploaded map[string][]byte
	failNext bool
}

func (f *fakeUploader) Upload(ctx context.Context, key string, body io.Reader) error {
	if f.failNext {
		return errors.New("simulated upload failure")
	}
	b, _ := io.ReadAll(body)
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[key] = b
	return nil
}

func TestMirrorUploadsAlongsideLocalPut(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{}
	mirror := NewMirror(store, up)

	hash, err := mirror.Put(context.Background(), []byte("mirrored"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(up.uploaded[hash], []byte("mirrored")) {
		t.Fatalf("expected mirror to receive the same bytes")
	}
}

func TestMirrorUploadFailureDoesNotFailPut(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{failNext: true}
	mirror := NewMirror(store, up)

	hash, err := mirror.Put(context.Background(), []byte("still local"))
	if err == nil {
		t.Fatal("expected a non-fatal error to be returned for visibility")
	}
	if !store.Has(hash) {
		t.Fatal("expected local store to retain the object despite mirror failure")
	}
}
