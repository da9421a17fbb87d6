package objectstore

import (
	"bytes"
	"context"
	"testing"
)

func TestS3UploaderUsesMockClient(t *testing.T) {
	mock := NewMockS3Client()
	uploader := &s3Uploader{client: mock, bucket: "evidence-mirror", prefix: "docs"}

	if err := uploader.Upload(context.Background(), "deadbeef", bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatal(err)
	}
	if !mock.PutObjectCalled {
		t.Fatal("expected PutObject to be invoked")
	}
	if mock.LastBucket != "evidence-mirror" {
		t.Fatalf("unexpected bucket: %s", mock.LastBucket)
	}
	if mock.LastObjectKey != "docs/deadbeef" {
		t.Fatalf("unexpected key: %s", mock.LastObjectKey)
	}
	obj, ok := mock.Objects["docs/deadbeef"]
	if !ok {
		t.Fatal("expected object to be recorded")
	}
	if obj.Content != "payload" {
		t.Fatalf("unexpected content: %s", obj.Content)
	}
}
