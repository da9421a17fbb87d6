package objectstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the subset of the AWS S3 SDK client s3Uploader needs. The
// mirror is write-only — it exists to give the content-addressed store an
// off-box durability copy, never to read back through it — so only
// PutObject is abstracted here for dependency injection and mock testing.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}
