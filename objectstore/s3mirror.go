package objectstore

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3MirrorConfig configures the optional off-box mirror backend. Trimmed
// down from the teacher's multi-cloud (LakeFS/MinIO/Hetzner/S3) storage
// package to the single concern this engine needs: an S3-compatible
// bucket holding a durability copy of the content-addressed store.
type S3MirrorConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: non-AWS S3-compatible endpoint
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string // optional: prefix under which objects are mirrored
}

// s3Uploader adapts S3Client to MirrorUploader.
type s3Uploader struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Mirror builds a MirrorUploader backed by AWS SDK v2, suitable for
// passing to NewMirror. Connection construction (static credentials,
// optional custom endpoint) follows the pattern in the teacher's storage
// package, trimmed to a single bucket/region pair.
func NewS3Mirror(ctx context.Context, cfg S3MirrorConfig) (MirrorUploader, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &s3Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, key string, body io.Reader) error {
	fullKey := key
	if u.prefix != "" {
		fullKey = u.prefix + "/" + key
	}
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &u.bucket,
		Key:    &fullKey,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("objectstore: s3 put %q: %w", fullKey, err)
	}
	return nil
}
