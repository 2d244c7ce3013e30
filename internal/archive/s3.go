package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"seren/internal/capture"
	"seren/internal/config"
)

// s3API is the subset of the S3 client the archive reads with.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive stores receipts as objects named
// <prefix>/<terminalID>/<receiptID>.receipt in a single bucket.
type S3Archive struct {
	client   s3API
	uploader s3Uploader
	bucket   string
	prefix   string
}

// NewS3Archive builds an S3 client from cfg. Credentials fall back to the
// default AWS chain when no static keys are configured. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3Archive(client s3API, uploader s3Uploader, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, uploader: uploader, bucket: bucket, prefix: prefix}
}

func (a *S3Archive) objectKey(terminalID, receiptID string) string {
	return path.Join(a.prefix, terminalID, receiptID+".receipt")
}

// PutReceipt uploads a receipt document. Receipts are small, so the body is
// read fully and its size checked before anything reaches the bucket.
func (a *S3Archive) PutReceipt(ctx context.Context, terminalID, receiptID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading receipt: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.objectKey(terminalID, receiptID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading receipt: %w", err)
	}
	return nil
}

// GetReceipt downloads a receipt document into w.
func (a *S3Archive) GetReceipt(ctx context.Context, terminalID, receiptID string, w io.Writer) error {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(terminalID, receiptID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%w: %s/%s", capture.ErrReceiptNotFound, terminalID, receiptID)
		}
		return fmt.Errorf("downloading receipt: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading receipt: %w", err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (a *S3Archive) ValidateSetup(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

var _ capture.Archive = (*S3Archive)(nil)
