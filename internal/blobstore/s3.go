package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"handsign/internal/models"
)

// S3 stores blobs in a bucket; the locator doubles as the object key.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	names    *nameSeq
}

func NewS3(ctx context.Context, cfg models.S3Config, prefix string) (*S3, error) {
	const op = "blobstore.NewS3"

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%s: bucket name is required", op)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.CreateBucket {
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
				return nil, fmt.Errorf("%s: create bucket: %w", op, err)
			}
		}
	}

	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
		names:    newNameSeq(),
	}, nil
}

func (s *S3) Save(ctx context.Context, r io.Reader, ext string) (string, error) {
	const op = "blobstore.S3.Save"

	locator := path.Join(s.prefix, s.names.nextName(CleanExt(ext)))
	if err := s.upload(ctx, locator, r); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	return locator, nil
}

func (s *S3) Put(ctx context.Context, locator string, r io.Reader) error {
	const op = "blobstore.S3.Put"

	if _, err := relative(s.prefix, locator); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	if err := s.upload(ctx, locator, r); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	return nil
}

func (s *S3) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	const op = "blobstore.S3.Open"

	if _, err := relative(s.prefix, locator); err != nil {
		return nil, fmt.Errorf("%s: %w", op, fs.ErrNotExist)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", op, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("%s: %w", op, describe(err))
	}
	return out.Body, nil
}

func (s *S3) upload(ctx context.Context, key string, r io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   ctxReader{ctx: ctx, r: r},
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return describe(err)
	}
	return nil
}

// describe prefixes API failures with the service error code.
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
