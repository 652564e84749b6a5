// Package s3 stores snapshots as objects in a single S3 or MinIO bucket.
// Checksum and document name travel as user metadata.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"shieldcore/internal/blob/core"
)

const (
	metaDocument = "document"
	metaChecksum = "sha256"
)

// Config is filled from the SHIELDCORE_S3_* variables.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Store is an S3 core.Store.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a client from cfg. Without static keys the default credential
// chain applies.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 snapshot store: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 snapshot store: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Create relies on a conditional write so an existing key is never replaced.
func (s *Store) Create(ctx context.Context, key, document string, data []byte) (core.Object, error) {
	if err := core.CheckKey(key); err != nil {
		return core.Object{}, err
	}
	sum := core.Checksum(data)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/yaml"),
		IfNoneMatch:   aws.String("*"),
		Metadata:      map[string]string{metaDocument: document, metaChecksum: sum},
	})
	if err != nil {
		return core.Object{}, translate(err, key)
	}
	return s.Stat(ctx, key)
}

func (s *Store) Load(ctx context.Context, key string) (core.Object, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Object{}, nil, translate(err, key)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return core.Object{}, nil, fmt.Errorf("read %s: %w", key, err)
	}
	obj := core.Object{
		Key:      key,
		Document: out.Metadata[metaDocument],
		Size:     int64(len(data)),
		Checksum: out.Metadata[metaChecksum],
		Modified: aws.ToTime(out.LastModified),
	}
	return obj, data, nil
}

func (s *Store) Stat(ctx context.Context, key string) (core.Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return core.Object{}, translate(err, key)
	}
	return core.Object{
		Key:      key,
		Document: out.Metadata[metaDocument],
		Size:     aws.ToInt64(out.ContentLength),
		Checksum: out.Metadata[metaChecksum],
		Modified: aws.ToTime(out.LastModified),
	}, nil
}

// Remove checks for the object first because DeleteObject succeeds on
// missing keys.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.Stat(ctx, key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return translate(err, key)
}

// List pages through the bucket listing. Listings carry no user metadata, so
// Document and Checksum stay empty; Stat returns them.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Object, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []core.Object
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Contents {
			out = append(out, core.Object{
				Key:      aws.ToString(item.Key),
				Size:     aws.ToInt64(item.Size),
				Modified: aws.ToTime(item.LastModified),
			})
		}
	}
	core.SortByKey(out)
	return out, nil
}

// translate maps HTTP status codes onto the store sentinels.
func translate(err error, key string) error {
	if err == nil {
		return nil
	}
	var resp *awshttp.ResponseError
	if errors.As(err, &resp) {
		switch resp.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", core.ErrExists, key)
		}
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}
