// Package s3backend implements the splitstore.Backend Storage ABI
// against an S3-compatible object store. Grounded on
// _examples/evalgo-org-eve/storage/s3aws.go's aws-sdk-go-v2 client
// construction and PutObject/GetObject/ListObjectsV2 usage, trimmed to
// the six operations the core actually needs.
package s3backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/duskline/duskline/internal/splitstore"
)

// Config holds the connection parameters for one bucket. Endpoint and
// UsePathStyle are set for non-AWS S3-compatible deployments (MinIO,
// on-prem).
type Config struct {
	Bucket string
	Region string
	Endpoint string // empty uses AWS's default resolution
	AccessKey string
	SecretKey string
	UsePathStyle bool
}

// Backend is a splitstore.Backend over one S3 bucket.
type Backend struct {
	client *s3.Client
	bucket string
}

// New builds a Backend from cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	var optFns []func(*config.LoadOptions) error
	optFns = append(optFns, config.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		optFns = append(optFns, config.WithEndpointResolverWithOptions(
				aws.EndpointResolverWithOptionsFunc(func(service, region string, options...interface{}) (aws.Endpoint, error) {
						return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region, HostnameImmutable: true}, nil
		})))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3backend: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.UsePathStyle
	})
	return &Backend{client: client, bucket: cfg.Bucket}, nil
}

var _ splitstore.Backend = (*Backend)(nil)

func (b *Backend) Put(ctx context.Context, path string, payload io.Reader) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key: aws.String(path),
			Body: payload,
	})
	if err != nil {
		return fmt.Errorf("s3backend: put %s: %w", path, err)
	}
	return nil
}

func (b *Backend) GetSlice(ctx context.Context, path string, r splitstore.ByteRange) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key: aws.String(path),
			Range: aws.String(rangeHeader),
	})
	if err != nil {
		return nil, fmt.Errorf("s3backend: get_slice %s %v: %w", path, r, err)
	}
	defer out.Body.Close()
	buf := make([]byte, 0, r.End-r.Start)
	w := bytes.NewBuffer(buf)
	if _, err := io.Copy(w, out.Body); err != nil {
		return nil, fmt.Errorf("s3backend: reading slice of %s: %w", path, err)
	}
	return w.Bytes(), nil
}

func (b *Backend) CopyToFile(ctx context.Context, path, localPath string) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key: aws.String(path),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("s3backend: object %s not found: %w", path, err)
		}
		return fmt.Errorf("s3backend: get %s: %w", path, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("s3backend: creating %s: %w", localPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("s3backend: copying %s to %s: %w", path, localPath, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key: aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3backend: delete %s: %w", path, err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key: aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3backend: head %s: %w", path, err)
	}
	return true, nil
}

func (b *Backend) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket: aws.String(b.bucket),
				Prefix: aws.String(prefix),
				ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3backend: list_prefix %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && !strings.HasSuffix(*obj.Key, "/") {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}
