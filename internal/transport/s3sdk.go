package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// S3API is the subset of the S3 client the SDK driver uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SDKOptions tunes client construction. Empty values keep SDK defaults.
type S3SDKOptions struct {
	Region    string
	Endpoint  string // S3-compatible endpoint, e.g. https://minio.local:9000
	PathStyle bool
}

// S3SDK talks to S3 through the AWS SDK. Credentials come from the SDK's default chain.
// The client is built on first use so a node that never touches s3 needs no AWS config.
type S3SDK struct {
	opts S3SDKOptions

	once    sync.Once
	client  S3API
	initErr error
}

// NewS3SDK returns a lazily initialized SDK backend.
func NewS3SDK(opts S3SDKOptions) *S3SDK {
	return &S3SDK{opts: opts}
}

// NewS3SDKWithClient returns a backend using api directly.
func NewS3SDKWithClient(api S3API) *S3SDK {
	s := &S3SDK{client: api}
	s.once.Do(func() {})
	return s
}

func (s *S3SDK) api(ctx context.Context) (S3API, error) {
	s.once.Do(func() {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if s.opts.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(s.opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			s.initErr = syncerrors.TransportFailed("load aws config", "", err)
			return
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if s.opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.opts.Endpoint)
			}
			o.UsePathStyle = s.opts.PathStyle
		})
	})
	return s.client, s.initErr
}

func (s *S3SDK) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return "", err
	}
	api, err := s.api(ctx)
	if err != nil {
		return "", err
	}

	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), err)
	}
	tag := aws.ToString(out.ETag)
	if tag == "" {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), fmt.Errorf("object %s has no ETag", key))
	}
	return tag, nil
}

func (s *S3SDK) Pull(ctx context.Context, remote *url.URL) (io.ReadCloser, error) {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return nil, err
	}
	api, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, syncerrors.TransportFailed("pull", redact(remote), err)
	}
	return out.Body, nil
}

func (s *S3SDK) Push(ctx context.Context, r io.Reader, remote *url.URL) error {
	bucket, key, err := bucketKey(remote)
	if err != nil {
		return err
	}
	api, err := s.api(ctx)
	if err != nil {
		return err
	}

	// PutObject needs a seekable body to sign and checksum the payload.
	content, err := io.ReadAll(r)
	if err != nil {
		return syncerrors.TransportFailed("push", redact(remote), fmt.Errorf("read archive: %w", err))
	}

	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return syncerrors.TransportFailed("push", redact(remote), err)
	}
	return nil
}
