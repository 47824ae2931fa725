// Package exportsvc implements core.FileStore.
package exportsvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
)

// S3Store keeps exports in an S3-compatible bucket.
type S3Store struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
}

var _ core.FileStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, conf *core.Config) (*S3Store, error) {
	c := conf.S3
	if c.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}

	endpoint := c.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if c.DisableTLS {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = c.ForcePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &S3Store{api: client, presign: s3.NewPresignClient(client), bucket: c.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	return errors.Wrapf(err, "putting s3://%s/%s", s.bucket, key)
}

func (s *S3Store) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", errors.Wrapf(err, "presigning s3://%s/%s", s.bucket, key)
	}
	return req.URL, nil
}
