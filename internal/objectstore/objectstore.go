// Package objectstore keeps news media and e-paper files in S3-compatible buckets.
package objectstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
)

const (
	BucketNewsMedia = "news-media"
	BucketEpaper    = "epaper-pdf"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string

	// Base for public object URLs. Endpoint is used when empty
	PublicURL string
}

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Store struct {
	client    s3Client
	presign   presigner
	publicURL string
}

// New returns store for the configuration
// Store without credentials is created disabled: every call returns apperrors.ErrStorageUnavailable
func New(cfg Config) *Store {
	s := &Store{publicURL: strings.TrimRight(cmp.Or(cfg.PublicURL, cfg.Endpoint), "/")}

	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return s
	}

	opts := s3.Options{
		Region:       cmp.Or(cfg.Region, "us-east-1"),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.New(opts)
	s.client = client
	s.presign = s3.NewPresignClient(client)

	return s
}

func (s *Store) Enabled() bool {
	return s.client != nil
}

// Put object and return its public URL
func (s *Store) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error) {
	if !s.Enabled() {
		return "", apperrors.ErrStorageUnavailable
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}

	return s.PublicURL(bucket, key), nil
}

// Remove objects. Missing objects are not an error
func (s *Store) Remove(ctx context.Context, bucket string, keys ...string) error {
	if !s.Enabled() {
		return apperrors.ErrStorageUnavailable
	}

	var errs []error
	for _, key := range keys {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s/%s: %w", bucket, key, err))
		}
	}

	return errors.Join(errs...)
}

// List every object under prefix
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if !s.Enabled() {
		return nil, apperrors.ErrStorageUnavailable
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// Has to return apperrors.ErrObjectNotFound if object not exists
func (s *Store) Stat(ctx context.Context, bucket, key string) (Object, error) {
	if !s.Enabled() {
		return Object{}, apperrors.ErrStorageUnavailable
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return Object{}, apperrors.ErrObjectNotFound
		}
		return Object{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}

	return Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// URL of object in public bucket
func (s *Store) PublicURL(bucket, key string) string {
	return s.publicURL + "/" + url.PathEscape(bucket) + "/" + escapeKey(key)
}

// Time-limited GET URL. Object has to exist
func (s *Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, bucket, key); err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, key, err)
	}

	return req.URL, nil
}

// Time-limited PUT URL, so the client may upload large file directly
func (s *Store) SignedUploadURL(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", apperrors.ErrStorageUnavailable
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("sign upload %s/%s: %w", bucket, key, err)
	}

	return req.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
