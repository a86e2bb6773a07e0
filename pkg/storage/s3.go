package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gabriel-vasile/mimetype"
)

// S3Config describes the bucket car images are uploaded to
type S3Config struct {
	Bucket               string `mapstructure:"bucket"`
	Region               string `mapstructure:"region"`
	Endpoint             string `mapstructure:"endpoint"`
	UsePathStyleEndpoint bool   `mapstructure:"use_path_style_endpoint"`
	AccessKey            string `mapstructure:"access_key"`
	SecretKey            string `mapstructure:"secret_key"`
	// PublicURL is the prefix object URLs are built from. Derived from the
	// endpoint and bucket when empty.
	PublicURL string `mapstructure:"public_url"`
	ACL       string `mapstructure:"acl"`
}

// S3Objects stores images in an S3 compatible bucket
type S3Objects struct {
	svc     s3iface.S3API
	bucket  string
	baseURL string
	acl     string
}

// NewS3Objects wraps an existing S3 client
func NewS3Objects(svc s3iface.S3API, bucket, baseURL, acl string) *S3Objects {
	return &S3Objects{
		svc:     svc,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		acl:     acl,
	}
}

// OpenS3Objects creates an S3 session from config
func OpenS3Objects(cfg S3Config) (*S3Objects, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.UsePathStyleEndpoint),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to create session: %w", err)
	}

	return NewS3Objects(s3.New(sess), cfg.Bucket, publicURL(cfg), cfg.ACL), nil
}

func publicURL(cfg S3Config) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
		if cfg.UsePathStyleEndpoint {
			return endpoint + "/" + cfg.Bucket
		}
		scheme, host, found := strings.Cut(endpoint, "://")
		if !found {
			return "https://" + cfg.Bucket + "." + endpoint
		}
		return scheme + "://" + cfg.Bucket + "." + host
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

// Put uploads the object with a content type sniffed from its bytes
func (s *S3Objects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	contentType := mimetype.Detect(data).String()
	input := &s3.PutObjectInput{
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		Bucket:      aws.String(s.bucket),
		ContentType: aws.String(contentType),
	}
	if s.acl != "" {
		input.ACL = aws.String(s.acl)
	}

	if _, err := s.svc.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}

	return s.baseURL + "/" + key, nil
}

// Get downloads the object behind a URL returned by Put
func (s *S3Objects) Get(ctx context.Context, url string) ([]byte, error) {
	key, err := s.keyFromURL(url)
	if err != nil {
		return nil, err
	}

	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 download %s: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Delete removes the object behind a URL returned by Put
func (s *S3Objects) Delete(ctx context.Context, url string) error {
	key, err := s.keyFromURL(url)
	if err != nil {
		return err
	}

	_, err = s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Objects) keyFromURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return "", fmt.Errorf("%w: %s is not in bucket %s", ErrInvalidKey, url, s.bucket)
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
