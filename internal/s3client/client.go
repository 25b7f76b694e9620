// Package s3client uploads walkthrough artifacts (screenshots and JSON
// reports) to an S3-compatible bucket. Tests use gofakes3 via TestClient.
package s3client

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Artifacts are written once per run and never revised.
const cacheControl = "public, max-age=31536000, immutable"

// Client uploads artifacts to one bucket.
type Client struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
}

// Config holds the bucket settings.
type Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty for AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is where uploaded artifacts can be viewed.
	PublicURL string
	// UsePathStyle enables path-style addressing (MinIO, Tigris, gofakes3).
	UsePathStyle bool
}

// New creates a Client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newClient(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

func newClient(s3Client *s3.Client, bucketName, publicURL string) *Client {
	return &Client{
		s3Client:   s3Client,
		bucketName: bucketName,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
	}
}

// ContentType maps an artifact key to the content type it is served with.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json; charset=utf-8"
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Upload stores data under key and returns its public URL.
func (c *Client) Upload(ctx context.Context, key string, data []byte) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3client: empty artifact key")
	}
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType(key)),
		CacheControl:  aws.String(cacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("s3client: failed to upload %q: %w", key, err)
	}
	return c.PublicURL(key), nil
}

// PublicURL returns the URL an uploaded key is served from.
func (c *Client) PublicURL(key string) string {
	return c.publicURL + "/" + strings.TrimPrefix(key, "/")
}
