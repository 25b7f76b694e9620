package s3client

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestClient creates a Client backed by an in-memory gofakes3 server.
// The server is closed when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		),
	)
	if err != nil {
		t.Fatalf("failed to load AWS config: %v", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.URL)
		o.UsePathStyle = true
	})

	if _, err := s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}); err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}

	return newClient(s3Client, bucketName, ts.URL+"/"+bucketName)
}

// Artifact is an object as stored in the bucket.
type Artifact struct {
	Data        []byte
	ContentType string
}

// ReadArtifact fetches key from c's bucket, failing the test if it is missing.
func ReadArtifact(t testing.TB, c *Client, key string) Artifact {
	t.Helper()
	out, err := c.s3Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("artifact %q: %v", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read artifact %q: %v", key, err)
	}
	return Artifact{
		Data:        data,
		ContentType: aws.ToString(out.ContentType),
	}
}
