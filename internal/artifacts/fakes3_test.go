package artifacts

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// newFakeS3Store points an S3Store at an in-memory gofakes3 bucket through
// the same S3Config path FromConfig uses for S3-compatible endpoints.
func newFakeS3Store(t testing.TB, bucket string) *S3Store {
	t.Helper()

	srv := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := NewS3Store(ctx, S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "e2e",
		SecretAccessKey: "e2e",
		BucketName:      bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	if _, err := store.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	return store
}
