package storage

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/tracing"
	"github.com/customeros/ticketstack/services/storage/aws_client"
)

// ObjectStore writes attachments to an S3 compatible bucket.
type ObjectStore struct {
	client  aws_client.S3Client
	bucket  string
	backend enum.StorageBackend
}

func NewObjectStore(client aws_client.S3Client, bucket string, backend enum.StorageBackend) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, backend: backend}
}

func (s *ObjectStore) Backend() string {
	return s.backend.String()
}

// EnsureRoot checks the bucket is reachable; buckets are provisioned externally.
func (s *ObjectStore) EnsureRoot(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStore.EnsureRoot")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.client.HeadBucket(ctx, s.bucket); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "bucket %s", s.bucket)
	}
	return nil
}

func (s *ObjectStore) Write(ctx context.Context, storagePath string, content io.Reader, contentType string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStore.Write")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("storage.key", objectKey(storagePath))

	counter := &countingReader{r: content}
	err := s.client.Upload(ctx, s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(storagePath)),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "upload attachment")
	}
	return counter.n, nil
}

func (s *ObjectStore) Delete(ctx context.Context, storagePath string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStore.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.client.Delete(ctx, s.bucket, objectKey(storagePath))
}

func objectKey(storagePath string) string {
	return path.Clean("/" + storagePath)[1:]
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
