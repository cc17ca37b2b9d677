package gcs

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a bucket has no object under the
// requested name.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidURI is returned for URIs that are not of the form gs://bucket/path.
var ErrInvalidURI = errors.New("invalid GCS URI")

// ObjectStore provides the object operations the source and writer need.
// This interface enables mocking of Cloud Storage in tests.
type ObjectStore interface {
	// FetchObject downloads the bytes of bucket/object.
	FetchObject(ctx context.Context, bucket, object string) ([]byte, error)

	// WriteObject stores data under bucket/object, replacing any existing object.
	WriteObject(ctx context.Context, bucket, object string, data []byte, contentType string) error
}
