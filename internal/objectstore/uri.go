package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidURI = errors.New("invalid s3 uri")

const s3Scheme = "s3://"

// ParseS3URI splits s3://bucket/key into its parts. The key may be empty.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, s3Scheme) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: missing bucket in %q", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

func S3URI(bucket, key string) string {
	return s3Scheme + bucket + "/" + key
}
