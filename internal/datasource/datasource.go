// Package datasource opens ingestion sources.
//
// Every source must be re-openable: ingestion reads the header and a sample
// in one pass and streams every row in a second pass from the start.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"csvload/internal/datasource/file"
	"csvload/internal/datasource/s3"
)

// Source yields a fresh reader positioned at the start of the data on every
// call to Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// FromURL picks a Source implementation by URL scheme.
//
// Supported forms:
//   - s3://bucket/key
//   - file:///abs/path or file://rel/path
//   - a plain filesystem path
//
// region is only used for s3 URLs; empty falls back to the AWS default chain.
func FromURL(ctx context.Context, raw, region string) (Source, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, fmt.Errorf("datasource: empty source")
	case strings.HasPrefix(raw, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(raw, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("datasource: s3 url must be s3://bucket/key, got %q", raw)
		}
		return s3.New(ctx, bucket, key, region)
	case strings.HasPrefix(raw, "file://"):
		return file.NewLocal(strings.TrimPrefix(raw, "file://")), nil
	case strings.Contains(raw, "://"):
		return nil, fmt.Errorf("datasource: unsupported scheme in %q", raw)
	default:
		return file.NewLocal(raw), nil
	}
}
