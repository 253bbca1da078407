// Package s3 reads ingestion sources from Amazon S3 objects.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// getObjectAPI is the subset of *s3.Client used here.
type getObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source streams one object. Each Open issues a new GetObject so the object
// can be read once for sampling and again for loading.
type Source struct {
	client getObjectAPI
	bucket string
	key    string
}

// New loads the default AWS config chain (env, shared config, IMDS).
func New(ctx context.Context, bucket, key, region string) (*Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Source{client: s3.NewFromConfig(cfg), bucket: bucket, key: key}, nil
}

func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", s.bucket, s.key, err)
	}
	return out.Body, nil
}

func (s *Source) Name() string { return "s3://" + s.bucket + "/" + s.key }
