package landing

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store serves landed files from an S3 bucket laid out as
// <prefix>/<dataset>/<file>.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds the bucket coordinates for an S3-backed landing store.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// NewS3Store builds a store using the ambient AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("landing bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) ListNewObjects(ctx context.Context, dataset string, since time.Time) ([]Object, error) {
	prefix := path.Join(s.prefix, dataset) + "/"

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, item := range page.Contents {
			if item.Key == nil || strings.HasSuffix(*item.Key, "/") {
				continue
			}
			modified := time.Time{}
			if item.LastModified != nil {
				modified = *item.LastModified
			}
			if !modified.After(since) {
				continue
			}
			var size int64
			if item.Size != nil {
				size = *item.Size
			}
			objects = append(objects, Object{
				Dataset:      dataset,
				Key:          strings.TrimPrefix(*item.Key, prefix),
				Size:         size,
				LastModified: modified,
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
	return objects, nil
}

func (s *S3Store) Read(ctx context.Context, obj Object) (io.ReadCloser, error) {
	key := path.Join(s.prefix, obj.Dataset, obj.Key)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", s.bucket, key, err)
	}
	return result.Body, nil
}
