package source

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"
)

// S3API is the subset of the S3 client used to download archives.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// IsS3URI returns true if text starts with s3://.
func IsS3URI(text string) bool {
	return strings.HasPrefix(text, "s3://")
}

// ParseS3URI parses S3 URIs in format s3://bucket/key.
func ParseS3URI(text string) (bucket, key string, err error) {
	if !IsS3URI(text) {
		return "", "", fmt.Errorf("text does not start with s3://")
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(text, "s3://"), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key, got %q", text)
	}

	return
}

func loadS3(ctx context.Context, uri string, opts *Options) (*bytebufferpool.ByteBuffer, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		if client, err = opts.Loader.NewS3ClientForBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("create s3 client error: %w", err)
		}
	}

	owner := opts.Loader.ForBucket(bucket).ExpectedBucketOwner

	headObjectOutput, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: owner,
	})
	if err != nil {
		return nil, fmt.Errorf("get object metadata error: %w", err)
	}
	size := aws.ToInt64(headObjectOutput.ContentLength)

	opts.Logger.Printf(`downloading %d bytes from "%s"`, size, uri)

	dl := DownloadAPIClient{DownloadAPIClient: client}
	if opts.Progress {
		bar := defaultBytes(size, "downloading")
		defer bar.Close()
		dl.PostGetObject = func(output *s3.GetObjectOutput, err error) {
			if err == nil {
				_ = bar.Add64(aws.ToInt64(output.ContentLength))
			}
		}
	} else {
		var (
			downloaded atomic.Int64
			sometimes  = rate.Sometimes{Interval: 5 * time.Second}
		)
		dl.PostGetObject = func(output *s3.GetObjectOutput, err error) {
			if err != nil {
				return
			}

			n := downloaded.Add(aws.ToInt64(output.ContentLength))
			sometimes.Do(func() {
				opts.Logger.Printf("downloaded %s/%s so far", humanize.IBytes(uint64(n)), humanize.IBytes(uint64(size)))
			})
		}
	}

	bb := bytebufferpool.Get()
	w := manager.NewWriteAtBuffer(bb.B[:0])
	if _, err = manager.NewDownloader(dl, func(d *manager.Downloader) {
		if opts.Concurrency > 0 {
			d.Concurrency = opts.Concurrency
		}
	}).Download(ctx, w, &s3.GetObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: owner,
		IfMatch:             headObjectOutput.ETag,
	}); err != nil {
		bytebufferpool.Put(bb)
		return nil, fmt.Errorf("download object error: %w", err)
	}

	bb.B = w.Bytes()
	return bb, nil
}

// DownloadAPIClient provides pre- and post- hooks on the methods that manager.Downloader may call.
//
// The hooks may be called from any of the goroutines downloading parts in parallel.
type DownloadAPIClient struct {
	manager.DownloadAPIClient
	PreGetObject  func(context.Context, *s3.GetObjectInput, ...func(*s3.Options))
	PostGetObject func(*s3.GetObjectOutput, error)
}

func (c DownloadAPIClient) GetObject(ctx context.Context, input *s3.GetObjectInput, f ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if c.PreGetObject != nil {
		c.PreGetObject(ctx, input, f...)
	}
	o, err := c.DownloadAPIClient.GetObject(ctx, input, f...)
	if c.PostGetObject != nil {
		c.PostGetObject(o, err)
	}
	return o, err
}

var _ manager.DownloadAPIClient = DownloadAPIClient{}
