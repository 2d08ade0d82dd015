// Package storage talks to an S3-compatible object store. Records and
// minimaps are public downloads, so the bucket is forced to a public-read
// policy at startup.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/logger"
)

type S3Adapter struct {
	client *s3.Client
	bucket string
}

// New builds an adapter from config and ensures the bucket exists with a
// public-read policy. Missing endpoint or credentials is an error; callers
// that can run without an object store check for that before calling.
func New(ctx context.Context, cfg *config.Config) (*S3Adapter, error) {
	if cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("missing S3 endpoint or access key or secret key")
	}

	endpoint := cfg.S3Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "https"
		if !cfg.S3Secure {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	bucket := cfg.S3Bucket
	if bucket == "" {
		// Virtual-host style endpoints carry the bucket as the first label.
		bucket = strings.Split(strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "https://"), "http://"), ".")[0]
	}

	adapter := &S3Adapter{client: client, bucket: bucket}
	if err := adapter.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return adapter, nil
}

func (a *S3Adapter) Bucket() string {
	return a.bucket
}

func (a *S3Adapter) ensureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		if _, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Sid": "AddPublicReadCannedAcl",
			"Principal": "*",
			"Effect": "Allow",
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, a.bucket)

	_, err = a.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(a.bucket),
		Policy: aws.String(policy),
	})
	if err != nil {
		return fmt.Errorf("failed to set bucket policy on %s: %w", a.bucket, err)
	}
	return nil
}

// Exists checks whether a key is present in the bucket.
func (a *S3Adapter) Exists(ctx context.Context, key string) bool {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(cleanKey(key)),
	})
	return err == nil
}

// Put uploads body under key. body should be seekable (an *os.File or
// bytes.Reader) so the SDK can measure and sign it without buffering the
// whole object in memory.
func (a *S3Adapter) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(cleanKey(key)),
		Body:   body,
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Get returns a reader for the object, or nil if it does not exist.
func (a *S3Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(cleanKey(key)),
	})
	if err != nil {
		if !a.Exists(ctx, key) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes an object from the bucket.
func (a *S3Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(cleanKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	logger.Debugf("[S3] Removed %s from %s", key, a.bucket)
	return nil
}

// Object keys never start with a slash; config values kept the legacy
// leading-slash form for years, so strip it here.
func cleanKey(key string) string {
	return strings.TrimPrefix(key, "/")
}
