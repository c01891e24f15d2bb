package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/allisson/secrets/internal/clouderror"
	credDomain "github.com/allisson/secrets/internal/credentials/domain"
)

// S3Store implements Store against an S3-compatible bucket. A fresh
// s3.Client is built per call from the credentials passed in, since STS
// credentials rotate independently of the store's own lifetime.
type S3Store struct {
	bucket string
	region string
}

// NewS3Store creates an S3Store targeting bucket in region.
func NewS3Store(bucket, region string) *S3Store {
	return &S3Store{bucket: bucket, region: region}
}

func (s *S3Store) buildClient(creds credDomain.STSCredentials) *s3.Client {
	provider := awscreds.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	)

	return s3.New(s3.Options{
		Region:      s.region,
		Credentials: provider,
		UsePathStyle: creds.EndpointOverride != "",
		BaseEndpoint: endpointOrNil(creds.EndpointOverride),
	})
}

func endpointOrNil(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}

// Upload writes data to key, failing fast without a network call if creds
// have already expired.
func (s *S3Store) Upload(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
	data []byte,
) error {
	if creds.IsExpired() {
		return clouderror.ErrCredentialExpired
	}

	client := s.buildClient(creds)
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return clouderror.New(clouderror.S3, fmt.Sprintf("upload failed for %s: %s", key, err))
	}
	return nil
}

// Download reads the object at key.
func (s *S3Store) Download(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
) ([]byte, error) {
	if creds.IsExpired() {
		return nil, clouderror.ErrCredentialExpired
	}

	client := s.buildClient(creds)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, clouderror.New(clouderror.S3, fmt.Sprintf("download failed for %s: %s", key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, clouderror.New(clouderror.S3, fmt.Sprintf("failed to read body for %s: %s", key, err))
	}
	return data, nil
}

// Exists reports whether an object exists at key via HEAD. A not-found
// response is translated to (false, nil) rather than an error.
func (s *S3Store) Exists(
	ctx context.Context,
	creds credDomain.STSCredentials,
	key string,
) (bool, error) {
	if creds.IsExpired() {
		return false, clouderror.ErrCredentialExpired
	}

	client := s.buildClient(creds)
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, clouderror.New(clouderror.S3, fmt.Sprintf("head object failed for %s: %s", key, err))
}

// ListKeys lists every object key under prefix, paginating as needed.
func (s *S3Store) ListKeys(
	ctx context.Context,
	creds credDomain.STSCredentials,
	prefix string,
) ([]string, error) {
	if creds.IsExpired() {
		return nil, clouderror.ErrCredentialExpired
	}

	client := s.buildClient(creds)
	var keys []string
	var continuationToken *string

	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, clouderror.New(clouderror.S3, fmt.Sprintf("list keys failed for prefix %s: %s", prefix, err))
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return keys, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
