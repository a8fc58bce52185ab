package cloudflare

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"galvan_backend/pkg/config"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Storage writes objects to a Cloudflare R2 bucket through the S3 API.
type R2Storage struct {
	client    putObjectAPI
	bucket    string
	publicURL string
}

func NewR2Storage(ctx context.Context, cfg config.StorageConfig) (*R2Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
		o.Region = "auto"
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", cfg.AccountID, cfg.BucketName)
	}

	return &R2Storage{client: client, bucket: cfg.BucketName, publicURL: publicURL}, nil
}

// Upload stores body under a unique variant of key and returns its URL.
func (r *R2Storage) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := uniqueKey(key)

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("could not upload file to R2: %w", err)
	}

	return r.publicURL + "/" + objectKey, nil
}

// uniqueKey slugifies every path segment and appends a short id to the
// file name so repeated exports never overwrite each other.
func uniqueKey(key string) string {
	dir, file := path.Split(key)
	ext := path.Ext(file)
	name := slug.Make(strings.TrimSuffix(file, ext))
	if name == "" {
		name = "file"
	}

	var segments []string
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if s := slug.Make(seg); s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments, fmt.Sprintf("%s-%s%s", name, uuid.NewString()[:8], strings.ToLower(ext)))
	return strings.Join(segments, "/")
}
