package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	appconfig "peptide-orchestrator/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader mirrors completed job outputs to an S3-compatible object store
// (SeaweedFS, MinIO, S3) under a jobs/{id}/... key convention.
type Uploader struct {
	client *s3.Client
	bucket string
}

// NewUploader builds an uploader from storage configuration. Returns nil
// when no endpoint is configured: mirroring is optional and a nil uploader
// disables it.
func NewUploader(ctx context.Context, cfg appconfig.StorageConfig) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // SeaweedFS/MinIO serve buckets path-style
	})

	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// MirrorOutputs uploads every file in the job's output tree to
// jobs/{jobID}/{relative path} and returns the job's result prefix.
func (u *Uploader) MirrorOutputs(ctx context.Context, jobID, outputDir string) (string, error) {
	prefix := fmt.Sprintf("jobs/%s", jobID)

	err := filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		if err := u.putFile(ctx, path, key); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		log.Printf("Mirrored %s -> s3://%s/%s", rel, u.bucket, key)
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s/", u.bucket, prefix), nil
}

func (u *Uploader) putFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}
