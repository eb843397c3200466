package storage

import (
	"context"
	"testing"

	appconfig "peptide-orchestrator/config"
)

func TestNewUploaderDisabledWithoutEndpoint(t *testing.T) {
	u, err := NewUploader(context.Background(), appconfig.StorageConfig{})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if u != nil {
		t.Fatalf("empty endpoint must disable the uploader")
	}
}

func TestNewUploaderEnabled(t *testing.T) {
	u, err := NewUploader(context.Background(), appconfig.StorageConfig{
		Endpoint:  "http://localhost:8333",
		Region:    "us-east-1",
		Bucket:    "peptide-jobs",
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if u == nil {
		t.Fatalf("expected a configured uploader")
	}
	if u.bucket != "peptide-jobs" {
		t.Fatalf("bucket = %q", u.bucket)
	}
}
