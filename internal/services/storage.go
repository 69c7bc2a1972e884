package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const archivePrefix = "sensor-logs"

// Archiver stores a finished sensor log and returns where it went
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// StorageConfig selects S3 when credentials and a bucket are present
type StorageConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	LocalDir        string
}

// InitStorage initializes either S3 or local storage based on configuration
func InitStorage(cfg StorageConfig) (Archiver, error) {
	if cfg.Region != "" && cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" && cfg.Bucket != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"", // Token (optional)
			),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %v", err)
		}

		log.Println("AWS S3 log archive initialized successfully")
		return &S3Archiver{uploader: s3manager.NewUploader(sess), bucket: cfg.Bucket, region: cfg.Region}, nil
	}

	// Fallback to local storage
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %v", err)
	}
	log.Println("AWS S3 not configured. Archiving sensor logs locally")
	return &LocalArchiver{Dir: cfg.LocalDir}, nil
}

// s3Uploader is the part of *s3manager.Uploader used here
type s3Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Archiver uploads logs under sensor-logs/ in a bucket
type S3Archiver struct {
	uploader s3Uploader
	bucket   string
	region   string
}

func (a *S3Archiver) Archive(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer f.Close()

	key := archivePrefix + "/" + filepath.Base(path)
	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key), nil
}

// LocalArchiver copies logs into a directory
type LocalArchiver struct {
	Dir string
}

func (a *LocalArchiver) Archive(_ context.Context, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %v", err)
	}
	defer src.Close()

	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %v", err)
	}
	dstPath := filepath.Join(a.Dir, filepath.Base(path))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}
	return dstPath, nil
}
