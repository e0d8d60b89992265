// This file implements UploadService: pre-processing validation of document
// and image uploads, and the S3-compatible archive for accepted files.
package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sc "github.com/akimychev/converse/internal/server/config"
	"github.com/google/uuid"

	"github.com/akimychev/converse/internal/common"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Upload carries one client-submitted file through validation and archival.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Accepted document extensions. Images are matched by MIME prefix instead.
var documentExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".pptx": {},
}

const imageMIMEPrefix = "image/"

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// UploadService enforces the upload constraints (type and size) before any
// processing happens, and archives accepted files to S3-compatible storage.
type UploadService struct {
	config *sc.Config
}

// NewUploadService constructs an UploadService from server config.
func NewUploadService(cfg *sc.Config) *UploadService {
	return &UploadService{config: cfg}
}

// ValidateDocument rejects anything that is not an accepted document type or
// exceeds the size ceiling. Runs before extraction, so an oversize or
// mistyped file never reaches any collaborator.
func (s *UploadService) ValidateDocument(u Upload) error {
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if _, ok := documentExtensions[ext]; !ok {
		return fmt.Errorf("%w: unsupported document type %q", common.ErrInvalidUpload, ext)
	}
	return s.validateSize(u)
}

// ValidateImage rejects non-image MIME types and oversize payloads.
func (s *UploadService) ValidateImage(u Upload) error {
	if !strings.HasPrefix(u.ContentType, imageMIMEPrefix) {
		return fmt.Errorf("%w: unsupported content type %q", common.ErrInvalidUpload, u.ContentType)
	}
	return s.validateSize(u)
}

func (s *UploadService) validateSize(u Upload) error {
	if u.Size > s.config.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", common.ErrInvalidUpload, u.Size, s.config.MaxUploadBytes)
	}
	return nil
}

// RandomStorageKey partitions archived uploads by date.
func RandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *UploadService) getS3Client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	}), nil
}

// Archive stores the upload under a fresh storage key and returns the key.
func (s *UploadService) Archive(ctx context.Context, u Upload) (string, error) {
	client, err := s.getS3Client()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := RandomStorageKey()

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(u.Data),
		ContentType: aws.String(u.ContentType),
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

// GetPresignedGetUrl returns a time-limited download URL for an archived
// upload.
func (s *UploadService) GetPresignedGetUrl(ctx context.Context, key string) (string, error) {
	client, err := s.getS3Client()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
