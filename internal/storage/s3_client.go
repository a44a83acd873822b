// Package storage presigns attachment uploads and downloads against S3 compatible storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	casebridge_errors "casebridge/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	defaultPresignTTL = 15 * time.Minute
	MaxAttachmentSize = 25 << 20
)

// allowedContentTypes are the document formats accepted on case conversations.
var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"image/jpeg":         {},
	"image/png":          {},
	"image/heic":         {},
	"text/plain":         {},

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PresignTTL time.Duration
}

type Client struct {
	cfg     S3Config
	presign *s3.PresignClient
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		cfg:     cfg,
		presign: s3.NewPresignClient(s3Client),
	}, nil
}

// PresignPut returns an upload URL and the headers the client must send with it.
func (c *Client) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error) {
	if key == "" {
		return "", nil, fmt.Errorf("object key is required: %w", casebridge_errors.ErrInvalidInput)
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if sizeBytes > 0 {
		input.ContentLength = aws.Int64(sizeBytes)
	}

	presigned, err := c.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(c.cfg.PresignTTL))
	if err != nil {
		return "", nil, fmt.Errorf("presign put %s: %w", key, err)
	}

	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if sizeBytes > 0 {
		headers["Content-Length"] = strconv.FormatInt(sizeBytes, 10)
	}
	return presigned.URL, headers, nil
}

// PresignGet returns a time limited download URL for key.
func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required: %w", casebridge_errors.ErrInvalidInput)
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return presigned.URL, nil
}

func (c *Client) PresignTTL() time.Duration {
	return c.cfg.PresignTTL
}

// AttachmentKey builds the object key for a file uploaded to a conversation.
func AttachmentKey(conversationID uuid.UUID, fileName string) string {
	return path.Join("conversations", conversationID.String(), uuid.NewString()+"-"+sanitizeFileName(fileName))
}

func ValidateUpload(contentType string, sizeBytes int64) error {
	if _, ok := allowedContentTypes[strings.ToLower(contentType)]; !ok {
		return fmt.Errorf("content type %q is not accepted: %w", contentType, casebridge_errors.ErrInvalidInput)
	}
	if sizeBytes <= 0 || sizeBytes > MaxAttachmentSize {
		return fmt.Errorf("file size %d out of range: %w", sizeBytes, casebridge_errors.ErrInvalidInput)
	}
	return nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || name == "." || name == "/" {
		return "file"
	}
	return b.String()
}
