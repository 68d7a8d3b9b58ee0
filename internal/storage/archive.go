// Package storage archives raw uploaded import files in S3.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 client used by the archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveConfig configures the upload archive.
type ArchiveConfig struct {
	Bucket   string
	Prefix   string // e.g. "imports/"
	Compress bool
}

// Archive stores uploaded files under <prefix>/<yyyy>/<mm>/<session>/<filename>.
type Archive struct {
	client   ObjectPutter
	bucket   string
	prefix   string
	compress bool
	now      func() time.Time
}

// NewArchive wraps an existing S3 client.
func NewArchive(client ObjectPutter, cfg ArchiveConfig) *Archive {
	return &Archive{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		compress: cfg.Compress,
		now:      time.Now,
	}
}

// NewS3Client builds an S3 client from the default AWS configuration.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	if region == "" {
		region = "eu-west-3"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// Key returns the object key used for a session's upload.
func (a *Archive) Key(sessionID, filename string) string {
	t := a.now().UTC()
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload.csv"
	}
	if a.compress {
		name += ".gz"
	}
	key := path.Join(t.Format("2006"), t.Format("01"), sessionID, name)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	return key
}

// Put stores the raw upload and returns its key. S3 user metadata must be
// ASCII, so the filename and uploader are stored percent-encoded.
func (a *Archive) Put(ctx context.Context, sessionID, filename, uploadedBy string, content []byte) (string, error) {
	key := a.Key(sessionID, filename)
	body := content
	contentType := "text/csv; charset=utf-8"
	if a.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(content); err != nil {
			return "", fmt.Errorf("compress upload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return "", fmt.Errorf("compress upload: %w", err)
		}
		body = buf.Bytes()
		contentType = "application/gzip"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"session-id":  sessionID,
			"uploaded-by": url.PathEscape(uploadedBy),
			"filename":    url.PathEscape(filename),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive upload %s: %w", key, err)
	}
	return key, nil
}
