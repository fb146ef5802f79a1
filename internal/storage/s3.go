// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage provides an S3-compatible archive for generated PDFs.
// It wraps the AWS SDK v2 and is configured for path-style access so it
// works against CEPH, MinIO and Hetzner object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultURLExpiry is how long presigned download links stay valid.
const DefaultURLExpiry = 24 * time.Hour

// Archive stores compiled documents in a private bucket and hands out
// presigned links to them.
type Archive struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

// New creates an S3 archive configured with path-style addressing.
// Returns (nil, nil) if endpoint, credentials or bucket are empty, allowing
// the app to start without archiving.
func New(endpoint, region, accessKey, secretKey, bucket string, expiry time.Duration) (*Archive, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	// S3 caps presigned URLs at seven days.
	if expiry > 7*24*time.Hour {
		return nil, fmt.Errorf("presign expiry %s exceeds 7 days", expiry)
	}

	endpoint = strings.TrimRight(endpoint, "/")

	s3Client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &Archive{
		s3:        s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    bucket,
		expiry:    expiry,
	}, nil
}

// ObjectKey returns the key a document is archived under. Documents are
// content addressed, so recompiling identical input overwrites the same object.
func ObjectKey(templateID, digest string) string {
	return "documents/" + templateID + "/" + digest + ".pdf"
}

// Store uploads a PDF under key and returns a presigned download URL for it.
func (a *Archive) Store(ctx context.Context, key, fileName string, pdf []byte) (string, error) {
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(a.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(pdf),
		ContentLength:      aws.Int64(int64(len(pdf))),
		ContentType:        aws.String("application/pdf"),
		ContentDisposition: aws.String(ContentDisposition(fileName)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s/%s: %w", a.bucket, key, err)
	}
	return a.PresignedURL(ctx, key)
}

// PresignedURL generates a pre-signed GET URL for an archived document.
func (a *Archive) PresignedURL(ctx context.Context, key string) (string, error) {
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.expiry))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s/%s: %w", a.bucket, key, err)
	}
	return req.URL, nil
}

// Delete removes every archived document of a template.
func (a *Archive) Delete(ctx context.Context, templateID string) error {
	prefix := "documents/" + templateID + "/"
	paginator := s3.NewListObjectsV2Paginator(a.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list %s/%s: %w", a.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if _, err := a.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("s3 delete %s/%s: %w", a.bucket, aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}

// ContentDisposition builds an attachment header value for fileName.
// Quotes and backslashes are dropped so the quoted-string stays valid.
func ContentDisposition(fileName string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, fileName)
	return `attachment; filename="` + clean + `"`
}
