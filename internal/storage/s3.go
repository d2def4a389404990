package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the S3 call the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads podcasts to <prefix>/<job_id>.wav in a bucket.
type S3Mirror struct {
	client     PutObjectAPI
	bucket     string
	prefix     string
	cdnBaseURL string
}

func NewS3Mirror(client PutObjectAPI, bucket, prefix, cdnBaseURL string) *S3Mirror {
	return &S3Mirror{
		client:     client,
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
	}
}

func (m *S3Mirror) Upload(ctx context.Context, jobID, file string) (key, url string, err error) {
	key = path.Join(m.prefix, jobID+".wav")

	f, err := os.Open(file)
	if err != nil {
		return "", "", fmt.Errorf("open podcast: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", fmt.Errorf("stat podcast: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &m.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String("audio/wav"),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", "", fmt.Errorf("upload to s3: %w", err)
	}

	if m.cdnBaseURL != "" {
		url = m.cdnBaseURL + "/" + key
	} else {
		url = fmt.Sprintf("s3://%s/%s", m.bucket, key)
	}
	return key, url, nil
}
