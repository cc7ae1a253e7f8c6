// Package s3upl uploads finalized recording artifacts to S3 and returns
// their durable URLs.
package s3upl

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Tags describes a recording for later retrieval by the review backend.
type Tags struct {
	CourseID   string
	StudentID  string
	ExerciseID string
	QuestionID string
	Category   string
}

type Uploader struct {
	s3Client *s3.Client
	bucket   string
	region   string
}

func New(ctx context.Context, region string, bucket string) (*Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &Uploader{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
		region:   region,
	}, nil
}

// Upload stores the artifact under recordings/<key> with descriptive tags
// and returns the durable object URL.
func (u *Uploader) Upload(ctx context.Context, key string, artifact []byte, tags Tags) (string, error) {
	objKey := "recordings/" + key

	tagging := url.Values{}
	tagging.Set("course", tags.CourseID)
	tagging.Set("student", tags.StudentID)
	tagging.Set("exercise", tags.ExerciseID)
	tagging.Set("question", tags.QuestionID)
	tagging.Set("category", tags.Category)
	tagging.Set("timestamp", time.Now().UTC().Format(time.RFC3339))

	_, err := u.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(artifact),
		ContentType: aws.String("application/zstd"),
		Tagging:     aws.String(tagging.Encode()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload recording %s to s3: %w (bucket: %s)", key, err, u.bucket)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, objKey), nil
}
