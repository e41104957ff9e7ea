// Package blob stores session image artifacts: the shared target pool under
// targets/, and per-session artifacts under sessions/{id}/.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store stores image artifacts in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a store from the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// NewS3StoreWithClient builds a store around an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Upload writes data at key.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed for %s: %w", key, err)
	}
	return nil
}

// Download reads the object at key.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download failed for %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read failed for %s: %w", key, err)
	}
	return data, nil
}

// PickRandomTarget chooses a random image from the targets/ pool and copies
// it to the session's target path, returning the new key.
func (s *S3Store) PickRandomTarget(ctx context.Context, sessionID string) (string, error) {
	list, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("targets/"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list target pool: %w", err)
	}

	chosen, err := pickTargetKey(list.Contents)
	if err != nil {
		return "", err
	}
	targetKey := fmt.Sprintf("sessions/%s/targetImage/actual_target.jpg", sessionID)

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + chosen),
		Key:        aws.String(targetKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy target image: %w", err)
	}

	return targetKey, nil
}

// pickTargetKey chooses a random real image from the listed pool. Folder
// placeholder objects (keys ending in "/", or zero-byte entries some tools
// create for the prefix itself) are not targets.
func pickTargetKey(contents []types.Object) (string, error) {
	candidates := make([]string, 0, len(contents))
	for _, obj := range contents {
		key := aws.ToString(obj.Key)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		if aws.ToInt64(obj.Size) == 0 {
			continue
		}
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no target images found")
	}
	return candidates[rand.Intn(len(candidates))], nil
}
