package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutObject) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploadPutsObject(t *testing.T) {
	fake := &fakePutObject{}
	uploader := newS3(fake, S3Config{
		Bucket:        "media",
		Region:        "eu-west-1",
		PublicBaseURL: "https://cdn.example.com/",
		KeyPrefix:     "/avatars/",
	})

	url, err := uploader.Upload(context.Background(), writeTempPNG(t))
	require.NoError(t, err)

	assert.Equal(t, "media", aws.ToString(fake.input.Bucket))
	key := aws.ToString(fake.input.Key)
	assert.True(t, strings.HasPrefix(key, "avatars/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, "image/png", aws.ToString(fake.input.ContentType))
	assert.Equal(t, pngBytes, fake.body)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
}

func TestS3DefaultPublicURL(t *testing.T) {
	fake := &fakePutObject{}
	uploader := newS3(fake, S3Config{Bucket: "media", Region: "eu-west-1"})

	url, err := uploader.Upload(context.Background(), writeTempPNG(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://media.s3.eu-west-1.amazonaws.com/"), url)
}

func TestS3UploadError(t *testing.T) {
	uploader := newS3(&fakePutObject{err: errors.New("access denied")}, S3Config{Bucket: "media", Region: "eu-west-1"})

	_, err := uploader.Upload(context.Background(), writeTempPNG(t))
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3RequiresBucketAndRegion(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Bucket: "media"})
	assert.Error(t, err)
}
