package client

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/config"
)

type fakeS3 struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestR2Client_UploadFile(t *testing.T) {
	fake := &fakeS3{}
	c := &R2Client{s3Client: fake, bucketName: "renders", publicURL: "https://cdn.example.com"}

	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, mockVideo, 0o644))

	url, err := c.UploadFile(context.Background(), "renders/demo/01/video.mp4", path)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/renders/demo/01/video.mp4", url)
	assert.Equal(t, "renders/demo/01/video.mp4", fake.key)
	assert.Equal(t, "video/mp4", fake.contentType)
	assert.Equal(t, mockVideo, fake.body)
}

func TestR2Client_UploadError(t *testing.T) {
	c := &R2Client{s3Client: &fakeS3{err: errors.New("denied")}, bucketName: "renders"}

	path := filepath.Join(t.TempDir(), "prompts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := c.UploadFile(context.Background(), "k", path)
	assert.ErrorContains(t, err, "denied")

	_, err = c.UploadFile(context.Background(), "k", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestR2Client_PublicURLFallback(t *testing.T) {
	c := &R2Client{bucketName: "renders"}
	assert.Equal(t, "https://renders.r2.cloudflarestorage.com/a/b.mp4", c.GetPublicURL("a/b.mp4"))
}

func TestNewR2Client_Incomplete(t *testing.T) {
	_, err := NewR2Client(&config.R2Config{AccountID: "acc"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "thumb.bin")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))
	assert.Equal(t, "image/png", ContentType(png))

	js := filepath.Join(dir, "prompts.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"a":1}`), 0o644))
	assert.Equal(t, "application/json", ContentType(js))
}
