package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/irfndi/celebrum-arbwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	client := &fakePutter{}
	archiver := NewS3ArchiverWithClient(client, "snapshots", "/arbwatch/state/")

	err := archiver.Archive(context.Background(), "persistence_data.json-20260101T000000Z", []byte(`{"a":1}`))
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "snapshots", aws.ToString(client.input.Bucket))
	assert.Equal(t, "arbwatch/state/persistence_data.json-20260101T000000Z", aws.ToString(client.input.Key))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))
	assert.Equal(t, int64(7), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, `{"a":1}`, string(client.body))
}

func TestS3Archiver_ErrorWrapped(t *testing.T) {
	client := &fakePutter{err: errors.New("access denied")}
	archiver := NewS3ArchiverWithClient(client, "snapshots", "")

	err := archiver.Archive(context.Background(), "state.json", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshots/state.json")
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Archiver_KeyWithoutPrefix(t *testing.T) {
	archiver := NewS3ArchiverWithClient(&fakePutter{}, "b", "")
	assert.Equal(t, "state.json", archiver.Key("state.json"))
}

func TestNewS3Archiver_Validation(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), config.ArchiveConfig{Region: "us-east-1"})
	assert.Error(t, err)

	_, err = NewS3Archiver(context.Background(), config.ArchiveConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNewS3Archiver_StaticCredentials(t *testing.T) {
	archiver, err := NewS3Archiver(context.Background(), config.ArchiveConfig{
		Bucket:         "b",
		Region:         "auto",
		Endpoint:       "minio.local:9000",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
		Prefix:         "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "p/x", archiver.Key("x"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com"))
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("minio.local:9000"))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000"))
}
