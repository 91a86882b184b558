package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverKey(t *testing.T) {
	a := NewS3Archiver(&fakePutter{}, "bucket", "autogift-events")
	at := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "autogift-events/2026/07/04/1783166400000000000.jsonl", a.Key(at))
}

func TestS3ArchiverArchive(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3Archiver(putter, "audit", "events")
	a.now = func() time.Time { return time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC) }

	batch := []models.AutoGiftEventLog{
		{ID: "e1", UserID: "user-1", EventType: EventRuleCreated},
		{ID: "e2", UserID: "user-1", EventType: EventRuleDeleted},
	}
	require.NoError(t, a.Archive(context.Background(), batch))
	require.Len(t, putter.inputs, 1)

	in := putter.inputs[0]
	assert.Equal(t, "audit", aws.ToString(in.Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(in.ContentType))
	assert.Contains(t, aws.ToString(in.Key), "events/2026/07/04/")

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(putter.bodies[0]))
	for scanner.Scan() {
		var ev models.AutoGiftEventLog
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"e1", "e2"}, ids)

	require.NoError(t, a.Archive(context.Background(), nil))
	assert.Len(t, putter.inputs, 1, "empty batches are not written")
}

func TestS3ArchiverPutFailure(t *testing.T) {
	a := NewS3Archiver(&fakePutter{err: errors.New("access denied")}, "audit", "events")
	err := a.Archive(context.Background(), []models.AutoGiftEventLog{{ID: "e1"}})
	assert.ErrorContains(t, err, "access denied")
}

func TestNewArchiverFromConfig(t *testing.T) {
	archiver, err := NewArchiverFromConfig(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, archiver)

	archiver, err = NewArchiverFromConfig(context.Background(), &config.Config{
		ArchiveBucket:          "audit",
		ArchivePrefix:          "autogift-events",
		ArchiveRegion:          "us-east-1",
		ArchiveEndpoint:        "http://localhost:9000",
		ArchiveAccessKeyID:     "minio",
		ArchiveSecretAccessKey: "minio-secret",
	})
	require.NoError(t, err)
	require.NotNil(t, archiver)
	assert.IsType(t, &S3Archiver{}, archiver)
}
