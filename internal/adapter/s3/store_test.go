package s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

type stored struct {
	bucket      string
	body        string
	contentType string
	metadata    map[string]string
}

type fakeClient struct {
	objects map[string]stored
	err     error
}

func (f *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = stored{
		bucket:      *in.Bucket,
		body:        string(body),
		contentType: *in.ContentType,
		metadata:    in.Metadata,
	}
	return &s3.PutObjectOutput{}, nil
}

func testStore(client putObjectAPI) *Store {
	cfg := Config{Bucket: "akveg-archive", Prefix: "processed"}
	return newStore(client, cfg, "nps_swan_2024", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_Load(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	client := &fakeClient{objects: make(map[string]stored)}
	s := testStore(client)

	tbl := table.New("site_visit_code", "tussock_percent_cover")
	tbl.Append(table.Row{"site_visit_code": "V1", "tussock_percent_cover": "12.5"})

	require.NoError(t, s.Load(context.Background(), "whole_tussock_cover", tbl))

	obj, ok := client.objects["processed/nps_swan_2024/20240305/whole_tussock_cover.csv"]
	require.True(t, ok)
	assert.Equal(t, "akveg-archive", obj.bucket)
	assert.Equal(t, "site_visit_code,tussock_percent_cover\nV1,12.5\n", obj.body)
	assert.Equal(t, "text/csv", obj.contentType)
	assert.Equal(t, map[string]string{"dataset": "nps_swan_2024", "table": "whole_tussock_cover", "rows": "1"}, obj.metadata)
}

func TestStore_LoadError(t *testing.T) {
	s := testStore(&fakeClient{err: errors.New("access denied")})

	err := s.Load(context.Background(), "site", table.New("site_code"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://akveg-archive/")
	assert.Contains(t, err.Error(), "access denied")
}

func TestStore_Name(t *testing.T) {
	assert.Equal(t, "s3", testStore(&fakeClient{}).Name())
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{}, "x", slog.Default())
	require.Error(t, err)
}
