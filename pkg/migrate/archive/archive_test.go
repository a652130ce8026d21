package archive

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	fail    int
	calls   int
	objects map[string]string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("slow down")
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = string(b)
	return &s3.PutObjectOutput{}, nil
}

func setup(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/export/User.bin", []byte("user"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/run/export/Order.bin", []byte("order"), 0o644))
	return fs
}

func TestUpload(t *testing.T) {
	fs := setup(t)
	client := &fakeS3{}
	u := New(fs, client, Options{Bucket: "b", Prefix: "migrations", MaxRetry: 3}, zerolog.Nop())

	require.NoError(t, u.Upload(context.Background(), "r1", []string{"/run/export/User.bin", "/run/export/Order.bin"}))
	assert.Equal(t, map[string]string{
		"b/migrations/run_id=r1/User.bin":  "user",
		"b/migrations/run_id=r1/Order.bin": "order",
	}, client.objects)
}

func TestUploadRetriesFromStart(t *testing.T) {
	fs := setup(t)
	client := &fakeS3{fail: 2}
	u := New(fs, client, Options{Bucket: "b", MaxRetry: 3}, zerolog.Nop())

	require.NoError(t, u.UploadFile(context.Background(), "/run/export/User.bin", "k"))
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, "user", client.objects["b/k"])
}

func TestUploadGivesUp(t *testing.T) {
	fs := setup(t)
	client := &fakeS3{fail: 10}
	u := New(fs, client, Options{Bucket: "b", MaxRetry: 2}, zerolog.Nop())

	err := u.Upload(context.Background(), "r1", []string{"/run/export/User.bin", "/run/export/missing.bin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 times")
	assert.Contains(t, err.Error(), "missing.bin")
	assert.Equal(t, 2, client.calls)
}
