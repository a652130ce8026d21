// package archive
//
// copies finished export files to s3 so a migration can be replayed from another host
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/baderkha/db-migrate/pkg/conditional"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options : where the files go
type Options struct {
	Bucket   string
	Prefix   string
	MaxRetry int
}

// Uploader : puts files under <prefix>/run_id=<run>/<file name>
type Uploader struct {
	fs   afero.Fs
	s3   s3iface.S3API
	opts Options
	log  zerolog.Logger
}

// NewS3 : client for region, an empty region leaves it to the environment
func NewS3(region string) (s3iface.S3API, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}

func New(fs afero.Fs, client s3iface.S3API, opts Options, log zerolog.Logger) *Uploader {
	opts.MaxRetry = conditional.Ternary(opts.MaxRetry > 0, opts.MaxRetry, 1)
	return &Uploader{
		fs:   fs,
		s3:   client,
		opts: opts,
		log:  log.With().Str("component", "archive").Logger(),
	}
}

// Key : object key of a file for a run
func (u *Uploader) Key(runID string, file string) string {
	return path.Join(u.opts.Prefix, "run_id="+runID, filepath.Base(file))
}

// Upload : uploads every file, a failing file does not stop the others
func (u *Uploader) Upload(ctx context.Context, runID string, files []string) error {
	var res error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return multierror.Append(res, err)
		}
		if err := u.UploadFile(ctx, f, u.Key(runID, f)); err != nil {
			res = multierror.Append(res, fmt.Errorf("%s : %w", f, err))
		}
	}
	return res
}

// UploadFile : puts one file, retrying up to MaxRetry attempts
func (u *Uploader) UploadFile(ctx context.Context, file string, key string) error {
	f, err := u.fs.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	var attempt int
	for attempt < u.opts.MaxRetry {
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err = u.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Body:   f,
			Bucket: aws.String(u.opts.Bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			u.log.Info().Str("bucket", u.opts.Bucket).Str("key", key).Msg("uploaded")
			return nil
		}
		attempt++
		u.log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("upload failed")
	}
	return fmt.Errorf("attempted uploading key (%s) %d times with no success : %w", key, attempt, err)
}
