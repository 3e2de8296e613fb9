package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

func (c *Client) s3Clients(ctx context.Context) (*s3.Client, *manager.Uploader, error) {
	c.s3Once.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if c.cfg.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(c.cfg.S3Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			c.s3Err = errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
			return
		}
		c.s3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if c.cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(c.cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		c.uploader = manager.NewUploader(c.s3Client, func(u *manager.Uploader) {
			if c.cfg.S3PartSize > 0 {
				u.PartSize = c.cfg.S3PartSize
			}
		})
	})
	return c.s3Client, c.uploader, c.s3Err
}

func (c *Client) openS3(ctx context.Context, loc Location) (io.ReadCloser, error) {
	client, _, err := c.s3Clients(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Path),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to get S3 object").
			WithDetail("location", loc.String())
	}
	return out.Body, nil
}

// s3Writer streams writes into a multipart upload running in the
// background; Close waits for the upload to finish.
type s3Writer struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *s3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (c *Client) createS3(ctx context.Context, loc Location, contentType string) (io.WriteCloser, error) {
	_, uploader, err := c.s3Clients(ctx)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan error, 1)}
	go func() {
		input := &s3.PutObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Path),
			Body:   pr,
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}
		result, err := uploader.Upload(ctx, input)
		if err != nil {
			err = errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
				WithDetail("location", loc.String())
			_ = pr.CloseWithError(err)
			w.done <- err
			return
		}
		c.logger.Info("uploaded object", zap.String("location", result.Location))
		w.done <- nil
	}()
	return w, nil
}
