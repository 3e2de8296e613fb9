package storage

import (
	"context"
	"io"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

func (c *Client) gcs(ctx context.Context) (*gstorage.Client, error) {
	c.gcsOnce.Do(func() {
		var opts []option.ClientOption
		if c.cfg.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(c.cfg.GCSCredentialsFile))
		}
		client, err := gstorage.NewClient(ctx, opts...)
		if err != nil {
			c.gcsErr = errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
			return
		}
		c.gcsClient = client
	})
	return c.gcsClient, c.gcsErr
}

func (c *Client) openGCS(ctx context.Context, loc Location) (io.ReadCloser, error) {
	client, err := c.gcs(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(loc.Bucket).Object(loc.Path).NewReader(ctx)
	if err != nil {
		errType := errors.ErrorTypeConnection
		if err == gstorage.ErrObjectNotExist {
			errType = errors.ErrorTypeNotFound
		}
		return nil, errors.Wrap(err, errType, "failed to read GCS object").WithDetail("location", loc.String())
	}
	return r, nil
}

func (c *Client) createGCS(ctx context.Context, loc Location, contentType string) (io.WriteCloser, error) {
	client, err := c.gcs(ctx)
	if err != nil {
		return nil, err
	}
	w := client.Bucket(loc.Bucket).Object(loc.Path).NewWriter(ctx)
	w.ContentType = contentType
	return w, nil
}
