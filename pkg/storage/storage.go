// Package storage opens byte streams on local files and object stores.
// Locations are URIs: a plain path or file://path, s3://bucket/key, or
// gs://bucket/object.
package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Scheme identifies a storage backend.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
	SchemeGCS  Scheme = "gs"
)

// Location is a parsed storage URI.
type Location struct {
	Scheme Scheme
	// Bucket is empty for local files.
	Bucket string
	// Path is the object key, or the file path for local files.
	Path string
}

// String renders the location back into URI form.
func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Path
	}
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Path
}

// ParseLocation parses a storage URI. Strings without a scheme are local
// paths.
func ParseLocation(uri string) (Location, error) {
	if !strings.Contains(uri, "://") {
		if uri == "" {
			return Location{}, errors.New(errors.ErrorTypeValidation, "empty storage location")
		}
		return Location{Scheme: SchemeFile, Path: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeValidation, "invalid storage location")
	}
	switch Scheme(u.Scheme) {
	case SchemeFile:
		return Location{Scheme: SchemeFile, Path: u.Host + u.Path}, nil
	case SchemeS3, SchemeGCS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, errors.Newf(errors.ErrorTypeValidation, "location %s needs a bucket and an object path", uri)
		}
		return Location{Scheme: Scheme(u.Scheme), Bucket: u.Host, Path: key}, nil
	default:
		return Location{}, errors.Newf(errors.ErrorTypeValidation, "unsupported storage scheme %q", u.Scheme)
	}
}

// Config configures the cloud backends.
type Config struct {
	// S3Region is the AWS region; empty uses the SDK's default chain.
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
	// S3Endpoint overrides the S3 endpoint for S3-compatible stores.
	S3Endpoint string `yaml:"s3_endpoint" mapstructure:"s3_endpoint"`
	// GCSCredentialsFile is a service-account JSON file; empty uses
	// application default credentials.
	GCSCredentialsFile string `yaml:"gcs_credentials_file" mapstructure:"gcs_credentials_file"`
	// S3PartSize is the multipart upload part size in bytes.
	S3PartSize int64 `yaml:"s3_part_size" mapstructure:"s3_part_size"`
}

// Client opens readers and writers on any supported location. Cloud clients
// are created on first use.
type Client struct {
	cfg    Config
	logger *zap.Logger

	s3Once   sync.Once
	s3Client *s3.Client
	uploader *manager.Uploader
	s3Err    error

	gcsOnce   sync.Once
	gcsClient *gstorage.Client
	gcsErr    error
}

// NewClient creates a storage client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, logger: logger.With(zap.String("component", "storage"))}
}

// Open returns a reader on the object at uri.
func (c *Client) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeS3:
		return c.openS3(ctx, loc)
	case SchemeGCS:
		return c.openGCS(ctx, loc)
	default:
		return openFile(loc)
	}
}

// Create returns a writer that stores the object at uri when closed.
// contentType is recorded where the backend supports it.
func (c *Client) Create(ctx context.Context, uri, contentType string) (io.WriteCloser, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("creating object", zap.String("location", loc.String()), zap.String("content_type", contentType))
	switch loc.Scheme {
	case SchemeS3:
		return c.createS3(ctx, loc, contentType)
	case SchemeGCS:
		return c.createGCS(ctx, loc, contentType)
	default:
		return createFile(loc)
	}
}

// Close releases cloud clients.
func (c *Client) Close() error {
	if c.gcsClient != nil {
		return c.gcsClient.Close()
	}
	return nil
}
