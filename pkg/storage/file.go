package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

func openFile(loc Location) (io.ReadCloser, error) {
	f, err := os.Open(loc.Path)
	if err != nil {
		errType := errors.ErrorTypeFile
		if os.IsNotExist(err) {
			errType = errors.ErrorTypeNotFound
		}
		return nil, errors.Wrap(err, errType, "failed to open file").WithDetail("path", loc.Path)
	}
	return f, nil
}

func createFile(loc Location) (io.WriteCloser, error) {
	if dir := filepath.Dir(loc.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("path", dir)
		}
	}
	f, err := os.Create(loc.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create file").WithDetail("path", loc.Path)
	}
	return f, nil
}
