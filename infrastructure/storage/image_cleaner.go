package storage

import (
	"chat-relay/contract"
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

var _ contract.ImageCleaner = (*FileImageCleaner)(nil)

// FileImageCleaner removes the local upload an image URL points to.
// Only the base name of the URL is used, so nothing outside dir is touched.
type FileImageCleaner struct {
	log *slog.Logger
	dir string
}

func NewFileImageCleaner(log *slog.Logger, dir string) *FileImageCleaner {
	return &FileImageCleaner{log: log, dir: dir}
}

func (c *FileImageCleaner) Cleanup(_ context.Context, imageURL string) error {
	name := imageURL
	if u, err := url.Parse(imageURL); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(c.dir, name))
	if stderrors.Is(err, fs.ErrNotExist) {
		c.log.Debug("Image already gone", "image", imageURL)
		return nil
	}
	return err
}
