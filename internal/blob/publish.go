package blob

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"label-balancer/internal/progress"
)

// PublishResult counts uploaded files.
type PublishResult struct {
	Files int
	Bytes int64
}

// Publish uploads every regular file under dir to store, keyed by
// prefix + the slash-separated path relative to dir.
func Publish(ctx context.Context, store Store, dir, prefix string, workers int, logger logrus.FieldLogger, tracker progress.Tracker) (PublishResult, error) {
	if workers < 1 {
		workers = 1
	}
	if tracker == nil {
		tracker = progress.Nop{}
	}

	var (
		files atomic.Int64
		bytes atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := store.Put(gctx, key, f, PutOptions{
				ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			})
			if err != nil {
				return fmt.Errorf("publish %s: %w", key, err)
			}
			files.Add(1)
			bytes.Add(info.Size)
			tracker.Add(1)
			logger.WithFields(logrus.Fields{"key": key, "size": info.Size}).Debug("Blob uploaded")
			return nil
		})
		return nil
	})
	err := g.Wait()
	if walkErr != nil && err == nil {
		err = walkErr
	}
	return PublishResult{Files: int(files.Load()), Bytes: bytes.Load()}, err
}
