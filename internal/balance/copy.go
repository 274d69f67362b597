package balance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"label-balancer/internal/dataset"
	"label-balancer/internal/progress"
)

// CopyStats counts the originals placed in the output tree.
type CopyStats struct {
	Files int
	Bytes int64
}

// copyLabel copies the images of one label into dest, merging with any
// existing directory. Nested directories and dot-files are skipped so the
// destination holds exactly the scanned images.
func copyLabel(group *dataset.LabelGroup, dest string, tracker progress.Tracker) (CopyStats, error) {
	var files, bytes atomic.Int64
	err := copy.Copy(group.Dir, dest, copy.Options{
		OnDirExists: func(src, dest string) copy.DirExistsAction {
			return copy.Merge
		},
		Skip: func(info os.FileInfo, src, dest string) (bool, error) {
			if src == group.Dir {
				return false, nil
			}
			if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
				return true, nil
			}
			files.Add(1)
			bytes.Add(info.Size())
			tracker.Add(1)
			return false, nil
		},
		PreserveTimes: true,
	})
	if err != nil {
		return CopyStats{}, fmt.Errorf("copy label %s: %w", group.Label, err)
	}
	return CopyStats{Files: int(files.Load()), Bytes: bytes.Load()}, nil
}

// copyAll copies every label group into destRoot/<label> on a bounded pool.
// Any failure is fatal to the run.
func (b *Balancer) copyAll(ctx context.Context, groups []*dataset.LabelGroup, destRoot string, tracker progress.Tracker) (CopyStats, error) {
	stats := make([]CopyStats, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, group := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := copyLabel(group, filepath.Join(destRoot, group.Label), tracker)
			if err != nil {
				return err
			}
			stats[i] = s
			b.logger.WithFields(logrus.Fields{
				"label": group.Label,
				"files": s.Files,
				"bytes": s.Bytes,
			}).Debug("Label copied")
			if b.metrics != nil {
				b.metrics.ObserveCopy(s.Files, s.Bytes)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CopyStats{}, err
	}

	var total CopyStats
	for _, s := range stats {
		total.Files += s.Files
		total.Bytes += s.Bytes
	}
	return total, nil
}
