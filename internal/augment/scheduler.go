package augment

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"label-balancer/internal/dataset"
	"label-balancer/internal/manifest"
	"label-balancer/internal/progress"
	"label-balancer/internal/transform"
)

// Request asks for Count new images from one label directory.
type Request struct {
	Label     string
	Count     int
	SourceDir string
	DestDir   string
	Tag       string // appended to every file name, e.g. "L4"
}

// Result summarizes one scheduler run.
type Result struct {
	Requested int
	Planned   int
	Written   int
	Budget    int
	Files     []string
}

// Shortfall is how many requested images the budget could not cover.
func (r Result) Shortfall() int {
	if r.Planned >= r.Requested {
		return 0
	}
	return r.Requested - r.Planned
}

// Options configures a Scheduler. Zero values select sequential execution,
// no recording, no progress output and the wall clock.
type Options struct {
	Workers  int
	RunID    string
	Recorder manifest.Recorder
	Progress progress.Tracker
	Clock    func() time.Time
}

// Scheduler turns a Request into tickets and executes them with an engine.
type Scheduler struct {
	engine   transform.Engine
	variants []transform.Variant
	logger   logrus.FieldLogger
	workers  int
	runID    string
	recorder manifest.Recorder
	progress progress.Tracker
	clock    func() time.Time
}

func NewScheduler(engine transform.Engine, variants []transform.Variant, logger logrus.FieldLogger, opts Options) *Scheduler {
	s := &Scheduler{
		engine:   engine,
		variants: variants,
		logger:   logger,
		workers:  opts.Workers,
		runID:    opts.RunID,
		recorder: opts.Recorder,
		progress: opts.Progress,
		clock:    opts.Clock,
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.recorder == nil {
		s.recorder = manifest.Nop{}
	}
	if s.progress == nil {
		s.progress = progress.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Plan lists the tickets a request would execute without writing anything.
func (s *Scheduler) Plan(req Request) ([]Ticket, int, error) {
	files, err := dataset.ListImages(req.SourceDir)
	if err != nil {
		return nil, 0, err
	}
	group := &dataset.LabelGroup{Label: req.Label, Dir: req.SourceDir, Files: files}
	groups, err := group.SiteGroups()
	if err != nil {
		return nil, 0, err
	}
	return Plan(groups, req.Count, s.variants), Budget(groups, len(s.variants)), nil
}

// Run writes min(req.Count, budget) images into req.DestDir. The first
// failing ticket stops the run and is returned with the partial result.
func (s *Scheduler) Run(ctx context.Context, req Request) (Result, error) {
	result := Result{Requested: req.Count}
	tickets, budget, err := s.Plan(req)
	if err != nil {
		return result, err
	}
	result.Budget = budget
	result.Planned = len(tickets)

	logger := s.logger.WithFields(logrus.Fields{
		"label":     req.Label,
		"requested": req.Count,
		"planned":   len(tickets),
		"budget":    budget,
	})
	if len(tickets) == 0 {
		logger.Debug("Nothing to augment")
		return result, nil
	}
	if result.Shortfall() > 0 {
		logger.Warn("Augmentation budget exhausted before target")
	}

	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return result, fmt.Errorf("create %s: %w", req.DestDir, err)
	}

	date := s.clock()
	files := make([]string, len(tickets))
	written := make([]bool, len(tickets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, ticket := range tickets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst := ticket.Destination(req.DestDir, date, req.Tag)
			if err := s.engine.Augment(ticket.Source, dst, ticket.Variant); err != nil {
				return fmt.Errorf("site %s image %d variant %d: %w", ticket.Site, ticket.SiteSeq, ticket.Variant.Index, err)
			}
			files[i] = dst
			written[i] = true
			s.progress.Add(1)

			return s.recorder.RecordImage(gctx, manifest.ImageRecord{
				RunID:   s.runID,
				Label:   req.Label,
				Site:    ticket.Site,
				SiteSeq: ticket.SiteSeq,
				Variant: ticket.Variant.Index,
				Angle:   ticket.Variant.Angle,
				Zoom:    ticket.Variant.Zoom,
				Flip:    ticket.Variant.Flip,
				Source:  ticket.Source,
				Dest:    dst,
			})
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	for i, ok := range written {
		if ok {
			result.Files = append(result.Files, files[i])
		}
	}
	result.Written = len(result.Files)

	if err != nil {
		return result, err
	}
	logger.WithField("written", result.Written).Info("Label augmentation finished")
	return result, nil
}
