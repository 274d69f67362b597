// Category balancing: counts, feasibility, label allocation and dispatch
package balance

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"label-balancer/internal/augment"
	"label-balancer/internal/config"
	"label-balancer/internal/dataset"
	"label-balancer/internal/manifest"
	"label-balancer/internal/metrics"
	"label-balancer/internal/progress"
	"label-balancer/internal/transform"
)

// Ledger persists runs and generated images. *manifest.Store implements it.
type Ledger interface {
	manifest.Recorder
	StartRun(ctx context.Context, run manifest.Run) (string, error)
	FinishRun(ctx context.Context, id, deficientCategory string, deficit int, outcome string, finishedAt time.Time) error
}

// Options carries optional collaborators. Zero values disable them.
type Options struct {
	Ledger   Ledger
	Metrics  *metrics.Metrics
	Progress io.Writer // progress bars are drawn here when set
	Clock    func() time.Time
}

// Balancer runs one balancing pass over cfg.InDir.
type Balancer struct {
	cfg      config.Config
	engine   transform.Engine
	logger   logrus.FieldLogger
	ledger   Ledger
	metrics  *metrics.Metrics
	progress io.Writer
	clock    func() time.Time
}

func New(cfg config.Config, engine transform.Engine, logger logrus.FieldLogger, opts Options) *Balancer {
	b := &Balancer{
		cfg:      cfg,
		engine:   engine,
		logger:   logger,
		ledger:   opts.Ledger,
		metrics:  opts.Metrics,
		progress: opts.Progress,
		clock:    opts.Clock,
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b
}

// Plan scans the input and computes counts, gate and a sampled allocation
// without writing anything.
func (b *Balancer) Plan(ctx context.Context) (*Report, error) {
	ds, err := dataset.Scan(b.cfg.InDir, b.cfg.Categories)
	if err != nil {
		return nil, err
	}
	report, err := b.plan(ds, b.seed())
	if err != nil {
		return nil, err
	}
	report.RunID = uuid.NewString()
	report.Outcome = OutcomePlanned
	return report, ctx.Err()
}

// Run performs a full pass. Input errors are returned before anything is
// written. An infeasible gate ends the run with OutcomeAbortedInfeasible and
// a nil error. Label failures are reported in the outcomes, not returned.
func (b *Balancer) Run(ctx context.Context) (*Report, error) {
	started := b.clock()
	ds, err := dataset.Scan(b.cfg.InDir, b.cfg.Categories)
	if err != nil {
		return nil, err
	}

	report, err := b.plan(ds, b.seed())
	if err != nil {
		return nil, err
	}
	report.StartedAt = started
	report.RunID = uuid.NewString()

	logger := b.logger.WithField("run_id", report.RunID)
	logger.WithFields(logrus.Fields{
		"in_dir":      b.cfg.InDir,
		"dest":        b.cfg.DestDir(),
		"theta":       b.cfg.Theta,
		"fact":        b.cfg.Fact,
		"multiplier":  b.cfg.Multiplier,
		"engine":      b.engine.Name(),
		"seed":        report.Seed,
		"feasibility": b.cfg.Feasibility,
	}).Info("Using params")

	if b.ledger != nil {
		if _, err := b.ledger.StartRun(ctx, manifest.Run{
			ID:        report.RunID,
			StartedAt: started,
			InDir:     b.cfg.InDir,
			DestDir:   b.cfg.DestDir(),
			Engine:    b.engine.Name(),
			Seed:      report.Seed,
		}); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"deficient":  report.Decision.Deficient,
		"deficit":    report.Decision.Deficit,
		"capacity":   report.Gate.Capacity,
		"policy":     report.Gate.Policy,
		"allocation": report.Allocation(),
	}).Info("Category comparison")

	if !report.Gate.Feasible {
		logger.Warn("Not enough images to augment, nothing will be written")
		report.Outcome = OutcomeAbortedInfeasible
		return report, b.finish(ctx, report)
	}

	var copyTracker progress.Tracker = progress.Nop{}
	if b.progress != nil {
		bar := progress.New(b.progress, totalFiles(ds), "copying originals")
		defer bar.Finish()
		copyTracker = bar
	}
	report.Copy, err = b.copyAll(ctx, ds.LabelGroups(), b.cfg.DestDir(), copyTracker)
	if err != nil {
		return report, err
	}

	deficient, _ := ds.Category(report.Decision.Deficient)
	report.Labels = b.dispatch(ctx, logger, report, deficient)
	report.Outcome = OutcomeCompleted
	if err := b.finish(ctx, report); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (b *Balancer) seed() uint64 {
	if b.cfg.Seed != 0 {
		return b.cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

// plan fills counts, decision, gate and, when feasible, the allocation.
func (b *Balancer) plan(ds *dataset.Dataset, seed uint64) (*Report, error) {
	if len(ds.Categories) != 2 {
		return nil, fmt.Errorf("expected two categories, got %d", len(ds.Categories))
	}
	report := &Report{
		Engine:     b.engine.Name(),
		Seed:       seed,
		Multiplier: b.cfg.Multiplier,
	}
	for _, c := range ds.Categories {
		report.Categories = append(report.Categories, countCategory(c))
	}

	first, second := report.Categories[0], report.Categories[1]
	report.Decision = Decide(first, second)
	deficient := first
	if report.Decision.Deficient == second.ID {
		deficient = second
	}
	report.Gate = CheckFeasibility(b.cfg.Feasibility, first, deficient, b.cfg.TotalMultiplier(), report.Decision.Deficit)
	if !report.Gate.Feasible {
		return report, nil
	}

	counts := make([]int, len(deficient.Labels))
	for i, l := range deficient.Labels {
		counts[i] = l.Count
	}
	weights := Weights(counts)
	tally := Allocate(weights, report.Decision.Deficit, NewSource(seed))
	for i, l := range deficient.Labels {
		report.Plan = append(report.Plan, LabelPlan{
			Label:     l.Label,
			Count:     l.Count,
			Weight:    weights[i],
			Allocated: tally[i],
			Expected:  l.Count + tally[i],
		})
	}
	return report, nil
}

// dispatch runs one scheduler per deficient label on the bounded pool. A
// failing label never cancels its siblings.
func (b *Balancer) dispatch(ctx context.Context, logger logrus.FieldLogger, report *Report, deficient *dataset.Category) []LabelOutcome {
	var tracker progress.Tracker = progress.Nop{}
	if b.progress != nil {
		bar := progress.New(b.progress, report.Decision.Deficit, "augmenting")
		defer bar.Finish()
		tracker = bar
	}

	var recorder manifest.Recorder = manifest.Nop{}
	if b.ledger != nil {
		recorder = b.ledger
	}
	variants := augment.Variants(b.cfg)

	outcomes := make([]LabelOutcome, len(report.Plan))
	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for i, p := range report.Plan {
		group, ok := deficient.Label(p.Label)
		if !ok {
			outcomes[i] = LabelOutcome{Label: p.Label, Requested: p.Allocated, Err: fmt.Errorf("label %s not scanned", p.Label)}
			continue
		}
		g.Go(func() error {
			labelLogger := logger.WithField("label", p.Label)
			labelLogger.WithField("count", p.Allocated).Info("Augmenting label")

			scheduler := augment.NewScheduler(b.engine, variants, labelLogger, augment.Options{
				Workers:  b.cfg.ImageWorkers,
				RunID:    report.RunID,
				Recorder: recorder,
				Progress: tracker,
				Clock:    b.clock,
			})
			res, err := scheduler.Run(ctx, augment.Request{
				Label:     p.Label,
				Count:     p.Allocated,
				SourceDir: group.Dir,
				DestDir:   filepath.Join(b.cfg.DestDir(), p.Label),
				Tag:       "L" + p.Label,
			})

			outcome := LabelOutcome{
				Label:     p.Label,
				Requested: p.Allocated,
				Planned:   res.Planned,
				Written:   res.Written,
				Err:       err,
			}
			if err != nil {
				labelLogger.WithError(err).Error("Error in data augmentation")
			} else {
				labelLogger.WithField("written", res.Written).Info("Data augmentation task completed successfully")
			}
			if b.metrics != nil {
				b.metrics.ObserveLabel(p.Label, p.Allocated, res.Written, err)
			}

			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (b *Balancer) finish(ctx context.Context, report *Report) error {
	report.Duration = b.clock().Sub(report.StartedAt)
	if b.metrics != nil {
		b.metrics.ObserveRun(string(report.Outcome), report.Decision.Deficit, report.Duration)
	}
	if b.ledger != nil {
		// the run row is closed even when ctx was cancelled mid-run
		if err := b.ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, report.Decision.Deficient,
			report.Decision.Deficit, string(report.Outcome), b.clock()); err != nil {
			return err
		}
	}
	return nil
}

func countCategory(c *dataset.Category) CategoryCount {
	cc := CategoryCount{ID: c.ID, Count: c.Count()}
	for _, l := range c.Labels {
		cc.Labels = append(cc.Labels, LabelCount{Label: l.Label, Count: l.Count()})
	}
	return cc
}

func totalFiles(ds *dataset.Dataset) int {
	total := 0
	for _, c := range ds.Categories {
		total += c.Count()
	}
	return total
}
