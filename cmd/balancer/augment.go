package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"label-balancer/internal/augment"
	"label-balancer/internal/progress"
	"label-balancer/internal/transform"
)

var (
	augmentFlags    balanceFlags
	augmentLabelDir string
	augmentDestDir  string
	augmentCount    int
	augmentTag      string
)

var augmentCmd = &cobra.Command{
	Use:   "augment",
	Short: "Generate a fixed number of images from one label directory",
	Long: `Run the site scheduler on a single label directory. Sites with the fewest
images are augmented first.

Example:
  balancer augment --label-dir data/4 --dest-dir out/4 --count 120 --tag L4`,
	RunE: runAugment,
}

func init() {
	augmentFlags.register(augmentCmd.Flags())
	augmentCmd.Flags().StringVar(&augmentLabelDir, "label-dir", "", "Source label directory")
	augmentCmd.Flags().StringVar(&augmentDestDir, "dest-dir", "", "Destination directory")
	augmentCmd.Flags().IntVar(&augmentCount, "count", 0, "Number of images to generate")
	augmentCmd.Flags().StringVar(&augmentTag, "tag", "", "Suffix for generated names (default L<label>)")
	_ = augmentCmd.MarkFlagRequired("label-dir")
	_ = augmentCmd.MarkFlagRequired("dest-dir")
}

func runAugment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), &augmentFlags)
	if err != nil {
		return err
	}
	// the scheduler does not read in_dir
	if cfg.InDir == "" {
		cfg.InDir = augmentLabelDir
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if augmentCount < 0 {
		return fmt.Errorf("count must not be negative, got %d", augmentCount)
	}

	engine, err := transform.Open(cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	label := filepath.Base(filepath.Clean(augmentLabelDir))
	tag := augmentTag
	if tag == "" {
		tag = "L" + label
	}

	ctx, stop := signalContext()
	defer stop()

	bar := progress.New(os.Stderr, augmentCount, "augmenting "+label)
	defer bar.Finish()

	scheduler := augment.NewScheduler(engine, augment.Variants(cfg), logger.WithField("label", label), augment.Options{
		Workers:  cfg.ImageWorkers,
		Progress: bar,
	})
	res, err := scheduler.Run(ctx, augment.Request{
		Label:     label,
		Count:     augmentCount,
		SourceDir: augmentLabelDir,
		DestDir:   augmentDestDir,
		Tag:       tag,
	})
	logger.WithFields(logrus.Fields{
		"requested": res.Requested,
		"written":   res.Written,
		"budget":    res.Budget,
	}).Info("Augmentation finished")
	fmt.Fprintf(cmd.OutOrStdout(), "label %s: wrote %d/%d images (budget %d)\n", label, res.Written, res.Requested, res.Budget)
	return err
}
