package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"label-balancer/internal/blob"
	"label-balancer/internal/progress"
)

var (
	publishDir       string
	publishDriver    string
	publishRoot      string
	publishBucket    string
	publishPrefix    string
	publishRegion    string
	publishEndpoint  string
	publishPathStyle bool
	publishWorkers   int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the balanced tree to a blob store",
	Long: `Upload every file of the balanced tree, keyed by <prefix>/<label>/<name>.

Credentials for the s3 driver come from BALANCER_S3_ACCESS_KEY_ID /
BALANCER_S3_SECRET_ACCESS_KEY / BALANCER_S3_SESSION_TOKEN when set, and
otherwise from the default AWS chain (environment, shared config, instance role).

Example:
  balancer publish --dir out/balanced_data --driver s3 --bucket datasets --prefix flow/v2
  balancer publish --dir out/balanced_data --driver fs --root /mnt/archive`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishDir, "dir", "", "Directory to upload (default <out_dir>/<dest_name> from config)")
	publishCmd.Flags().StringVar(&publishDriver, "driver", string(blob.DriverFilesystem), "Blob driver: fs or s3")
	publishCmd.Flags().StringVar(&publishRoot, "root", "", "Root directory for the fs driver")
	publishCmd.Flags().StringVar(&publishBucket, "bucket", "", "Bucket for the s3 driver")
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "Key prefix")
	publishCmd.Flags().StringVar(&publishRegion, "region", "", "AWS region (default us-east-1)")
	publishCmd.Flags().StringVar(&publishEndpoint, "endpoint", "", "Custom S3 endpoint, e.g. MinIO")
	publishCmd.Flags().BoolVar(&publishPathStyle, "path-style", false, "Use path-style S3 addressing")
	publishCmd.Flags().IntVar(&publishWorkers, "workers", 8, "Concurrent uploads")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), nil)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	dir := publishDir
	if dir == "" {
		dir = cfg.DestDir()
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("publish directory %s does not exist", dir)
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(publishDriver),
		Root:   publishRoot,
		S3: blob.S3Config{
			Region:    publishRegion,
			Bucket:    publishBucket,
			Endpoint:  publishEndpoint,
			PathStyle: publishPathStyle,

			AccessKeyID:     os.Getenv("BALANCER_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("BALANCER_S3_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("BALANCER_S3_SESSION_TOKEN"),
		},
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"dir":    dir,
		"driver": store.Driver(),
		"prefix": publishPrefix,
	}).Info("Publishing balanced tree")

	bar := progress.New(os.Stderr, -1, "uploading")
	res, err := blob.Publish(ctx, store, dir, publishPrefix, publishWorkers, logger, bar)
	bar.Finish()
	fmt.Fprintf(cmd.OutOrStdout(), "published %s files (%s)\n", humanize.Comma(int64(res.Files)), humanize.Bytes(uint64(res.Bytes)))
	return err
}
