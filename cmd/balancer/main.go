// Label Balancer - balances a two-category image dataset by geometric augmentation
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "label-balancer/internal/transform/native"
	_ "label-balancer/internal/transform/opencv"
)

const AppName = "balancer"

// set with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile string
	debugMode  bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Balance a two-category image dataset by augmentation",
	Long: `Balances an image classification dataset split into two categories
(labels 1,2,3 against 4,5,6 by default).

The category with fewer images is topped up with rotated, flipped and zoomed
copies of its own images. Labels and sites with the fewest images receive the
most new images. Originals are copied to <out-dir>/balanced_data/<label>.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode with verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(augmentCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger initializes the logger with appropriate level and formatter
func initLogger(level, format string, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if debug {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if debug {
		logger.Debug("Debug logging enabled")
	}
	return logger
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", AppName, version)
	},
}
