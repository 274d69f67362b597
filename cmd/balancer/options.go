package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"label-balancer/internal/config"
)

// balanceFlags are the config overrides shared by run and plan.
type balanceFlags struct {
	inDir        string
	outDir       string
	destName     string
	theta        float64
	fact         float64
	thetaStep    float64
	factStep     float64
	multiplier   int
	workers      int
	imageWorkers int
	engine       string
	seed         uint64
	feasibility  string
	manifest     string
	metricsFile  string
}

func (f *balanceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.inDir, "in-dir", "", "Input directory with one subdirectory per label")
	fs.StringVar(&f.outDir, "out-dir", ".", "Output directory prefix")
	fs.StringVar(&f.destName, "dest-name", config.DefaultDestName, "Name of the balanced tree under out-dir")
	fs.Float64Var(&f.theta, "theta", config.DefaultTheta, "First rotation angle in degrees")
	fs.Float64Var(&f.fact, "fact", config.DefaultFact, "First zoom factor applied after rotation")
	fs.Float64Var(&f.thetaStep, "theta-step", config.DefaultThetaStep, "Angle increment per rotation step")
	fs.Float64Var(&f.factStep, "fact-step", config.DefaultFactStep, "Zoom increment per rotation step")
	fs.IntVar(&f.multiplier, "multiplier", config.DefaultMultiplier, "Rotation steps per image (each used plain and flipped)")
	fs.IntVar(&f.workers, "workers", config.DefaultWorkers, "Concurrent copy and label tasks")
	fs.IntVar(&f.imageWorkers, "image-workers", config.DefaultImageWorkers, "Concurrent images within one label")
	fs.StringVar(&f.engine, "engine", config.DefaultEngine, "Transform engine: opencv or native")
	fs.Uint64Var(&f.seed, "seed", 0, "Sampling seed (0 picks one from the clock)")
	fs.StringVar(&f.feasibility, "feasibility", config.FeasibilityLiteral, "Feasibility policy: literal or deficient")
	fs.StringVar(&f.manifest, "manifest", "", "SQLite manifest file (disabled when empty)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Prometheus textfile output (disabled when empty)")
}

// apply overrides cfg with every flag set on the command line.
func (f *balanceFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	overrides := map[string]func(){
		"in-dir":        func() { cfg.InDir = f.inDir },
		"out-dir":       func() { cfg.OutDir = f.outDir },
		"dest-name":     func() { cfg.DestName = f.destName },
		"theta":         func() { cfg.Theta = f.theta },
		"fact":          func() { cfg.Fact = f.fact },
		"theta-step":    func() { cfg.ThetaStep = f.thetaStep },
		"fact-step":     func() { cfg.FactStep = f.factStep },
		"multiplier":    func() { cfg.Multiplier = f.multiplier },
		"workers":       func() { cfg.Workers = f.workers },
		"image-workers": func() { cfg.ImageWorkers = f.imageWorkers },
		"engine":        func() { cfg.Engine = f.engine },
		"seed":          func() { cfg.Seed = f.seed },
		"feasibility":   func() { cfg.Feasibility = f.feasibility },
		"manifest":      func() { cfg.Manifest = f.manifest },
		"metrics-file":  func() { cfg.MetricsFile = f.metricsFile },
	}
	fs.Visit(func(flag *pflag.Flag) {
		if set, ok := overrides[flag.Name]; ok {
			set()
		}
	})
}

// loadConfig reads the config file when given, then applies flag overrides
// and the logging flags.
func loadConfig(fs *pflag.FlagSet, flags *balanceFlags) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if flags != nil {
		flags.apply(fs, &cfg)
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	return initLogger(cfg.Log.Level, cfg.Log.Format, debugMode)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func requireEngine(name string, available []string) error {
	for _, n := range available {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown engine %q (available: %v)", config.ErrInvalid, name, available)
}
