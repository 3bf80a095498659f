package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/checkpoint"
	"github.com/bamsammich/segfeed/internal/config"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/event"
	"github.com/bamsammich/segfeed/internal/filter"
	"github.com/bamsammich/segfeed/internal/loader"
	"github.com/bamsammich/segfeed/internal/prefetch"
	"github.com/bamsammich/segfeed/internal/stats"
	"github.com/bamsammich/segfeed/internal/transform"
	"github.com/bamsammich/segfeed/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// runFlags holds every flag of the root command. Values only reach the
// config when the flag was set explicitly.
type runFlags struct {
	configFile string
	verbose    bool
	quiet      bool
	noProgress bool
	logFile    string
	every      int64
	batches    int64
	step       time.Duration
	digest     bool
	resume     bool

	root        string
	labelType   string
	newHeight   int
	newWidth    int
	color       bool
	shuffle     bool
	seed        int64
	randSkip    int
	ioLimit     string
	filterFile  string
	phase       string
	cropSize    int
	cropHeight  int
	cropWidth   int
	mirror      bool
	maxRotation int
	maxShift    int
	smooth      bool
	maxSmooth   int
	applyProb   float64
	scales      []float64
	meanFile    string
	meanValues  []float64
	scale       float64
	ignoreLabel int
	backend     string
	batchSize   int
	poolSize    int
	cpPath      string
	cpEvery     int
}

func (f *runFlags) register(fs *pflag.FlagSet, chain *filter.Chain) {
	fs.StringVarP(&f.configFile, "config", "c", "", "read configuration from FILE (default: $XDG_CONFIG_HOME/segfeed/config.toml)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "suppress all output except errors")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable progress display")
	fs.StringVar(&f.logFile, "log", "", "write structured JSON log to FILE")
	fs.Int64Var(&f.every, "every", 0, "print a line every N consumed batches (plain output)")
	fs.Int64VarP(&f.batches, "batches", "n", 0, "stop after N batches (0: until interrupted)")
	fs.DurationVar(&f.step, "step", 0, "simulated consumer compute time per batch")
	fs.BoolVar(&f.digest, "digest", false, "log an xxhash checksum of every batch")
	fs.BoolVar(&f.resume, "resume", false, "continue from the saved checkpoint")

	fs.StringVar(&f.root, "root", "", "directory prepended to relative manifest paths")
	fs.StringVar(&f.labelType, "label-type", "pixel", "label type: none, image or pixel")
	fs.IntVar(&f.newHeight, "new-height", 0, "resize loaded files to this height")
	fs.IntVar(&f.newWidth, "new-width", 0, "resize loaded files to this width")
	fs.BoolVar(&f.color, "color", true, "load 3-channel BGR images (false: grayscale)")
	fs.BoolVar(&f.shuffle, "shuffle", false, "shuffle the manifest every epoch")
	fs.Int64Var(&f.seed, "seed", 0, "random seed (default: random)")
	fs.IntVar(&f.randSkip, "rand-skip", 0, "skip a random number of leading samples below N")
	fs.StringVar(&f.ioLimit, "io-limit", "", "read bandwidth limit (e.g. 100M, 1G)")
	fs.StringVar(&f.filterFile, "filter", "", "read manifest filter rules from FILE")
	fs.Var(&filterFlag{chain: chain}, "exclude", "drop manifest entries matching PATTERN (repeatable)")
	fs.Var(&filterFlag{chain: chain, include: true}, "include", "keep manifest entries matching PATTERN (repeatable)")

	fs.StringVar(&f.phase, "phase", "train", "train (random crops) or test (centered crops)")
	fs.IntVar(&f.cropSize, "crop-size", 0, "square crop size")
	fs.IntVar(&f.cropHeight, "crop-height", 0, "crop height (with --crop-width)")
	fs.IntVar(&f.cropWidth, "crop-width", 0, "crop width (with --crop-height)")
	fs.BoolVar(&f.mirror, "mirror", false, "randomly mirror samples horizontally")
	fs.IntVar(&f.maxRotation, "max-rotation", 0, "maximum rotation in degrees")
	fs.IntVar(&f.maxShift, "max-translation", 0, "maximum translation in pixels")
	fs.BoolVar(&f.smooth, "smooth", false, "randomly blur images")
	fs.IntVar(&f.maxSmooth, "max-smooth", 0, "largest blur kernel size")
	fs.Float64Var(&f.applyProb, "apply-probability", config.DefaultApplyProbability, "probability of blurring a sample")
	fs.Float64SliceVar(&f.scales, "scale-factors", nil, "rescale factors drawn per sample")
	fs.StringVar(&f.meanFile, "mean-file", "", "subtract the mean image in FILE")
	fs.Float64SliceVar(&f.meanValues, "mean-values", nil, "subtract per-channel mean values")
	fs.Float64Var(&f.scale, "output-scale", 1, "multiply normalized pixels by this factor")
	fs.IntVar(&f.ignoreLabel, "ignore-label", config.DefaultIgnoreLabel, "label value for padding and missing labels")
	fs.StringVar(&f.backend, "backend", "cpu", "image backend: cpu or opencv")

	fs.IntVarP(&f.batchSize, "batch-size", "b", config.DefaultBatchSize, "samples per batch")
	fs.IntVar(&f.poolSize, "pool-size", prefetch.DefaultPoolSize, "batches in flight")
	fs.StringVar(&f.cpPath, "checkpoint", "", "checkpoint database path (default: per manifest under $XDG_STATE_HOME)")
	fs.IntVar(&f.cpEvery, "checkpoint-every", config.DefaultCheckpointEvery, "save the position every N consumed batches")
}

// overrideConfig copies explicitly set flags over config file values.
//
//nolint:gocyclo // one branch per flag
func (f *runFlags) overrideConfig(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string) bool { return fs.Changed(name) }
	d, t := &cfg.Data, &cfg.Transform
	if set("root") {
		d.RootFolder = &f.root
	}
	if set("label-type") {
		d.LabelType = &f.labelType
	}
	if set("new-height") {
		d.NewHeight = &f.newHeight
	}
	if set("new-width") {
		d.NewWidth = &f.newWidth
	}
	if set("color") {
		d.IsColor = &f.color
	}
	if set("shuffle") {
		d.Shuffle = &f.shuffle
	}
	if set("seed") {
		d.Seed = &f.seed
	}
	if set("rand-skip") {
		d.RandSkip = &f.randSkip
	}
	if set("io-limit") {
		d.IOLimit = &f.ioLimit
	}
	if set("filter") {
		d.FilterFile = &f.filterFile
	}
	if set("phase") {
		t.Phase = &f.phase
	}
	if set("crop-size") {
		t.CropSize = &f.cropSize
	}
	if set("crop-height") {
		t.CropHeight = &f.cropHeight
	}
	if set("crop-width") {
		t.CropWidth = &f.cropWidth
	}
	if set("mirror") {
		t.Mirror = &f.mirror
	}
	if set("max-rotation") {
		t.MaxRotationAngle = &f.maxRotation
	}
	if set("max-translation") {
		t.MaxTranslation = &f.maxShift
	}
	if set("smooth") {
		t.SmoothFiltering = &f.smooth
	}
	if set("max-smooth") {
		t.MaxSmooth = &f.maxSmooth
	}
	if set("apply-probability") {
		t.ApplyProbability = &f.applyProb
	}
	if set("scale-factors") {
		t.ScaleFactors = f.scales
	}
	if set("mean-file") {
		t.MeanFile = &f.meanFile
	}
	if set("mean-values") {
		t.MeanValues = f.meanValues
	}
	if set("output-scale") {
		t.Scale = &f.scale
	}
	if set("ignore-label") {
		t.IgnoreLabel = &f.ignoreLabel
	}
	if set("backend") {
		t.Backend = &f.backend
	}
	if set("batch-size") {
		cfg.Prefetch.BatchSize = &f.batchSize
	}
	if set("pool-size") {
		cfg.Prefetch.PoolSize = &f.poolSize
	}
	if set("checkpoint") {
		cfg.Checkpoint.Path = &f.cpPath
	}
	if set("checkpoint-every") {
		cfg.Checkpoint.Every = &f.cpEvery
	}
}

// loadConfig reads --config when given, else the default path, then applies
// flag overrides.
func (f *runFlags) loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if f.configFile != "" {
		cfg, err = config.LoadFile(f.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	f.overrideConfig(fs, &cfg)
	return cfg, nil
}

// setupLogging installs the default slog logger: text on stderr, plus JSON to
// --log when set. The returned func closes the log file.
func setupLogging(verbose, quiet bool, logFile string) (func(), error) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	} else if !quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	closeLog := func() {}
	if logFile != "" {
		lf, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closeLog = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLog, nil
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point wires every component
func run() int {
	var flags runFlags
	var showVersion bool
	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "segfeed [flags] [manifest]",
		Short: "Prefetching image/label batch pipeline for segmentation training",
		Long: `segfeed reads a manifest of image, mask and edge files and produces
augmented, normalized fixed-shape batches on a background worker while
the consumer drains them.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "segfeed %s\n", version)
				return nil
			}

			closeLog, err := setupLogging(flags.verbose, flags.quiet, flags.logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			runID := uuid.New()
			slog.SetDefault(slog.Default().With("run", runID.String()))

			cfg, err := flags.loadConfig(cmd.Flags())
			if err != nil {
				return setupError(err)
			}
			ui.ApplyTheme(cfg.Theme)
			if len(args) == 1 {
				cfg.Data.Source = &args[0]
			}
			if cfg.Data.Source == nil {
				return setupError(errdefs.Configf("source", "no manifest given (argument or [data] source)"))
			}
			if err := cfg.Validate(); err != nil {
				return setupError(err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return feed(ctx, cmd, cfg, chain, &flags, runID)
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	flags.register(rootCmd.Flags(), chain)

	rootCmd.AddCommand(meanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// feed builds the pipeline from cfg and consumes batches until the batch
// limit, an interrupt or a worker failure.
//
//nolint:gocyclo,revive // sequential setup of every component
func feed(ctx context.Context, cmd *cobra.Command, cfg config.Config, chain *filter.Chain, flags *runFlags, runID uuid.UUID) error {
	manifest := *cfg.Data.Source

	backend, err := backendFor(cfg.Transform.BackendName())
	if err != nil {
		return setupError(err)
	}
	params, err := cfg.TransformParams(nil)
	if err != nil {
		return setupError(err)
	}
	catOpts, err := cfg.CatalogOptions()
	if err != nil {
		return setupError(err)
	}
	// A random seed would give every run its own checkpoint key.
	checkpointing := cfg.Checkpoint.Path != nil || flags.resume
	if cfg.Data.Seed == nil && !checkpointing {
		catOpts.Seed = rand.Uint64()
	}
	segOpts, err := cfg.SegOptions()
	if err != nil {
		return setupError(err)
	}
	ldOpts, err := cfg.LoaderOptions()
	if err != nil {
		return setupError(err)
	}
	rules, err := cfg.Filter(chain)
	if err != nil {
		return setupError(err)
	}

	samples, err := catalog.LoadManifest(manifest, segOpts.LabelType, rules)
	if err != nil {
		return setupError(err)
	}
	cat, err := catalog.Build(samples, catOpts)
	if err != nil {
		return setupError(fmt.Errorf("%s: %w", manifest, err))
	}
	slog.Info("catalog loaded", "manifest", manifest, "samples", cat.Len(),
		"skipped", cat.Skipped(), "shuffle", catOpts.Shuffle, "seed", catOpts.Seed)

	// Checkpointing is on when a path is configured or --resume asks for it.
	var recorder *checkpoint.Recorder
	if checkpointing {
		store, err := openCheckpoint(manifest, catOpts.Seed, cfg.Checkpoint.Path)
		if err != nil {
			return setupError(err)
		}
		defer store.Close()
		if flags.resume {
			if err := resumeFrom(store, cat); err != nil {
				return setupError(err)
			}
		}
		every, err := cfg.CheckpointEvery()
		if err != nil {
			return setupError(err)
		}
		recorder = checkpoint.NewRecorder(store, runID, every)
	}

	engine, err := transform.NewEngine(params, backend, catOpts.Seed^0x9e3779b97f4a7c15)
	if err != nil {
		return setupError(err)
	}
	ldOpts.Backend = backend

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	segOpts.Backend = backend
	segOpts.Stats = collector
	segOpts.Events = events
	src, err := prefetch.NewSegSource(cat, loader.New(ldOpts), engine, segOpts)
	if err != nil {
		return setupError(err)
	}

	pipeOpts := cfg.PipelineOptions()
	pipeOpts.Stats = collector
	pipeOpts.Events = events
	pipeline := prefetch.New(src, pipeOpts)

	presenterEvents := (<-chan event.Event)(events)
	if flags.logFile != "" {
		presenterEvents = ui.TeeToLog(events, 256)
	}
	isTTY := ui.IsTTY(os.Stderr)
	presenter := ui.NewPresenter(ui.Config{
		Writer:     cmd.OutOrStdout(),
		ErrWriter:  os.Stderr,
		Stats:      collector,
		IsTTY:      isTTY,
		Width:      ui.TermWidth(os.Stderr),
		Quiet:      flags.quiet,
		Verbose:    flags.verbose,
		NoProgress: flags.noProgress,
		Total:      flags.batches,
		Every:      flags.every,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()
	finish := func() {
		pipeline.Stop()
		close(events)
		presenterWg.Wait()
		if presenterErr != nil {
			fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
		}
	}

	slog.Debug("starting pipeline", "params", cfg.Transform.String(),
		"batch", segOpts.BatchSize, "pool", pipeOpts.PoolSize, "backend", cfg.Transform.BackendName())
	if err := pipeline.Start(ctx); err != nil {
		finish()
		return setupError(err)
	}

	consumeErr := consume(ctx, pipeline, recorder, events, flags)
	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			slog.Warn("final checkpoint failed", "error", err)
		}
	}
	finish()

	snap := collector.Snapshot()
	slog.Info("pipeline stopped", "stats", snap.String())
	if !flags.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if consumeErr != nil {
		slog.Error("pipeline failed", "error", consumeErr)
		if snap.BatchesConsumed > 0 {
			return &exitError{code: 1, err: consumeErr} // partial run
		}
		return &exitError{code: 2, err: consumeErr}
	}
	return nil
}

// consume drains batches like a training loop would. An interrupt ends the
// run cleanly.
func consume(ctx context.Context, p *prefetch.Pipeline, rec *checkpoint.Recorder, events chan<- event.Event, flags *runFlags) error {
	for n := int64(0); flags.batches == 0 || n < flags.batches; n++ {
		lease, err := p.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("interrupted", "consumed", n)
				return nil
			}
			return err
		}
		b := lease.Batch()
		if flags.digest {
			slog.Info("batch digest", "batch", b.Seq,
				"data", fmt.Sprintf("%016x", b.Data.Checksum()),
				"label", fmt.Sprintf("%016x", b.Label.Checksum()),
				"edge", fmt.Sprintf("%016x", b.Edge.Checksum()))
		}
		if flags.step > 0 {
			select {
			case <-time.After(flags.step):
			case <-ctx.Done():
			}
		}
		seq, pos := b.Seq, b.Position
		lease.Release()

		if rec != nil {
			saved, err := rec.Record(seq, pos)
			if err != nil {
				slog.Warn("checkpoint failed", "batch", seq, "error", err)
			} else if saved {
				event.Emit(events, event.Event{Type: event.CheckpointSaved, Batch: seq})
			}
		}
	}
	return nil
}

func openCheckpoint(manifest string, seed uint64, path *string) (*checkpoint.Store, error) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	key := checkpoint.Key(data, seed)
	p := checkpoint.DefaultPath(key)
	if path != nil && *path != "" {
		p = *path
	}
	store, err := checkpoint.Open(p, key)
	if err != nil {
		return nil, err
	}
	slog.Debug("checkpoint opened", "path", store.Path(), "key", key)
	return store, nil
}

func resumeFrom(store *checkpoint.Store, cat *catalog.Catalog) error {
	st, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("no checkpoint to resume from, starting fresh", "path", store.Path())
		return nil
	}
	if err := cat.Seek(st.Position); err != nil {
		return err
	}
	slog.Info("resuming", "position", st.Position.String(), "batch", st.Seq,
		"previous_run", st.RunID.String(), "saved", st.Saved.Format(time.RFC3339))
	return nil
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// setupError marks err as a failure before any batch was produced.
func setupError(err error) error {
	return &exitError{code: 2, err: err}
}
