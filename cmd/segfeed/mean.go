package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/segfeed/internal/catalog"
	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/filter"
	"github.com/bamsammich/segfeed/internal/loader"
	"github.com/bamsammich/segfeed/internal/meanfile"
)

var meanCmd = &cobra.Command{
	Use:   "mean [flags] <manifest> <output>",
	Short: "Compute the per-pixel mean image of a manifest",
	Long: `mean averages every image in the manifest and writes a mean file for
--mean-file. Images must share one size unless --new-height and --new-width
resize them. An output path ending in .zst is zstd compressed.`,
	Args: cobra.ExactArgs(2),
	RunE: runMean,
}

func init() {
	fs := meanCmd.Flags()
	fs.String("root", "", "directory prepended to relative manifest paths")
	fs.Int("new-height", 0, "resize images to this height")
	fs.Int("new-width", 0, "resize images to this width")
	fs.Bool("color", true, "load 3-channel BGR images (false: grayscale)")
	fs.String("io-limit", "", "read bandwidth limit (e.g. 100M)")
}

func runMean(cmd *cobra.Command, args []string) error {
	fs := cmd.Flags()
	root, _ := fs.GetString("root")        //nolint:errcheck // flag name is hardcoded
	rows, _ := fs.GetInt("new-height")     //nolint:errcheck // flag name is hardcoded
	cols, _ := fs.GetInt("new-width")      //nolint:errcheck // flag name is hardcoded
	color, _ := fs.GetBool("color")        //nolint:errcheck // flag name is hardcoded
	ioLimit, _ := fs.GetString("io-limit") //nolint:errcheck // flag name is hardcoded

	if (rows > 0) != (cols > 0) {
		return setupError(errdefs.Configf("new_height", "--new-height and --new-width must be set together"))
	}
	opts := loader.Options{Root: root}
	if ioLimit != "" {
		n, err := filter.ParseSize(ioLimit)
		if err != nil {
			return setupError(err)
		}
		opts.BytesPerSec = n
	}

	samples, err := catalog.LoadManifest(args[0], catalog.LabelNone, nil)
	if err != nil {
		return setupError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mean, err := computeMean(ctx, loader.New(opts), samples, rows, cols, color)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	if err := meanfile.Write(args[1], mean); err != nil {
		return &exitError{code: 1, err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s  %dx%dx%d  from %d images\n",
		args[1], mean.Channels, mean.Rows, mean.Cols, len(samples))
	return nil
}

// computeMean averages the images of samples. Unreadable files are skipped
// with a warning; a size mismatch is fatal.
func computeMean(ctx context.Context, ld loader.Loader, samples []catalog.Sample, rows, cols int, color bool) (*meanfile.Image, error) {
	var acc meanfile.Accumulator
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := ld.Load(ctx, s.Image, rows, cols, color)
		if err != nil {
			slog.Warn("skipping unreadable image", "path", s.Image, "error", err)
			continue
		}
		if err := acc.Add(img); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Image, err)
		}
	}
	slog.Info("mean computed", "images", acc.Count(), "skipped", len(samples)-acc.Count())
	return acc.Mean()
}

