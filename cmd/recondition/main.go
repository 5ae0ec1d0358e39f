// Command recondition rewrites a tomography dataset as a chunked,
// compressed HDF5 dataset and reports the compression it achieved.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/robert-malhotra/tomochunk/internal/config"
	"github.com/robert-malhotra/tomochunk/internal/logging"
	"github.com/robert-malhotra/tomochunk/internal/recondition"
)

const helpMessage = `
recondition streams a 3-D tomography dataset into a new chunked HDF5 dataset

Usage: recondition [options] INPUT_PATH OUTPUT_PATH

      -config      =string   TOML configuration file; options below override it.
      -dataset     =string   Source dataset (default /exchange/data).
      -out-dataset =string   Destination dataset (default: same as -dataset).
      -transform   =string   identity, downsample:K, cast:TYPE, or a comma separated chain.
                             Replaces the transform of -config.
      -shrink      =number   Keep every K-th row and column, after the transform.
      -cast        =string   Convert elements to TYPE (uint8, uint16, float32, ...),
                             after the transform and -shrink.
      -codec       =string   none, deflate, zstd, lz4, snappy, j2k, j2k-stack or jpegls.
      -level       =number   Compressor level; 0 selects the codec default.
      -shuffle     =string   none, byte or bit.
      -step        =number   Slices per chunk (default 1).
      -blocks      =string   Codec block shape, e.g. 1,256,256.
      -rate        =number   JPEG 2000 quality (1-100) or JPEG-LS NEAR bound.
      -fletcher32  (flag)    Append a checksum to every chunk.
      -direct      (flag)    Encode chunks here and write the payloads directly.
      -limit       =number   Write only the first N chunks.
      -ssim        (flag)    Decode every chunk again and report its SSIM.
      -min-ssim    =number   Warn when the mean SSIM falls below this.
      -baseline    =string   Also write CODEC[:LEVEL] to OUTPUT-baseline and compare.
      -logfile     =string   Write log messages to this rotating file.
      -verbose     (flag)    Log every chunk.
  -h, -help        (flag)    Show help message
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// Exit statuses.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	config     string
	dataset    string
	outDataset string
	transform  string
	shrink     int
	cast       string
	codec      string
	level      int
	shuffle    string
	step       int
	blocks     string
	rate       float64
	fletcher32 bool
	direct     bool
	limit      int
	ssim       bool
	minSSIM    float64
	baseline   string
	logfile    string
	verbose    bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("recondition", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, helpMessage) }

	var o options
	fs.StringVar(&o.config, "config", "", "")
	fs.StringVar(&o.dataset, "dataset", "", "")
	fs.StringVar(&o.outDataset, "out-dataset", "", "")
	fs.StringVar(&o.transform, "transform", "", "")
	fs.IntVar(&o.shrink, "shrink", 0, "")
	fs.StringVar(&o.cast, "cast", "", "")
	fs.StringVar(&o.codec, "codec", "", "")
	fs.IntVar(&o.level, "level", 0, "")
	fs.StringVar(&o.shuffle, "shuffle", "", "")
	fs.IntVar(&o.step, "step", 0, "")
	fs.StringVar(&o.blocks, "blocks", "", "")
	fs.Float64Var(&o.rate, "rate", 0, "")
	fs.BoolVar(&o.fletcher32, "fletcher32", false, "")
	fs.BoolVar(&o.direct, "direct", false, "")
	fs.IntVar(&o.limit, "limit", 0, "")
	fs.BoolVar(&o.ssim, "ssim", false, "")
	fs.Float64Var(&o.minSSIM, "min-ssim", 0, "")
	fs.StringVar(&o.baseline, "baseline", "", "")
	fs.StringVar(&o.logfile, "logfile", "", "")
	fs.BoolVar(&o.verbose, "verbose", false, "")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if n := fs.NArg(); (n != 0 && n != 2) || (n == 0 && o.config == "") {
		fs.Usage()
		return exitUsage
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, logCfg, err := o.load(set, fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, err)
		if errors.Is(err, recondition.ErrUsage) {
			fs.Usage()
			return exitUsage
		}
		return exitFailure
	}

	if o.verbose {
		logging.SetLogMode(logging.DebugMode)
	}
	logCfg.SetLogger()
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lines []string
	if cfg.Baseline != nil {
		c, err := recondition.Compare(ctx, cfg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitStatus(err)
		}
		lines = append(lines, c.Run.Lines()...)
		lines = append(lines, c.Baseline.Lines()...)
		lines = append(lines, c.Lines()...)
	} else {
		rep, err := recondition.Run(ctx, cfg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitStatus(err)
		}
		lines = rep.Lines()
	}
	for _, l := range lines {
		fmt.Fprintln(stdout, l)
	}
	return exitOK
}

func exitStatus(err error) int {
	if errors.Is(err, recondition.ErrUsage) {
		return exitUsage
	}
	return exitFailure
}

// load builds the run configuration from the config file if one was
// given, then the positional paths, then every flag set on the command
// line.
func (o *options) load(set map[string]bool, paths []string) (recondition.Config, *logging.LogConfig, error) {
	var (
		cfg    recondition.Config
		logCfg = &logging.LogConfig{}
	)
	if o.config != "" {
		f, err := config.Load(o.config)
		if err != nil {
			return cfg, nil, err
		}
		if cfg, err = recondition.FromFile(f); err != nil {
			return cfg, nil, err
		}
		logCfg = &f.Logging
	}
	if len(paths) == 2 {
		cfg.Input, cfg.Output = paths[0], paths[1]
	}

	if set["dataset"] {
		cfg.SourceDataset = o.dataset
	}
	if set["out-dataset"] {
		cfg.DestDataset = o.outDataset
	}
	// -transform replaces the file's transform; -shrink and -cast extend
	// whichever transform is in effect.
	if set["transform"] || set["shrink"] || set["cast"] {
		var parts []string
		switch {
		case set["transform"]:
			if o.transform != "" {
				parts = append(parts, o.transform)
			}
		case cfg.Transform != nil:
			if _, ok := cfg.Transform.(recondition.Identity); !ok {
				parts = append(parts, cfg.Transform.String())
			}
		}
		if set["shrink"] {
			parts = append(parts, "downsample:"+strconv.Itoa(o.shrink))
		}
		if set["cast"] {
			parts = append(parts, "cast:"+o.cast)
		}
		t, err := recondition.ParseTransform(strings.Join(parts, ","))
		if err != nil {
			return cfg, nil, err
		}
		cfg.Transform = t
	}
	if set["step"] {
		cfg.Step = o.step
	}
	if set["limit"] {
		cfg.Limit = o.limit
	}
	if set["direct"] {
		cfg.DirectChunkWrite = o.direct
	}
	if set["ssim"] {
		cfg.Similarity = o.ssim
	}
	if set["min-ssim"] {
		cfg.MinSimilarity = o.minSSIM
	}

	p := &cfg.Compression
	if set["codec"] {
		p.Codec = o.codec
	}
	if set["level"] {
		p.Level = o.level
	}
	if set["shuffle"] {
		s, err := recondition.ParseShuffle(o.shuffle)
		if err != nil {
			return cfg, nil, err
		}
		p.Shuffle = s
	}
	if set["blocks"] {
		b, err := parseInts(o.blocks)
		if err != nil {
			return cfg, nil, err
		}
		p.BlockShape = b
	}
	if set["rate"] {
		p.Rate = o.rate
	}
	if set["fletcher32"] {
		p.Fletcher32 = o.fletcher32
	}
	if set["baseline"] {
		b, err := parseBaseline(o.baseline)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Baseline = b
	}
	if set["logfile"] {
		logCfg.Logfile = o.logfile
	}

	if cfg.Input == "" || cfg.Output == "" {
		return cfg, nil, fmt.Errorf("%w: INPUT_PATH and OUTPUT_PATH are required", recondition.ErrUsage)
	}
	return cfg, logCfg, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: block shape %q", recondition.ErrInvalidPolicy, s)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseBaseline reads CODEC or CODEC:LEVEL.
func parseBaseline(s string) (*recondition.CompressionPolicy, error) {
	codec, level, hasLevel := strings.Cut(s, ":")
	p := &recondition.CompressionPolicy{Codec: codec}
	if hasLevel {
		n, err := strconv.Atoi(level)
		if err != nil {
			return nil, fmt.Errorf("%w: baseline level in %q", recondition.ErrInvalidPolicy, s)
		}
		p.Level = n
	}
	return p, nil
}
