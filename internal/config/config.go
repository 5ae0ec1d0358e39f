// Package config loads the TOML file that describes a reconditioning run.
//
// A file has up to four sections:
//
//	[reconditioner]
//	input = "tomo_00001.h5"
//	output = "tomo_00001-zstd.h5"
//	dataset = "/exchange/data"
//	step = 1
//
//	[compression]
//	codec = "zstd"
//	level = 3
//	shuffle = "bit"
//
//	[baseline]
//	codec = "deflate"
//
//	[logging]
//	logfile = "/var/log/recondition.log"
//	max_log_size = 500
//	max_log_age = 30
//
// Relative paths are resolved against the directory holding the file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/robert-malhotra/tomochunk/internal/logging"
)

var ErrUnknownKeys = errors.New("unknown configuration keys")

// File is the decoded configuration file.
type File struct {
	Reconditioner Reconditioner
	Compression   Compression
	Baseline      *Compression
	Logging       logging.LogConfig
}

// Reconditioner holds the run parameters.
type Reconditioner struct {
	Input      string
	Output     string
	Dataset    string
	OutDataset string `toml:"out_dataset"`
	Transform  string
	Step       int
	Limit      int
	Direct     bool
	SSIM       bool    `toml:"ssim"`
	MinSSIM    float64 `toml:"min_ssim"`
}

// Compression is a compression policy as written in the file. Zero values
// select the codec defaults.
type Compression struct {
	Codec      string
	Level      int
	Shuffle    string
	Blocks     []int
	Rate       float64
	Fletcher32 bool
}

// Load decodes the file at path. Keys that match no field are an error so
// a misspelt option is never silently ignored.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("could not decode config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: %w: %s", path, ErrUnknownKeys, strings.Join(keys, ", "))
	}
	if err := f.convertPathsToAbsolute(path); err != nil {
		return nil, err
	}
	return &f, nil
}

// convertPathsToAbsolute makes the file paths relative to the config file
// absolute.
func (f *File) convertPathsToAbsolute(configPath string) error {
	dir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return err
	}
	for _, p := range []*string{&f.Reconditioner.Input, &f.Reconditioner.Output, &f.Logging.Logfile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return nil
}
