package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recondition.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[reconditioner]
input = "in/tomo.h5"
output = "/data/out.h5"
dataset = "/exchange/data"
out_dataset = "/exchange/small"
transform = "downsample:2"
step = 3
limit = 10
direct = true
ssim = true
min_ssim = 0.95

[compression]
codec = "j2k-stack"
rate = 40
blocks = [256, 256]
fletcher32 = true

[baseline]
codec = "zstd"
level = 5
shuffle = "bit"

[logging]
logfile = "logs/run.log"
max_log_size = 10
max_log_age = 7
`)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)

	r := f.Reconditioner
	if r.Input != filepath.Join(dir, "in/tomo.h5") {
		t.Errorf("Input = %q, want it resolved against %q", r.Input, dir)
	}
	if r.Output != "/data/out.h5" {
		t.Errorf("absolute Output rewritten to %q", r.Output)
	}
	if r.OutDataset != "/exchange/small" || r.Transform != "downsample:2" || r.Step != 3 || r.Limit != 10 {
		t.Errorf("reconditioner = %+v", r)
	}
	if !r.Direct || !r.SSIM || r.MinSSIM != 0.95 {
		t.Errorf("flags = %+v", r)
	}

	c := f.Compression
	if c.Codec != "j2k-stack" || c.Rate != 40 || len(c.Blocks) != 2 || c.Blocks[1] != 256 || !c.Fletcher32 {
		t.Errorf("compression = %+v", c)
	}
	if f.Baseline == nil || f.Baseline.Codec != "zstd" || f.Baseline.Level != 5 || f.Baseline.Shuffle != "bit" {
		t.Errorf("baseline = %+v", f.Baseline)
	}
	if f.Logging.Logfile != filepath.Join(dir, "logs/run.log") || f.Logging.MaxSize != 10 || f.Logging.MaxAge != 7 {
		t.Errorf("logging = %+v", f.Logging)
	}
}

func TestLoadWithoutBaseline(t *testing.T) {
	f, err := Load(writeConfig(t, "[compression]\ncodec = \"deflate\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Baseline != nil {
		t.Errorf("Baseline = %+v, want nil", f.Baseline)
	}
	if f.Reconditioner.Input != "" {
		t.Errorf("empty Input became %q", f.Reconditioner.Input)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "[compression]\ncodec = \"zstd\"\nclevel = 3\n"))
	if !errors.Is(err, ErrUnknownKeys) {
		t.Fatalf("Load = %v, want ErrUnknownKeys", err)
	}
	if !strings.Contains(err.Error(), "compression.clevel") {
		t.Errorf("error %q does not name the key", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file loaded")
	}
	if _, err := Load(writeConfig(t, "[compression\ncodec = 1")); err == nil {
		t.Error("malformed file loaded")
	}
}
