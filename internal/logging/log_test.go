package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := LogMode()
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLogMode(prev)
	})
	return &buf
}

func TestLogModeFilters(t *testing.T) {
	buf := capture(t)
	SetLogMode(WarningMode)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warningf("warning %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	for _, hidden := range []string{"debug 1", "info 2"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q logged below the threshold:\n%s", hidden, out)
		}
	}
	for _, shown := range []string{"WARNING warning 3", "ERROR error 4"} {
		if !strings.Contains(out, shown) {
			t.Errorf("missing %q:\n%s", shown, out)
		}
	}

	buf.Reset()
	SetLogMode(SilentMode)
	Criticalf("quiet")
	if buf.Len() != 0 {
		t.Errorf("silent mode logged %q", buf.String())
	}
}

func TestTimeLogAppendsElapsed(t *testing.T) {
	buf := capture(t)
	SetLogMode(DebugMode)

	tlog := NewTimeLog()
	tlog.Infof("wrote %d units", 3)
	if !strings.Contains(buf.String(), "wrote 3 units: ") {
		t.Errorf("TimeLog output = %q", buf.String())
	}
}

func TestLogConfigRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recondition.log")
	prev := current()
	t.Cleanup(func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
		log.SetOutput(os.Stderr)
	})
	SetLogMode(InfoMode)

	c := &LogConfig{Logfile: path, MaxSize: 1, MaxAge: 1}
	c.SetLogger()
	Infof("into the file")
	Shutdown()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "into the file") {
		t.Errorf("log file = %q", data)
	}

	// A nil config leaves logging alone.
	var none *LogConfig
	none.SetLogger()
}
