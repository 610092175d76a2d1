package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServiceWritesStructuredFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: path},
	})
	defer svc.Close()

	log.With(String("service", "worker")).Info("task handled",
		String("task", "send_message"),
		Int("attempt", 1),
	)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	for _, want := range []string{
		`"message":"task handled"`,
		`"service":"worker"`,
		`"task":"send_message"`,
		`"attempt":1`,
		`"level":"info"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log output missing %s: %s", want, line)
		}
	}
}

func TestServiceApplyChangesLevelLive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	cfg := Config{Level: "error", File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)
	defer svc.Close()

	log.Info("before reload")

	cfg.Level = "info"
	svc.Apply(cfg)
	log.Info("after reload")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "before reload") {
		t.Errorf("info record written while level was error: %s", out)
	}
	if !strings.Contains(out, "after reload") {
		t.Errorf("info record missing after level lowered: %s", out)
	}
}

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	t.Parallel()

	var zero Logger
	if !zero.IsZero() {
		t.Error("zero value logger reported non-zero")
	}
	zero.Error("dropped", Err(nil))

	nop := Nop()
	if nop.IsZero() {
		t.Error("Nop() logger reported zero")
	}
	nop.With(String("k", "v")).Warn("dropped")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"Debug", LevelDebug},
		{" info ", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelWarn},
		{"verbose", LevelWarn},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in, LevelWarn); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
