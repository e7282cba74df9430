package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/guardian/internal/capture"
	"github.com/andresmejia3/guardian/internal/config"
	"github.com/andresmejia3/guardian/internal/loop"
	"github.com/andresmejia3/guardian/internal/types"
)

// silenceStderr redirects stderr for the duration of a test, as ShowError writes there.
func silenceStderr(t *testing.T) {
	t.Helper()
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stderr = w
	done := make(chan struct{})
	go func() {
		// Drain so writers never block on a full pipe
		buf := make([]byte, 4096)
		for {
			if _, err := r.Read(buf); err != nil {
				break
			}
		}
		close(done)
	}()
	t.Cleanup(func() {
		w.Close()
		<-done
		r.Close()
		os.Stderr = oldStderr
	})
}

func TestWatchFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"device", "0"},
		{"interval", "5"},
		{"detector", "mtcnn"},
		{"worker-timeout", "0s"},
		{"async", "false"},
		{"headless", "false"},
		{"output", ""},
		{"record", "false"},
		{"snapshots", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, fs := range []struct {
				cmd  string
				flag func(string) string
			}{
				{"watch", func(n string) string { return watchCmd.Flags().Lookup(n).DefValue }},
				{"root", func(n string) string { return rootCmd.Flags().Lookup(n).DefValue }},
			} {
				if got := fs.flag(tt.name); got != tt.want {
					t.Errorf("%s --%s default = %q, want %q", fs.cmd, tt.name, got, tt.want)
				}
			}
		})
	}

	if f := watchCmd.Flags().ShorthandLookup("n"); f == nil || f.Name != "interval" {
		t.Error("Expected -n to be the shorthand for --interval")
	}
}

func TestRunWatchRejectsInvalidOptions(t *testing.T) {
	silenceStderr(t)

	valid := config.Options{Device: "0", Interval: 5, Detector: "mtcnn"}
	tests := []struct {
		name   string
		mutate func(o *config.Options)
	}{
		{"Zero interval", func(o *config.Options) { o.Interval = 0 }},
		{"Negative interval", func(o *config.Options) { o.Interval = -3 }},
		{"Unknown detector", func(o *config.Options) { o.Detector = "nope" }},
		{"Empty device", func(o *config.Options) { o.Device = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			if err := runWatch(context.Background(), o); err == nil {
				t.Error("Expected runWatch to fail before touching the camera")
			}
		})
	}
}

func TestRunWatchMissingDevice(t *testing.T) {
	silenceStderr(t)

	o := config.Options{
		Device:   filepath.Join(t.TempDir(), "missing.mp4"),
		Interval: 5,
		Detector: "mtcnn",
	}
	err := runWatch(context.Background(), o)

	var oe *capture.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Expected *capture.OpenError, got %v", err)
	}
	if oe.Device != o.Device {
		t.Errorf("OpenError.Device = %q, want %q", oe.Device, o.Device)
	}
}

func TestWorkerConfigFromOptions(t *testing.T) {
	o := config.Options{
		Python:        "/usr/bin/python3.11",
		WorkerScript:  "/opt/guardian/worker.py",
		Detector:      "retinaface",
		WorkerTimeout: 30 * time.Second,
	}
	cfg := workerConfig(o)

	if cfg.Python != o.Python || cfg.Script != o.WorkerScript || cfg.Detector != o.Detector || cfg.ReadTimeout != o.WorkerTimeout {
		t.Errorf("Options not carried over: %+v", cfg)
	}
	if strings.Join(cfg.Actions, ",") != "gender,emotion" {
		t.Errorf("Actions = %v, want [gender emotion]", cfg.Actions)
	}
	if cfg.EnforceDetection {
		t.Error("Frames without faces must not be treated as errors")
	}
}

func TestPrintSummaryDoesNotPanic(t *testing.T) {
	silenceStderr(t)
	printSummary(loop.Summary{Frames: 22, Analyses: 4, Reason: loop.StopStreamEnd}, 3*time.Second)
	printSummary(loop.Summary{Frames: 7, Analyses: 1, Failures: 1, Dropped: 2, Reason: loop.StopQuitKey}, time.Second)
}

func TestAnnotatedPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"face.jpg", "face.annotated.jpg"},
		{"/tmp/group.png", "/tmp/group.annotated.jpg"},
		{"noext", "noext.annotated.jpg"},
	}
	for _, tt := range tests {
		if got := annotatedPath(tt.in); got != tt.want {
			t.Errorf("annotatedPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintFaces(t *testing.T) {
	var buf bytes.Buffer
	printFaces(&buf, types.AnalysisResult{
		{Region: types.Region{X: 10, Y: 20, W: 30, H: 40}, Gender: "Woman", Emotion: "happy"},
		{Region: types.Region{X: 1, Y: 2, W: 3, H: 4}, Gender: "Man", Emotion: "neutral"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header, separator and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], "10,20,30,40") || !strings.Contains(lines[2], "Woman") || !strings.Contains(lines[2], "happy") {
		t.Errorf("Unexpected first row: %q", lines[2])
	}
}

func TestRunLabelRejectsBlankName(t *testing.T) {
	silenceStderr(t)
	// Fails before the database is touched
	if err := runLabel(context.Background(), "9b2f1c34-7d8e-4c7a-9f00-1a2b3c4d5e6f", "   "); err == nil {
		t.Error("Expected error for blank name")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		yes   bool
		want  bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", false, false},
		{"\n", false, false},
		{"", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		resetYes = tt.yes
		var out bytes.Buffer
		got := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Proceed?")
		if got != tt.want {
			t.Errorf("confirm(%q, yes=%v) = %v, want %v", tt.input, tt.yes, got, tt.want)
		}
		if !tt.yes && !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("Expected prompt to be written, got %q", out.String())
		}
	}
	resetYes = false
}
