package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Options holds shared configuration for the watch and analyze commands.
// Every field can come from a flag or from the YAML config file.
type Options struct {
	DB            string        `yaml:"db"`
	LogLevel      string        `yaml:"log_level"`
	Device        string        `yaml:"device"`
	Interval      int           `yaml:"interval"`
	Detector      string        `yaml:"detector"`
	Python        string        `yaml:"python"`
	WorkerScript  string        `yaml:"worker_script"`
	WorkerTimeout time.Duration `yaml:"worker_timeout"`
	Async         bool          `yaml:"async"`
	Headless      bool          `yaml:"headless"`
	Output        string        `yaml:"output"`
	Snapshots     string        `yaml:"snapshots"`
	Record        bool          `yaml:"record"`
}

// Detectors lists the face detector backends the Python worker accepts.
var Detectors = map[string]bool{
	"opencv":     true,
	"ssd":        true,
	"dlib":       true,
	"mtcnn":      true,
	"fastmtcnn":  true,
	"retinaface": true,
	"mediapipe":  true,
	"yolov8":     true,
	"yunet":      true,
	"centerface": true,
}

// Load decodes a YAML file over dst. Keys missing from the file keep their current value.
func Load(path string, dst *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Apply loads the config file into dst while keeping every flag the user set
// explicitly. dst must be the struct the flags are bound to.
func Apply(flags *pflag.FlagSet, path string, dst *Options) error {
	if path == "" {
		return nil
	}

	explicit := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := Load(path, dst); err != nil {
		return err
	}

	// Re-apply command-line values on top of the file.
	for name, value := range explicit {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("restore flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the options used by the watch loop.
func (o *Options) Validate() error {
	if o.Device == "" {
		return errors.New("device must not be empty")
	}
	if o.Interval < 1 {
		return fmt.Errorf("interval must be >= 1, got %d", o.Interval)
	}
	if !Detectors[o.Detector] {
		return fmt.Errorf("unknown detector %q", o.Detector)
	}
	if o.WorkerTimeout < 0 {
		return fmt.Errorf("worker-timeout must not be negative, got %s", o.WorkerTimeout)
	}
	return nil
}

// DatabaseURL resolves the connection string: explicit value first, then the
// POSTGRES_* environment, then a local default.
func DatabaseURL(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/guardian"
}
