// Package config holds the settings of a tracking session and loads them
// from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go.universe.tf/pupiltrack/internal/acquisition"
	"go.universe.tf/pupiltrack/internal/display"
	"go.universe.tf/pupiltrack/internal/location"
	"go.universe.tf/pupiltrack/internal/roi"
	"go.universe.tf/pupiltrack/internal/transport"
)

// EnvPath names the environment variable consulted for the config file
// when none is given on the command line.
const EnvPath = "PUPILTRACK_CONFIG"

// Frame sources.
const (
	SourceCamera    = "camera"
	SourceSynthetic = "synthetic"
)

// Config is the full set of session settings.
type Config struct {
	// Source is where frames come from, SourceCamera or SourceSynthetic.
	Source string `yaml:"source"`
	// Device is a camera index, device path or stream URL.
	Device string `yaml:"device"`
	// Width and Height request a capture size. Zero keeps the device
	// default.
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	ReadTimeout time.Duration `yaml:"read_timeout"`

	ROIFile string `yaml:"roi_file"`

	Listen           string        `yaml:"listen"`
	Transport        string        `yaml:"transport"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Precision        int           `yaml:"precision"`

	Detector  string  `yaml:"detector"`
	Threshold float64 `yaml:"threshold"`

	Headless bool   `yaml:"headless"`
	Debug    bool   `yaml:"debug"`
	Window   string `yaml:"window"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Source:       SourceCamera,
		Device:       "0",
		ReadTimeout:  acquisition.DefaultReadTimeout,
		ROIFile:      roi.DefaultFile,
		Listen:       ":10001",
		Transport:    transport.KindTCP,
		WriteTimeout: time.Second,
		Precision:    transport.DefaultPrecision,
		Detector:     location.StrategyContour,
		Threshold:    location.DefaultThreshold,
		Window:       display.DefaultTitle,
		LogLevel:     "info",
	}
}

// Load returns Default overlaid with the YAML file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := LoadInto(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadInto overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current value. Unknown keys are an error.
func LoadInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Write encodes cfg as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var err error
	if c.Source != SourceCamera && c.Source != SourceSynthetic {
		err = multierr.Append(err, fmt.Errorf("source %q: want %q or %q", c.Source, SourceCamera, SourceSynthetic))
	}
	if c.Source == SourceCamera && c.Device == "" {
		err = multierr.Append(err, errors.New("device must be set for the camera source"))
	}
	if c.Width < 0 || c.Height < 0 {
		err = multierr.Append(err, fmt.Errorf("capture size %dx%d is negative", c.Width, c.Height))
	}
	if c.ReadTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("read_timeout %v must be positive", c.ReadTimeout))
	}
	if c.ROIFile == "" {
		err = multierr.Append(err, errors.New("roi_file must be set"))
	}
	if c.Listen == "" {
		err = multierr.Append(err, errors.New("listen must be set"))
	}
	if c.Transport != transport.KindTCP && c.Transport != transport.KindWebSocket {
		err = multierr.Append(err, fmt.Errorf("transport %q: want %q or %q", c.Transport, transport.KindTCP, transport.KindWebSocket))
	}
	if c.WriteTimeout < 0 || c.HandshakeTimeout < 0 {
		err = multierr.Append(err, errors.New("timeouts must not be negative"))
	}
	if c.Precision < 0 || c.Precision > 10 {
		err = multierr.Append(err, fmt.Errorf("precision %d out of range [0, 10]", c.Precision))
	}
	if !slices.Contains(location.Strategies(), c.Detector) {
		err = multierr.Append(err, fmt.Errorf("detector %q: want one of %v", c.Detector, location.Strategies()))
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		err = multierr.Append(err, fmt.Errorf("threshold %v out of range [0, 255]", c.Threshold))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	return err
}
