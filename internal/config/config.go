package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"projection-mapper/internal/calib"
)

// Config holds the engine settings.
type Config struct {
	// Paths
	OutputDir string `json:"output_dir" toml:"output_dir" yaml:"output_dir"`
	Store     string `json:"store" toml:"store" yaml:"store"`

	// Output settings
	MapWidth    int `json:"map_width" toml:"map_width" yaml:"map_width"`
	MapHeight   int `json:"map_height" toml:"map_height" yaml:"map_height"`
	Supersample int `json:"supersample" toml:"supersample" yaml:"supersample"`
	// PreviewSize bounds the longest edge of the written previews; 0
	// keeps the camera size.
	PreviewSize int `json:"preview_size" toml:"preview_size" yaml:"preview_size"`
	Workers     int `json:"workers" toml:"workers" yaml:"workers"`

	LogLevel string `json:"log_level" toml:"log_level" yaml:"log_level"`

	Calibration calib.Options `json:"calibration" toml:"calibration" yaml:"calibration"`
	Blending    Blending      `json:"blending" toml:"blending" yaml:"blending"`
	Network     Network       `json:"network" toml:"network" yaml:"network"`
}

// Blending holds the seam blending settings.
type Blending struct {
	Mode                  string  `json:"mode" toml:"mode" yaml:"mode"`
	Path                  string  `json:"path" toml:"path" yaml:"path"`
	Width                 float64 `json:"width" toml:"width" yaml:"width"`
	Precision             float64 `json:"precision" toml:"precision" yaml:"precision"`
	TessellationLevels    int     `json:"tessellation_levels" toml:"tessellation_levels" yaml:"tessellation_levels"`
	Sideness              bool    `json:"sideness" toml:"sideness" yaml:"sideness"`
	LegacyTransposedMerge bool    `json:"legacy_transposed_merge" toml:"legacy_transposed_merge" yaml:"legacy_transposed_merge"`
	// PeerTimeout is in seconds.
	PeerTimeout float64 `json:"peer_timeout" toml:"peer_timeout" yaml:"peer_timeout"`
}

// Network selects the replication role. A process with a Peer URL follows
// the master listening there.
type Network struct {
	Listen string `json:"listen" toml:"listen" yaml:"listen"`
	Peer   string `json:"peer" toml:"peer" yaml:"peer"`
}

// Load reads a config file; the format follows the extension (.json,
// .toml, .yaml or .yml). Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config: %s: unknown format %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	OutputDir string
	Store     string
	Workers   int
	Preview   int
	Blend     string
	Path      string
	Listen    string
	Peer      string
	LogLevel  string
}

// Resolve applies the flags, then fills any empty field with its default.
func (c *Config) Resolve(flags Flags) {
	// CLI flags override config file
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.OutputDir, flags.OutputDir)
	set(&c.Store, flags.Store)
	set(&c.Blending.Mode, flags.Blend)
	set(&c.Blending.Path, flags.Path)
	set(&c.Network.Listen, flags.Listen)
	set(&c.Network.Peer, flags.Peer)
	set(&c.LogLevel, flags.LogLevel)
	if flags.Preview > 0 {
		c.PreviewSize = flags.Preview
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}

	if c.OutputDir == "" {
		c.OutputDir = "out"
	}
	if c.MapWidth <= 0 {
		c.MapWidth = 512
	}
	if c.MapHeight <= 0 {
		c.MapHeight = 512
	}
	if c.Supersample <= 0 {
		c.Supersample = 2
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Calibration = c.Calibration.WithDefaults()

	b := &c.Blending
	if b.Mode == "" {
		b.Mode = "off"
	}
	if b.Path == "" {
		b.Path = "compute"
	}
	if b.Width <= 0 {
		b.Width = 0.05
	}
	if b.Precision <= 0 {
		b.Precision = 0.1
	}
	if b.TessellationLevels <= 0 {
		b.TessellationLevels = 3
	}
	if b.PeerTimeout <= 0 {
		b.PeerTimeout = 10
	}
}

// Validate reports the first setting out of range. It expects a resolved
// config.
func (c *Config) Validate() error {
	switch {
	case c.MapWidth < 64 || c.MapHeight < 64:
		return fmt.Errorf("config: blending map %dx%d below 64x64", c.MapWidth, c.MapHeight)
	case c.PreviewSize < 0:
		return fmt.Errorf("config: negative preview size %d", c.PreviewSize)
	case c.Supersample > 4:
		return fmt.Errorf("config: supersample %d above 4", c.Supersample)
	case c.Blending.Mode != "once" && c.Blending.Mode != "continuous" && c.Blending.Mode != "off":
		return fmt.Errorf("config: unknown blending mode %q", c.Blending.Mode)
	case c.Blending.Path != "compute" && c.Blending.Path != "map":
		return fmt.Errorf("config: unknown blending path %q", c.Blending.Path)
	case c.Calibration.Method != calib.MethodSimplex && c.Calibration.Method != calib.MethodGonum:
		return fmt.Errorf("config: unknown calibration method %q", c.Calibration.Method)
	case c.Network.Listen != "" && c.Network.Peer != "":
		return fmt.Errorf("config: listen and peer are exclusive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Master reports whether this process computes the blending.
func (c *Config) Master() bool { return c.Network.Peer == "" }

// PeerTimeout returns the blending wait of non-master processes.
func (c *Config) PeerTimeout() time.Duration {
	return time.Duration(c.Blending.PeerTimeout * float64(time.Second))
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
