package photoproof

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAuthenticThreshold is the verdict boundary: confidence at or above
// it is AUTHENTIC. It is the single source of truth for the pass/fail line.
const DefaultAuthenticThreshold = 0.70

const (
	defaultMaxTimestampAge = 48 * time.Hour
	defaultMaxClockSkew    = 2 * time.Minute
)

// Weights maps check names to their share of the confidence score. A check
// contributes its full weight only when true; there is no partial credit
// within a check.
type Weights map[string]float64

// DefaultWeights returns the deployed six-factor split.
func DefaultWeights() Weights {
	return Weights{
		CheckSignature:            0.30,
		CheckIntegrity:            0.25,
		CheckMetadataCompleteness: 0.20,
		CheckGeoPlausible:         0.10,
		CheckMotionPlausible:      0.10,
		CheckTimestampRecent:      0.05,
	}
}

// Confidence combines boolean check outcomes into a [0,1] score. Summation
// runs in sorted check-name order so repeated calls are bit-identical.
func (w Weights) Confidence(checks map[string]bool) float64 {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	var confidence float64
	for _, name := range names {
		if checks[name] {
			confidence += w[name]
		}
	}
	return confidence
}

// Duration wraps time.Duration so YAML configs can say "48h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config tunes a verification engine per deployment. Zero values take
// defaults; the weight split is configuration, not code.
type Config struct {
	TileSize           int      `yaml:"tile_size"`
	AuthenticThreshold float64  `yaml:"authentic_threshold"`
	Weights            Weights  `yaml:"weights"`
	MaxTimestampAge    Duration `yaml:"max_timestamp_age"`
	MaxClockSkew       Duration `yaml:"max_clock_skew"`
}

// DefaultConfig returns the deployed defaults.
func DefaultConfig() Config {
	return Config{
		TileSize:           DefaultTileSize,
		AuthenticThreshold: DefaultAuthenticThreshold,
		Weights:            DefaultWeights(),
		MaxTimestampAge:    Duration(defaultMaxTimestampAge),
		MaxClockSkew:       Duration(defaultMaxClockSkew),
	}
}

// LoadConfig reads a YAML config file, fills unset fields with defaults, and
// validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TileSize == 0 {
		c.TileSize = DefaultTileSize
	}
	if c.AuthenticThreshold == 0 {
		c.AuthenticThreshold = DefaultAuthenticThreshold
	}
	if c.Weights == nil {
		c.Weights = DefaultWeights()
	}
	if c.MaxTimestampAge == 0 {
		c.MaxTimestampAge = Duration(defaultMaxTimestampAge)
	}
	if c.MaxClockSkew == 0 {
		c.MaxClockSkew = Duration(defaultMaxClockSkew)
	}
}

// Validate enforces a coherent scoring model: known check names and weights
// summing to 1.0.
func (c *Config) Validate() error {
	if c.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", c.TileSize)
	}
	if c.AuthenticThreshold < 0 || c.AuthenticThreshold > 1 {
		return fmt.Errorf("authentic threshold must be in [0,1], got %v", c.AuthenticThreshold)
	}
	if c.MaxTimestampAge <= 0 {
		return fmt.Errorf("max timestamp age must be positive")
	}
	if c.MaxClockSkew < 0 {
		return fmt.Errorf("max clock skew must not be negative")
	}

	known := map[string]bool{
		CheckSignature:            true,
		CheckIntegrity:            true,
		CheckMetadataCompleteness: true,
		CheckGeoPlausible:         true,
		CheckMotionPlausible:      true,
		CheckTimestampRecent:      true,
	}
	var sum float64
	for name, weight := range c.Weights {
		if !known[name] {
			return fmt.Errorf("unknown check %q in weights", name)
		}
		if weight < 0 {
			return fmt.Errorf("weight for %q must not be negative", name)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}
