package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/screa/create3-salt-miner/internal/crypto"
	"github.com/screa/create3-salt-miner/internal/pattern"
	"github.com/screa/create3-salt-miner/internal/salt"
	"github.com/screa/create3-salt-miner/pkg/types"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "CREATE3_"

// Errors
var (
	ErrNoCreatorSpecified = errors.New("must specify --creator")
	ErrNoTargetSpecified  = errors.New("must specify --target, --prefix, --suffix or --leading-zeros")
	ErrTargetConflict     = errors.New("--target cannot be combined with --prefix or --suffix")
	ErrFactoryConflict    = errors.New("--factory cannot be combined with --use-default-factory")
)

// Config holds the application configuration
type Config struct {
	Creator           string        `yaml:"creator" env:"CREATOR"`
	Target            string        `yaml:"target" env:"TARGET"`
	Prefix            string        `yaml:"prefix" env:"PREFIX"`
	Suffix            string        `yaml:"suffix" env:"SUFFIX"`
	LeadingZeros      int           `yaml:"leading_zeros" env:"LEADING_ZEROS"` // negative means unset
	CaseSensitive     bool          `yaml:"case_sensitive" env:"CASE_SENSITIVE"`
	MaxAttempts       uint64        `yaml:"max_attempts" env:"MAX_ATTEMPTS"` // 0 means unbounded
	Parallel          bool          `yaml:"parallel" env:"PARALLEL"`
	Workers           int           `yaml:"workers" env:"WORKERS"`
	Silent            bool          `yaml:"silent" env:"SILENT"`
	Factory           string        `yaml:"factory" env:"FACTORY"`
	UseDefaultFactory bool          `yaml:"use_default_factory" env:"USE_DEFAULT_FACTORY"`
	SaltStrategy      string        `yaml:"salt_strategy" env:"SALT_STRATEGY"`
	ProgressInterval  time.Duration `yaml:"progress_interval" env:"PROGRESS_INTERVAL"`
	LogLevel          string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile           string        `yaml:"log_file" env:"LOG_FILE"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		LeadingZeros:     -1,
		SaltStrategy:     string(types.SaltCounter),
		ProgressInterval: 250 * time.Millisecond,
		LogLevel:         "info",
	}
}

// Load builds a configuration from defaults, an optional YAML file and CREATE3_*
// environment variables, in that order of precedence (later wins).
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode yaml %q: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Creator) == "" {
		return ErrNoCreatorSpecified
	}
	if c.Target == "" && c.Prefix == "" && c.Suffix == "" && c.LeadingZeros < 0 {
		return ErrNoTargetSpecified
	}
	if c.Target != "" && (c.Prefix != "" || c.Suffix != "") {
		return ErrTargetConflict
	}
	if c.Target != "" && len(strip0x(strings.TrimSpace(c.Target))) != pattern.AddressHexLen {
		return fmt.Errorf("%w: target must be %d hex digits", types.ErrInvalidPattern, pattern.AddressHexLen)
	}
	if c.Factory != "" && c.UseDefaultFactory {
		return ErrFactoryConflict
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if _, err := salt.ParseStrategy(c.SaltStrategy); err != nil {
		return err
	}
	return nil
}

// GetTargetDescription returns a human-readable description of the target
func (c *Config) GetTargetDescription() string {
	var parts []string
	if c.Target != "" {
		parts = append(parts, "exact match: "+c.Target)
	}
	if c.Prefix != "" {
		parts = append(parts, "prefix: "+c.Prefix)
	}
	if c.Suffix != "" {
		parts = append(parts, "suffix: "+c.Suffix)
	}
	if c.LeadingZeros >= 0 {
		parts = append(parts, fmt.Sprintf("leading zeros: %d", c.LeadingZeros))
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, ", ")
}

// SearchConfig validates the configuration and converts it into the request the
// miner consumes. Errors wrap types.ErrInvalidCreatorAddress or types.ErrInvalidPattern
// where applicable.
func (c *Config) SearchConfig() (types.SearchConfig, error) {
	if err := c.Validate(); err != nil {
		return types.SearchConfig{}, err
	}

	creator, err := ParseAddress(c.Creator)
	if err != nil {
		return types.SearchConfig{}, fmt.Errorf("%w: %v", types.ErrInvalidCreatorAddress, err)
	}

	strategy, _ := salt.ParseStrategy(c.SaltStrategy)
	sc := types.SearchConfig{
		Creator:          creator,
		Pattern:          c.PatternSpec(),
		MaxAttempts:      c.MaxAttempts,
		Parallel:         c.Parallel,
		Silent:           c.Silent,
		Workers:          c.Workers,
		SaltStrategy:     strategy,
		ProgressInterval: c.ProgressInterval,
	}

	switch {
	case c.UseDefaultFactory:
		factory := common.HexToAddress(crypto.DefaultFactoryAddress)
		sc.Factory = &factory
	case c.Factory != "":
		factory, err := ParseAddress(c.Factory)
		if err != nil {
			return types.SearchConfig{}, fmt.Errorf("invalid factory address: %w", err)
		}
		sc.Factory = &factory
	}

	if _, err := pattern.Compile(sc.Pattern); err != nil {
		return types.SearchConfig{}, err
	}
	return sc, nil
}

// PatternSpec returns the pattern described by the configuration. A target is an
// exact match, expressed as a full-length prefix.
func (c *Config) PatternSpec() types.PatternSpec {
	spec := types.PatternSpec{
		Prefix:        c.Prefix,
		Suffix:        c.Suffix,
		CaseSensitive: c.CaseSensitive,
	}
	if c.Target != "" {
		spec.Prefix = c.Target
	}
	if c.LeadingZeros >= 0 {
		n := c.LeadingZeros
		spec.LeadingZeros = &n
	}
	return spec
}

// ParseAddress decodes a 0x-prefixed 40 hex digit address
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a 20-byte hex address", s)
	}
	return common.HexToAddress(s), nil
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
