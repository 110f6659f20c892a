// Package config holds the tunables shared by the identity resolver and the
// entity runtime. A Config is a plain value: build one, pass it explicitly, and
// never mutate it while resolutions are in flight.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultBackingFieldPrefix prefixes property names inside serialized payloads.
	DefaultBackingFieldPrefix = "_"

	// DefaultMaxSearchDepth bounds namespace searches.
	DefaultMaxSearchDepth = 10

	// Key is the viper section FromViper reads.
	Key = "entity"
)

// ErrInvalid reports a configuration value outside its accepted range.
var ErrInvalid = errors.New("config: invalid")

// Config carries the backing field naming convention and the namespace search bound.
type Config struct {
	BackingFieldPrefix string `mapstructure:"backing_field_prefix" json:"backing_field_prefix"`
	MaxSearchDepth     int    `mapstructure:"max_search_depth" json:"max_search_depth"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		BackingFieldPrefix: DefaultBackingFieldPrefix,
		MaxSearchDepth:     DefaultMaxSearchDepth,
	}
}

// WithDefaults fills zero fields from Default.
func (c Config) WithDefaults() Config {
	if c.BackingFieldPrefix == "" {
		c.BackingFieldPrefix = DefaultBackingFieldPrefix
	}
	if c.MaxSearchDepth == 0 {
		c.MaxSearchDepth = DefaultMaxSearchDepth
	}
	return c
}

// Validate checks that the values can be used by a runtime.
func (c Config) Validate() error {
	if c.BackingFieldPrefix == "" {
		return fmt.Errorf("%w: backing_field_prefix must not be empty", ErrInvalid)
	}
	if strings.Contains(c.BackingFieldPrefix, ".") {
		return fmt.Errorf("%w: backing_field_prefix must not contain %q", ErrInvalid, ".")
	}
	if c.MaxSearchDepth <= 0 {
		return fmt.Errorf("%w: max_search_depth must be greater than 0", ErrInvalid)
	}
	return nil
}

// FromViper reads the entity section of v, applying defaults for absent keys.
// Hosts own file and environment loading; v is expected to be populated.
func FromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		return Default(), nil
	}
	v.SetDefault(Key+".backing_field_prefix", DefaultBackingFieldPrefix)
	v.SetDefault(Key+".max_search_depth", DefaultMaxSearchDepth)

	// Per-key reads merge defaults with overrides; UnmarshalKey on the section
	// would only see whichever source holds the parent map.
	cfg := Config{
		BackingFieldPrefix: v.GetString(Key + ".backing_field_prefix"),
		MaxSearchDepth:     v.GetInt(Key + ".max_search_depth"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating %s config: %w", Key, err)
	}
	return cfg, nil
}
