package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.BackingFieldPrefix != "_" {
		t.Fatalf("expected prefix _, got %q", cfg.BackingFieldPrefix)
	}
	if cfg.MaxSearchDepth != 10 {
		t.Fatalf("expected depth 10, got %d", cfg.MaxSearchDepth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{MaxSearchDepth: 5}.WithDefaults()
	if cfg.MaxSearchDepth != 5 {
		t.Fatalf("expected explicit depth preserved, got %d", cfg.MaxSearchDepth)
	}
	if cfg.BackingFieldPrefix != DefaultBackingFieldPrefix {
		t.Fatalf("expected default prefix, got %q", cfg.BackingFieldPrefix)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "empty prefix", cfg: Config{MaxSearchDepth: 1}, want: "backing_field_prefix"},
		{name: "dotted prefix", cfg: Config{BackingFieldPrefix: "a.", MaxSearchDepth: 1}, want: "must not contain"},
		{name: "zero depth", cfg: Config{BackingFieldPrefix: "_"}, want: "max_search_depth"},
		{name: "negative depth", cfg: Config{BackingFieldPrefix: "_", MaxSearchDepth: -2}, want: "max_search_depth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	v.Set("entity.max_search_depth", 5)

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxSearchDepth != 5 {
		t.Fatalf("expected depth 5, got %d", cfg.MaxSearchDepth)
	}
	if cfg.BackingFieldPrefix != DefaultBackingFieldPrefix {
		t.Fatalf("expected default prefix, got %q", cfg.BackingFieldPrefix)
	}
}

func TestFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("entity.max_search_depth", -1)
	if _, err := FromViper(v); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestFromViperNil(t *testing.T) {
	cfg, err := FromViper(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}
