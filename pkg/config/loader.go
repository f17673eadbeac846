package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option configures a single Load call.
type Option func(*loadOptions)

type loadOptions struct {
	files    []string
	optional bool
	prefix   string
}

// WithEnvFiles loads the given .env files before parsing. Values already present
// in the process environment win, matching godotenv.Load.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.files = append(o.files, files...)
	}
}

// WithOptionalEnvFiles is like WithEnvFiles but ignores files that do not exist.
func WithOptionalEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.files = append(o.files, files...)
		o.optional = true
	}
}

// WithPrefix prepends prefix to every env tag, e.g. "BILLING_" turns PG_URL into BILLING_PG_URL.
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// Load parses environment variables into v based on its `env` struct tags.
// Without options it reads an optional ./.env file first.
//
// Example:
//
//	type DatabaseConfig struct {
//		URL      string `env:"PG_URL,required"`
//		MaxConns int32  `env:"PG_MAX_CONNS" envDefault:"10"`
//	}
//
//	var cfg DatabaseConfig
//	if err := config.Load(&cfg); err != nil {
//		// Handle error
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.files) == 0 {
		o.files = []string{".env"}
		o.optional = true
	}

	for _, file := range o.files {
		if err := godotenv.Load(file); err != nil {
			if o.optional && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", file, err))
		}
	}

	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Useful for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
