// Package config loads typed configuration from the environment.
//
// Struct fields are mapped with caarlos0/env tags; .env files are read with
// joho/godotenv before parsing. Process environment always takes precedence
// over file values.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg, config.WithOptionalEnvFiles(".env", ".env.local"))
//
// Every package that needs settings exposes its own Config struct so the
// binary composes them without a global registry.
package config
