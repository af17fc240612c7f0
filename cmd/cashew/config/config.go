package config

// Package config in cmd provides a thin wrapper around the shared
// configuration loader found in pkg/config. It exposes the loaded
// configuration via the AppConfig variable and mirrors the behaviour
// used by the command line tests.

import (
	pkgconfig "cashew/pkg/config"
)

// AppConfig holds the currently loaded configuration for command line
// utilities. It mirrors pkg/config.AppConfig but is scoped to this package
// for convenience when writing CLI tools and tests.
var AppConfig pkgconfig.Config

// LoadConfig loads the configuration for the given environment name and
// stores it in AppConfig. Any errors during loading cause a panic, which is
// acceptable for command line initialisation where failure should abort
// execution.
func LoadConfig(env string) {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		panic(err)
	}
	AppConfig = *cfg
}

// LoadConfigSafe is LoadConfig without the panic, for callers (the cashew
// CLI's command bootstrap) that need to report a load failure through
// cobra's normal error path instead.
func LoadConfigSafe(env string) (*pkgconfig.Config, error) {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		return nil, err
	}
	AppConfig = *cfg
	return cfg, nil
}
