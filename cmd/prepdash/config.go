package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/prepdash/pkg/config"
	"github.com/ajitpratap0/prepdash/pkg/logger"
)

const envPrefix = "PREPDASH"

// loadConfig layers the defaults, the config file, PREPDASH_* environment
// variables and bound flags, in increasing order of precedence. binds maps
// config keys such as "server.addr" to flag names.
func loadConfig(flags *globalFlags, fs *pflag.FlagSet, binds map[string]string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seeding viper with the defaults registers every key, so environment
	// overrides apply even when the file omits a section.
	defaults, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if flags.configFile != "" {
		data, err := config.ReadFile(flags.configFile)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", flags.configFile, err)
		}
	}

	for key, name := range binds {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	if flags.logLevel != "" {
		v.Set("logging.level", flags.logLevel)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger installs the global logger. Commands that print results to
// stdout move the default log output to stderr.
func setupLogger(cfg *config.Config, quietStdout bool) (*zap.Logger, error) {
	lc := cfg.Logging.Logger()
	if quietStdout && (len(lc.OutputPaths) == 0 || (len(lc.OutputPaths) == 1 && lc.OutputPaths[0] == "stdout")) {
		lc.OutputPaths = []string{"stderr"}
	}
	if err := logger.Init(lc); err != nil {
		return nil, err
	}
	return logger.Get().With(zap.String("component", "prepdash-cli")), nil
}
