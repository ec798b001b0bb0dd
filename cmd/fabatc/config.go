package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine/fabmo"
)

// Config is the service configuration. Values come from an optional YAML
// file and are then overridden by any flag set on the command line.
type Config struct {
	Addr         string       `yaml:"addr"`
	Dir          string       `yaml:"dir"`
	Engine       EngineConfig `yaml:"engine"`
	Catalog      string       `yaml:"catalog"`
	StatusPolicy string       `yaml:"status_policy"`

	// Simulate replaces the engine with an in-memory machine and stores
	// configuration in SimConfig.
	Simulate  bool   `yaml:"simulate"`
	SimConfig string `yaml:"sim_config"`
}

// EngineConfig locates the FabMo engine.
type EngineConfig struct {
	URL          string        `yaml:"url"`
	PersistURL   string        `yaml:"persist_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StartGrace   time.Duration `yaml:"start_grace"`
}

func defaultConfig() Config {
	return Config{
		Addr: ":9091",
		Dir:  "./data",
		Engine: EngineConfig{
			URL:          "http://localhost",
			PollInterval: fabmo.DefaultPollInterval,
			StartGrace:   fabmo.DefaultStartGrace,
		},
		StatusPolicy: atc.StatusLoaded.String(),
		SimConfig:    "opensbp.json",
	}
}

// loadConfig reads path over the defaults. A missing file is only an error
// when the path was given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg.
func (cfg *Config) applyFlags(fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = f.Value.String()
		case "dir":
			cfg.Dir = f.Value.String()
		case "engine":
			cfg.Engine.URL = f.Value.String()
		case "persist-url":
			cfg.Engine.PersistURL = f.Value.String()
		case "poll-interval":
			cfg.Engine.PollInterval, _ = fs.GetDuration(f.Name)
		case "start-grace":
			cfg.Engine.StartGrace, _ = fs.GetDuration(f.Name)
		case "catalog":
			cfg.Catalog = f.Value.String()
		case "status-policy":
			cfg.StatusPolicy = f.Value.String()
		case "simulate":
			cfg.Simulate, _ = fs.GetBool(f.Name)
		case "sim-config":
			cfg.SimConfig = f.Value.String()
		}
	})
}

// catalogSource returns the bit catalog location, defaulting to the data directory.
func (cfg Config) catalogSource() string {
	if cfg.Catalog != "" {
		return cfg.Catalog
	}
	return filepath.Join(cfg.Dir, "bit_information.json")
}

func (cfg Config) validate() error {
	if _, err := atc.ParseStatusPolicy(cfg.StatusPolicy); err != nil {
		return err
	}
	if !cfg.Simulate && cfg.Engine.URL == "" {
		return errors.New("engine url is required unless simulating")
	}
	if cfg.Simulate && cfg.SimConfig == "" {
		return errors.New("sim_config is required when simulating")
	}
	return nil
}
