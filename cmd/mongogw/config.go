package main

import (
	"flag"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nikmy/mongoflow/internal/gateway"
	"github.com/nikmy/mongoflow/pkg/environment"
	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/mongoflow"
)

type Config struct {
	Environment environment.Env  `yaml:"Environment"`
	Gateway     gateway.Config   `yaml:"Gateway"`
	Mongo       mongoflow.Config `yaml:"Mongo"`
}

func loadConfig() (*Config, error) {
	path, err := filepath.Abs("config.yaml")
	if err != nil {
		return nil, errors.WrapFail(err, "build path to config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFail(err, "read \"config.yaml\"")
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.WrapFail(err, "parse yaml")
	}

	if envFromFlags := getEnvFromFlags(); envFromFlags != nil {
		cfg.Environment = *envFromFlags
	}

	return &cfg, nil
}

func getEnvFromFlags() *environment.Env {
	raw := flag.String("env", "", "environment (dev, prod)")
	flag.Parse()
	return envOverride(*raw)
}

// envOverride keeps the configured environment when the flag is
// omitted.
func envOverride(raw string) *environment.Env {
	if raw == "" {
		return nil
	}

	env := environment.FromString(raw)
	return &env
}
