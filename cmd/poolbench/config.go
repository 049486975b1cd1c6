package main

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pavanmanishd/mempool"
)

const envPrefix = "POOLBENCH"

// config holds the driver settings. Environment variables provide the
// defaults and command line flags override them.
type config struct {
	Iterations   int    `default:"1000000"`
	Rounds       int    `default:"5"`
	SlotCapacity int    `split_words:"true"`
	BlockSize    int    `split_words:"true" default:"4096"`
	CheckMode    string `split_words:"true" default:"check"`
	Backend      string `default:"heap"`
	LogLevel     string `split_words:"true" default:"info"`
	MetricsAddr  string `split_words:"true"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process config env vars")
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Iterations <= 0 {
		return errors.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Rounds <= 0 {
		return errors.Errorf("rounds must be positive, got %d", c.Rounds)
	}
	if _, ok := mempool.ParseCheckMode(c.CheckMode); !ok {
		return errors.Errorf("unknown check mode %q", c.CheckMode)
	}
	if _, err := c.systemAllocator(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

func (c *config) checkMode() mempool.CheckMode {
	m, _ := mempool.ParseCheckMode(c.CheckMode)
	return m
}

func (c *config) systemAllocator() (mempool.SystemAllocator, error) {
	switch strings.ToLower(c.Backend) {
	case "heap", "":
		return mempool.HeapAllocator{}, nil
	case "mmap":
		return mempool.MmapAllocator{}, nil
	}
	return nil, errors.Errorf("unknown backend %q", c.Backend)
}
