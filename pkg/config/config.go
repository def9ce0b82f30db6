// Package config holds the options structure collabcore is configured
// with. There are no environment variables in the core: options load from
// a YAML file (or are constructed directly by an embedder) and are passed
// explicitly to the components that need them.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/collabcore/pkg/sink"
)

const (
	defaultSnapshotPerUpdateInterval = 20
	defaultRowCacheCapacity          = 1000
	defaultSinkTimeoutSecs           = 2
	defaultSinkMaxMergeSize          = 4096
)

// SinkStrategyKind selects between the sink's two scheduling strategies.
type SinkStrategyKind string

const (
	SinkStrategyAsap        SinkStrategyKind = "asap"
	SinkStrategyFixInterval SinkStrategyKind = "fix_interval"
)

// Options is the full set of recognized configuration knobs.
type Options struct {
	SnapshotPerUpdateInterval int `yaml:"snapshot_per_update_interval"`
	RowCacheCapacity          int `yaml:"row_cache_capacity"`
	SinkTimeoutSecs           int `yaml:"sink_timeout_secs"`
	SinkMaxMergeSize          int `yaml:"sink_max_merge_size"`

	SinkStrategy      SinkStrategyKind `yaml:"sink_strategy"`
	SinkFixIntervalMS int              `yaml:"sink_fix_interval_ms"`

	DataDir         string `yaml:"data_dir"`
	TransportTarget string `yaml:"transport_target"`
}

// Default returns the documented defaults for every recognized option.
func Default() Options {
	return Options{
		SnapshotPerUpdateInterval: defaultSnapshotPerUpdateInterval,
		RowCacheCapacity:          defaultRowCacheCapacity,
		SinkTimeoutSecs:           defaultSinkTimeoutSecs,
		SinkMaxMergeSize:          defaultSinkMaxMergeSize,
		SinkStrategy:              SinkStrategyAsap,
		DataDir:                   "./data",
	}
}

// Load reads Options from a YAML file, filling unset fields with their
// documented defaults.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, err
	}
	opts.applyDefaults()
	return opts, nil
}

func (o *Options) applyDefaults() {
	if o.SnapshotPerUpdateInterval <= 0 {
		o.SnapshotPerUpdateInterval = defaultSnapshotPerUpdateInterval
	}
	if o.RowCacheCapacity <= 0 {
		o.RowCacheCapacity = defaultRowCacheCapacity
	}
	if o.SinkTimeoutSecs <= 0 {
		o.SinkTimeoutSecs = defaultSinkTimeoutSecs
	}
	if o.SinkMaxMergeSize <= 0 {
		o.SinkMaxMergeSize = defaultSinkMaxMergeSize
	}
	if o.SinkStrategy == "" {
		o.SinkStrategy = SinkStrategyAsap
	}
	if o.DataDir == "" {
		o.DataDir = "./data"
	}
}

// SinkConfig translates Options into a sink.Config.
func (o Options) SinkConfig() sink.Config {
	cfg := sink.Config{
		Timeout:      time.Duration(o.SinkTimeoutSecs) * time.Second,
		MaxMergeSize: o.SinkMaxMergeSize,
	}
	if o.SinkStrategy == SinkStrategyFixInterval {
		cfg.Strategy.FixInterval = time.Duration(o.SinkFixIntervalMS) * time.Millisecond
	}
	return cfg
}
