package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"squid/storage"
)

type MessageType string

const (
	MessageAll     MessageType = "all"
	MessageWord    MessageType = "word"
	MessageHashtag MessageType = "hashtag"
)

type Config struct {
	Port    int           `yaml:"port"`
	Storage StorageConfig `yaml:"storage"`
	Service ServiceConfig `yaml:"service"`
}

type StorageConfig struct {
	Dir                  string        `yaml:"dir"`
	Extension            string        `yaml:"extension"`
	MaxRecordsPerSegment int           `yaml:"max_records_per_segment"`
	FlushThresholdKB     int           `yaml:"flush_threshold_kb"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	Compression          string        `yaml:"compression"`
	SyncWrites           bool          `yaml:"sync_writes"`
}

type ServiceConfig struct {
	MessageType MessageType `yaml:"message_type"`
	// Exclude lists tokens that never enter the leaderboard.
	Exclude           []string `yaml:"exclude"`
	Lang              string   `yaml:"lang"`
	LeaderboardLength int      `yaml:"leaderboard_length"`
}

func Default() *Config {
	opts := storage.DefaultOptions()

	return &Config{
		Port: 50051,
		Storage: StorageConfig{
			Dir:                  opts.Dir,
			Extension:            opts.Extension,
			MaxRecordsPerSegment: opts.MaxRecordsPerSegment,
			SweepInterval:        opts.SweepInterval,
			Compression:          opts.Compression,
		},
		Service: ServiceConfig{
			MessageType:       MessageAll,
			Lang:              "fr",
			LeaderboardLength: 10,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)

	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}

	if c.Storage.Dir == "" {
		return errors.New("storage dir is required")
	}

	if c.Storage.MaxRecordsPerSegment <= 0 {
		return errors.Errorf("invalid max records per segment %d", c.Storage.MaxRecordsPerSegment)
	}

	if c.Storage.FlushThresholdKB < 0 {
		return errors.Errorf("invalid flush threshold %dkb", c.Storage.FlushThresholdKB)
	}

	if _, err := storage.NewCompressor(c.Storage.Compression); err != nil {
		return err
	}

	switch c.Service.MessageType {
	case MessageAll, MessageWord, MessageHashtag:
	default:
		return errors.Errorf("invalid message type %q", c.Service.MessageType)
	}

	if c.Service.LeaderboardLength <= 0 {
		return errors.Errorf("invalid leaderboard length %d", c.Service.LeaderboardLength)
	}

	return nil
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Dir:                  c.Storage.Dir,
		Extension:            c.Storage.Extension,
		MaxRecordsPerSegment: c.Storage.MaxRecordsPerSegment,
		FlushThresholdKB:     c.Storage.FlushThresholdKB,
		SweepInterval:        c.Storage.SweepInterval,
		Compression:          c.Storage.Compression,
		SyncWrites:           c.Storage.SyncWrites,
	}
}
