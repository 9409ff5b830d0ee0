package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the engine configuration loaded from a YAML file.
type Config struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		// Dir is the database directory: one directory, one database.
		Dir string `mapstructure:"dir"`
		// PoolFrames is the buffer pool capacity in pages.
		PoolFrames int `mapstructure:"pool_frames"`
	} `mapstructure:"storage"`

	Log struct {
		Level string `mapstructure:"level"` // debug, info, warn, error
	} `mapstructure:"log"`
}

// DefaultConfig is what a missing config file means.
func DefaultConfig() *Config {
	cfg := &Config{AppName: "minirel"}
	cfg.Storage.Dir = "minirel_data"
	cfg.Storage.PoolFrames = 0 // 0 = storage.DefaultPoolCapacity
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
