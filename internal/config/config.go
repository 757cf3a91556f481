// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package config loads the scopectl configuration from a YAML file and
// SCOPECTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/riclolsen/go-combiscope/combiscope"
	"github.com/riclolsen/go-combiscope/sink"
	"github.com/riclolsen/go-combiscope/transport"
)

// EnvPrefix prefixes environment overrides, e.g. SCOPECTL_SERIAL_PORT.
const EnvPrefix = "SCOPECTL"

type Config struct {
	Serial   SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Monitor  MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
}

type SerialConfig struct {
	Port     string `mapstructure:"port" yaml:"port"`
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits int    `mapstructure:"data_bits" yaml:"data_bits"`
	// 1 or 2
	StopBits int `mapstructure:"stop_bits" yaml:"stop_bits"`
	// 0 none, 1 odd, 2 even, 3 mark, 4 space
	Parity      int           `mapstructure:"parity" yaml:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

type ProtocolConfig struct {
	AckThreshold       int           `mapstructure:"ack_threshold" yaml:"ack_threshold"`
	AckTimeout         time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout"`
	ReplyThreshold     int           `mapstructure:"reply_threshold" yaml:"reply_threshold"`
	ReplyTimeout       time.Duration `mapstructure:"reply_timeout" yaml:"reply_timeout"`
	QuiescenceInterval time.Duration `mapstructure:"quiescence_interval" yaml:"quiescence_interval"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaveformCacheSize  int           `mapstructure:"waveform_cache_size" yaml:"waveform_cache_size"`
	// front panel state the instrument is assumed to be in at start
	FrontPanel string `mapstructure:"front_panel" yaml:"front_panel"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr       string `mapstructure:"addr" yaml:"addr"`
	Password   string `mapstructure:"password" yaml:"password"`
	DB         int    `mapstructure:"db" yaml:"db"`
	PoolSize   int    `mapstructure:"pool_size" yaml:"pool_size"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	MaxBacklog int    `mapstructure:"max_backlog" yaml:"max_backlog"`
}

type LogConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Format   string `mapstructure:"format" yaml:"format"`
	Output   string `mapstructure:"output" yaml:"output"`
	FilePath string `mapstructure:"file_path" yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// setDefaults registers every key, which also makes each of them
// overridable from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", transport.DefaultBaudRate)
	v.SetDefault("serial.data_bits", transport.DefaultDataBits)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", 0)
	v.SetDefault("serial.read_timeout", transport.DefaultReadTimeout)

	v.SetDefault("protocol.ack_threshold", combiscope.DefaultAckThreshold)
	v.SetDefault("protocol.ack_timeout", combiscope.DefaultAckTimeout)
	v.SetDefault("protocol.reply_threshold", combiscope.DefaultReplyThreshold)
	v.SetDefault("protocol.reply_timeout", combiscope.DefaultReplyTimeout)
	v.SetDefault("protocol.quiescence_interval", combiscope.DefaultQuiescenceInterval)
	v.SetDefault("protocol.poll_interval", combiscope.DefaultPollInterval)
	v.SetDefault("protocol.waveform_cache_size", combiscope.DefaultWaveformCacheSize)
	v.SetDefault("protocol.front_panel", "local")

	v.SetDefault("store.path", "combiscope.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.channel", sink.DefaultChannel)
	v.SetDefault("redis.max_backlog", sink.DefaultMaxBacklog)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.metrics_addr", ":9090")
}

// Load reads path (if not empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults are static; failing here is a programming error
		panic(err)
	}
	return cfg
}

// Validate checks the values that would otherwise fail late, at dial time.
func (c *Config) Validate() error {
	if _, err := combiscope.ParseFrontPanelMode(c.Protocol.FrontPanel); err != nil {
		return fmt.Errorf("protocol.front_panel: %w", err)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return errors.New("serial.stop_bits must be 1 or 2")
	}
	if c.Serial.Parity < 0 || c.Serial.Parity > 4 {
		return errors.New("serial.parity must be in range [0, 4]")
	}
	pc := c.ProtocolConfig()
	if err := pc.Valid(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	return nil
}

// SerialConfig converts the serial section for transport.OpenSerial.
func (c *Config) SerialConfig() transport.SerialConfig {
	return transport.SerialConfig{
		Address:  c.Serial.Port,
		BaudRate: c.Serial.BaudRate,
		DataBits: c.Serial.DataBits,
		StopBits: transport.MapStopBits(c.Serial.StopBits),
		Parity:   transport.MapParity(c.Serial.Parity),
		Timeout:  c.Serial.ReadTimeout,
	}
}

// ProtocolConfig converts the serial and protocol sections to a session config.
func (c *Config) ProtocolConfig() combiscope.Config {
	return combiscope.Config{
		Serial:             c.SerialConfig(),
		AckThreshold:       c.Protocol.AckThreshold,
		AckTimeout:         c.Protocol.AckTimeout,
		ReplyThreshold:     c.Protocol.ReplyThreshold,
		ReplyTimeout:       c.Protocol.ReplyTimeout,
		QuiescenceInterval: c.Protocol.QuiescenceInterval,
		PollInterval:       c.Protocol.PollInterval,
		WaveformCacheSize:  c.Protocol.WaveformCacheSize,
	}
}

// FrontPanelMode is the parsed protocol.front_panel value.
func (c *Config) FrontPanelMode() combiscope.FrontPanelMode {
	m, err := combiscope.ParseFrontPanelMode(c.Protocol.FrontPanel)
	if err != nil {
		return combiscope.ModeUnknown
	}
	return m
}

// SinkOptions converts the redis section.
func (c *Config) SinkOptions(log *logrus.Logger) sink.Options {
	return sink.Options{
		Addr:       c.Redis.Addr,
		Password:   c.Redis.Password,
		DB:         c.Redis.DB,
		PoolSize:   c.Redis.PoolSize,
		Channel:    c.Redis.Channel,
		MaxBacklog: c.Redis.MaxBacklog,
		Log:        log,
	}
}

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// SetupLogger builds the application logger from the log section.
// The returned closer releases the log file, if one was opened.
func SetupLogger(cfg LogConfig) (*logrus.Logger, func() error) {
	log := logrus.New()
	noop := func() error { return nil }

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch {
	case cfg.Output == "file" && cfg.FilePath != "":
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.SetOutput(os.Stderr)
			log.Warnf("Cannot open log file %s, logging to stderr: %v", cfg.FilePath, err)
			return log, noop
		}
		log.SetOutput(file)
		return log, file.Close
	case cfg.Output == "stdout":
		log.SetOutput(os.Stdout)
	default:
		log.SetOutput(os.Stderr)
	}
	return log, noop
}
