// Package config handles HCL configuration parsing and validation.
//
// A configuration file has four optional blocks:
//
//	schema_version = "1.0"
//
//	analysis {
//	  workers         = 4
//	  sensitive_ports = [22, 3389]
//	  strict          = false
//	  weights {
//	    critical = 20
//	    high     = 10
//	    medium   = 5
//	    low      = 2
//	  }
//	}
//
//	logging {
//	  level = "info"
//	  json  = false
//	  syslog {
//	    enabled = true
//	    host    = "logs.example.com"
//	  }
//	}
//
//	api {
//	  listen          = ":8080"
//	  max_body_bytes  = 1048576
//	  rate_limit      = 60
//	  trusted_proxies = ["127.0.0.1", "10.0.0.0/8"]
//	}
//
//	history {
//	  enabled = true
//	  path    = "/var/lib/ruleaudit/history.db"
//	}
//
// Missing blocks and attributes take the values of DefaultConfig.
package config

import (
	"slices"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/recommend"
)

// CurrentSchemaVersion is the latest config schema version.
const CurrentSchemaVersion = "1.0"

// Defaults for values not set in the file.
const (
	DefaultListen       = ":8080"
	DefaultMaxBodyBytes = 4 << 20
	DefaultLogLevel     = "info"
)

// Config is the top-level configuration.
type Config struct {
	SchemaVersion string          `hcl:"schema_version,optional" json:"schema_version,omitempty"`
	Analysis      *AnalysisConfig `hcl:"analysis,block" json:"analysis,omitempty"`
	Logging       *LoggingConfig  `hcl:"logging,block" json:"logging,omitempty"`
	API           *APIConfig      `hcl:"api,block" json:"api,omitempty"`
	History       *HistoryConfig  `hcl:"history,block" json:"history,omitempty"`
}

// AnalysisConfig controls the analyzer and recommender.
type AnalysisConfig struct {
	// Workers bounds parallel chain analysis; 0 means one per CPU.
	Workers        int            `hcl:"workers,optional" json:"workers,omitempty"`
	SensitivePorts []int          `hcl:"sensitive_ports,optional" json:"sensitive_ports,omitempty"`
	Strict         bool           `hcl:"strict,optional" json:"strict,omitempty"`
	MaxMultiport   int            `hcl:"max_multiport,optional" json:"max_multiport,omitempty"`
	Weights        *WeightsConfig `hcl:"weights,block" json:"weights,omitempty"`
}

// WeightsConfig sets the score penalty per finding severity.
type WeightsConfig struct {
	Critical int `hcl:"critical,optional" json:"critical"`
	High     int `hcl:"high,optional" json:"high"`
	Medium   int `hcl:"medium,optional" json:"medium"`
	Low      int `hcl:"low,optional" json:"low"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string        `hcl:"level,optional" json:"level,omitempty"`
	JSON   bool          `hcl:"json,optional" json:"json,omitempty"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// SyslogConfig forwards logs to a remote syslog server.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host,optional" json:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"` // udp or tcp
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
	Facility int    `hcl:"facility,optional" json:"facility,omitempty"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Listen       string `hcl:"listen,optional" json:"listen,omitempty"`
	MaxBodyBytes int64  `hcl:"max_body_bytes,optional" json:"max_body_bytes,omitempty"`
	// RateLimit is the number of audit requests each client may make per
	// minute; 0 disables limiting.
	RateLimit int `hcl:"rate_limit,optional" json:"rate_limit,omitempty"`
	// TrustedProxies lists addresses or CIDR prefixes of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers identify the client.
	TrustedProxies []string `hcl:"trusted_proxies,optional" json:"trusted_proxies,omitempty"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `hcl:"enabled,optional" json:"enabled"`
	Path    string `hcl:"path,optional" json:"path,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{SchemaVersion: CurrentSchemaVersion}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset blocks and attributes.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}

	if c.Analysis == nil {
		c.Analysis = &AnalysisConfig{}
	}
	if c.Analysis.SensitivePorts == nil {
		for _, p := range analyzer.DefaultSensitivePorts {
			c.Analysis.SensitivePorts = append(c.Analysis.SensitivePorts, int(p))
		}
	}
	if c.Analysis.MaxMultiport == 0 {
		c.Analysis.MaxMultiport = recommend.MultiportLimit
	}
	if c.Analysis.Weights == nil {
		w := analyzer.DefaultWeights()
		c.Analysis.Weights = &WeightsConfig{Critical: w.Critical, High: w.High, Medium: w.Medium, Low: w.Low}
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if s := c.Logging.Syslog; s != nil {
		d := logging.DefaultSyslogConfig()
		if s.Port == 0 {
			s.Port = d.Port
		}
		if s.Protocol == "" {
			s.Protocol = d.Protocol
		}
		if s.Tag == "" {
			s.Tag = d.Tag
		}
		if s.Facility == 0 {
			s.Facility = d.Facility
		}
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.History == nil {
		c.History = &HistoryConfig{}
	}
	if c.History.Path == "" {
		c.History.Path = brand.DefaultHistoryPath()
	}
}

// AnalyzerOptions converts the analysis block.
func (c *Config) AnalyzerOptions() analyzer.Options {
	a := c.Analysis
	opts := analyzer.Options{Workers: a.Workers}
	for _, p := range a.SensitivePorts {
		opts.SensitivePorts = append(opts.SensitivePorts, uint16(p))
	}
	slices.Sort(opts.SensitivePorts)
	if w := a.Weights; w != nil {
		opts.Weights = analyzer.Weights{Critical: w.Critical, High: w.High, Medium: w.Medium, Low: w.Low}
	} else {
		opts.Weights = analyzer.DefaultWeights()
	}
	return opts
}

// LoggerConfig converts the logging block. Output is left to the caller.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.JSON = c.Logging.JSON
	return cfg
}

// Syslog converts the syslog block; ok is false when forwarding is off.
func (c *Config) Syslog() (logging.SyslogConfig, bool) {
	s := c.Logging.Syslog
	if s == nil || !s.Enabled {
		return logging.SyslogConfig{}, false
	}
	return logging.SyslogConfig{
		Host:     s.Host,
		Port:     s.Port,
		Protocol: s.Protocol,
		Tag:      s.Tag,
		Facility: s.Facility,
	}, true
}
