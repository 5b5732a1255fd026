package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/logging"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, []int{22, 23, 3389, 5900, 5985, 5986}, cfg.Analysis.SensitivePorts)
	assert.Equal(t, 15, cfg.Analysis.MaxMultiport)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.API.MaxBodyBytes)
	assert.False(t, cfg.History.Enabled)
	assert.NotEmpty(t, cfg.History.Path)

	opts := cfg.AnalyzerOptions()
	assert.Equal(t, analyzer.DefaultWeights(), opts.Weights)
	assert.Equal(t, analyzer.DefaultSensitivePorts, opts.SensitivePorts)
}

func TestLoadHCL(t *testing.T) {
	src := `
schema_version = "1.0"

analysis {
  workers         = 2
  sensitive_ports = [2222, 22]
  strict          = true

  weights {
    critical = 40
    high     = 20
    medium   = 10
    low      = 1
  }
}

logging {
  level = "debug"
  json  = true

  syslog {
    enabled = true
    host    = "logs.example.com"
  }
}

api {
  listen          = "127.0.0.1:9090"
  max_body_bytes  = 1024
  rate_limit      = 30
  trusted_proxies = ["127.0.0.1", "fd00::/8"]
}

history {
  enabled = true
  path    = "/tmp/ruleaudit/history.db"
}
`
	cfg, err := LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.True(t, cfg.Analysis.Strict)
	opts := cfg.AnalyzerOptions()
	assert.Equal(t, []uint16{22, 2222}, opts.SensitivePorts)
	assert.Equal(t, analyzer.Weights{Critical: 40, High: 20, Medium: 10, Low: 1}, opts.Weights)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSON)

	sc, ok := cfg.Syslog()
	require.True(t, ok)
	assert.Equal(t, "logs.example.com", sc.Host)
	assert.Equal(t, 514, sc.Port)
	assert.Equal(t, "udp", sc.Protocol)

	assert.Equal(t, "127.0.0.1:9090", cfg.API.Listen)
	assert.Equal(t, int64(1024), cfg.API.MaxBodyBytes)
	assert.Equal(t, 30, cfg.API.RateLimit)
	assert.Equal(t, []string{"127.0.0.1", "fd00::/8"}, cfg.API.TrustedProxies)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/tmp/ruleaudit/history.db", cfg.History.Path)
}

func TestLoadHCLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `analysis {`},
		{"unknown attribute", `colour = "blue"`},
		{"wrong type", `analysis { workers = "many" }`},
		{"newer schema", `schema_version = "1.9"`},
		{"other major", `schema_version = "2.0"`},
		{"bad version", `schema_version = "one"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoadJSON(t *testing.T) {
	cfg, err := LoadJSON([]byte(`{"analysis": {"workers": 3}, "api": {"listen": ":7000"}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.Equal(t, ":7000", cfg.API.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)

	_, err = LoadJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()

	hclPath := filepath.Join(dir, "ruleaudit.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`analysis { workers = 5 }`), 0o600))
	cfg, err := LoadFile(hclPath)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Analysis.Workers)

	jsonPath := filepath.Join(dir, "ruleaudit.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"analysis": {"workers": 6}}`), 0o600))
	cfg, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Analysis.Workers)

	// Unknown extension: HCL first, then JSON.
	confPath := filepath.Join(dir, "ruleaudit.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(`{"analysis": {"workers": 7}}`), 0o600))
	cfg, err = LoadFile(confPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Analysis.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.hcl")

	_, err := LoadFile(missing)
	assert.Error(t, err)

	cfg, err := Load(missing)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.API.Listen)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg.Analysis)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"workers", func(c *Config) { c.Analysis.Workers = -1 }, "analysis.workers"},
		{"port", func(c *Config) { c.Analysis.SensitivePorts = []int{0} }, "analysis.sensitive_ports"},
		{"multiport", func(c *Config) { c.Analysis.MaxMultiport = 16 }, "analysis.max_multiport"},
		{"weights order", func(c *Config) { c.Analysis.Weights.High = 30 }, "analysis.weights"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"syslog host", func(c *Config) {
			c.Logging.Syslog = &SyslogConfig{Enabled: true, Port: 514, Protocol: "udp"}
		}, "logging.syslog.host"},
		{"syslog protocol", func(c *Config) {
			c.Logging.Syslog = &SyslogConfig{Enabled: true, Host: "h", Port: 514, Protocol: "sctp"}
		}, "logging.syslog.protocol"},
		{"listen", func(c *Config) { c.API.Listen = "8080" }, "api.listen"},
		{"body", func(c *Config) { c.API.MaxBodyBytes = -1 }, "api.max_body_bytes"},
		{"rate limit", func(c *Config) { c.API.RateLimit = -1 }, "api.rate_limit"},
		{"trusted proxy", func(c *Config) { c.API.TrustedProxies = []string{"10.0.0.0/8", "proxy.local"} }, "api.trusted_proxies"},
		{"history path", func(c *Config) {
			c.History.Enabled = true
			c.History.Path = "../escape.db"
		}, "history.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Workers = -1
	cfg.Logging.Level = "loud"
	err := cfg.Validate()

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "analysis.workers")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvName(EnvLogLevel):    "warn",
		EnvName(EnvLogJSON):     "true",
		EnvName(EnvWorkers):     "8",
		EnvName(EnvListen):      ":9999",
		EnvName(EnvHistoryPath): "/tmp/h.db",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 8, cfg.Analysis.Workers)
	assert.Equal(t, ":9999", cfg.API.Listen)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/tmp/h.db", cfg.History.Path)

	assert.Equal(t, "RULEAUDIT_LOG_LEVEL", EnvName(EnvLogLevel))

	env[EnvName(EnvWorkers)] = "lots"
	assert.Error(t, DefaultConfig().ApplyEnv(lookup))

	cfg = DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(noEnv))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestGenerateHCLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Workers = 3
	cfg.History.Enabled = true
	cfg.History.Path = "/tmp/ruleaudit/history.db"

	out := GenerateHCL(cfg)
	assert.Contains(t, string(out), "analysis {")
	assert.Contains(t, string(out), "workers")

	back, err := LoadHCL(out, "generated.hcl")
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.API.Listen = ":7777"

	for _, name := range []string{"out.hcl", "out.json"} {
		path := filepath.Join(dir, "nested", name)
		require.NoError(t, SaveFile(cfg, path))
		back, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, ":7777", back.API.Listen, name)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected SchemaVersion
		wantErr  bool
	}{
		{"1.0", SchemaVersion{Major: 1, Minor: 0}, false},
		{"2.1", SchemaVersion{Major: 2, Minor: 1}, false},
		{"", SchemaVersion{Major: 1, Minor: 0}, false},
		{"1", SchemaVersion{}, true},
		{"a.b", SchemaVersion{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	assert.True(t, IsSupportedVersion(SchemaVersion{Major: 1}))
	assert.False(t, IsSupportedVersion(SchemaVersion{Major: 1, Minor: 1}))
	assert.False(t, IsSupportedVersion(SchemaVersion{Major: 0, Minor: 9}))
}
