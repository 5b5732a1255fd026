package config

import (
	"fmt"
	"net"
	"strings"

	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a config after defaults have been applied. It returns
// ValidationErrors listing every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if a := c.Analysis; a != nil {
		if a.Workers < 0 {
			errs.add("analysis.workers", "must be >= 0, got %d", a.Workers)
		}
		for _, p := range a.SensitivePorts {
			if err := validation.ValidatePortNumber(p); err != nil {
				errs.add("analysis.sensitive_ports", "%v", err)
			}
		}
		if a.MaxMultiport < 1 || a.MaxMultiport > recommend.MultiportLimit {
			errs.add("analysis.max_multiport", "must be between 1 and %d, got %d", recommend.MultiportLimit, a.MaxMultiport)
		}
		if err := c.AnalyzerOptions().Weights.Validate(); err != nil {
			errs.add("analysis.weights", "%v", err)
		}
	}

	if l := c.Logging; l != nil {
		if _, err := logging.ParseLevel(l.Level); err != nil {
			errs.add("logging.level", "%v", err)
		}
		if s := l.Syslog; s != nil && s.Enabled {
			if s.Host == "" {
				errs.add("logging.syslog.host", "required when syslog is enabled")
			}
			if err := validation.ValidatePortNumber(s.Port); err != nil {
				errs.add("logging.syslog.port", "%v", err)
			}
			if s.Protocol != "udp" && s.Protocol != "tcp" {
				errs.add("logging.syslog.protocol", "must be udp or tcp, got %q", s.Protocol)
			}
			if s.Facility < 0 || s.Facility > 23 {
				errs.add("logging.syslog.facility", "must be between 0 and 23, got %d", s.Facility)
			}
		}
	}

	if a := c.API; a != nil {
		if _, _, err := net.SplitHostPort(a.Listen); err != nil {
			errs.add("api.listen", "%v", err)
		}
		if a.MaxBodyBytes < 0 {
			errs.add("api.max_body_bytes", "must be >= 0, got %d", a.MaxBodyBytes)
		}
		if a.RateLimit < 0 {
			errs.add("api.rate_limit", "must be >= 0, got %d", a.RateLimit)
		}
		for _, p := range a.TrustedProxies {
			if err := validation.ValidateIPOrCIDR(p); err != nil {
				errs.add("api.trusted_proxies", "%v", err)
			}
		}
	}

	if h := c.History; h != nil && h.Enabled {
		if err := validation.ValidatePath(h.Path, nil); err != nil && h.Path != ":memory:" {
			errs.add("history.path", "%v", err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
