package logging

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/clock"
)

const syslogDialTimeout = 5 * time.Second

// SyslogConfig holds remote syslog forwarding configuration.
type SyslogConfig struct {
	Host     string // Remote syslog server hostname or IP
	Port     int    // default 514
	Protocol string // udp or tcp (default udp)
	Tag      string // default brand.LowerName
	Facility int    // default 1 (user)
}

// DefaultSyslogConfig returns sensible defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: 1,
	}
}

func (c SyslogConfig) withDefaults() SyslogConfig {
	d := DefaultSyslogConfig()
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Protocol == "" {
		c.Protocol = d.Protocol
	}
	if c.Tag == "" {
		c.Tag = d.Tag
	}
	return c
}

func (c SyslogConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SyslogWriter implements io.Writer and sends each write as one RFC 3164
// message to a remote syslog server.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	config   SyslogConfig
	hostname string
}

// NewSyslogWriter dials the configured server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	cfg = cfg.withDefaults()

	conn, err := net.DialTimeout(cfg.Protocol, cfg.addr(), syslogDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog server %s: %w", cfg.addr(), err)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = brand.LowerName
	}

	return &SyslogWriter{conn: conn, config: cfg, hostname: hostname}, nil
}

// Write implements io.Writer: <priority>timestamp hostname tag: message
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return 0, fmt.Errorf("syslog connection closed")
	}

	// Priority = facility * 8 + severity (6 = informational)
	priority := w.config.Facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s %s: %s", priority, clock.Now().Format(time.Stamp), w.hostname, w.config.Tag, p)

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.reconnect()
		return 0, err
	}
	return len(p), nil
}

func (w *SyslogWriter) reconnect() {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	conn, err := net.DialTimeout(w.config.Protocol, w.config.addr(), syslogDialTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syslog: reconnect to %s failed: %v\n", w.config.addr(), err)
		return
	}
	w.conn = conn
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}
