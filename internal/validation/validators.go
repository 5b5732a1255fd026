package validation

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxInterfaceName is IFNAMSIZ minus the terminating NUL.
	maxInterfaceName = 15
	// maxChainName is XT_EXTENSION_MAXNAMELEN minus the terminating NUL.
	maxChainName = 28
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Valid identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Valid chain name: printable, no whitespace, must not look like an option
	chainNameRegex = regexp.MustCompile(`^[^\s!-][^\s]*$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// KnownTables are the netfilter tables iptables-save emits.
var KnownTables = []string{"filter", "nat", "mangle", "raw", "security"}

// ValidateInterfaceName validates a network interface name. A trailing "+"
// (iptables prefix match) must be stripped by the caller.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	if len(name) > maxInterfaceName {
		return fmt.Errorf("interface name too long (max %d characters): %s", maxInterfaceName, name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}

	return nil
}

// ValidateIdentifier validates a general identifier (table names, run sources).
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}

	return nil
}

// ValidateTableName validates a netfilter table name.
func ValidateTableName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	return nil
}

// IsKnownTable reports whether name is a built-in netfilter table.
func IsKnownTable(name string) bool {
	return ValidateAllowlist(name, KnownTables) == nil
}

// ValidateChainName validates a built-in or user-defined chain name.
func ValidateChainName(name string) error {
	if name == "" {
		return fmt.Errorf("chain name cannot be empty")
	}

	if len(name) > maxChainName {
		return fmt.Errorf("chain name too long (max %d characters): %s", maxChainName, name)
	}

	if !chainNameRegex.MatchString(name) {
		return fmt.Errorf("invalid chain name: %s", name)
	}

	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("chain name contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidatePath validates a file path against an allowlist of permitted directories
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("null byte in path")
	}

	// Reject path traversal attempts
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}

	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) && len(allowedDirs) > 0 {
		for _, allowedDir := range allowedDirs {
			if strings.HasPrefix(cleanPath, filepath.Clean(allowedDir)) {
				return nil
			}
		}
		return fmt.Errorf("path not in allowed directories: %s", cleanPath)
	}

	return nil
}

// ValidateIPOrCIDR validates an IP address or CIDR range
func ValidateIPOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("IP/CIDR cannot be empty")
	}

	if strings.Contains(s, "/") {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("invalid CIDR: %w", err)
		}
		return nil
	}

	if _, err := netip.ParseAddr(s); err != nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}

	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// SanitizeString removes dangerous characters from a string (for display purposes)
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
