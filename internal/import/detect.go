package imports

import (
	"bufio"
	"strings"
)

// Format identifies the dump format of a rule listing.
type Format int

const (
	FormatUnknown Format = iota
	// FormatSave is iptables-save output: "*table" sections ending in COMMIT.
	FormatSave
	// FormatList is iptables -S output: -P, -N and -A lines for one table.
	FormatList
)

func (f Format) String() string {
	switch f {
	case FormatSave:
		return "iptables-save"
	case FormatList:
		return "iptables-list"
	default:
		return "unknown"
	}
}

// DetectFormat inspects content without parsing rules.
func DetectFormat(content string) Format {
	scanner := bufio.NewScanner(strings.NewReader(content))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "*"), line == "COMMIT", strings.HasPrefix(line, ":"):
			return FormatSave
		case strings.HasPrefix(line, "-P "), strings.HasPrefix(line, "-N "), strings.HasPrefix(line, "-A "):
			listing = true
		case countersRe.MatchString(line):
			listing = true
		default:
			return FormatUnknown
		}
	}
	if listing {
		return FormatList
	}
	return FormatUnknown
}

// LooksLikeRules reports whether content is a rule dump this package parses.
func LooksLikeRules(content string) bool {
	return DetectFormat(content) != FormatUnknown
}
