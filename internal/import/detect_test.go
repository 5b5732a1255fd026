package imports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"save", sampleSave, FormatSave},
		{"list", "-P INPUT DROP\n-A INPUT -j ACCEPT\n", FormatList},
		{"counters", "[0:0] -A INPUT -j ACCEPT\n", FormatList},
		{"comments only", "# nothing here\n\n", FormatUnknown},
		{"other text", "config rule\n\toption src wan\n", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.content))
			assert.Equal(t, tt.want != FormatUnknown, LooksLikeRules(tt.content))
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "iptables-save", FormatSave.String())
	assert.Equal(t, "iptables-list", FormatList.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}
