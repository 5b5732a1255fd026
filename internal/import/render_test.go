package imports

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruleaudit/internal/ruleset"
)

func TestRenderRoundTrip(t *testing.T) {
	cfg, err := ParseIPTablesString(sampleSave)
	require.NoError(t, err)
	assert.Equal(t, []string{"filter", "nat"}, cfg.Order)

	want := strings.SplitN(sampleSave, "\n", 2)[1] // drop the generator comment
	assert.Equal(t, want, cfg.Render(cfg.Rules))

	again, err := ParseIPTablesString(cfg.Render(cfg.Rules))
	require.NoError(t, err)
	assert.Equal(t, len(cfg.Rules), len(again.Rules))
}

func TestRenderKeepsEmptyChains(t *testing.T) {
	cfg, err := ParseIPTablesString(sampleSave)
	require.NoError(t, err)

	out := cfg.Render(nil)
	assert.Contains(t, out, ":INPUT DROP [120:9000]\n")
	assert.Contains(t, out, ":LOGDROP - [0:0]\n")
	assert.NotContains(t, out, "-A ")
	assert.Equal(t, 2, strings.Count(out, "COMMIT"))
}

func TestRenderWithoutConfig(t *testing.T) {
	rules := []ruleset.Rule{
		{Table: "filter", Chain: "web", Position: 1, Action: ruleset.ActionAccept, Protocol: ruleset.ProtoTCP, DestPorts: ruleset.Port(443)},
		{Table: "filter", Chain: "INPUT", Position: 2, Action: ruleset.ActionDrop},
		{Table: "filter", Chain: "INPUT", Position: 1, Action: ruleset.Action("web")},
	}

	var cfg *IPTablesConfig
	assert.Equal(t, `*filter
:web - [0:0]
:INPUT ACCEPT [0:0]
-A web -p tcp --dport 443 -j ACCEPT
-A INPUT -j web
-A INPUT -j DROP
COMMIT
`, cfg.Render(rules))
}
