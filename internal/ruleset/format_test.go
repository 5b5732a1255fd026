package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleFormat(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{
			name: "bare action",
			rule: Rule{Chain: "INPUT", Action: ActionDrop},
			want: "-A INPUT -j DROP",
		},
		{
			name: "single port",
			rule: Rule{
				Chain:       "INPUT",
				Action:      ActionAccept,
				Protocol:    ProtoTCP,
				Source:      MustParseAddress("10.0.0.0/8"),
				DestPorts:   Port(22),
				InInterface: ParseInterface("eth0"),
			},
			want: "-A INPUT -i eth0 -s 10.0.0.0/8 -p tcp --dport 22 -j ACCEPT",
		},
		{
			name: "multiport with state and options",
			rule: Rule{
				Chain:         "FORWARD",
				Action:        ActionReject,
				TargetOptions: "--reject-with tcp-reset",
				Protocol:      ProtoTCP,
				DestPorts:     Ports(PortRange{80, 80}, PortRange{8000, 8080}),
				Aux:           NewAux(map[string]string{KeyConnState: "new"}),
				Comment:       "web",
			},
			want: `-A FORWARD -p tcp -m multiport --dports 80,8000:8080 -m conntrack --ctstate NEW -m comment --comment "web" -j REJECT --reject-with tcp-reset`,
		},
		{
			name: "negated dimensions and module options",
			rule: Rule{
				Chain:    "INPUT",
				Action:   ActionDrop,
				Protocol: ProtoTCP,
				Aux: NewAux(map[string]string{
					Negated(KeySource):   "10.0.0.0/8",
					Negated(KeyDestPort): "22,80",
					KeyFragment:          "",
					"tcp":                "--tcp-flags SYN,RST SYN",
					"--unknown":          "--unknown 1",
				}),
			},
			want: "-A INPUT -p tcp -m multiport ! --dports 22,80 ! -s 10.0.0.0/8 --unknown 1 -f -m tcp --tcp-flags SYN,RST SYN -j DROP",
		},
		{
			name: "negated state and protocol",
			rule: Rule{
				Chain:  "INPUT",
				Action: ActionAccept,
				Aux: NewAux(map[string]string{
					Negated(KeyConnState): "INVALID",
					Negated(KeyProtocol):  "udp",
					"limit":               "",
				}),
			},
			want: "-A INPUT -m conntrack ! --ctstate INVALID ! -p udp -m limit -j ACCEPT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Format())
		})
	}
}

func TestHasOpaqueAux(t *testing.T) {
	assert.False(t, Rule{}.HasOpaqueAux())
	assert.False(t, Rule{Aux: NewAux(map[string]string{KeyConnState: "NEW"})}.HasOpaqueAux())
	assert.True(t, Rule{Aux: NewAux(map[string]string{"limit": "--limit 5/min"})}.HasOpaqueAux())
}
