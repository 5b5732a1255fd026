package recommend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/ruleset"
)

func rule(pos int, action ruleset.Action, opts ...func(*ruleset.Rule)) ruleset.Rule {
	r := ruleset.Rule{Table: "filter", Chain: "INPUT", Position: pos, Action: action, Line: pos}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func proto(p ruleset.Protocol) func(*ruleset.Rule) {
	return func(r *ruleset.Rule) { r.Protocol = p }
}

func dport(spec string) func(*ruleset.Rule) {
	return func(r *ruleset.Rule) {
		p, err := ruleset.ParsePorts(spec)
		if err != nil {
			panic(err)
		}
		r.DestPorts = p
	}
}

func src(cidr string) func(*ruleset.Rule) {
	return func(r *ruleset.Rule) { r.Source = ruleset.MustParseAddress(cidr) }
}

func analyze(t *testing.T, rules []ruleset.Rule) *analyzer.Result {
	t.Helper()
	res, err := analyzer.Analyze(rules)
	require.NoError(t, err)
	return res
}

// mixed yields SecurityRisk (1, 2), Redundant (1→2), MissingLog (3) and
// Unreachable (3→4).
func mixed() []ruleset.Rule {
	tcp := proto(ruleset.ProtoTCP)
	return []ruleset.Rule{
		rule(1, ruleset.ActionAccept, tcp, dport("22")),
		rule(2, ruleset.ActionAccept, tcp, dport("22")),
		rule(3, ruleset.ActionDrop),
		rule(4, ruleset.ActionAccept, tcp, dport("80")),
	}
}

func kinds(recs []Recommendation) []analyzer.Kind {
	out := make([]analyzer.Kind, len(recs))
	for i, r := range recs {
		out[i] = r.Kind
	}
	return out
}

func TestRecommendGroupsByKindInPriorityOrder(t *testing.T) {
	rules := mixed()
	plan, err := Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	assert.Equal(t, []analyzer.Kind{
		analyzer.KindSecurityRisk,
		analyzer.KindUnreachable,
		analyzer.KindRedundant,
		analyzer.KindMissingLog,
	}, kinds(plan.Recommendations))

	sec := plan.Recommendations[0]
	assert.Equal(t, PriorityCritical, sec.Priority)
	assert.Equal(t, 2, sec.Count)
	assert.Equal(t, 100.0, sec.EstimatedImpact)
	require.Len(t, sec.Rules, 2)
	assert.Equal(t, 1, sec.Rules[0].Position)
	assert.Equal(t, 2, sec.Rules[1].Position)
	assert.NotEmpty(t, sec.Title)
	assert.Len(t, sec.Steps, 1, "identical remediations collapse into one step")

	unreachable := plan.Recommendations[1]
	assert.Equal(t, PriorityHigh, unreachable.Priority)
	assert.Equal(t, 25.0, unreachable.EstimatedImpact)

	assert.Equal(t, PriorityMedium, plan.Recommendations[2].Priority)
	assert.Equal(t, 25.0, plan.Recommendations[2].EstimatedImpact)

	missing := plan.Recommendations[3]
	assert.Equal(t, PriorityLow, missing.Priority)
	assert.Equal(t, 7.5, missing.EstimatedImpact)
}

func TestRecommendRemovalsAndSavings(t *testing.T) {
	rules := mixed()
	res := analyze(t, rules)
	plan, err := Recommend(rules, res)
	require.NoError(t, err)

	require.Len(t, plan.Removals, 2)
	assert.Equal(t, 2, plan.Removals[0].Position)
	assert.Equal(t, 4, plan.Removals[1].Position)

	assert.Equal(t, 2, plan.Savings.RulesReduced)
	assert.Equal(t, 50.0, plan.Savings.PerformancePercent)
	assert.Equal(t, analyzer.MaxScore-res.SecurityScore, plan.Savings.SecurityGain)
	assert.Equal(t, analyzer.MaxScore-res.EfficiencyScore, plan.Savings.EfficiencyGain)
}

func TestRecommendEmptyRuleSet(t *testing.T) {
	plan, err := Recommend(nil, analyze(t, nil))
	require.NoError(t, err)
	assert.Empty(t, plan.Recommendations)
	assert.NotNil(t, plan.Recommendations)
	assert.Empty(t, plan.Removals)
	assert.Empty(t, plan.Consolidations)
	assert.Equal(t, Savings{}, plan.Savings)
}

func TestRecommendInconsistentInput(t *testing.T) {
	rules := mixed()
	res := analyze(t, rules)

	changed := mixed()
	changed[3].DestPorts = ruleset.Port(81)

	tests := []struct {
		name  string
		rules []ruleset.Rule
		res   *analyzer.Result
	}{
		{"nil result", rules, nil},
		{"rule count", rules[:3], res},
		{"fingerprint", changed, res},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Recommend(tt.rules, tt.res)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, ErrInconsistentInput))

			var ie *InconsistentInputError
			require.True(t, errors.As(err, &ie))
			assert.NotEmpty(t, ie.Reason)
		})
	}
}

func TestRecommendImpactMonotone(t *testing.T) {
	base := rule(1, ruleset.ActionAccept, proto(ruleset.ProtoTCP), dport("80"))
	prev := -1.0
	for n := 2; n <= 6; n++ {
		var rules []ruleset.Rule
		for i := 1; i <= n; i++ {
			r := base
			r.Position, r.Line = i, i
			rules = append(rules, r)
		}
		plan, err := Recommend(rules, analyze(t, rules))
		require.NoError(t, err)
		require.NotEmpty(t, plan.Recommendations)

		var impact float64
		for _, rec := range plan.Recommendations {
			if rec.Kind == analyzer.KindRedundant {
				impact = rec.EstimatedImpact
			}
		}
		assert.GreaterOrEqual(t, impact, prev, "n=%d", n)
		assert.LessOrEqual(t, impact, 100.0)
		prev = impact
	}
}

func TestApplyRemovesAndRenumbers(t *testing.T) {
	rules := mixed()
	plan, err := Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	out := Apply(rules, plan)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Position)
	assert.Equal(t, ruleset.ActionAccept, out[0].Action)
	assert.Equal(t, 2, out[1].Position)
	assert.Equal(t, ruleset.ActionDrop, out[1].Action)
	assert.Equal(t, 3, out[1].Line)

	// Input untouched.
	require.Len(t, rules, 4)
	assert.Equal(t, 3, rules[2].Position)

	again := analyze(t, out)
	assert.Zero(t, again.Count(analyzer.KindRedundant))
	assert.Zero(t, again.Count(analyzer.KindUnreachable))
}

func TestApplyNilPlan(t *testing.T) {
	rules := mixed()
	out := Apply(rules, nil)
	assert.Equal(t, rules, out)
}

func TestConsolidation(t *testing.T) {
	tcp := proto(ruleset.ProtoTCP)
	rules := []ruleset.Rule{
		rule(1, ruleset.ActionAccept, tcp, dport("80")),
		rule(2, ruleset.ActionAccept, tcp, dport("443")),
		rule(3, ruleset.ActionAccept, tcp, dport("8080")),
		rule(4, ruleset.ActionAccept, proto(ruleset.ProtoUDP), dport("53")),
		rule(5, ruleset.ActionAccept, tcp, dport("25"), src("10.0.0.0/8")),
		rule(6, ruleset.ActionDrop),
	}
	plan, err := Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	require.Len(t, plan.Consolidations, 1)
	c := plan.Consolidations[0]
	assert.Equal(t, "filter", c.Table)
	assert.Equal(t, "INPUT", c.Chain)
	require.Len(t, c.Rules, 3)
	assert.Equal(t, 3, c.Rules[2].Position)
	assert.Equal(t, "80,443,8080", c.DestPorts)
	assert.Equal(t, "-A INPUT -p tcp -m multiport --dports 80,443,8080 -j ACCEPT", c.Rule)
}

func TestConsolidationRespectsMultiportLimit(t *testing.T) {
	tcp := proto(ruleset.ProtoTCP)
	rules := []ruleset.Rule{
		rule(1, ruleset.ActionAccept, tcp, dport("80")),
		rule(2, ruleset.ActionAccept, tcp, dport("443")),
		rule(3, ruleset.ActionAccept, tcp, dport("8080")),
	}
	plan, err := New(Options{MaxMultiport: 2}).Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	require.Len(t, plan.Consolidations, 1)
	assert.Len(t, plan.Consolidations[0].Rules, 2)
	assert.Equal(t, "80,443", plan.Consolidations[0].DestPorts)
}

func TestConsolidationSkipsRemovedRules(t *testing.T) {
	tcp := proto(ruleset.ProtoTCP)
	rules := []ruleset.Rule{
		rule(1, ruleset.ActionAccept, tcp, dport("80")),
		rule(2, ruleset.ActionAccept, tcp, dport("80")),
		rule(3, ruleset.ActionAccept, tcp, dport("443")),
	}
	plan, err := Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	require.Len(t, plan.Consolidations, 1)
	c := plan.Consolidations[0]
	require.Len(t, c.Rules, 2)
	assert.Equal(t, 1, c.Rules[0].Position)
	assert.Equal(t, 3, c.Rules[1].Position)
}

func TestPolicyAdvice(t *testing.T) {
	policies := map[ruleset.ChainKey]ruleset.Action{
		{Table: "filter", Chain: "INPUT"}:   ruleset.ActionAccept,
		{Table: "filter", Chain: "FORWARD"}: ruleset.ActionDrop,
		{Table: "filter", Chain: "OUTPUT"}:  ruleset.ActionAccept,
	}
	rc := New(Options{Policies: policies})

	rules := []ruleset.Rule{rule(1, ruleset.ActionAccept, proto(ruleset.ProtoTCP), dport("443"))}
	plan, err := rc.Recommend(rules, analyze(t, rules))
	require.NoError(t, err)
	require.Len(t, plan.Policies, 1)
	assert.Equal(t, "INPUT", plan.Policies[0].Chain)
	assert.Equal(t, ruleset.ActionAccept, plan.Policies[0].Current)
	assert.Equal(t, ruleset.ActionDrop, plan.Policies[0].Suggest)

	rules = append(rules, rule(2, ruleset.ActionDrop))
	plan, err = rc.Recommend(rules, analyze(t, rules))
	require.NoError(t, err)
	assert.Empty(t, plan.Policies, "final catch-all drop makes the policy irrelevant")

	plan, err = Recommend(rules[:1], analyze(t, rules[:1]))
	require.NoError(t, err)
	assert.Empty(t, plan.Policies, "no advice without known policies")
}

func TestPriorityOf(t *testing.T) {
	tests := map[analyzer.Kind]Priority{
		analyzer.KindSecurityRisk:     PriorityCritical,
		analyzer.KindConflicting:      PriorityCritical,
		analyzer.KindUnreachable:      PriorityHigh,
		analyzer.KindRedundant:        PriorityMedium,
		analyzer.KindInefficientOrder: PriorityMedium,
		analyzer.KindMissingLog:       PriorityLow,
		analyzer.KindOverlyPermissive: PriorityLow,
	}
	for k, want := range tests {
		assert.Equal(t, want, PriorityOf(k), k.String())
		assert.NotEmpty(t, titles[k], k.String())
	}
}

func TestPriorityText(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var got Priority
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, p, got)
	}
	var p Priority
	assert.Error(t, p.UnmarshalText([]byte("urgent")))
}

func TestPlanJSON(t *testing.T) {
	rules := mixed()
	plan, err := Recommend(rules, analyze(t, rules))
	require.NoError(t, err)

	b, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	recs := decoded["recommendations"].([]any)
	first := recs[0].(map[string]any)
	assert.Equal(t, "critical", first["priority"])
	assert.Equal(t, "security_risk", first["kind"])
	assert.Contains(t, decoded, "savings")
}
