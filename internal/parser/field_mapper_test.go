package parser

import (
	"testing"

	"svcledger/internal/model"
)

func TestMapColumn_CaseInsensitive(t *testing.T) {
	t.Parallel()

	m := NewFieldMapper(model.MustSchema(model.SchemaLegacy, false))
	for _, raw := range []string{"Prime Manager", "prime_manager", "PRIME-MANAGER", "  prime   MANAGER  "} {
		field, tier := m.MapColumn(raw)
		if field != model.FieldPrimeManager {
			t.Fatalf("MapColumn(%q) = %q, want %q", raw, field, model.FieldPrimeManager)
		}
		if tier == TierNone || tier == TierHeuristic {
			t.Fatalf("MapColumn(%q) matched via tier %d, expected exact tier", raw, tier)
		}
	}
}

func TestMapColumn_Tiers(t *testing.T) {
	t.Parallel()

	m := NewFieldMapper(model.MustSchema(model.SchemaLegacy, false))
	cases := []struct {
		raw   string
		field string
		tier  MatchTier
	}{
		{"Service Name", model.FieldServiceName, TierHeader},
		{"dynatrace_service_id", model.FieldDynatraceID, TierKey},
		{"Dynatrace Svc ID", model.FieldDynatraceID, TierHeuristic},
		{"Monitoring enabled", model.FieldDynatraceEnabled, TierHeuristic},
		{"Owning Team", model.FieldTeamName, TierHeuristic},
		{"Team Identifier ID", model.FieldTeamID, TierHeuristic},
		{"Application Name", model.FieldServiceName, TierHeuristic},
		{"Contact Email", model.FieldSupportEmail, TierHeuristic},
		{"Comments", model.FieldNotes, TierHeuristic},
		{"Whatever", "", TierNone},
		{"   ", "", TierNone},
	}
	for _, tc := range cases {
		field, tier := m.MapColumn(tc.raw)
		if field != tc.field || tier != tc.tier {
			t.Fatalf("MapColumn(%q) = (%q, %d), want (%q, %d)", tc.raw, field, tier, tc.field, tc.tier)
		}
	}
}

func TestMapColumn_Priority(t *testing.T) {
	t.Parallel()

	m := NewFieldMapper(model.MustSchema(model.SchemaV2, false))
	cases := map[string]string{
		// tech 优先于 team
		"Team Tech Service":           model.FieldTechServiceName,
		"Tech Team Owner":             model.FieldTechServiceOwnerTeam,
		"Tech Service Missing":        model.FieldTechServiceNotFound,
		"Team not found?":             model.FieldTeamNotFound,
		"Dynatrace Integration State": model.FieldDynatraceEnabled,
		"Dynatrace Name":              model.FieldDynatraceName,
		"Tech Svc ID":                 model.FieldTechServiceID,
	}
	for raw, want := range cases {
		if got, _ := m.MapColumn(raw); got != want {
			t.Fatalf("MapColumn(%q) = %q, want %q", raw, got, want)
		}
	}

	// legacy 下 v2 独有规则不生效
	legacy := NewFieldMapper(model.MustSchema(model.SchemaLegacy, false))
	if got, _ := legacy.MapColumn("Tech Team Owner"); got != model.FieldTechServiceName {
		t.Fatalf("legacy mapping = %q, want %q", got, model.FieldTechServiceName)
	}
	if got, _ := legacy.MapColumn("Environment"); got != "" {
		t.Fatalf("legacy mapping of Environment = %q, want none", got)
	}
}

func TestMapColumns_LeftmostWins(t *testing.T) {
	t.Parallel()

	m := NewFieldMapper(model.MustSchema(model.SchemaLegacy, false))
	mappings := m.MapColumns([]string{"Team", "Team Name", "Notes"})
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d: %+v", len(mappings), mappings)
	}
	if mappings[0].Field != model.FieldTeamName {
		t.Fatalf("column 0 should map to team_name, got %+v", mappings[0])
	}
	if _, ok := mappings[1]; ok {
		t.Fatalf("duplicate column 1 should be ignored")
	}

	rec := m.Reconcile([]string{"Team", "Team Name", "Notes"})
	if rec["Team"] != model.FieldTeamName || rec["Notes"] != model.FieldNotes {
		t.Fatalf("unexpected reconcile result: %v", rec)
	}
}

func TestDetectVariant(t *testing.T) {
	t.Parallel()

	if got := DetectVariant([]string{"Service Name", "Team Name"}); got != model.SchemaLegacy {
		t.Fatalf("expected legacy, got %s", got)
	}
	if got := DetectVariant([]string{"service_name", "escalation_policy"}); got != model.SchemaV2 {
		t.Fatalf("expected v2, got %s", got)
	}
	if got := DetectVariant(nil); got != model.SchemaLegacy {
		t.Fatalf("expected legacy for empty header, got %s", got)
	}
}
