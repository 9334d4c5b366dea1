package workflow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"svcledger/internal/directory"
	"svcledger/internal/model"
	"svcledger/internal/service/store"
)

func savedFlow(t *testing.T, single bool, team TeamDecision, tech TechServiceDecision, mon MonitoringDecision) Flow {
	t.Helper()
	f, err := Complete(single, team, tech, mon, true)
	require.NoError(t, err)
	return f
}

func TestDerivePatchSet_BatchScenario(t *testing.T) {
	f := savedFlow(t, false,
		TeamDecision{Found: Yes, DirectoryID: "T1"},
		TechServiceDecision{Found: No, ManualName: "svc-x"},
		MonitoringDecision{Wants: Yes},
	)
	res := Resolution{Team: &directory.Team{ID: "T1", Name: "Platform"}}

	got, err := DerivePatchSet(f, model.MustSchema(model.SchemaLegacy, false), res)
	require.NoError(t, err)

	want := store.PatchSet{
		{Field: model.FieldTeamName, Value: "Platform"},
		{Field: model.FieldTeamID, Value: "T1"},
		{Field: model.FieldTeamNotFound, Value: model.FlagFalse},
		{Field: model.FieldTechServiceName, Value: "svc-x"},
		{Field: model.FieldTechServiceID, Value: ""},
		{Field: model.FieldTechServiceNotFound, Value: model.FlagTrue},
		{Field: model.FieldDynatraceEnabled, Value: model.FlagTrue},
		{Field: model.FieldDynatraceName, Value: "svc-x"},
		{Field: model.FieldIntegrated, Value: model.FlagTrue},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("patch set mismatch (-want +got):\n%s", diff)
	}
}

func TestDerivePatchSet_OwnerTeamOverride(t *testing.T) {
	f := savedFlow(t, false,
		TeamDecision{Found: Yes, DirectoryID: "T1"},
		TechServiceDecision{Found: Yes, DirectoryID: "S1"},
		MonitoringDecision{Wants: Yes, CustomName: "checkout-dt"},
	)
	res := Resolution{
		Team: &directory.Team{ID: "T1", Name: "Platform"},
		Service: &directory.Service{ID: "S1", Name: "checkout-api",
			Teams: []directory.TeamRef{{ID: "T2", Summary: "Payments"}}},
	}

	// v2：服务归属团队覆盖团队名
	v2 := model.MustSchema(model.SchemaV2, false)
	ps, err := DerivePatchSet(f, v2, res)
	require.NoError(t, err)
	rec := model.NewRecord("r", v2)
	recs, err := store.BatchPatch([]*model.ServiceRecord{rec}, []string{"r"}, ps, v2, rec.LastUpdated)
	require.NoError(t, err)
	require.Equal(t, "Payments", recs[0].Get(model.FieldTeamName))
	require.Equal(t, "Payments", recs[0].Get(model.FieldTechServiceOwnerTeam))
	require.Equal(t, "T1", recs[0].Get(model.FieldTeamID))
	require.Equal(t, "checkout-dt", recs[0].Get(model.FieldDynatraceName))

	// legacy：不覆盖，也不写 v2 字段
	legacy := model.MustSchema(model.SchemaLegacy, false)
	ps, err = DerivePatchSet(f, legacy, res)
	require.NoError(t, err)
	require.NotContains(t, ps.Fields(), model.FieldTechServiceOwnerTeam)
	for _, fv := range ps {
		if fv.Field == model.FieldTeamName {
			require.Equal(t, "Platform", fv.Value)
		}
	}
}

func TestDerivePatchSet_RequiresSavedFlow(t *testing.T) {
	_, err := DerivePatchSet(NewFlow(false), model.MustSchema(model.SchemaLegacy, false), Resolution{})
	require.ErrorIs(t, err, ErrGuard)
}

func TestDerivePatchSet_Unresolved(t *testing.T) {
	f := savedFlow(t, false,
		TeamDecision{Found: Yes, DirectoryID: "T9"},
		TechServiceDecision{Found: No, ManualName: "svc"},
		MonitoringDecision{Wants: No},
	)
	_, err := DerivePatchSet(f, model.MustSchema(model.SchemaLegacy, false), Resolution{})
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestCatalog_FindService(t *testing.T) {
	c := Catalog{Services: []directory.Service{{ID: "S1", Name: "Checkout API"}}}

	s, ok := c.FindService("S1")
	require.True(t, ok)
	require.Equal(t, "Checkout API", s.Name)

	// id 查找不匹配名称
	_, ok = c.FindService("Checkout API")
	require.False(t, ok)
	_, ok = c.FindService("missing")
	require.False(t, ok)

	s, ok = c.FindServiceByName("  checkout api ")
	require.True(t, ok)
	require.Equal(t, "S1", s.ID)
	_, ok = c.FindServiceByName("")
	require.False(t, ok)
	_, ok = c.FindServiceByName("S1")
	require.False(t, ok)
}

func TestTechServiceNames(t *testing.T) {
	schema := model.MustSchema(model.SchemaLegacy, false)
	rec := func(id, name string) *model.ServiceRecord {
		r := model.NewRecord(id, schema)
		r.Fields[model.FieldTechServiceName] = name
		return r
	}
	records := []*model.ServiceRecord{
		rec("a", "search"),
		rec("b", ""),
		rec("c", "checkout-api"),
		rec("d", "search"),
		rec("e", "billing"),
	}
	require.Equal(t, []string{"search", "checkout-api"}, TechServiceNames(records, []string{"d", "c", "b", "a"}))
	require.Empty(t, TechServiceNames(records, nil))
}
