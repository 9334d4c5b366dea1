package sheet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"svcledger/internal/model"
)

func sampleRecords(schema *model.Schema) []*model.ServiceRecord {
	a := model.NewRecord("a", schema)
	a.Fields[model.FieldServiceName] = "Checkout"
	a.Fields[model.FieldTeamName] = "Payments"
	a.Fields[model.FieldTechServiceName] = "checkout-api"
	a.Fields[model.FieldPrimeManager] = "Dana Smith"
	a.Fields[model.FieldIntegrated] = model.FlagTrue
	a.Fields[model.FieldCMDBID] = "00042"

	b := model.NewRecord("b", schema)
	b.Fields[model.FieldServiceName] = "Search"
	b.Fields[model.FieldNotes] = "needs owner"

	return []*model.ServiceRecord{a, b}
}

func fieldsOf(records []*model.ServiceRecord) []map[string]string {
	out := make([]map[string]string, len(records))
	for i, r := range records {
		out[i] = r.Fields
	}
	return out
}

func TestSerializeParse_RoundTrip(t *testing.T) {
	for _, variant := range []model.SchemaVariant{model.SchemaLegacy, model.SchemaV2} {
		for _, shape := range []Shape{ShapePositional, ShapeKeyed} {
			schema := model.MustSchema(variant, false)
			records := sampleRecords(schema)
			if variant == model.SchemaV2 {
				records[0].Fields[model.FieldEnvironment] = "prod"
			}

			wb, err := Serialize(records, schema, shape)
			require.NoError(t, err)

			res, err := Parse(wb, ParseOptions{})
			require.NoError(t, err)
			require.NoError(t, wb.Close())

			require.Equal(t, variant, res.Schema.Variant)
			require.Equal(t, shape, res.Shape)
			require.Empty(t, res.Dropped)
			if diff := cmp.Diff(fieldsOf(records), fieldsOf(res.Records)); diff != "" {
				t.Fatalf("%s/%d round-trip mismatch (-want +got):\n%s", variant, shape, diff)
			}
		}
	}
}

func TestSerializeParse_PersistedIDs(t *testing.T) {
	schema := model.MustSchema(model.SchemaLegacy, true)
	records := sampleRecords(schema)

	wb, err := Serialize(records, schema, ShapePositional)
	require.NoError(t, err)
	defer wb.Close()

	res, err := Parse(wb, ParseOptions{PersistIDs: true})
	require.NoError(t, err)
	require.Equal(t, "a", res.Records[0].ID)
	require.Equal(t, "b", res.Records[1].ID)
	require.Equal(t, "a", res.Records[0].Get(model.FieldRecordID))
}

// writeWorkbook 按给定表头和行生成工作簿
func writeWorkbook(t *testing.T, header []string, rows ...[]string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	all := append([][]string{header}, rows...)
	for i, row := range all {
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &vals))
	}
	return f
}

func TestParse_TolerantHeaders(t *testing.T) {
	wb := writeWorkbook(t,
		[]string{"  SERVICE NAME ", "PRIME-MANAGER", "Team", "Technical Service Name", "Random Column", "Dynatrace Integration?"},
		[]string{"Checkout", "Dana", "Payments", "checkout-api", "ignored", "true"},
		[]string{"", "", "", "", "", ""},
		[]string{"Search", "", "", "", "", ""},
	)
	defer wb.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res, err := Parse(wb, ParseOptions{Now: now})
	require.NoError(t, err)
	require.Equal(t, model.SchemaLegacy, res.Schema.Variant)
	require.Equal(t, ShapePositional, res.Shape)
	require.Equal(t, []string{"Random Column"}, res.Dropped)
	require.Len(t, res.Records, 2)

	r := res.Records[0]
	require.Equal(t, "checkout-2", r.ID)
	require.Equal(t, "Checkout", r.Get(model.FieldServiceName))
	require.Equal(t, "Dana", r.Get(model.FieldPrimeManager))
	require.Equal(t, "Payments", r.Get(model.FieldTeamName))
	require.Equal(t, "checkout-api", r.Get(model.FieldTechServiceName))
	require.Equal(t, "true", r.Get(model.FieldDynatraceEnabled))
	require.Equal(t, now, r.LastUpdated)
	require.Greater(t, r.Completion, 0)

	// 空行被跳过，但行号仍按表格位置计算
	require.Equal(t, "search-4", res.Records[1].ID)
}

func TestParse_DetectsV2(t *testing.T) {
	wb := writeWorkbook(t,
		[]string{"Service Name", "Tech Service Owner Team", "Business Unit"},
		[]string{"Checkout", "Payments", "Retail"},
	)
	defer wb.Close()

	res, err := Parse(wb, ParseOptions{})
	require.NoError(t, err)
	require.Equal(t, model.SchemaV2, res.Schema.Variant)
	require.Equal(t, "Retail", res.Records[0].Get(model.FieldBusinessUnit))

	// 显式指定 legacy 时 v2 独有字段不参与匹配
	res, err = Parse(wb, ParseOptions{Variant: model.SchemaLegacy})
	require.NoError(t, err)
	require.Equal(t, []string{"Business Unit"}, res.Dropped)
	require.Equal(t, "Payments", res.Records[0].Get(model.FieldTechServiceName))
}

func TestParse_Empty(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	_, err := Parse(wb, ParseOptions{})
	require.ErrorIs(t, err, ErrEmpty)
}

func TestAssignID(t *testing.T) {
	require.Equal(t, "payments-api-2", AssignID([]string{"", "Payments API"}, 2))
	require.Equal(t, "svc-7", AssignID([]string{"42", "  svc "}, 7))
	require.Equal(t, "row-9", AssignID([]string{"", "123", "  "}, 9))
	require.Equal(t, "row-3", AssignID(nil, 3))
}

func TestFileStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	fs := NewFileStore(filepath.Join(dir, "missing.xlsx"), zap.NewNop())
	_, err := fs.Load(ParseOptions{})
	require.ErrorIs(t, err, ErrNotFound)

	bad := filepath.Join(dir, "bad.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0644))
	_, err = NewFileStore(bad, zap.NewNop()).Load(ParseOptions{})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFileStore_WriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.xlsx")
	fs := NewFileStore(path, zap.NewNop())
	schema := model.MustSchema(model.SchemaLegacy, false)

	require.NoError(t, fs.Write(sampleRecords(schema), schema, ShapeKeyed))
	require.True(t, fs.IsOwnWrite())

	// 覆盖写入后不残留临时文件
	require.NoError(t, fs.Write(sampleRecords(schema)[:1], schema, ShapeKeyed))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	res, err := fs.Load(ParseOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, ShapeKeyed, res.Shape)
}
