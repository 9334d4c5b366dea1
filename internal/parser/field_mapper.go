package parser

import (
	"svcledger/internal/model"
)

// MatchTier 表头命中的匹配层级
type MatchTier int

const (
	TierNone      MatchTier = iota
	TierHeader              // 展示表头精确匹配
	TierKey                 // 清洗后与规范键精确匹配
	TierHeuristic           // 关键词启发式
)

// FieldMapping 单列映射结果
type FieldMapping struct {
	ColumnIndex int       `json:"columnIndex"`
	ColumnName  string    `json:"columnName"`
	Field       string    `json:"field"`
	Tier        MatchTier `json:"tier"`
}

// heuristicRule 启发式规则；列表顺序即优先级
type heuristicRule struct {
	field string
	match func(h header) bool
}

type header struct {
	norm   string
	tokens []string
}

func (h header) has(kw ...string) bool { return ContainsAny(h.norm, kw...) }
func (h header) token(t string) bool   { return HasToken(h.tokens, t) }

func (h header) notFound() bool {
	return h.has("not found", "notfound", "not_found", "missing")
}

func (h header) monitoring() bool {
	return h.has("dyna", "monitor")
}

// HeuristicPriority 启发式规则的固定优先级（先到先得）
//
// 同时包含 "team" 与 "tech" 的表头归 tech（规则 8 先于规则 10）。
var HeuristicPriority = []heuristicRule{
	{model.FieldTechServiceNotFound, func(h header) bool { return h.notFound() && h.has("tech") }},
	{model.FieldTeamNotFound, func(h header) bool { return h.notFound() && h.has("team") }},
	{model.FieldDynatraceID, func(h header) bool { return h.monitoring() && h.token("id") }},
	{model.FieldDynatraceEnabled, func(h header) bool {
		return h.monitoring() && h.has("enabled", "integration", "integrate")
	}},
	{model.FieldDynatraceName, func(h header) bool { return h.monitoring() }},
	{model.FieldTechServiceOwnerTeam, func(h header) bool { return h.has("tech") && h.has("owner") }},
	{model.FieldTechServiceID, func(h header) bool { return h.has("tech") && h.token("id") }},
	{model.FieldTechServiceName, func(h header) bool { return h.has("tech") }},
	{model.FieldTeamID, func(h header) bool { return h.has("team") && h.token("id") }},
	{model.FieldTeamName, func(h header) bool { return h.has("team") }},
	{model.FieldPrimeManager, func(h header) bool { return h.has("prime") && h.has("manager") }},
	{model.FieldDirector, func(h header) bool { return h.has("director") }},
	{model.FieldVP, func(h header) bool { return h.token("vp") || h.has("vice president") }},
	{model.FieldCMDBID, func(h header) bool { return h.has("cmdb") }},
	{model.FieldIntegrated, func(h header) bool { return h.has("integrated") }},
	{model.FieldSupportEmail, func(h header) bool { return h.has("email") }},
	{model.FieldBusinessUnit, func(h header) bool { return h.has("business") && h.has("unit") }},
	{model.FieldEscalationPolicy, func(h header) bool { return h.has("escalation") }},
	{model.FieldEnvironment, func(h header) bool { return h.has("env") }},
	{model.FieldServiceName, func(h header) bool { return h.has("service", "application") && h.has("name") }},
	{model.FieldNotes, func(h header) bool { return h.has("note", "comment") }},
	{model.FieldRecordID, func(h header) bool { return h.has("record") && h.token("id") }},
}

// FieldMapper 表头 -> 规范字段映射器（按 Schema 参数化）
type FieldMapper struct {
	schema   *model.Schema
	byHeader map[string]string
	byKey    map[string]string
}

// NewFieldMapper 创建字段映射器
func NewFieldMapper(schema *model.Schema) *FieldMapper {
	m := &FieldMapper{
		schema:   schema,
		byHeader: make(map[string]string, len(schema.Fields)),
		byKey:    make(map[string]string, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		m.byHeader[NormalizeColumnName(f.Header)] = f.Key
		m.byKey[f.Key] = f.Key
	}
	return m
}

// Schema 返回映射器使用的 Schema
func (m *FieldMapper) Schema() *model.Schema {
	return m.schema
}

// MapColumn 映射单个表头，未命中时 Field 为空
func (m *FieldMapper) MapColumn(raw string) (string, MatchTier) {
	norm := NormalizeColumnName(raw)
	if norm == "" {
		return "", TierNone
	}
	if key, ok := m.byHeader[norm]; ok {
		return key, TierHeader
	}
	if key, ok := m.byKey[CleanColumnName(raw)]; ok {
		return key, TierKey
	}

	h := header{norm: norm, tokens: Tokens(raw)}
	for _, rule := range HeuristicPriority {
		if !m.schema.Has(rule.field) {
			continue
		}
		if rule.match(h) {
			return rule.field, TierHeuristic
		}
	}
	return "", TierNone
}

// MapColumns 映射整行表头，返回列索引 -> 映射；同一字段只保留最左列
func (m *FieldMapper) MapColumns(columnNames []string) map[int]FieldMapping {
	mappings := make(map[int]FieldMapping)
	taken := make(map[string]struct{})

	for idx, col := range columnNames {
		field, tier := m.MapColumn(col)
		if field == "" {
			continue
		}
		if _, dup := taken[field]; dup {
			continue
		}
		taken[field] = struct{}{}
		mappings[idx] = FieldMapping{
			ColumnIndex: idx,
			ColumnName:  col,
			Field:       field,
			Tier:        tier,
		}
	}
	return mappings
}

// Reconcile 返回原始表头 -> 规范字段；未命中的表头不出现
func (m *FieldMapper) Reconcile(columnNames []string) map[string]string {
	out := make(map[string]string)
	for _, mp := range m.MapColumns(columnNames) {
		out[mp.ColumnName] = mp.Field
	}
	return out
}

// DetectVariant 根据表头推断版本：命中任一 v2 独有字段即为 v2
func DetectVariant(columnNames []string) model.SchemaVariant {
	legacy := model.MustSchema(model.SchemaLegacy, true)
	v2 := NewFieldMapper(model.MustSchema(model.SchemaV2, true))
	for _, mp := range v2.MapColumns(columnNames) {
		if !legacy.Has(mp.Field) {
			return model.SchemaV2
		}
	}
	return model.SchemaLegacy
}
