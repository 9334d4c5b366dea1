package model

import "fmt"

// SchemaVariant 列集合版本（一个文件只使用一种）
type SchemaVariant string

const (
	SchemaLegacy SchemaVariant = "legacy"
	SchemaV2     SchemaVariant = "v2"
)

// 规范字段键
const (
	FieldServiceName          = "service_name"
	FieldCMDBID               = "cmdb_id"
	FieldTeamName             = "team_name"
	FieldTeamID               = "team_id"
	FieldTeamNotFound         = "team_not_found"
	FieldTechServiceName      = "tech_service_name"
	FieldTechServiceID        = "tech_service_id"
	FieldTechServiceNotFound  = "tech_service_not_found"
	FieldTechServiceOwnerTeam = "tech_service_owner_team"
	FieldPrimeManager         = "prime_manager"
	FieldDirector             = "director"
	FieldVP                   = "vp"
	FieldDynatraceName        = "dynatrace_service_name"
	FieldDynatraceID          = "dynatrace_service_id"
	FieldDynatraceEnabled     = "dynatrace_enabled"
	FieldIntegrated           = "integrated"
	FieldSupportEmail         = "support_email"
	FieldBusinessUnit         = "business_unit"
	FieldEnvironment          = "environment"
	FieldEscalationPolicy     = "escalation_policy"
	FieldNotes                = "notes"
	FieldRecordID             = "record_id"
)

// 布尔标记字段的取值
const (
	FlagTrue  = "true"
	FlagFalse = "false"
)

// FieldDef 规范字段定义
type FieldDef struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// Schema 某一版本的规范字段列表（顺序即序列化列顺序）
type Schema struct {
	Variant SchemaVariant `json:"variant"`
	Fields  []FieldDef    `json:"fields"`
	// KeyFields 关键归属字段，用于 KeyFieldCompletion
	KeyFields []string `json:"keyFields"`
	// TechServiceOwnsTeam 技术服务自带归属团队（v2）
	TechServiceOwnsTeam bool `json:"techServiceOwnsTeam"`

	index map[string]int
}

var legacyFields = []FieldDef{
	{FieldServiceName, "Service Name"},
	{FieldCMDBID, "CMDB ID"},
	{FieldTeamName, "Team Name"},
	{FieldTeamID, "Team ID"},
	{FieldTeamNotFound, "Team Not Found"},
	{FieldTechServiceName, "Technical Service"},
	{FieldTechServiceID, "Technical Service ID"},
	{FieldTechServiceNotFound, "Tech Service Not Found"},
	{FieldPrimeManager, "Prime Manager"},
	{FieldDirector, "Director"},
	{FieldVP, "VP"},
	{FieldDynatraceName, "Dynatrace Service Name"},
	{FieldDynatraceID, "Dynatrace Service ID"},
	{FieldDynatraceEnabled, "Dynatrace Integration"},
	{FieldIntegrated, "Integrated"},
	{FieldSupportEmail, "Support Email"},
	{FieldNotes, "Notes"},
}

var v2Fields = []FieldDef{
	{FieldServiceName, "Service Name"},
	{FieldCMDBID, "CMDB ID"},
	{FieldTeamName, "Team Name"},
	{FieldTeamID, "Team ID"},
	{FieldTeamNotFound, "Team Not Found"},
	{FieldTechServiceName, "Technical Service"},
	{FieldTechServiceID, "Technical Service ID"},
	{FieldTechServiceNotFound, "Tech Service Not Found"},
	{FieldTechServiceOwnerTeam, "Tech Service Owner Team"},
	{FieldPrimeManager, "Prime Manager"},
	{FieldDirector, "Director"},
	{FieldVP, "VP"},
	{FieldDynatraceName, "Dynatrace Service Name"},
	{FieldDynatraceID, "Dynatrace Service ID"},
	{FieldDynatraceEnabled, "Dynatrace Integration"},
	{FieldIntegrated, "Integrated"},
	{FieldSupportEmail, "Support Email"},
	{FieldBusinessUnit, "Business Unit"},
	{FieldEnvironment, "Environment"},
	{FieldEscalationPolicy, "Escalation Policy"},
	{FieldNotes, "Notes"},
}

var keyFields = []string{FieldServiceName, FieldTeamName, FieldTechServiceName, FieldPrimeManager}

// NameFields 校验时要求非空的名称字段
var NameFields = []string{FieldServiceName, FieldTeamName, FieldTechServiceName}

// SchemaFor 返回指定版本的 Schema；persistIDs 为 true 时追加 record_id 列
func SchemaFor(variant SchemaVariant, persistIDs bool) (*Schema, error) {
	var defs []FieldDef
	s := &Schema{Variant: variant}
	switch variant {
	case SchemaLegacy:
		defs = legacyFields
	case SchemaV2:
		defs = v2Fields
		s.TechServiceOwnsTeam = true
	default:
		return nil, fmt.Errorf("unknown schema variant %q", variant)
	}

	s.Fields = make([]FieldDef, 0, len(defs)+1)
	s.Fields = append(s.Fields, defs...)
	if persistIDs {
		s.Fields = append(s.Fields, FieldDef{FieldRecordID, "Record ID"})
	}
	s.KeyFields = append([]string(nil), keyFields...)

	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.index[f.Key] = i
	}
	return s, nil
}

// MustSchema 同 SchemaFor，出错时 panic（仅用于常量版本）
func MustSchema(variant SchemaVariant, persistIDs bool) *Schema {
	s, err := SchemaFor(variant, persistIDs)
	if err != nil {
		panic(err)
	}
	return s
}

// Keys 按顺序返回规范字段键
func (s *Schema) Keys() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Key
	}
	return out
}

// Headers 按顺序返回展示表头
func (s *Schema) Headers() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Header
	}
	return out
}

// Has 是否包含字段
func (s *Schema) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

// PersistsIDs 是否持久化 record_id 列
func (s *Schema) PersistsIDs() bool {
	return s.Has(FieldRecordID)
}

// ParseVariant 解析配置中的版本字符串；"auto" 与空串返回 ok=false
func ParseVariant(v string) (SchemaVariant, bool, error) {
	switch SchemaVariant(v) {
	case SchemaLegacy, SchemaV2:
		return SchemaVariant(v), true, nil
	case "", "auto":
		return "", false, nil
	}
	return "", false, fmt.Errorf("unknown schema variant %q", v)
}
