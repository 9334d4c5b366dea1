package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServiceRecord 一条服务归属记录（表格中的一行）
//
// Fields 始终包含当前 Schema 的全部规范字段，缺省为空串。
// Completion 为派生值，任何修改后都要重新计算。
type ServiceRecord struct {
	ID          string
	Fields      map[string]string
	Completion  int
	LastUpdated time.Time
}

// NewRecord 创建一条所有字段为空的记录
func NewRecord(id string, schema *Schema) *ServiceRecord {
	r := &ServiceRecord{
		ID:     id,
		Fields: make(map[string]string, len(schema.Fields)),
	}
	r.EnsureFields(schema)
	return r
}

// EnsureFields 补齐缺失的规范字段
func (r *ServiceRecord) EnsureFields(schema *Schema) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(schema.Fields))
	}
	for _, f := range schema.Fields {
		if _, ok := r.Fields[f.Key]; !ok {
			r.Fields[f.Key] = ""
		}
	}
}

// Get 读取字段值，不存在时返回空串
func (r *ServiceRecord) Get(key string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// Clone 深拷贝
func (r *ServiceRecord) Clone() *ServiceRecord {
	out := *r
	out.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return &out
}

// MarshalJSON 扁平化输出：{"id":..., "<field>":..., "completion":..., "lastUpdated":...}
func (r ServiceRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["completion"] = r.Completion
	out["lastUpdated"] = r.LastUpdated
	return json.Marshal(out)
}

// UnmarshalJSON 解析扁平对象；非字符串标量按文本处理
func (r *ServiceRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Fields = make(map[string]string, len(raw))
	for k, v := range raw {
		switch k {
		case "id":
			r.ID = scalarString(v)
		case "completion":
			if f, ok := v.(float64); ok {
				r.Completion = int(f)
			}
		case "lastUpdated":
			if s, ok := v.(string); ok && s != "" {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return fmt.Errorf("invalid lastUpdated: %w", err)
				}
				r.LastUpdated = t
			}
		default:
			r.Fields[k] = scalarString(v)
		}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return FlagTrue
		}
		return FlagFalse
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// ValidationIssue 非阻塞的校验问题
type ValidationIssue struct {
	RecordID string `json:"recordId"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// Validate 校验记录：缺少 id 或任一名称字段
func Validate(records []*ServiceRecord) []ValidationIssue {
	issues := []ValidationIssue{}
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			issues = append(issues, ValidationIssue{
				Message: fmt.Sprintf("record #%d has no id", i+1),
			})
		}
		for _, key := range NameFields {
			if strings.TrimSpace(r.Fields[key]) == "" {
				issues = append(issues, ValidationIssue{
					RecordID: r.ID,
					Field:    key,
					Message:  fmt.Sprintf("%s is empty", key),
				})
			}
		}
	}
	return issues
}
