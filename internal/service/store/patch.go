package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"svcledger/internal/calculator"
	"svcledger/internal/model"
)

var (
	// ErrUnknownField 字段不属于当前 Schema
	ErrUnknownField = errors.New("unknown field")
	// ErrRecordNotFound 记录 id 不存在
	ErrRecordNotFound = errors.New("record not found")
	// ErrEmptyRecord 新增记录没有任何非空字段（写回后会被当作空行丢弃）
	ErrEmptyRecord = errors.New("record has no values")
)

// FieldValue 单个字段赋值
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// PatchSet 有序的字段赋值列表，按顺序应用，后者覆盖前者
type PatchSet []FieldValue

// Fields 返回 PatchSet 涉及的字段（去重、保持首次出现顺序）
func (p PatchSet) Fields() []string {
	seen := make(map[string]struct{}, len(p))
	out := make([]string, 0, len(p))
	for _, fv := range p {
		if _, ok := seen[fv.Field]; ok {
			continue
		}
		seen[fv.Field] = struct{}{}
		out = append(out, fv.Field)
	}
	return out
}

// Patch 返回设置了 field 的新记录副本，并刷新 LastUpdated 与 Completion
func Patch(rec *model.ServiceRecord, schema *model.Schema, field, value string, now time.Time) (*model.ServiceRecord, error) {
	if !schema.Has(field) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	out := rec.Clone()
	out.EnsureFields(schema)
	out.Fields[field] = value
	if field == model.FieldRecordID && value != "" {
		out.ID = value
	}
	out.LastUpdated = now
	out.Completion = calculator.FullCompletion(out, schema)
	return out, nil
}

// BatchPatch 对 ids 中每条记录依次应用 PatchSet 的全部赋值
//
// ids 按字典序处理。任一 id 不存在或字段非法时返回错误，整批结果丢弃，入参不被修改。
func BatchPatch(records []*model.ServiceRecord, ids []string, patch PatchSet, schema *model.Schema, now time.Time) ([]*model.ServiceRecord, error) {
	pos := make(map[string]int, len(records))
	for i, r := range records {
		pos[r.ID] = i
	}

	ordered := uniqueSorted(ids)
	out := make([]*model.ServiceRecord, len(records))
	copy(out, records)

	for _, id := range ordered {
		i, ok := pos[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		rec := out[i]
		for _, fv := range patch {
			next, err := Patch(rec, schema, fv.Field, fv.Value, now)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", id, err)
			}
			rec = next
		}
		out[i] = rec
	}
	return out, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
