package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"svcledger/internal/calculator"
	"svcledger/internal/model"
	"svcledger/internal/sheet"
)

// MemoryStore 一次 读取-修改-写回 周期内的内存记录集
//
// 非并发安全，由 Ledger 串行使用。
type MemoryStore struct {
	schema  *model.Schema
	records []*model.ServiceRecord
	shape   sheet.Shape
	dirty   bool
	now     func() time.Time
}

// NewMemoryStore 创建内存存储；records 保持文件行顺序
func NewMemoryStore(schema *model.Schema, records []*model.ServiceRecord) *MemoryStore {
	s := &MemoryStore{
		schema:  schema,
		records: make([]*model.ServiceRecord, 0, len(records)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, r := range records {
		c := r.Clone()
		c.EnsureFields(schema)
		c.Completion = calculator.FullCompletion(c, schema)
		s.records = append(s.records, c)
	}
	return s
}

// Schema 当前 Schema
func (s *MemoryStore) Schema() *model.Schema {
	return s.schema
}

// Dirty 是否有未写回的修改
func (s *MemoryStore) Dirty() bool {
	return s.dirty
}

// Shape 写回时使用的序列化形态
func (s *MemoryStore) Shape() sheet.Shape {
	return s.shape
}

// SetShape 设置写回形态
func (s *MemoryStore) SetShape(shape sheet.Shape) {
	s.shape = shape
}

// Records 返回记录副本
func (s *MemoryStore) Records() []*model.ServiceRecord {
	out := make([]*model.ServiceRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Count 记录数量
func (s *MemoryStore) Count() int {
	return len(s.records)
}

// GetRecord 获取单条记录副本
func (s *MemoryStore) GetRecord(id string) (*model.ServiceRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, ErrRecordNotFound
}

// SetRecords 整体替换记录集
func (s *MemoryStore) SetRecords(records []*model.ServiceRecord) {
	now := s.now()
	s.records = make([]*model.ServiceRecord, 0, len(records))
	for _, r := range records {
		c := r.Clone()
		c.EnsureFields(s.schema)
		if c.ID == "" && s.schema.PersistsIDs() {
			c.ID = c.Fields[model.FieldRecordID]
		}
		c.Completion = calculator.FullCompletion(c, s.schema)
		if c.LastUpdated.IsZero() {
			c.LastUpdated = now
		}
		s.records = append(s.records, c)
	}
	s.dirty = true
}

// UpdateRecord 更新单个字段
func (s *MemoryStore) UpdateRecord(id, field, value string) (*model.ServiceRecord, error) {
	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		next, err := Patch(r, s.schema, field, value, s.now())
		if err != nil {
			return nil, err
		}
		s.records[i] = next
		s.dirty = true
		return next.Clone(), nil
	}
	return nil, ErrRecordNotFound
}

// BatchUpdate 对多条记录应用同一 PatchSet；失败时内存状态不变
func (s *MemoryStore) BatchUpdate(ids []string, patch PatchSet) error {
	next, err := BatchPatch(s.records, ids, patch, s.schema, s.now())
	if err != nil {
		return err
	}
	s.records = next
	s.dirty = true
	return nil
}

// AddRecord 追加一条记录，fields 为初始字段值
//
// 未持久化 id 时，返回的 id 与写回后重新解析得到的 id 相同（按行号生成）。
func (s *MemoryStore) AddRecord(fields map[string]string) (*model.ServiceRecord, error) {
	empty := true
	for k, v := range fields {
		if !s.schema.Has(k) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		if strings.TrimSpace(v) != "" {
			empty = false
		}
	}
	if empty {
		return nil, ErrEmptyRecord
	}

	rec := model.NewRecord("", s.schema)
	for k, v := range fields {
		rec.Fields[k] = strings.TrimSpace(v)
	}
	if s.schema.PersistsIDs() {
		rec.ID = uuid.New().String()
		rec.Fields[model.FieldRecordID] = rec.ID
	} else {
		row := make([]string, len(s.schema.Fields))
		for i, f := range s.schema.Fields {
			row[i] = rec.Fields[f.Key]
		}
		rec.ID = sheet.AssignID(row, len(s.records)+2)
	}
	rec.LastUpdated = s.now()
	rec.Completion = calculator.FullCompletion(rec, s.schema)
	s.records = append(s.records, rec)
	s.dirty = true
	return rec.Clone(), nil
}

// DeleteRecord 删除记录
func (s *MemoryStore) DeleteRecord(id string) error {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.dirty = true
			return nil
		}
	}
	return ErrRecordNotFound
}

// markClean 写回成功后清除脏标记
func (s *MemoryStore) markClean() {
	s.dirty = false
}
