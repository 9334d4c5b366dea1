package sheet

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"svcledger/internal/calculator"
	"svcledger/internal/model"
	"svcledger/internal/parser"
)

var (
	// ErrNotFound 表格文件不存在
	ErrNotFound = errors.New("spreadsheet not found")
	// ErrEmpty 工作簿没有工作表或没有任何行
	ErrEmpty = errors.New("spreadsheet is empty")
	// ErrMalformed 工作簿无法读取
	ErrMalformed = errors.New("spreadsheet is malformed")
)

// ParseOptions 解析选项
type ParseOptions struct {
	// Variant 为空时根据表头自动识别
	Variant    model.SchemaVariant
	PersistIDs bool
	Now        time.Time
}

// ParseResult 解析结果
type ParseResult struct {
	SheetName string                 `json:"sheetName"`
	Schema    *model.Schema          `json:"schema"`
	Records   []*model.ServiceRecord `json:"records"`
	Headers   []string               `json:"headers"`
	Dropped   []string               `json:"dropped"` // 未识别、被忽略的表头
	Shape     Shape                  `json:"shape"`   // 按表头推断的写入形态
}

// Parse 解析第一个工作表：第 1 行为表头，全空行忽略
func Parse(wb *excelize.File, opts ParseOptions) (*ParseResult, error) {
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	sheetName := sheets[0]

	rows, err := wb.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformed, sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	header := rows[0]
	variant := opts.Variant
	if variant == "" {
		variant = parser.DetectVariant(header)
	}
	schema, err := model.SchemaFor(variant, opts.PersistIDs)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mapper := parser.NewFieldMapper(schema)
	mappings := mapper.MapColumns(header)

	result := &ParseResult{
		SheetName: sheetName,
		Schema:    schema,
		Records:   make([]*model.ServiceRecord, 0, len(rows)-1),
		Headers:   header,
		Dropped:   []string{},
	}
	for idx, col := range header {
		if _, ok := mappings[idx]; !ok && strings.TrimSpace(col) != "" {
			result.Dropped = append(result.Dropped, col)
		}
	}
	result.Shape = inferShape(mappings)

	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		rowNum := i + 2
		rec := parseRow(row, mappings, schema, rowNum)
		rec.Completion = calculator.FullCompletion(rec, schema)
		rec.LastUpdated = now
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

// parseRow 解析单行数据
func parseRow(row []string, mappings map[int]parser.FieldMapping, schema *model.Schema, rowNum int) *model.ServiceRecord {
	rec := model.NewRecord("", schema)
	for idx, mp := range mappings {
		if idx < len(row) {
			rec.Fields[mp.Field] = strings.TrimSpace(row[idx])
		}
	}

	if schema.PersistsIDs() {
		if id := rec.Fields[model.FieldRecordID]; id != "" {
			rec.ID = id
			return rec
		}
		rec.ID = uuid.New().String()
		rec.Fields[model.FieldRecordID] = rec.ID
		return rec
	}

	rec.ID = AssignID(row, rowNum)
	return rec
}

// inferShape 表头全部按展示表头命中时视为 keyed 形态
func inferShape(mappings map[int]parser.FieldMapping) Shape {
	if len(mappings) == 0 {
		return ShapePositional
	}
	for _, mp := range mappings {
		if mp.Tier != parser.TierHeader {
			return ShapePositional
		}
	}
	return ShapeKeyed
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// AssignID 由首个非空文本单元格 + 行号生成记录 id，例如 "payments-api-2"
//
// 纯数字单元格不作为文本；找不到时为 "row-<行号>"。id 只在一次加载/保存周期内稳定。
func AssignID(row []string, rowNum int) string {
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			continue
		}
		slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(cell), "-"), "-")
		if slug == "" {
			continue
		}
		return fmt.Sprintf("%s-%d", slug, rowNum)
	}
	return fmt.Sprintf("row-%d", rowNum)
}
