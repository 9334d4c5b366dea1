package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"svcledger/internal/model"
)

// Shape 序列化形态
type Shape int

const (
	// ShapePositional 表头为规范键，每行按列顺序写数组
	ShapePositional Shape = iota
	// ShapeKeyed 表头为展示表头，每行按 表头->值 对象写入
	ShapeKeyed
)

// SheetName 输出工作表名
const SheetName = "Services"

// Serialize 全量生成工作簿
func Serialize(records []*model.ServiceRecord, schema *model.Schema, shape Shape) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	var err error
	switch shape {
	case ShapeKeyed:
		err = writeKeyed(f, records, schema)
	default:
		err = writePositional(f, records, schema)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, headerStyle)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(schema.Fields))
	_ = f.SetColWidth(SheetName, "A", lastCol, 22)

	return f, nil
}

func writePositional(f *excelize.File, records []*model.ServiceRecord, schema *model.Schema) error {
	keys := schema.Keys()
	header := make([]interface{}, len(keys))
	for i, k := range keys {
		header[i] = k
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		row := make([]interface{}, len(keys))
		for j, k := range keys {
			row[j] = cellValue(rec, schema, k)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeKeyed(f *excelize.File, records []*model.ServiceRecord, schema *model.Schema) error {
	headers := schema.Headers()
	colOf := make(map[string]int, len(headers))
	for i, h := range headers {
		colOf[h] = i + 1
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, rec := range records {
		obj := make(map[string]string, len(schema.Fields))
		for _, fd := range schema.Fields {
			obj[fd.Header] = cellValue(rec, schema, fd.Key)
		}
		for h, v := range obj {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colOf[h], i+2)
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}
	return nil
}

func cellValue(rec *model.ServiceRecord, schema *model.Schema, key string) string {
	v := rec.Get(key)
	if key == model.FieldRecordID && v == "" && schema.PersistsIDs() {
		return rec.ID
	}
	return v
}
