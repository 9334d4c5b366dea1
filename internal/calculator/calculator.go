package calculator

import (
	"math"
	"strings"

	"svcledger/internal/model"
)

// FullCompletion 全字段完成度：round(100 * 非空规范字段数 / 规范字段总数)
func FullCompletion(rec *model.ServiceRecord, schema *model.Schema) int {
	return percent(countNonEmpty(rec, schema.Keys()), len(schema.Fields))
}

// KeyFieldCompletion 关键归属字段完成度：round(100 * 非空关键字段数 / 4)
//
// 与 FullCompletion 是两个独立口径，不要混用。
func KeyFieldCompletion(rec *model.ServiceRecord, schema *model.Schema) int {
	return percent(countNonEmpty(rec, schema.KeyFields), len(schema.KeyFields))
}

func countNonEmpty(rec *model.ServiceRecord, keys []string) int {
	n := 0
	for _, k := range keys {
		if strings.TrimSpace(rec.Get(k)) != "" {
			n++
		}
	}
	return n
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(total)))
}

// Indicator 指标定义
type Indicator struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Summary 进度看板汇总
type Summary struct {
	Total             int         `json:"total"`
	Complete          int         `json:"complete"`          // 全字段 100%
	KeyFieldsComplete int         `json:"keyFieldsComplete"` // 关键字段 100%
	Integrated        int         `json:"integrated"`        // integrated = true
	TeamNotFound      int         `json:"teamNotFound"`      // team_not_found = true
	AverageCompletion float64     `json:"averageCompletion"` // 全字段完成度均值
	AverageKeyFields  float64     `json:"averageKeyFields"`  // 关键字段完成度均值
	Indicators        []Indicator `json:"indicators"`
}

// Summarize 计算看板指标
func Summarize(records []*model.ServiceRecord, schema *model.Schema) Summary {
	s := Summary{Total: len(records), Indicators: []Indicator{}}
	if len(records) == 0 {
		return s
	}

	var fullSum, keySum int
	for _, r := range records {
		full := FullCompletion(r, schema)
		key := KeyFieldCompletion(r, schema)
		fullSum += full
		keySum += key
		if full == 100 {
			s.Complete++
		}
		if key == 100 {
			s.KeyFieldsComplete++
		}
		if r.Get(model.FieldIntegrated) == model.FlagTrue {
			s.Integrated++
		}
		if r.Get(model.FieldTeamNotFound) == model.FlagTrue {
			s.TeamNotFound++
		}
	}
	s.AverageCompletion = round2(float64(fullSum) / float64(len(records)))
	s.AverageKeyFields = round2(float64(keySum) / float64(len(records)))

	s.Indicators = []Indicator{
		{ID: "avg_completion", Name: "Average completion", Value: s.AverageCompletion, Unit: "%"},
		{ID: "avg_key_fields", Name: "Average key-field completion", Value: s.AverageKeyFields, Unit: "%"},
		{ID: "integrated_rate", Name: "Integrated", Value: round2(100 * float64(s.Integrated) / float64(s.Total)), Unit: "%"},
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
