package workflow

import (
	"errors"
	"fmt"
	"strings"

	"svcledger/internal/directory"
	"svcledger/internal/model"
	"svcledger/internal/service/store"
)

// ErrUnresolved 选中的目录条目在已拉取的列表中不存在
var ErrUnresolved = errors.New("directory entry not resolved")

// Resolution 流程中选中的目录条目
type Resolution struct {
	Team    *directory.Team
	Service *directory.Service
}

// Catalog 会话初始化时拉取的目录快照
type Catalog struct {
	Teams    []directory.Team    `json:"teams"`
	Services []directory.Service `json:"services"`
}

// FindTeam 按 id 查找团队
func (c Catalog) FindTeam(id string) (*directory.Team, bool) {
	for i := range c.Teams {
		if c.Teams[i].ID == id {
			t := c.Teams[i]
			return &t, true
		}
	}
	return nil, false
}

// FindService 按 id 查找服务
func (c Catalog) FindService(id string) (*directory.Service, bool) {
	for i := range c.Services {
		if c.Services[i].ID == id {
			s := c.Services[i]
			return &s, true
		}
	}
	return nil, false
}

// FindServiceByName 按名称（忽略大小写与首尾空白）查找服务
func (c Catalog) FindServiceByName(name string) (*directory.Service, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	for i := range c.Services {
		if strings.EqualFold(strings.TrimSpace(c.Services[i].Name), name) {
			s := c.Services[i]
			return &s, true
		}
	}
	return nil, false
}

// TechServiceNames 选中记录中已有的技术服务名称（去重，按记录顺序）
func TechServiceNames(records []*model.ServiceRecord, ids []string) []string {
	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := selected[r.ID]; !ok {
			continue
		}
		name := strings.TrimSpace(r.Get(model.FieldTechServiceName))
		if name == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			continue
		}
		seen[strings.ToLower(name)] = struct{}{}
		out = append(out, name)
	}
	return out
}

// DerivePatchSet 由已完成（SAVE）的流程生成字段赋值列表
//
// 赋值顺序固定：团队、技术服务（v2 的服务归属团队覆盖团队名）、监控、integrated。
func DerivePatchSet(f Flow, schema *model.Schema, res Resolution) (store.PatchSet, error) {
	if f.Step != StepSave {
		return nil, fmt.Errorf("%w: flow is at %s, not %s", ErrGuard, f.Step, StepSave)
	}

	var ps store.PatchSet
	set := func(field, value string) {
		ps = append(ps, store.FieldValue{Field: field, Value: value})
	}

	// 1. 团队
	switch f.Team.Found {
	case Yes:
		if res.Team == nil {
			return nil, fmt.Errorf("%w: team %q", ErrUnresolved, f.Team.DirectoryID)
		}
		set(model.FieldTeamName, res.Team.Name)
		set(model.FieldTeamID, res.Team.ID)
		set(model.FieldTeamNotFound, model.FlagFalse)
	case No:
		set(model.FieldTeamName, f.Team.ManualName)
		set(model.FieldTeamID, "")
		set(model.FieldTeamNotFound, model.FlagTrue)
	}

	// 2. 技术服务
	techName := ""
	switch {
	case f.TechService.Scenario == ScenarioNone:
		set(model.FieldTechServiceName, "")
		set(model.FieldTechServiceID, "")
		set(model.FieldTechServiceNotFound, model.FlagTrue)
	case f.TechService.Found == Yes:
		if res.Service == nil {
			return nil, fmt.Errorf("%w: service %q", ErrUnresolved, f.TechService.DirectoryID)
		}
		techName = res.Service.Name
		set(model.FieldTechServiceName, res.Service.Name)
		set(model.FieldTechServiceID, res.Service.ID)
		set(model.FieldTechServiceNotFound, model.FlagFalse)
		if schema.TechServiceOwnsTeam {
			if owner, ok := res.Service.OwnerTeam(); ok && strings.TrimSpace(owner.Summary) != "" {
				set(model.FieldTechServiceOwnerTeam, owner.Summary)
				set(model.FieldTeamName, owner.Summary)
			}
		}
	case f.TechService.Found == No:
		techName = f.TechService.ManualName
		set(model.FieldTechServiceName, f.TechService.ManualName)
		set(model.FieldTechServiceID, "")
		set(model.FieldTechServiceNotFound, model.FlagTrue)
	}

	// 3. 监控
	if f.Monitoring.Wants == Yes {
		name := f.Monitoring.CustomName
		if name == "" {
			name = techName
		}
		set(model.FieldDynatraceEnabled, model.FlagTrue)
		set(model.FieldDynatraceName, name)
	}

	// 4. integrated
	integrated := f.Confirm.Confirmed && f.teamResolved() && f.techResolved()
	if integrated {
		set(model.FieldIntegrated, model.FlagTrue)
	} else {
		set(model.FieldIntegrated, model.FlagFalse)
	}

	for _, fv := range ps {
		if !schema.Has(fv.Field) {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownField, fv.Field)
		}
	}
	return ps, nil
}
