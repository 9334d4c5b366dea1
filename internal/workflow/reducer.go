package workflow

import (
	"fmt"
	"strings"
)

// Event 流程事件
type Event interface {
	isEvent()
}

// SetTeam 记录团队决策
type SetTeam struct{ Decision TeamDecision }

// SetTechService 记录技术服务决策
type SetTechService struct{ Decision TechServiceDecision }

// SetMonitoring 记录监控决策
type SetMonitoring struct{ Decision MonitoringDecision }

// SetConfirm 记录确认
type SetConfirm struct{ Confirmed bool }

// Next 前进一步（受前进条件约束）
type Next struct{}

// Back 后退一步，不清除任何答案
type Back struct{}

// Save CONFIRM 之后的终止动作
type Save struct{}

func (SetTeam) isEvent()        {}
func (SetTechService) isEvent() {}
func (SetMonitoring) isEvent()  {}
func (SetConfirm) isEvent()     {}
func (Next) isEvent()           {}
func (Back) isEvent()           {}
func (Save) isEvent()           {}

// Reduce 纯函数状态转移；出错时返回原状态
func Reduce(f Flow, ev Event) (Flow, error) {
	// SAVE 为终态
	if f.Step == StepSave {
		return f, fmt.Errorf("%w: flow already saved", ErrGuard)
	}

	switch e := ev.(type) {
	case SetTeam:
		if err := f.editable(StepTeam); err != nil {
			return f, err
		}
		f.Team = e.Decision
		f.Team.ManualName = strings.TrimSpace(f.Team.ManualName)
		return f, nil

	case SetTechService:
		if err := f.editable(StepTechService); err != nil {
			return f, err
		}
		if e.Decision.Scenario != "" && !f.SingleRecord {
			return f, fmt.Errorf("%w: scenario is only available when editing a single record", ErrGuard)
		}
		switch e.Decision.Scenario {
		case "", ScenarioExisting, ScenarioIntegrate, ScenarioNone:
		default:
			return f, fmt.Errorf("%w: unknown scenario %q", ErrGuard, e.Decision.Scenario)
		}
		f.TechService = e.Decision
		f.TechService.ManualName = strings.TrimSpace(f.TechService.ManualName)
		return f, nil

	case SetMonitoring:
		if err := f.editable(StepDynatrace); err != nil {
			return f, err
		}
		f.Monitoring = e.Decision
		f.Monitoring.CustomName = strings.TrimSpace(f.Monitoring.CustomName)
		return f, nil

	case SetConfirm:
		f.Confirm.Confirmed = e.Confirmed
		return f, nil

	case Next:
		if f.Step == StepConfirm {
			return f, fmt.Errorf("%w: use save to finish the flow", ErrGuard)
		}
		if err := f.guardThrough(f.Step); err != nil {
			return f, err
		}
		if f.Step == StepTechService && f.TechService.Scenario == ScenarioIntegrate && f.Monitoring.Wants == Unanswered {
			f.Monitoring.Wants = Yes
		}
		f.Step = stepOrder[stepIndex(f.Step)+1]
		return f, nil

	case Back:
		if i := stepIndex(f.Step); i > 0 {
			f.Step = stepOrder[i-1]
		}
		return f, nil

	case Save:
		if f.Step != StepConfirm {
			return f, fmt.Errorf("%w: save is only possible from %s", ErrGuard, StepConfirm)
		}
		if err := f.guardThrough(StepConfirm); err != nil {
			return f, err
		}
		f.Step = StepSave
		return f, nil
	}
	return f, fmt.Errorf("%w: unknown event %T", ErrGuard, ev)
}

// editable 决策只能在其所属步骤或之前修改；已越过时需先 Back
func (f Flow) editable(step Step) error {
	if stepIndex(f.Step) > stepIndex(step) {
		return fmt.Errorf("%w: %s answer can only change at or before %s, go back first", ErrGuard, step, step)
	}
	return nil
}

// Run 依次应用事件，遇到第一个错误即停止，返回停止时的状态
func Run(f Flow, events ...Event) (Flow, error) {
	for _, ev := range events {
		next, err := Reduce(f, ev)
		if err != nil {
			return f, err
		}
		f = next
	}
	return f, nil
}

// Complete 以给定决策从头走完整个流程直到 SAVE
//
// mon 未回答时保留 integrate 场景预置的回答。
func Complete(singleRecord bool, team TeamDecision, tech TechServiceDecision, mon MonitoringDecision, confirmed bool) (Flow, error) {
	f, err := Run(NewFlow(singleRecord),
		SetTeam{Decision: team},
		Next{},
		SetTechService{Decision: tech},
		Next{},
	)
	if err != nil {
		return f, err
	}
	if mon.Wants == Unanswered {
		mon.Wants = f.Monitoring.Wants
	}
	return Run(f,
		SetMonitoring{Decision: mon},
		Next{},
		SetConfirm{Confirmed: confirmed},
		Save{},
	)
}
