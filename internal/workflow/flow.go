package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrGuard 前进条件不满足；已有答案保持不变
var ErrGuard = errors.New("workflow guard not satisfied")

// Answer 三态回答
type Answer int

const (
	Unanswered Answer = iota
	Yes
	No
)

// AnswerOf bool 转 Answer
func AnswerOf(b bool) Answer {
	if b {
		return Yes
	}
	return No
}

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unanswered"
	}
}

// MarshalJSON Unanswered 编码为 null
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 接受 true / false / null
func (a *Answer) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("answer must be true, false or null: %w", err)
	}
	if b == nil {
		*a = Unanswered
		return nil
	}
	*a = AnswerOf(*b)
	return nil
}

// Step 流程步骤，严格按顺序推进
type Step string

const (
	StepTeam        Step = "TEAM"
	StepTechService Step = "TECH_SERVICE"
	StepDynatrace   Step = "DYNATRACE"
	StepConfirm     Step = "CONFIRM"
	StepSave        Step = "SAVE"
)

var stepOrder = []Step{StepTeam, StepTechService, StepDynatrace, StepConfirm, StepSave}

func stepIndex(s Step) int {
	for i, v := range stepOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Scenario 单条记录模式下技术服务的处理方式
type Scenario string

const (
	ScenarioExisting  Scenario = "existing"
	ScenarioIntegrate Scenario = "integrate"
	ScenarioNone      Scenario = "none"
)

// TeamDecision 团队是否在目录中；在则选 id，不在则手填名称
type TeamDecision struct {
	Found       Answer `json:"found"`
	DirectoryID string `json:"directoryId,omitempty"`
	ManualName  string `json:"manualName,omitempty"`
}

// TechServiceDecision 技术服务决策
type TechServiceDecision struct {
	Found       Answer   `json:"found"`
	DirectoryID string   `json:"directoryId,omitempty"`
	ManualName  string   `json:"manualName,omitempty"`
	Scenario    Scenario `json:"scenario,omitempty"`
}

// MonitoringDecision 是否接入 Dynatrace 监控
type MonitoringDecision struct {
	Wants      Answer `json:"wants"`
	CustomName string `json:"customName,omitempty"`
}

// ConfirmDecision 最终确认
type ConfirmDecision struct {
	Confirmed bool `json:"confirmed"`
}

// Flow 引导流程状态
type Flow struct {
	Step Step `json:"step"`
	// SingleRecord 单条记录编辑模式（允许 Scenario）
	SingleRecord bool                `json:"singleRecord"`
	Team         TeamDecision        `json:"team"`
	TechService  TechServiceDecision `json:"techService"`
	Monitoring   MonitoringDecision  `json:"monitoring"`
	Confirm      ConfirmDecision     `json:"confirm"`
}

// NewFlow 从 TEAM 开始的新流程
func NewFlow(singleRecord bool) Flow {
	return Flow{Step: StepTeam, SingleRecord: singleRecord}
}

// teamResolved 团队决策已完整给出
func (f Flow) teamResolved() bool {
	switch f.Team.Found {
	case Yes:
		return strings.TrimSpace(f.Team.DirectoryID) != ""
	case No:
		return strings.TrimSpace(f.Team.ManualName) != ""
	}
	return false
}

// techResolved 技术服务已确定（none 视为未确定）
func (f Flow) techResolved() bool {
	if f.TechService.Scenario == ScenarioNone {
		return false
	}
	switch f.TechService.Found {
	case Yes:
		return strings.TrimSpace(f.TechService.DirectoryID) != ""
	case No:
		return strings.TrimSpace(f.TechService.ManualName) != ""
	}
	return false
}

// CanAdvance 当前步骤是否可以前进
func (f Flow) CanAdvance() bool {
	return f.guard() == nil
}

func (f Flow) guard() error {
	return f.guardAt(f.Step)
}

// guardThrough 依次检查 TEAM 到 step（含）的全部前进条件
func (f Flow) guardThrough(step Step) error {
	if stepIndex(step) < 0 {
		return f.guardAt(step)
	}
	for _, s := range stepOrder[:stepIndex(step)+1] {
		if err := f.guardAt(s); err != nil {
			return err
		}
	}
	return nil
}

func (f Flow) guardAt(step Step) error {
	switch step {
	case StepTeam:
		if f.Team.Found == Unanswered {
			return fmt.Errorf("%w: team: answer whether the team is in the directory", ErrGuard)
		}
		if !f.teamResolved() {
			if f.Team.Found == Yes {
				return fmt.Errorf("%w: team: select a directory team", ErrGuard)
			}
			return fmt.Errorf("%w: team: enter a team name", ErrGuard)
		}
	case StepTechService:
		if f.TechService.Scenario == ScenarioNone {
			return nil
		}
		if f.TechService.Found == Unanswered {
			return fmt.Errorf("%w: tech service: answer whether the service is in the directory", ErrGuard)
		}
		if !f.techResolved() {
			if f.TechService.Found == Yes {
				return fmt.Errorf("%w: tech service: select a directory service", ErrGuard)
			}
			return fmt.Errorf("%w: tech service: enter a service name", ErrGuard)
		}
	case StepDynatrace:
		if f.Monitoring.Wants == Unanswered {
			return fmt.Errorf("%w: monitoring: answer whether to enable integration", ErrGuard)
		}
	case StepConfirm:
		if !f.Confirm.Confirmed {
			return fmt.Errorf("%w: confirm: changes not confirmed", ErrGuard)
		}
	case StepSave:
		return fmt.Errorf("%w: flow already saved", ErrGuard)
	default:
		return fmt.Errorf("%w: unknown step %q", ErrGuard, step)
	}
	return nil
}
