package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"svcledger/internal/directory"
	"svcledger/internal/model"
	"svcledger/internal/service/store"
)

// ErrSelection 应用范围不合法（空选择，或单条模式选了多条）
var ErrSelection = errors.New("invalid record selection")

// InitError 目录列表拉取失败，流程无法开始
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("onboarding init failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Message 面向用户的分类提示
func (e *InitError) Message() string {
	return directory.UserMessage(e.Err)
}

// Session 一次引导会话：持有初始化时拉取的目录快照
type Session struct {
	gw      directory.Gateway
	logger  *zap.Logger
	catalog Catalog
}

// NewSession 并发拉取团队与服务列表；任一失败则返回 *InitError
func NewSession(ctx context.Context, gw directory.Gateway, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var teams []directory.Team
	var services []directory.Service
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teams, err = gw.Teams(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		services, err = gw.Services(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn("onboarding session init failed", zap.Error(err))
		return nil, &InitError{Err: err}
	}

	logger.Debug("onboarding session ready",
		zap.Int("teams", len(teams)),
		zap.Int("services", len(services)))
	return &Session{
		gw:      gw,
		logger:  logger,
		catalog: Catalog{Teams: teams, Services: services},
	}, nil
}

// Catalog 目录快照
func (s *Session) Catalog() Catalog {
	return s.catalog
}

// Resolve 解析流程选中的条目
//
// 技术服务通过 GetService 刷新；NotFound 时先按 id 在快照中查找，再按名称匹配：
// 手工填写的名称优先，其次是记录中已有的 knownNames。
func (s *Session) Resolve(ctx context.Context, f Flow, knownNames ...string) (Resolution, error) {
	var res Resolution
	if f.Team.Found == Yes {
		t, ok := s.catalog.FindTeam(f.Team.DirectoryID)
		if !ok {
			return res, fmt.Errorf("%w: team %q", ErrUnresolved, f.Team.DirectoryID)
		}
		res.Team = t
	}

	if f.TechService.Found != Yes || f.TechService.Scenario == ScenarioNone {
		return res, nil
	}
	id := f.TechService.DirectoryID
	svc, err := s.gw.GetService(ctx, id)
	switch {
	case err == nil:
		res.Service = svc
		return res, nil
	case !errors.Is(err, directory.ErrNotFound):
		return res, err
	}

	if fallback, ok := s.catalog.FindService(id); ok {
		res.Service = fallback
		return res, nil
	}
	names := append([]string{f.TechService.ManualName}, knownNames...)
	for _, name := range names {
		if fallback, ok := s.catalog.FindServiceByName(name); ok {
			s.logger.Debug("service lookup fell back to name match",
				zap.String("service", id),
				zap.String("name", name))
			res.Service = fallback
			return res, nil
		}
	}
	return res, fmt.Errorf("%w: service %q", ErrUnresolved, id)
}

// Preview 计算流程在给定 Schema 下的赋值列表，不写回
func (s *Session) Preview(ctx context.Context, f Flow, schema *model.Schema, knownNames ...string) (store.PatchSet, error) {
	res, err := s.Resolve(ctx, f, knownNames...)
	if err != nil {
		return nil, err
	}
	return DerivePatchSet(f, schema, res)
}

// ApplyResult 应用结果
type ApplyResult struct {
	Patch   store.PatchSet         `json:"patch"`
	Records []*model.ServiceRecord `json:"records"`
}

// Apply 将流程结果应用到 ids 并整表写回
//
// 单条模式下 ids 必须恰好一个；批量模式对每个 id 应用同一 PatchSet。
func (s *Session) Apply(ctx context.Context, ledger *store.Ledger, fileName string, ids []string, f Flow) (*ApplyResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no records selected", ErrSelection)
	}
	if f.SingleRecord && len(ids) != 1 {
		return nil, fmt.Errorf("%w: single-record flow applied to %d records", ErrSelection, len(ids))
	}
	if f.Step != StepSave {
		return nil, fmt.Errorf("%w: flow is at %s, not %s", ErrGuard, f.Step, StepSave)
	}

	current, err := ledger.Load(fileName)
	if err != nil {
		return nil, err
	}
	res, err := s.Resolve(ctx, f, TechServiceNames(current.Records, ids)...)
	if err != nil {
		return nil, err
	}

	var patch store.PatchSet
	ms, err := ledger.Mutate(ctx, fileName, func(ms *store.MemoryStore) error {
		p, err := DerivePatchSet(f, ms.Schema(), res)
		if err != nil {
			return err
		}
		patch = p
		return ms.BatchUpdate(ids, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("onboarding applied",
		zap.String("file", fileName),
		zap.Int("records", len(ids)),
		zap.Int("fields", len(patch)))

	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}
	out := &ApplyResult{Patch: patch, Records: []*model.ServiceRecord{}}
	for _, r := range ms.Records() {
		if _, ok := selected[r.ID]; ok {
			out.Records = append(out.Records, r)
		}
	}
	return out, nil
}
