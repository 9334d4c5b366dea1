package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"svcledger/internal/model"
	"svcledger/internal/sheet"
	dbstore "svcledger/internal/store"
)

// ErrWriteFailure 重试后仍写回失败；内存中的修改被保留，可再次重试
var ErrWriteFailure = errors.New("write failure")

// ErrInvalidFileName 文件名不是数据目录下的纯文件名
var ErrInvalidFileName = errors.New("invalid file name")

// SaveLogger 写回日志（SQLite 实现见 internal/store）
type SaveLogger interface {
	CreateSaveLog(entry dbstore.SaveLogEntry) (int64, error)
}

// RetryPolicy 写回重试策略（指数退避）
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 2 * time.Second
	}
	return p
}

// delay 第 attempt 次重试前的等待时间
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// LedgerOptions Ledger 配置
type LedgerOptions struct {
	DataDir     string
	DefaultFile string
	// Variant 为空表示按表头自动识别
	Variant    model.SchemaVariant
	PersistIDs bool
	Retry      RetryPolicy
	Logger     *zap.Logger
	SaveLog    SaveLogger
}

// LoadResult 读取结果
type LoadResult struct {
	FileName string                 `json:"fileName"`
	Schema   *model.Schema          `json:"schema"`
	Records  []*model.ServiceRecord `json:"records"`
	Dropped  []string               `json:"dropped"`
	// Pending 为 true 表示返回的是上次写回失败后保留在内存中的数据
	Pending bool `json:"pending"`
}

// Ledger 记录集的 读取-修改-整表写回 入口
//
// 进程内串行化；进程间不加锁，后写者覆盖先写者。
type Ledger struct {
	opts   LedgerOptions
	logger *zap.Logger

	mu      sync.Mutex
	files   map[string]*sheet.FileStore
	pending map[string]*MemoryStore

	sleep func(ctx context.Context, d time.Duration) error
}

// NewLedger 创建 Ledger
func NewLedger(opts LedgerOptions) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Retry = opts.Retry.normalized()
	return &Ledger{
		opts:    opts,
		logger:  logger.Named("ledger"),
		files:   make(map[string]*sheet.FileStore),
		pending: make(map[string]*MemoryStore),
		sleep:   sleepContext,
	}
}

// DefaultFile 默认文件名
func (l *Ledger) DefaultFile() string {
	return l.opts.DefaultFile
}

// ResolveFileName 空名返回默认文件；只允许数据目录下的纯文件名
func (l *Ledger) ResolveFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return l.opts.DefaultFile, nil
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return "", fmt.Errorf("%w: %q must be an .xlsx file", ErrInvalidFileName, name)
	}
	return name, nil
}

// FileStore 返回文件对应的存储
func (l *Ledger) FileStore(fileName string) *sheet.FileStore {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fileStoreLocked(fileName)
}

func (l *Ledger) fileStoreLocked(fileName string) *sheet.FileStore {
	fs, ok := l.files[fileName]
	if !ok {
		fs = sheet.NewFileStore(filepath.Join(l.opts.DataDir, fileName), l.logger)
		l.files[fileName] = fs
	}
	return fs
}

func (l *Ledger) parseOptions() sheet.ParseOptions {
	return sheet.ParseOptions{
		Variant:    l.opts.Variant,
		PersistIDs: l.opts.PersistIDs,
	}
}

// Load 读取文件；若存在写回失败的待重试数据则返回内存数据
func (l *Ledger) Load(fileName string) (*LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ms, ok := l.pending[fileName]; ok {
		return &LoadResult{
			FileName: fileName,
			Schema:   ms.Schema(),
			Records:  ms.Records(),
			Dropped:  []string{},
			Pending:  true,
		}, nil
	}

	res, err := l.fileStoreLocked(fileName).Load(l.parseOptions())
	if err != nil {
		return nil, err
	}
	return &LoadResult{
		FileName: fileName,
		Schema:   res.Schema,
		Records:  res.Records,
		Dropped:  res.Dropped,
	}, nil
}

// HasPending 是否存在待重试的写回
func (l *Ledger) HasPending(fileName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[fileName]
	return ok
}

// Mutate 读取当前文件（或待重试数据），执行 fn，有修改时整表写回
func (l *Ledger) Mutate(ctx context.Context, fileName string, fn func(ms *MemoryStore) error) (*MemoryStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms, ok := l.pending[fileName]
	if !ok {
		res, err := l.fileStoreLocked(fileName).Load(l.parseOptions())
		if err != nil {
			return nil, err
		}
		ms = NewMemoryStore(res.Schema, res.Records)
		ms.SetShape(res.Shape)
	}

	// fn 失败时不污染待重试数据
	work := NewMemoryStore(ms.Schema(), ms.Records())
	work.SetShape(ms.Shape())
	work.dirty = ms.Dirty()
	if err := fn(work); err != nil {
		return nil, err
	}
	if !work.Dirty() {
		return work, nil
	}
	if err := l.saveLocked(ctx, fileName, work); err != nil {
		return work, err
	}
	return work, nil
}

// WriteAll 用 records 全量覆盖文件
func (l *Ledger) WriteAll(ctx context.Context, fileName string, records []*model.ServiceRecord, shape sheet.Shape) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	schema, err := l.schemaForWriteLocked(fileName, records)
	if err != nil {
		return 0, err
	}
	ms := NewMemoryStore(schema, nil)
	ms.SetRecords(records)
	ms.SetShape(shape)

	if err := l.saveLocked(ctx, fileName, ms); err != nil {
		return 0, err
	}
	return ms.Count(), nil
}

// RetryPending 重新写回上次失败的数据
func (l *Ledger) RetryPending(ctx context.Context, fileName string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms, ok := l.pending[fileName]
	if !ok {
		return 0, nil
	}
	if err := l.saveLocked(ctx, fileName, ms); err != nil {
		return 0, err
	}
	return ms.Count(), nil
}

// schemaForWriteLocked 已有文件沿用其版本；否则按配置或记录内容推断
func (l *Ledger) schemaForWriteLocked(fileName string, records []*model.ServiceRecord) (*model.Schema, error) {
	if l.opts.Variant != "" {
		return model.SchemaFor(l.opts.Variant, l.opts.PersistIDs)
	}
	if ms, ok := l.pending[fileName]; ok {
		return ms.Schema(), nil
	}
	if res, err := l.fileStoreLocked(fileName).Load(l.parseOptions()); err == nil {
		return res.Schema, nil
	}
	return model.SchemaFor(detectRecordsVariant(records), l.opts.PersistIDs)
}

func detectRecordsVariant(records []*model.ServiceRecord) model.SchemaVariant {
	legacy := model.MustSchema(model.SchemaLegacy, true)
	v2 := model.MustSchema(model.SchemaV2, true)
	for _, r := range records {
		for k, v := range r.Fields {
			if v != "" && v2.Has(k) && !legacy.Has(k) {
				return model.SchemaV2
			}
		}
	}
	return model.SchemaLegacy
}

// saveLocked 整表写回，失败按 RetryPolicy 退避重试；最终失败时保留到 pending
func (l *Ledger) saveLocked(ctx context.Context, fileName string, ms *MemoryStore) error {
	fs := l.fileStoreLocked(fileName)
	policy := l.opts.Retry

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = fs.Write(ms.records, ms.schema, ms.shape)
		if lastErr == nil {
			break
		}
		l.logger.Warn("spreadsheet write failed",
			zap.String("file", fileName),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt == policy.MaxAttempts {
			break
		}
		if err := l.sleep(ctx, policy.delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	entry := dbstore.SaveLogEntry{
		FileName: fileName,
		Rows:     ms.Count(),
		Variant:  string(ms.schema.Variant),
		Shape:    shapeName(ms.shape),
		Attempts: attempts,
		Status:   dbstore.SaveStatusOK,
	}
	if lastErr != nil {
		entry.Status = dbstore.SaveStatusFailed
		entry.ErrorMessage = lastErr.Error()
	}
	l.recordSave(entry)

	if lastErr != nil {
		l.pending[fileName] = ms
		return fmt.Errorf("%w: %v", ErrWriteFailure, lastErr)
	}
	ms.markClean()
	delete(l.pending, fileName)
	return nil
}

func (l *Ledger) recordSave(entry dbstore.SaveLogEntry) {
	if l.opts.SaveLog == nil {
		return
	}
	if _, err := l.opts.SaveLog.CreateSaveLog(entry); err != nil {
		l.logger.Warn("save log failed", zap.Error(err))
	}
}

func shapeName(shape sheet.Shape) string {
	if shape == sheet.ShapeKeyed {
		return "keyed"
	}
	return "positional"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
