package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"svcledger/internal/model"
)

// FileStore 单个 xlsx 文件的整表读写
//
// 没有锁和版本校验：多个客户端并发保存时后写者覆盖先写者。
type FileStore struct {
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	lastWrite time.Time // 本进程最近一次写入后的文件修改时间
}

// NewFileStore 创建文件存储
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger.Named("sheet")}
}

// Path 返回文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取并解析整个文件
func (s *FileStore) Load(opts ParseOptions) (*ParseResult, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, err
	}

	wb, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer wb.Close()

	result, err := Parse(wb, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("spreadsheet loaded",
		zap.String("path", s.path),
		zap.String("variant", string(result.Schema.Variant)),
		zap.Int("records", len(result.Records)),
		zap.Strings("dropped", result.Dropped))
	return result, nil
}

// Write 全量覆盖写入：先写临时文件再 rename，避免中途崩溃留下半个文件
func (s *FileStore) Write(records []*model.ServiceRecord, schema *model.Schema, shape Shape) error {
	wb, err := Serialize(records, schema, shape)
	if err != nil {
		return err
	}
	defer wb.Close()

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("serialize workbook: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace spreadsheet: %w", err)
	}

	s.mu.Lock()
	if fi, err := os.Stat(s.path); err == nil {
		s.lastWrite = fi.ModTime()
	}
	s.mu.Unlock()

	s.logger.Info("spreadsheet written",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
		zap.String("variant", string(schema.Variant)))
	return nil
}

// IsOwnWrite 当前文件内容是否来自本进程最近一次写入
func (s *FileStore) IsOwnWrite() bool {
	fi, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastWrite.IsZero() && fi.ModTime().Equal(s.lastWrite)
}
