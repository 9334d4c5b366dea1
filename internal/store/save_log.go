package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// 写回状态
const (
	SaveStatusOK     = "ok"
	SaveStatusFailed = "failed"
)

// SaveLogEntry 一次整表写回的记录
type SaveLogEntry struct {
	ID           int64     `json:"id"`
	FileName     string    `json:"fileName"`
	Rows         int       `json:"rows"`
	Variant      string    `json:"variant"`
	Shape        string    `json:"shape"`
	Attempts     int       `json:"attempts"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateSaveLog 写入一条写回日志，返回 id
func (s *Store) CreateSaveLog(entry SaveLogEntry) (int64, error) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO save_logs (file_name, rows, variant, shape, attempts, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.FileName, entry.Rows, entry.Variant, entry.Shape, entry.Attempts, entry.Status, entry.ErrorMessage, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create save log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get save log id: %w", err)
	}
	return id, nil
}

// LastSaveLog 获取文件最近一次写回记录，没有时返回 nil
func (s *Store) LastSaveLog(fileName string) (*SaveLogEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, file_name, rows, variant, shape, attempts, status, error_message, created_at
		FROM save_logs WHERE file_name = ? ORDER BY id DESC LIMIT 1
	`, fileName)
	e, err := scanSaveLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query save log: %w", err)
	}
	return e, nil
}

// ListSaveLogs 按时间倒序列出写回记录
func (s *Store) ListSaveLogs(limit int) ([]SaveLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, file_name, rows, variant, shape, attempts, status, error_message, created_at
		FROM save_logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list save logs: %w", err)
	}
	defer rows.Close()

	out := []SaveLogEntry{}
	for rows.Next() {
		e, err := scanSaveLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSaveLog(r rowScanner) (*SaveLogEntry, error) {
	var e SaveLogEntry
	if err := r.Scan(&e.ID, &e.FileName, &e.Rows, &e.Variant, &e.Shape, &e.Attempts, &e.Status, &e.ErrorMessage, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
