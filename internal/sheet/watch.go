package sheet

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch 监听文件被本进程以外修改（写入/替换/删除），直到 ctx 结束
//
// 监听的是所在目录：原子写通过 rename 替换文件，直接监听文件会丢失后续事件。
func (s *FileStore) Watch(ctx context.Context, onChange func(fsnotify.Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) && s.IsOwnWrite() {
					continue
				}
				onChange(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
