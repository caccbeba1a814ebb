// Package watcher 监听表单数据文件的变化并去抖后通知订阅者
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cci-legal/litigation/internal/shared/pubsub"
	"github.com/fsnotify/fsnotify"
)

// EventType 监听事件类型
type EventType string

const (
	FileChanged  EventType = "file_changed"
	WatcherError EventType = "watcher_error"
)

// WatcherEvent 监听事件
type WatcherEvent struct {
	Type  EventType
	Path  string
	Error error
}

// Config 监听配置
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultConfig 默认去抖100ms
func DefaultConfig(path string) Config {
	return Config{Path: path, DebounceDur: 100 * time.Millisecond}
}

// Watcher 监听单个文件；监听其所在目录以兼容编辑器的原子替换写入
type Watcher struct {
	cfg    Config
	broker *pubsub.Broker[WatcherEvent]

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// New 创建监听器，Start之前即可订阅
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch path is required")
	}
	if cfg.DebounceDur <= 0 {
		cfg.DebounceDur = 100 * time.Millisecond
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	cfg.Path = abs
	return &Watcher{
		cfg:    cfg,
		broker: pubsub.NewBroker[WatcherEvent](),
	}, nil
}

// Broker 事件广播
func (w *Watcher) Broker() *pubsub.Broker[WatcherEvent] {
	return w.broker
}

// Start 开始监听
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("watcher stopped")
	}
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.cfg.Path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.cfg.Path), err)
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(fsw, w.done)
	return nil
}

// Stop 停止监听并关闭广播
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	var err error
	if fsw != nil {
		close(done)
		err = fsw.Close()
		w.wg.Wait()
	}
	w.broker.Close()
	return err
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.cfg.Path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(w.cfg.DebounceDur)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.DebounceDur)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if pending {
				pending = false
				w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: FileChanged, Path: w.cfg.Path})
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: WatcherError, Path: w.cfg.Path, Error: err})
		}
	}
}
