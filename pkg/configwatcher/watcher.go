package configwatcher

import (
	"context"
	"path/filepath"
	"school_dashboard_backend/internal/config"
	"school_dashboard_backend/pkg/logger"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader 配置文件变更后收到新配置
type Reloader func(cfg *config.Config)

type Watcher struct {
	configFile string
	debounce   time.Duration
	load       func(dir string) (*config.Config, error)
	reloaders  []Reloader
}

func New(configFile string, reloaders ...Reloader) *Watcher {
	return &Watcher{
		configFile: configFile,
		debounce:   time.Second,
		load:       config.LoadConfig,
		reloaders:  reloaders,
	}
}

// Run 阻塞监听配置文件，ctx 取消后返回
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(w.configFile)
	if err != nil {
		return err
	}

	// 监听目录，编辑器保存时常会替换文件
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 防抖处理
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			newCfg, err := w.load(filepath.Dir(absPath))
			if err != nil {
				logger.L().Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.L().Info("Config reloaded", zap.String("file", absPath))
			for _, r := range w.reloaders {
				r(newCfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.L().Error("Config watcher error", zap.Error(err))
		}
	}
}
