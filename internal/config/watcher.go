package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HotConfig wraps Static with fsnotify-based hot reload. Only the Runtime
// subsection is ever propagated to subscribers — transport, metrics and
// credential fields are launch-time only, per SPEC_FULL §6.4.
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Static
	path string
	subs []func(RuntimeDefaults)
}

// NewHotConfig loads path and prepares it for watching.
func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

// Get returns the current static config.
func (hc *HotConfig) Get() *Static {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnRuntimeReload registers a callback invoked with the new Runtime
// section whenever the file is rewritten.
func (hc *HotConfig) OnRuntimeReload(fn func(RuntimeDefaults)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		slog.Error("config reload failed", "err", err)
		return
	}

	hc.mu.Lock()
	prev := hc.cfg
	hc.cfg = cfg
	hc.mu.Unlock()

	if prev != nil {
		logIgnoredLaunchTimeChanges(prev, cfg)
	}

	slog.Info("config reloaded", "path", hc.path, "runtime", cfg.Runtime)
	for _, fn := range hc.subs {
		fn(cfg.Runtime)
	}
}

// logIgnoredLaunchTimeChanges warns when a reload touches a field that is
// only ever applied at process startup.
func logIgnoredLaunchTimeChanges(prev, next *Static) {
	if prev.Transport != next.Transport {
		slog.Warn("config reload changed transport settings; ignored until restart")
	}
	if prev.Metrics != next.Metrics {
		slog.Warn("config reload changed metrics settings; ignored until restart")
	}
	if prev.STT.Credentials != next.STT.Credentials {
		slog.Warn("config reload changed stt credentials; ignored until restart")
	}
	if prev.Translate.APIKey != next.Translate.APIKey {
		slog.Warn("config reload changed translate api key; ignored until restart")
	}
}

// Watch starts watching the config file for changes in the background.
func (hc *HotConfig) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("config watcher failed", "err", err)
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "err", err)
			}
		}
	}()

	if err := watcher.Add(hc.path); err != nil {
		slog.Error("watch config file failed", "path", hc.path, "err", err)
	}
}
