package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oakmoss/telnetcore"
	"github.com/oakmoss/telnetcore/internal/config"
)

// configWatcher hot-reloads config.json without a restart: it currently
// only has a keepalive schedule worth changing live, since every other
// field requires rebinding a listener.
type configWatcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	done      chan struct{}
	configDir string
	mgr       *telnetcore.Manager
}

func newConfigWatcher(configDir string, mgr *telnetcore.Manager) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(configDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", configDir, err)
	}

	cw := &configWatcher{watcher: w, done: make(chan struct{}), configDir: configDir, mgr: mgr}
	go cw.loop()
	log.Printf("INFO: watching %s for config changes", configDir)
	return cw, nil
}

func (cw *configWatcher) stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.watcher == nil {
		return
	}
	close(cw.done)
	cw.watcher.Close()
	cw.watcher = nil
}

func (cw *configWatcher) loop() {
	var debounce *time.Timer
	const debounceWindow = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := event.Name
			debounce = time.AfterFunc(debounceWindow, func() { cw.handleChange(name) })

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR: config watcher: %v", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *configWatcher) handleChange(path string) {
	if strings.ToLower(filepath.Base(path)) != "config.json" {
		return
	}
	log.Printf("INFO: config.json changed, reloading keepalive schedule")

	cfg, err := config.LoadServerConfig(cw.configDir)
	if err != nil {
		log.Printf("ERROR: reload config.json: %v", err)
		return
	}
	if cfg.KeepaliveSchedule == "" {
		cw.mgr.StopKeepalive()
		return
	}
	if err := cw.mgr.StartKeepalive(cfg.KeepaliveSchedule); err != nil {
		log.Printf("ERROR: apply reloaded keepalive schedule %q: %v", cfg.KeepaliveSchedule, err)
	}
}
