// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/apaluca/sockrpc/pkg/logging"
)

// WatchReload watches fileName for writes and invokes onReload with the
// freshly parsed config every time it changes. Only the log level can be
// applied to a running process (through logging.SetLevel); the socket path,
// worker topology and slow-handler threshold are fixed when the server is
// constructed, so changes to them take effect only after a restart.
func WatchReload(fileName string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(fileName)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(fileName) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(fileName)
				if err != nil {
					logging.Warnf("config reload of %s failed: %v", fileName, err)
					continue
				}
				logging.Infof("config %s reloaded", fileName)
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("config watcher error: %v", err)
			}
		}
	}()
	return nil
}
