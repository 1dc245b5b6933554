// Copyright 2025 Tom Barlow
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

package prompts

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// overlayGlob matches YAML overlay files at any depth below OverlayDir.
const overlayGlob = OverlayDir + "/**/*.{yaml,yml}"

// debounceDelay coalesces bursts of filesystem events into one reload.
const debounceDelay = 200 * time.Millisecond

// Watch reloads the registry whenever the library file or an overlay
// changes. It blocks until ctx is cancelled. Registries serving the
// embedded library have nothing to watch and return immediately.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Overlay directories existing now are watched directly. Directories
	// created later surface through events on their parent and are picked
	// up after the next reload restarts Watch.
	for _, sub := range overlayDirs(dir) {
		if err := watcher.Add(sub); err != nil {
			r.logger.Warn("failed to watch prompt overlay dir", "dir", sub, "error", err)
		}
	}

	var (
		mu      sync.Mutex
		pending *time.Timer
	)
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAMLPath(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceDelay, func() {
				if err := r.Reload(); err != nil {
					r.logger.Warn("prompt reload failed, keeping previous library", "error", err)
					return
				}
				r.logger.Info("prompt library reloaded", "path", r.path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("prompt watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// overlayPaths returns the overlay files under dir in lexical order. Later
// files win when two overlays define the same prompt.
func overlayPaths(dir string) ([]string, error) {
	pattern := filepath.Join(dir, overlayGlob)
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob prompt overlays: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// overlayDirs returns OverlayDir below base and all of its subdirectories.
func overlayDirs(base string) []string {
	root := filepath.Join(base, OverlayDir)
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
