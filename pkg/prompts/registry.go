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

// Package prompts loads and serves the versioned prompt template library.
//
// Templates live in a YAML file (PROMPTS_PATH, default prompts.yaml) keyed
// by family name, each family carrying one or more versions and a default.
// Operator overrides in prompts.d/ merge over the base file, and Watch
// reloads everything on change. A copy of the shipped library is embedded
// in the binary so the server runs without any file on disk.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the library file consulted when PROMPTS_PATH is unset.
	DefaultPath = "prompts.yaml"

	// EnvPath names the environment variable overriding the library path.
	EnvPath = "PROMPTS_PATH"

	// OverlayDir is scanned next to the library file for override files.
	OverlayDir = "prompts.d"
)

// Embedded copy of the shipped library, used when no prompts.yaml exists
// on disk.
//
//go:embed prompts.yaml
var embeddedLibrary []byte

// Version is one concrete template within a prompt family.
type Version struct {
	Template string `yaml:"template"`
}

// Family is a named prompt with one or more versions and a default.
type Family struct {
	DefaultVersion string             `yaml:"default_version"`
	Versions       map[string]Version `yaml:"versions"`
}

type library struct {
	Prompts map[string]Family `yaml:"prompts"`
}

// Registry serves prompt templates by family name and version. Lookups are
// safe for concurrent use with Reload and Watch.
type Registry struct {
	mu  sync.RWMutex
	lib library

	// path is the base library file. Empty when the registry serves the
	// embedded library, in which case there is nothing to reload.
	path string

	logger *slog.Logger
}

// Load builds a registry from the library at path. When path is empty the
// PROMPTS_PATH environment variable is consulted, then DefaultPath. A file
// that was not named explicitly and does not exist falls back to the
// library embedded in the binary.
func Load(path string) (*Registry, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	r := &Registry{path: path, logger: slog.Default()}

	lib, err := r.read()
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			lib, err = parseLibrary(embeddedLibrary)
			if err != nil {
				return nil, fmt.Errorf("parse embedded prompt library: %w", err)
			}
			r.path = ""
			r.lib = lib
			r.logger.Debug("serving embedded prompt library", "prompts", len(lib.Prompts))
			return r, nil
		}
		return nil, err
	}

	r.lib = lib
	return r, nil
}

// Reload re-reads the library file and its overlays, swapping the registry
// contents atomically. The previous library stays in place when the new one
// fails to load.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}

	lib, err := r.read()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.lib = lib
	r.mu.Unlock()
	return nil
}

// Get returns the template for the named prompt. An empty version selects
// the family default; a version that does not exist falls back to the
// default with a warning.
func (r *Registry) Get(name, version string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fam, ok := r.lib.Prompts[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}

	key := version
	if key == "" {
		key = fam.DefaultVersion
	}

	if v, ok := fam.Versions[key]; ok {
		return v.Template, nil
	}

	r.logger.Warn("prompt version not found, falling back to default",
		"prompt", name,
		"version", key,
		"default", fam.DefaultVersion,
	)

	v, ok := fam.Versions[fam.DefaultVersion]
	if !ok {
		return "", fmt.Errorf("prompt %q default version %q not found", name, fam.DefaultVersion)
	}
	return v.Template, nil
}

// Format renders the named prompt, substituting each {key} placeholder with
// its value from vars. Placeholders without a matching key are left as-is.
func (r *Registry) Format(name, version string, vars map[string]string) (string, error) {
	tmpl, err := r.Get(name, version)
	if err != nil {
		return "", err
	}
	for key, value := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+key+"}", value)
	}
	return tmpl, nil
}

// Names returns the prompt family names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.lib.Prompts))
	for name := range r.lib.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// read loads the base library file and layers overlays over it.
func (r *Registry) read() (library, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return library{}, fmt.Errorf("read prompt library: %w", err)
	}

	lib, err := parseLibrary(data)
	if err != nil {
		return library{}, fmt.Errorf("parse prompt library %s: %w", r.path, err)
	}
	if len(lib.Prompts) == 0 {
		return library{}, fmt.Errorf("prompt library %s defines no prompts", r.path)
	}

	overlays, err := overlayPaths(filepath.Dir(r.path))
	if err != nil {
		return library{}, err
	}
	for _, path := range overlays {
		data, err := os.ReadFile(path)
		if err != nil {
			return library{}, fmt.Errorf("read prompt overlay %s: %w", path, err)
		}
		overlay, err := parseLibrary(data)
		if err != nil {
			return library{}, fmt.Errorf("parse prompt overlay %s: %w", path, err)
		}
		for name, fam := range overlay.Prompts {
			lib.Prompts[name] = fam
			r.logger.Debug("prompt overlay applied", "prompt", name, "file", path)
		}
	}

	return lib, nil
}

// parseLibrary decodes a library document and checks every family names a
// default and carries at least one version. Empty documents are valid; the
// caller decides whether that is acceptable.
func parseLibrary(data []byte) (library, error) {
	var lib library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return library{}, err
	}
	for name, fam := range lib.Prompts {
		if fam.DefaultVersion == "" {
			return library{}, fmt.Errorf("prompt %q has no default_version", name)
		}
		if len(fam.Versions) == 0 {
			return library{}, fmt.Errorf("prompt %q has no versions", name)
		}
	}
	return lib, nil
}
