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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
)

func TestConfigCommandTree(t *testing.T) {
	cmd := NewConfigCommand()

	if cmd.Use != "config" {
		t.Errorf("expected use 'config', got %q", cmd.Use)
	}

	for _, want := range []string{"init", "show", "path"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", want)
		}
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"50052", false},
		{"1", false},
		{"65535", false},
		{"0", true},
		{"65536", true},
		{"-1", true},
		{"grpc", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := validatePort(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePort(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestConfigInitDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	shared.SetConfigPathForTest(cfgPath)
	defer shared.SetConfigPathForTest("")

	cmd := newConfigInitCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--defaults"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init --defaults: %v", err)
	}

	// The written file must load back as a valid configuration.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Providers.Default != "cohere" {
		t.Errorf("Providers.Default = %q, want %q", cfg.Providers.Default, "cohere")
	}
	if cfg.Server.Port != 50052 {
		t.Errorf("Server.Port = %d, want 50052", cfg.Server.Port)
	}

	if !strings.Contains(buf.String(), cfgPath) {
		t.Errorf("output should name the written path, got: %s", buf.String())
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 50052\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	shared.SetConfigPathForTest(cfgPath)
	defer shared.SetConfigPathForTest("")

	cmd := newConfigInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"--defaults"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error should mention the existing file, got: %v", err)
	}
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	shared.SetConfigPathForTest("/tmp/flag-config.yaml")
	defer shared.SetConfigPathForTest("")

	if got := resolveConfigPath(); got != "/tmp/flag-config.yaml" {
		t.Errorf("flag should win, got %q", got)
	}

	shared.SetConfigPathForTest("")
	t.Setenv(config.EnvConfigPath, "/tmp/env-config.yaml")

	if got := resolveConfigPath(); got != "/tmp/env-config.yaml" {
		t.Errorf("CONFIG_PATH should apply, got %q", got)
	}
}
