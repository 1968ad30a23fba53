// Copyright 2025 Kadir Pekel
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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_AutoFormatIsJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: slog.LevelInfo, Format: FormatAuto, Output: &buf})

	l.Info("Agent initialized.", "url", "https://example.com")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Agent initialized.", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "https://example.com", rec["url"])
}

func TestNew_SimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: slog.LevelDebug, Format: FormatSimple, Output: &buf})

	l.With("component", "browser").Warn("Navigation failed", "error", "timeout")

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "WARN Navigation failed component=browser error=timeout", line)
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: slog.LevelWarn, Format: FormatSimple, Output: &buf})

	l.Info("hidden")
	l.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "ERROR shown")
}

func TestNew_VerboseFormatHasTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: slog.LevelInfo, Format: FormatVerbose, Output: &buf})

	l.Info("hello")

	line := buf.String()
	// 2006-01-02 15:04:05 INFO hello
	require.Greater(t, len(line), 20)
	assert.Equal(t, byte('-'), line[4])
	assert.Contains(t, line, "INFO hello")
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.log")

	f, cleanup, err := OpenLogFile(path)
	require.NoError(t, err)
	defer cleanup()

	l := New(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: f})
	l.Info("written")

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestInit_PackageLevelRecordsPassFilter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf})

	slog.Info("Agent initialized.")
	slog.Warn("Report write slow.", "ms", 1200)

	out := buf.String()
	assert.Contains(t, out, "Agent initialized.")
	assert.Contains(t, out, "Report write slow.")
}

func TestIsScoutCaller_HandBuiltRecord(t *testing.T) {
	assert.True(t, isScoutCaller(0))
}
