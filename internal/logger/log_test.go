package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/phuslu/log"

	"rtthreads/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"verbose", log.InfoLevel},
		{"", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMapTimeFormat(t *testing.T) {
	if got := mapTimeFormat("Unix"); got != log.TimeFormatUnix {
		t.Errorf("Unix mapped to %q", got)
	}
	if got := mapTimeFormat("UnixMs"); got != log.TimeFormatUnixMs {
		t.Errorf("UnixMs mapped to %q", got)
	}
	if got := mapTimeFormat("15:04:05"); got != "15:04:05" {
		t.Errorf("layout changed to %q", got)
	}
}

func TestCreateWriter(t *testing.T) {
	tests := []struct {
		name    string
		output  config.LogOutput
		wantNil bool
		wantErr bool
	}{
		{
			name:    "disabled output",
			output:  config.LogOutput{Type: "console", Enabled: false},
			wantNil: true,
		},
		{
			name:    "console without section",
			output:  config.LogOutput{Type: "console", Enabled: true},
			wantErr: true,
		},
		{
			name:    "file without section",
			output:  config.LogOutput{Type: "file", Enabled: true},
			wantErr: true,
		},
		{
			name:    "unknown type",
			output:  config.LogOutput{Type: "eventlog", Enabled: true},
			wantErr: true,
		},
		{
			name: "unknown console format",
			output: config.LogOutput{Type: "console", Enabled: true,
				Console: &config.ConsoleConfig{Format: "xml"}},
			wantErr: true,
		},
		{
			name: "glog console",
			output: config.LogOutput{Type: "console", Enabled: true,
				Console: &config.ConsoleConfig{Format: "glog", Writer: "stdout"}},
		},
		{
			name: "async json console",
			output: config.LogOutput{Type: "console", Enabled: true,
				Console: &config.ConsoleConfig{FastIO: true, Async: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := createWriter(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createWriter error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (w == nil) != tt.wantNil {
				t.Errorf("createWriter returned %v, wantNil %v", w, tt.wantNil)
			}
		})
	}
}

func TestCreateMultiWriterFallsBackToStderr(t *testing.T) {
	w, err := createMultiWriter(nil)
	if err != nil {
		t.Fatalf("createMultiWriter: %v", err)
	}
	if _, ok := w.(*log.IOWriter); !ok {
		t.Errorf("expected the stderr IOWriter fallback, got %T", w)
	}
}

func TestConfigureLoggingDefaults(t *testing.T) {
	saved := log.DefaultLogger
	defer func() { log.DefaultLogger = saved }()

	if err := ConfigureLogging(config.DefaultConfig().Logging); err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}
	if log.DefaultLogger.Level != log.InfoLevel {
		t.Errorf("level = %v, want info", log.DefaultLogger.Level)
	}
}

func TestNewLoggerWithContext(t *testing.T) {
	saved := log.DefaultLogger
	defer func() { log.DefaultLogger = saved }()

	var buf bytes.Buffer
	log.DefaultLogger = log.Logger{
		Level:  log.DebugLevel,
		Writer: &log.IOWriter{Writer: &buf},
	}

	l := NewLoggerWithContext("threads")
	if l.Level != log.DebugLevel {
		t.Errorf("component logger level = %v, want the default logger's", l.Level)
	}
	l.Info().Str("name", "worker").Msg("thread started")

	out := buf.String()
	if !strings.Contains(out, `"component":"threads"`) {
		t.Errorf("component field missing from %q", out)
	}
	if !strings.Contains(out, "thread started") {
		t.Errorf("message missing from %q", out)
	}
}
